package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/couchcryptid/eplus-toolkit/internal/domain"
	"github.com/dustin/go-humanize"
)

const ruleWidth = 70

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	failStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

func banner(w io.Writer, title string) {
	rule := strings.Repeat("=", ruleWidth)
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, titleStyle.Render(title))
	fmt.Fprintln(w, rule)
}

func section(w io.Writer, title string) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, titleStyle.Render(title))
	fmt.Fprintln(w, strings.Repeat("-", ruleWidth))
}

func statusLabel(s domain.RunStatus) string {
	if s == domain.StatusPassed {
		return okStyle.Render("PASSED")
	}
	return failStyle.Render("FAILED")
}

func compatLabel(c domain.Compatibility) string {
	switch c {
	case domain.CompatMatch:
		return okStyle.Render("OK")
	case domain.CompatOlder:
		return warnStyle.Render("needs upgrade")
	case domain.CompatNewer:
		return failStyle.Render("too new")
	default:
		return dimStyle.Render("unknown")
	}
}

func fileSize(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.Bytes(uint64(n))
}

func printOutputs(w io.Writer, outputs []domain.OutputFile) {
	if len(outputs) == 0 {
		fmt.Fprintln(w, dimStyle.Render("  no output files"))
		return
	}
	for _, o := range outputs {
		fmt.Fprintf(w, "  %s %s (%s)\n", okStyle.Render("✓"), o.Name, fileSize(o.Size))
	}
}

func printDiagnostics(w io.Writer, res domain.RunResult) {
	d := res.Diagnostics
	fmt.Fprintf(w, "  warnings: %d  severe: %d  fatal: %d\n", d.Warnings, d.Severe, d.Fatal)
	if res.Failure != "" {
		fmt.Fprintf(w, "  %s\n", failStyle.Render(res.Failure))
	}
}
