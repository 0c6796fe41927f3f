package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/couchcryptid/eplus-toolkit/internal/domain"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newAnalyzeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze [DIR]",
		Short: "Summarize the energy columns of a finished run",
		Long: `Read eplusout.csv and eplusmtr.csv from a run's output directory and print
the total, mean and peak of every non-zero energy column.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			dir := a.cfg.OutputDir
			if len(args) == 1 {
				dir = args[0]
			}

			banner(w, "Results in "+dir)
			var found int
			for _, t := range []struct {
				file     string
				title    string
				keywords []string
			}{
				{"eplusout.csv", "Variables", domain.EnergyKeywords},
				{"eplusmtr.csv", "Meters", nil},
			} {
				ok, err := summarizeFile(w, filepath.Join(dir, t.file), t.title, t.keywords)
				if err != nil {
					return err
				}
				if ok {
					found++
				}
			}

			tbl := filepath.Join(dir, "eplustbl.htm")
			if _, err := os.Stat(tbl); err == nil {
				found++
				fmt.Fprintf(w, "\nAnnual tables: %s\n", absPath(tbl))
			}
			if found == 0 {
				return fmt.Errorf("no results in %s", dir)
			}
			return nil
		},
	}
}

// summarizeFile prints the summary of one CSV and reports whether it existed.
func summarizeFile(w io.Writer, path, title string, keywords []string) (bool, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	defer f.Close()

	sum, err := domain.SummarizeTable(f, keywords)
	if errors.Is(err, domain.ErrEmptyTable) {
		section(w, title)
		fmt.Fprintln(w, dimStyle.Render("  empty file"))
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("%s: %w", path, err)
	}

	section(w, fmt.Sprintf("%s (%s rows, %d columns)", title, humanize.Comma(int64(sum.Rows)), sum.Columns))
	if len(sum.Summary) == 0 {
		fmt.Fprintln(w, dimStyle.Render("  no non-zero energy columns"))
		return true, nil
	}
	for _, c := range sum.Summary {
		fmt.Fprintf(w, "  %s\n", c.Name)
		fmt.Fprintf(w, "    total %s  mean %s  peak %s\n",
			humanize.CommafWithDigits(c.Total, 2), humanize.CommafWithDigits(c.Mean, 2), humanize.CommafWithDigits(c.Peak, 2))
	}
	return true, nil
}
