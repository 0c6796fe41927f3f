package domain

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strings"
)

const (
	errMarkerWarning   = "** Warning **"
	errMarkerSevere    = "** Severe  **"
	errMarkerFatal     = "**  Fatal  **"
	errMarkerCompleted = "EnergyPlus Completed Successfully"
)

var (
	programVersionRe = regexp.MustCompile(`Program Version,\s*EnergyPlus,\s*Version\s+(\d+\.\d+\.\d+(?:-\w+)?)`)
	versionBannerRe  = regexp.MustCompile(`Version\s+(\d+\.\d+\.\d+)(?:-(\w+))?`)
	iddVersionRe     = regexp.MustCompile(`!IDD_Version\s+(\d+\.\d+\.\d+)`)
)

// ErrSummary counts the diagnostics of one run.
type ErrSummary struct {
	Warnings       int    `json:"warnings"`
	Severe         int    `json:"severe"`
	Fatal          int    `json:"fatal"`
	Completed      bool   `json:"completed"`
	ProgramVersion string `json:"program_version,omitempty"`
}

// ParseErrFile scans an eplusout.err stream.
func ParseErrFile(r io.Reader) (ErrSummary, error) {
	var s ErrSummary
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.Contains(line, errMarkerWarning):
			s.Warnings++
		case strings.Contains(line, errMarkerSevere):
			s.Severe++
		case strings.Contains(line, errMarkerFatal):
			s.Fatal++
		}
		if strings.Contains(line, errMarkerCompleted) {
			s.Completed = true
		}
		if s.ProgramVersion == "" {
			if m := programVersionRe.FindStringSubmatch(line); m != nil {
				s.ProgramVersion = m[1]
			}
		}
	}
	if err := sc.Err(); err != nil {
		return s, fmt.Errorf("read err file: %w", err)
	}
	return s, nil
}

// ParseVersionBanner extracts "X.Y.Z" and the optional build id from the
// output of "energyplus --version".
func ParseVersionBanner(out string) (version, build string, ok bool) {
	m := versionBannerRe.FindStringSubmatch(out)
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}

// ParseIDDVersion extracts the version from the header of Energy+.idd.
func ParseIDDVersion(content string) (string, bool) {
	m := iddVersionRe.FindStringSubmatch(content)
	if m == nil {
		return "", false
	}
	return m[1], true
}
