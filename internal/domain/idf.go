package domain

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrVersionNotFound is returned when a model has no Version object.
	ErrVersionNotFound = errors.New("version object not found")
	// ErrRunPeriodNotFound is returned when a model has no RunPeriod object to replace.
	ErrRunPeriodNotFound = errors.New("RunPeriod object not found")
	// ErrInvalidRunPeriod is returned for impossible calendar dates.
	ErrInvalidRunPeriod = errors.New("invalid run period")
)

// idfVersionRe matches the Version object in both the single-line and the
// two-line form. Commented-out lines never match because of the anchor.
var idfVersionRe = regexp.MustCompile(`(?im)^[ \t]*Version[ \t]*,\s*([0-9][0-9.]*)[ \t]*;`)

// runPeriodRe matches a whole RunPeriod object through its terminating semicolon.
var runPeriodRe = regexp.MustCompile(`(?im)^[ \t]*RunPeriod,[ \t]*\r?\n\s*[^;]+;`)

// ReadModelVersion returns the version declared by the model's Version object.
func ReadModelVersion(content string) (string, error) {
	m := idfVersionRe.FindStringSubmatch(content)
	if m == nil {
		return "", ErrVersionNotFound
	}
	return m[1], nil
}

// RewriteModelVersion replaces the value of the first Version object and
// returns the new content with everything else untouched.
func RewriteModelVersion(content, version string) (string, error) {
	loc := idfVersionRe.FindStringSubmatchIndex(content)
	if loc == nil {
		return "", ErrVersionNotFound
	}
	return content[:loc[2]] + version + content[loc[3]:], nil
}

// RunPeriod is a simulation date range. Year is zero when the range spans
// years or the source has no usable year.
type RunPeriod struct {
	BeginMonth int
	BeginDay   int
	EndMonth   int
	EndDay     int
	Year       int
}

// Validate rejects months and days that do not exist on the calendar.
func (p RunPeriod) Validate() error {
	year := p.Year
	if year == 0 {
		year = 2024 // leap year so Feb 29 is accepted
	}
	if !validDate(year, p.BeginMonth, p.BeginDay) {
		return fmt.Errorf("%w: begin %d/%d", ErrInvalidRunPeriod, p.BeginMonth, p.BeginDay)
	}
	if !validDate(year, p.EndMonth, p.EndDay) {
		return fmt.Errorf("%w: end %d/%d", ErrInvalidRunPeriod, p.EndMonth, p.EndDay)
	}
	return nil
}

// StartDayOfWeek names the weekday of the begin date, or Sunday when the
// year is unknown.
func (p RunPeriod) StartDayOfWeek() string {
	if p.Year == 0 {
		return time.Sunday.String()
	}
	return time.Date(p.Year, time.Month(p.BeginMonth), p.BeginDay, 0, 0, 0, 0, time.UTC).Weekday().String()
}

func (p RunPeriod) String() string {
	s := fmt.Sprintf("%d/%d - %d/%d", p.BeginMonth, p.BeginDay, p.EndMonth, p.EndDay)
	if p.Year != 0 {
		s += fmt.Sprintf(" (%d)", p.Year)
	}
	return s
}

// Block renders the RunPeriod object as IDF text.
func (p RunPeriod) Block() string {
	year := ""
	if p.Year != 0 {
		year = strconv.Itoa(p.Year)
	}
	fields := []struct{ value, comment string }{
		{"CustomPeriod", "Name"},
		{strconv.Itoa(p.BeginMonth), "Begin Month"},
		{strconv.Itoa(p.BeginDay), "Begin Day of Month"},
		{year, "Begin Year"},
		{strconv.Itoa(p.EndMonth), "End Month"},
		{strconv.Itoa(p.EndDay), "End Day of Month"},
		{year, "End Year"},
		{p.StartDayOfWeek(), "Day of Week for Start Day"},
		{"No", "Use Weather File Holidays and Special Days"},
		{"No", "Use Weather File Daylight Saving Period"},
		{"No", "Apply Weekend Holiday Rule"},
		{"Yes", "Use Weather File Rain Indicators"},
		{"Yes", "Use Weather File Snow Indicators"},
	}

	var b strings.Builder
	b.WriteString("RunPeriod,\n")
	for i, f := range fields {
		sep := ","
		if i == len(fields)-1 {
			sep = ";"
		}
		fmt.Fprintf(&b, "    %-25s!- %s\n", f.value+sep, f.comment)
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// RewriteRunPeriod replaces every RunPeriod object in the model with the
// given period and reports how many were replaced.
func RewriteRunPeriod(content string, p RunPeriod) (string, int, error) {
	if err := p.Validate(); err != nil {
		return "", 0, err
	}
	n := len(runPeriodRe.FindAllStringIndex(content, -1))
	if n == 0 {
		return "", 0, ErrRunPeriodNotFound
	}
	return runPeriodRe.ReplaceAllLiteralString(content, p.Block()), n, nil
}

func validDate(year, month, day int) bool {
	if month < 1 || month > 12 || day < 1 {
		return false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	return t.Month() == time.Month(month) && t.Day() == day
}
