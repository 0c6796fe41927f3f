package domain

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrNoHourlyData is returned when an archive response carries no timestamps.
	ErrNoHourlyData = errors.New("no hourly data")
	// ErrNoDataRows is returned when an EPW file has no rows after its header.
	ErrNoDataRows = errors.New("no data rows in weather file")
)

const (
	// EPWHeaderLines is the number of header lines preceding hourly rows.
	EPWHeaderLines = 8
	// EPWFieldCount is the number of comma-separated fields per hourly row.
	EPWFieldCount = 35
	// ArchiveLag is how far behind real time the Open-Meteo archive runs.
	ArchiveLag = 5 * 24 * time.Hour

	dateLayout       = "2006-01-02"
	openMeteoTimeFmt = "2006-01-02T15:04"
	epwDataSource    = "?9?9?9?9E0?9?9?9?9?9?9?9?9?9?9?9?9?9?9?9*9*9?9?9?9"

	defaultDryBulb  = 20.0
	defaultRH       = 50.0
	defaultPressure = 1013.25 // hPa
)

// Open-Meteo hourly variable names used by the converter.
const (
	HourlyTemperature   = "temperature_2m"
	HourlyHumidity      = "relative_humidity_2m"
	HourlyDewPoint      = "dew_point_2m"
	HourlyPressureMSL   = "pressure_msl"
	HourlySurfacePress  = "surface_pressure"
	HourlyWindSpeed     = "wind_speed_10m"
	HourlyWindDirection = "wind_direction_10m"
	HourlyShortwave     = "shortwave_radiation"
	HourlyDirect        = "direct_radiation"
	HourlyDiffuse       = "diffuse_radiation"
	HourlyDNI           = "direct_normal_irradiance"
	HourlyPrecipitation = "precipitation"
	HourlyRain          = "rain"
	HourlySnowfall      = "snowfall"
	HourlyCloudCover    = "cloud_cover"
)

// HourlyVariables is the full set requested from the archive.
var HourlyVariables = []string{
	HourlyTemperature, HourlyHumidity, HourlyDewPoint, HourlyPressureMSL,
	HourlySurfacePress, HourlyWindSpeed, HourlyWindDirection, HourlyShortwave,
	HourlyDirect, HourlyDiffuse, HourlyDNI, HourlyPrecipitation, HourlyRain,
	HourlySnowfall, HourlyCloudCover,
}

// OpenMeteoResponse is the subset of an archive response used for conversion.
type OpenMeteoResponse struct {
	Latitude         float64      `json:"latitude"`
	Longitude        float64      `json:"longitude"`
	Elevation        float64      `json:"elevation"`
	Timezone         string       `json:"timezone"`
	UTCOffsetSeconds int          `json:"utc_offset_seconds"`
	Hourly           HourlySeries `json:"hourly"`

	// Raw is the response body as received.
	Raw json.RawMessage `json:"-"`
}

// HourlySeries holds the timestamps and every numeric series of an archive
// response. Null values are kept as nil so they can be defaulted later.
type HourlySeries struct {
	Time   []string
	Values map[string][]*float64
}

// UnmarshalJSON decodes the "hourly" object, whose keys depend on the request.
func (h *HourlySeries) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	h.Values = make(map[string][]*float64, len(raw))
	for k, v := range raw {
		if k == "time" {
			if err := json.Unmarshal(v, &h.Time); err != nil {
				return fmt.Errorf("hourly time: %w", err)
			}
			continue
		}
		var vals []*float64
		if err := json.Unmarshal(v, &vals); err != nil {
			return fmt.Errorf("hourly %s: %w", k, err)
		}
		h.Values[k] = vals
	}
	return nil
}

// Value returns the i-th value of a series and whether it was present.
func (h HourlySeries) Value(key string, i int) (float64, bool) {
	vals := h.Values[key]
	if i >= len(vals) || vals[i] == nil {
		return 0, false
	}
	return *vals[i], true
}

func (h HourlySeries) valueOr(key string, i int, def float64) float64 {
	if v, ok := h.Value(key, i); ok {
		return v
	}
	return def
}

// ParseOpenMeteo decodes an archive response body.
func ParseOpenMeteo(body []byte) (OpenMeteoResponse, error) {
	var resp OpenMeteoResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return OpenMeteoResponse{}, fmt.Errorf("decode open-meteo response: %w", err)
	}
	resp.Raw = body
	return resp, nil
}

// ParseDate parses a YYYY-MM-DD date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (want YYYY-MM-DD): %w", s, err)
	}
	return t, nil
}

// ErrInvalidDateRange is returned when a range ends before it starts.
var ErrInvalidDateRange = errors.New("invalid date range")

// ValidateArchiveRange parses and checks a YYYY-MM-DD range. available is
// false when the end date falls inside the archive lag and the most recent
// days may come back empty.
func ValidateArchiveRange(start, end string) (from, to time.Time, available bool, err error) {
	from, err = ParseDate(start)
	if err != nil {
		return time.Time{}, time.Time{}, false, err
	}
	to, err = ParseDate(end)
	if err != nil {
		return time.Time{}, time.Time{}, false, err
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, false, fmt.Errorf("%w: %s is before %s", ErrInvalidDateRange, end, start)
	}
	return from, to, ArchiveAvailable(to), nil
}

// ArchiveAvailable reports whether data up to end is expected to be in the
// archive yet.
func ArchiveAvailable(end time.Time) bool {
	return !end.After(clock.Now().Add(-ArchiveLag))
}

// ConvertToEPW renders an archive response as an EPW weather file.
func ConvertToEPW(resp OpenMeteoResponse) ([]byte, error) {
	h := resp.Hourly
	if len(h.Time) == 0 {
		return nil, ErrNoHourlyData
	}
	times := make([]time.Time, len(h.Time))
	for i, s := range h.Time {
		t, err := time.Parse(openMeteoTimeFmt, s)
		if err != nil {
			return nil, fmt.Errorf("hourly time %d: %w", i, err)
		}
		times[i] = t
	}

	var buf bytes.Buffer
	writeEPWHeader(&buf, resp, times[0], times[len(times)-1])
	for i, t := range times {
		buf.WriteString(epwRow(h, i, t))
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

func writeEPWHeader(w io.Writer, resp OpenMeteoResponse, first, last time.Time) {
	lat := formatFloat(resp.Latitude)
	lon := formatFloat(resp.Longitude)
	elev := formatFloat(resp.Elevation)
	tz := strconv.FormatFloat(float64(resp.UTCOffsetSeconds)/3600, 'f', 1, 64)

	fmt.Fprintf(w, "LOCATION,OpenMeteo_Location,-,-,OpenMeteo,999999,%s,%s,%s,%s\n", lat, lon, tz, elev)
	fmt.Fprintln(w, "DESIGN CONDITIONS,0")
	fmt.Fprintln(w, "TYPICAL/EXTREME PERIODS,0")
	fmt.Fprintln(w, "GROUND TEMPERATURES,0")
	fmt.Fprintln(w, "HOLIDAYS/DAYLIGHT SAVINGS,No,0,0,0")
	fmt.Fprintln(w, "COMMENTS 1,Generated from Open-Meteo historical weather archive")
	fmt.Fprintf(w, "COMMENTS 2,Lat=%s Lon=%s Elevation=%sm Timezone=%s\n", lat, lon, elev, resp.Timezone)
	fmt.Fprintf(w, "DATA PERIODS,1,1,Data,%s,%d/%d,%d/%d\n",
		first.Weekday(), int(first.Month()), first.Day(), int(last.Month()), last.Day())
}

func epwRow(h HourlySeries, i int, t time.Time) string {
	dry := h.valueOr(HourlyTemperature, i, defaultDryBulb)
	rh := h.valueOr(HourlyHumidity, i, defaultRH)
	dew, ok := h.Value(HourlyDewPoint, i)
	if !ok {
		dew = dry - (100-rh)/5
	}
	pressure, ok := h.Value(HourlySurfacePress, i)
	if !ok {
		pressure = h.valueOr(HourlyPressureMSL, i, defaultPressure)
	}

	dni := h.valueOr(HourlyDNI, i, 0)
	dhi := h.valueOr(HourlyDiffuse, i, 0)
	ghi, ok := h.Value(HourlyShortwave, i)
	if !ok {
		ghi = h.valueOr(HourlyDirect, i, 0) + dhi
	}

	cloud := h.valueOr(HourlyCloudCover, i, 0)
	sky := int(math.Round(cloud / 10))

	fields := []string{
		strconv.Itoa(t.Year()),
		strconv.Itoa(int(t.Month())),
		strconv.Itoa(t.Day()),
		strconv.Itoa(t.Hour() + 1),
		"0",
		epwDataSource,
		fmt.Sprintf("%.1f", dry),
		fmt.Sprintf("%.1f", dew),
		fmt.Sprintf("%.0f", rh),
		fmt.Sprintf("%.0f", pressure*100),
		"9999", "9999", "9999", // extraterrestrial horizontal, extraterrestrial normal, horizontal IR
		fmt.Sprintf("%.0f", ghi),
		fmt.Sprintf("%.0f", dni),
		fmt.Sprintf("%.0f", dhi),
		"999999", "999999", "999999", "9999", // illuminance and zenith luminance
		fmt.Sprintf("%.0f", h.valueOr(HourlyWindDirection, i, 0)),
		fmt.Sprintf("%.1f", h.valueOr(HourlyWindSpeed, i, 0)),
		strconv.Itoa(sky),
		strconv.Itoa(sky),
		"9999",      // visibility
		"99999",     // ceiling height
		"9",         // present weather observation
		"999999999", // present weather codes
		"999",       // precipitable water
		".999",      // aerosol optical depth
		"999",       // snow depth
		"99",        // days since last snowfall
		"999",       // albedo
		fmt.Sprintf("%.1f", h.valueOr(HourlyPrecipitation, i, 0)),
		"99", // liquid precipitation quantity
	}
	return strings.Join(fields, ",")
}

// ConvertToCSV writes one row per timestamp with every series as a column,
// sorted by name after the time column.
func ConvertToCSV(resp OpenMeteoResponse) ([]byte, error) {
	h := resp.Hourly
	if len(h.Time) == 0 {
		return nil, ErrNoHourlyData
	}
	keys := make([]string, 0, len(h.Values))
	for k := range h.Values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(append([]string{"time"}, keys...)); err != nil {
		return nil, err
	}
	row := make([]string, len(keys)+1)
	for i, ts := range h.Time {
		row[0] = ts
		for j, k := range keys {
			if v, ok := h.Value(k, i); ok {
				row[j+1] = formatFloat(v)
			} else {
				row[j+1] = ""
			}
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

// EPWDateRange reads the first and last hourly rows of an EPW file and
// returns the covered period. Year is set only when both rows share it.
func EPWDateRange(r io.Reader) (RunPeriod, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)

	var first, last string
	line := 0
	for sc.Scan() {
		line++
		if line <= EPWHeaderLines {
			continue
		}
		text := strings.TrimSpace(sc.Text())
		if !strings.Contains(text, ",") {
			continue
		}
		if first == "" {
			first = text
		}
		last = text
	}
	if err := sc.Err(); err != nil {
		return RunPeriod{}, fmt.Errorf("read weather file: %w", err)
	}
	if first == "" {
		return RunPeriod{}, ErrNoDataRows
	}

	fy, fm, fd, err := epwRowDate(first)
	if err != nil {
		return RunPeriod{}, err
	}
	ly, lm, ld, err := epwRowDate(last)
	if err != nil {
		return RunPeriod{}, err
	}
	p := RunPeriod{BeginMonth: fm, BeginDay: fd, EndMonth: lm, EndDay: ld}
	if fy == ly {
		p.Year = fy
	}
	return p, nil
}

func epwRowDate(row string) (year, month, day int, err error) {
	f := strings.SplitN(row, ",", 4)
	if len(f) < 3 {
		return 0, 0, 0, fmt.Errorf("malformed weather row %q", row)
	}
	vals := make([]int, 3)
	for i := range vals {
		vals[i], err = strconv.Atoi(strings.TrimSpace(f[i]))
		if err != nil {
			return 0, 0, 0, fmt.Errorf("malformed weather row %q: %w", row, err)
		}
	}
	return vals[0], vals[1], vals[2], nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
