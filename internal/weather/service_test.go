package weather

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/couchcryptid/eplus-toolkit/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const archiveBody = `{"latitude":41.88,"longitude":-87.63,"elevation":181.0,"timezone":"America/Chicago","utc_offset_seconds":-18000,
"hourly":{"time":["2024-06-01T00:00","2024-06-01T01:00","2024-06-03T23:00"],
"temperature_2m":[25.3,null,18.0],"relative_humidity_2m":[60,null,85]}}`

const model = `Version,23.2;

RunPeriod,
    Annual,                  !- Name
    1,                       !- Begin Month
    1,                       !- Begin Day of Month
    ,                        !- Begin Year
    12,                      !- End Month
    31,                      !- End Day of Month
    ,                        !- End Year
    Sunday,                  !- Day of Week for Start Day
    Yes,                     !- Use Weather File Holidays and Special Days
    Yes,                     !- Use Weather File Daylight Saving Period
    No,                      !- Apply Weekend Holiday Rule
    Yes,                     !- Use Weather File Rain Indicators
    Yes;                     !- Use Weather File Snow Indicators
`

type fakeArchive struct {
	calls int
	err   error
}

func (f *fakeArchive) Archive(_ context.Context, _, _ float64, _, _ string) (domain.OpenMeteoResponse, error) {
	f.calls++
	if f.err != nil {
		return domain.OpenMeteoResponse{}, f.err
	}
	return domain.ParseOpenMeteo([]byte(archiveBody))
}

type fakeTMY struct {
	formats []string
	failCSV bool
}

func (f *fakeTMY) TMY(_ context.Context, _, _ float64, format string) ([]byte, error) {
	f.formats = append(f.formats, format)
	if format == formatCSV && f.failCSV {
		return nil, errors.New("status 500: boom")
	}
	return []byte("tmy " + format), nil
}

func newTestService() (*Service, *fakeArchive, *fakeTMY) {
	a := &fakeArchive{}
	tm := &fakeTMY{}
	return NewService(a, tm, slog.New(slog.NewTextHandler(io.Discard, nil))), a, tm
}

func TestDownload_DateRangeUsesArchive(t *testing.T) {
	svc, archive, tmy := newTestService()
	dir := t.TempDir()

	res, err := svc.Download(context.Background(), Request{
		Lat: 41.88, Lon: -87.63, Start: "2024-06-01", End: "2024-06-03", OutDir: dir,
	})
	require.NoError(t, err)

	assert.Equal(t, SourceOpenMeteo, res.Source)
	assert.Equal(t, 1, archive.calls)
	assert.Empty(t, tmy.formats)

	stem := "lat41.88_lon-87.63_2024-06-01_2024-06-03"
	assert.Equal(t, []string{
		filepath.Join(dir, "openmeteo_"+stem+".json"),
		filepath.Join(dir, "weather_"+stem+".csv"),
		filepath.Join(dir, "weather_"+stem+".epw"),
	}, res.Files)
	assert.Equal(t, filepath.Join(dir, "weather_"+stem+".epw"), res.EPW)

	js, err := os.ReadFile(res.Files[0])
	require.NoError(t, err)
	assert.Contains(t, string(js), "\n  \"latitude\": 41.88")

	epw, err := os.ReadFile(res.EPW)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(epw)), "\n")
	assert.Len(t, lines, domain.EPWHeaderLines+3)
}

func TestDownload_TMYUsesPVGIS(t *testing.T) {
	svc, archive, tmy := newTestService()
	dir := t.TempDir()

	res, err := svc.Download(context.Background(), Request{Lat: 45, Lon: 8.5, OutDir: dir})
	require.NoError(t, err)

	assert.Equal(t, SourcePVGIS, res.Source)
	assert.Zero(t, archive.calls)
	assert.Equal(t, []string{"epw", "csv"}, tmy.formats)
	assert.Equal(t, filepath.Join(dir, "TMY_lat45.0_lon8.5.epw"), res.EPW)
	assert.Len(t, res.Files, 2)

	b, err := os.ReadFile(res.EPW)
	require.NoError(t, err)
	assert.Equal(t, "tmy epw", string(b))
}

func TestDownload_TMYCSVFailureIsNotFatal(t *testing.T) {
	svc, _, tmy := newTestService()
	tmy.failCSV = true

	res, err := svc.Download(context.Background(), Request{Lat: 45, Lon: 8.5, OutDir: t.TempDir()})
	require.NoError(t, err)
	assert.Len(t, res.Files, 1)
	assert.NotEmpty(t, res.EPW)
}

func TestDownload_ArchiveErrorPropagates(t *testing.T) {
	svc, archive, _ := newTestService()
	archive.err = errors.New("status 400: Parameter 'start_date' is out of allowed range")

	_, err := svc.Download(context.Background(), Request{
		Lat: 41.88, Lon: -87.63, Start: "1900-01-01", End: "1900-01-02", OutDir: t.TempDir(),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of allowed range")
}

func TestDownload_InvalidRequests(t *testing.T) {
	svc, archive, tmy := newTestService()
	dir := t.TempDir()

	tests := []struct {
		name string
		req  Request
	}{
		{"start without end", Request{Start: "2024-06-01", OutDir: dir}},
		{"open-meteo without dates", Request{Source: SourceOpenMeteo, OutDir: dir}},
		{"pvgis with dates", Request{Source: SourcePVGIS, Start: "2024-06-01", End: "2024-06-02", OutDir: dir}},
		{"unknown source", Request{Source: "noaa", OutDir: dir}},
		{"latitude out of range", Request{Lat: 91, OutDir: dir}},
		{"end before start", Request{Start: "2024-06-02", End: "2024-06-01", OutDir: dir}},
		{"bad date", Request{Start: "06/01/2024", End: "2024-06-02", OutDir: dir}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Download(context.Background(), tt.req)
			require.ErrorIs(t, err, ErrInvalidRequest)
		})
	}
	assert.Zero(t, archive.calls)
	assert.Empty(t, tmy.formats)
}

func TestDownload_UpdatesModelRunPeriod(t *testing.T) {
	svc, _, _ := newTestService()
	dir := t.TempDir()
	idf := filepath.Join(dir, "model.idf")
	require.NoError(t, os.WriteFile(idf, []byte(model), 0o644))

	res, err := svc.Download(context.Background(), Request{
		Lat: 41.88, Lon: -87.63, Start: "2024-06-01", End: "2024-06-03", OutDir: dir, UpdateIDF: idf,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.RunPeriod{BeginMonth: 6, BeginDay: 1, EndMonth: 6, EndDay: 3, Year: 2024}, res.Period)
	assert.Equal(t, 1, res.Replaced)

	b, err := os.ReadFile(idf)
	require.NoError(t, err)
	assert.Contains(t, string(b), "CustomPeriod,")
	assert.Contains(t, string(b), "Saturday,")
	assert.NotContains(t, string(b), "Annual,")
}

func TestSyncIDF_Errors(t *testing.T) {
	dir := t.TempDir()
	epw := filepath.Join(dir, "empty.epw")
	require.NoError(t, os.WriteFile(epw, []byte("LOCATION,x\n"), 0o644))
	idf := filepath.Join(dir, "model.idf")
	require.NoError(t, os.WriteFile(idf, []byte("Version,23.2;\n"), 0o644))

	_, _, err := SyncIDF(epw, idf)
	require.ErrorIs(t, err, domain.ErrNoDataRows)

	_, _, err = SyncIDF(filepath.Join(dir, "missing.epw"), idf)
	require.Error(t, err)
}

func TestCoord(t *testing.T) {
	tests := map[float64]string{
		41.0:   "41.0",
		41.88:  "41.88",
		-87.63: "-87.63",
		0:      "0.0",
		-90:    "-90.0",
	}
	for v, want := range tests {
		assert.Equal(t, want, coord(v), "coord(%v)", v)
	}
}
