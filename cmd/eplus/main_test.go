package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/couchcryptid/eplus-toolkit/internal/adapter/sqlite"
	"github.com/couchcryptid/eplus-toolkit/internal/domain"
	"github.com/couchcryptid/eplus-toolkit/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// execute runs the CLI with a clean environment rooted in a temp directory.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return buf.String(), err
}

func setupEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("EPLUS_DATA_DIR", filepath.Join(dir, "data"))
	t.Setenv("EPLUS_MODEL_DIR", filepath.Join(dir, "models"))
	t.Setenv("EPLUS_OUTPUT_DIR", filepath.Join(dir, "outputs"))
	t.Setenv("EPLUS_WEATHER_DIR", filepath.Join(dir, "weather"))
	t.Setenv("EPLUS_CACHE_DIR", filepath.Join(dir, "cache"))
	t.Setenv("HISTORY_DB", "")
	t.Setenv("KAFKA_BROKERS", "")
	t.Setenv("LOG_LEVEL", "error")
	return dir
}

func writeFile(t *testing.T, path, content string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func model(version string) string {
	return "Version,\n    " + version + ";                    !- Version Identifier\n\n" +
		"RunPeriod,\n    Annual,\n    1,\n    1,\n    ,\n    12,\n    31,\n    ,\n    Sunday,\n    No,\n    No,\n    No,\n    Yes,\n    Yes;\n"
}

func TestModelSetVersionAndBackups(t *testing.T) {
	dir := setupEnv(t)
	p := writeFile(t, filepath.Join(dir, "models", "office.idf"), model("22.1"))

	out, err := execute(t, "model", "set-version", "--version", "23.2", p)
	require.NoError(t, err)
	assert.Contains(t, out, "22.1 -> 23.2")

	v, err := models.ReadVersion(p)
	require.NoError(t, err)
	assert.Equal(t, "23.2", v)

	out, err = execute(t, "model", "backups")
	require.NoError(t, err)
	assert.Contains(t, out, "office.idf.backup")
	assert.Contains(t, out, "1 backups")

	_, err = execute(t, "model", "backups", "--delete")
	require.NoError(t, err)
	_, err = os.Stat(p + ".backup")
	assert.True(t, os.IsNotExist(err))
}

func TestModelSetVersionRejectsBadVersion(t *testing.T) {
	dir := setupEnv(t)
	p := writeFile(t, filepath.Join(dir, "models", "office.idf"), model("22.1"))

	_, err := execute(t, "model", "set-version", "--version", "latest", p)
	require.Error(t, err)

	v, err := models.ReadVersion(p)
	require.NoError(t, err)
	assert.Equal(t, "22.1", v)
}

func TestModelCheck(t *testing.T) {
	dir := setupEnv(t)
	writeFile(t, filepath.Join(dir, "models", "current.idf"), model("23.2"))
	writeFile(t, filepath.Join(dir, "data", "old.idf"), model("22.1"))
	writeFile(t, filepath.Join(dir, "data", "broken.idf"), "Building,\n  x;\n")

	out, err := execute(t, "--engine-version", "23.2.0", "model", "check")
	require.NoError(t, err)
	assert.Contains(t, out, "current.idf")
	assert.Contains(t, out, "old.idf")
	assert.Contains(t, out, "1 ok, 1 need upgrade, 0 too new, 1 unknown")
}

func TestModelOrganize(t *testing.T) {
	dir := setupEnv(t)
	modelDir := filepath.Join(dir, "models")
	writeFile(t, filepath.Join(modelDir, "current.idf"), model("23.2"))
	older := writeFile(t, filepath.Join(modelDir, "old.idf"), model("22.1"))
	newer := writeFile(t, filepath.Join(modelDir, "new.idf"), model("24.1"))

	out, err := execute(t, "--engine-version", "23.2", "model", "organize", "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "dry run")
	assert.FileExists(t, older)
	assert.FileExists(t, newer)

	_, err = execute(t, "--engine-version", "23.2", "model", "organize")
	require.NoError(t, err)
	assert.NoFileExists(t, older)
	assert.NoFileExists(t, newer)
	assert.FileExists(t, filepath.Join(dir, "need_update_to_23_2v", "old.idf"))
	assert.FileExists(t, filepath.Join(dir, "higher_version", "new.idf"))
	assert.FileExists(t, filepath.Join(modelDir, "current.idf"))
}

func TestModelDownloadRejectsUnknownKind(t *testing.T) {
	setupEnv(t)
	_, err := execute(t, "model", "download", "--kind", "schedule", "--tag", "v23.2.0", "x")
	require.ErrorContains(t, err, "unknown kind")
}

func TestModelUpgradeNeedsModels(t *testing.T) {
	setupEnv(t)
	_, err := execute(t, "--engine-version", "23.2", "model", "upgrade")
	require.ErrorContains(t, err, "no models given")
}

func TestAnalyze(t *testing.T) {
	dir := setupEnv(t)
	out := filepath.Join(dir, "outputs")
	writeFile(t, filepath.Join(out, "eplusout.csv"), strings.Join([]string{
		"Date/Time,Environment:Site Outdoor Air Drybulb Temperature [C](Hourly),Electricity:Facility [J](Hourly)",
		" 01/01  01:00:00,-5.2,1000",
		" 01/01  02:00:00,-6.0,3000",
	}, "\n")+"\n")
	writeFile(t, filepath.Join(out, "eplusmtr.csv"), "Date/Time,Gas:Facility [J](Hourly)\n 01/01  01:00:00,0\n")

	stdout, err := execute(t, "analyze")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Electricity:Facility [J](Hourly)")
	assert.Contains(t, stdout, "total 4,000")
	assert.NotContains(t, stdout, "Drybulb")
	assert.Contains(t, stdout, "no non-zero energy columns")
}

func TestAnalyzeWithoutResults(t *testing.T) {
	dir := setupEnv(t)
	_, err := execute(t, "analyze", filepath.Join(dir, "nowhere"))
	require.ErrorContains(t, err, "no results")
}

func TestHistory(t *testing.T) {
	dir := setupEnv(t)
	db := filepath.Join(dir, "history.db")

	store, err := sqlite.Open(context.Background(), db)
	require.NoError(t, err)
	finished := time.Now().Add(-time.Hour)
	require.NoError(t, store.Record(context.Background(), domain.RunResult{
		ID:         "run-1",
		Model:      "data/1ZoneUncontrolled.idf",
		Status:     domain.StatusPassed,
		StartedAt:  finished.Add(-time.Minute),
		FinishedAt: finished,
		Duration:   time.Minute,
	}))
	require.NoError(t, store.Close())

	out, err := execute(t, "history", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "1 runs: 1 passed, 0 failed")
	assert.Contains(t, out, "1ZoneUncontrolled.idf")
}

func TestHistoryRequiresDatabase(t *testing.T) {
	setupEnv(t)
	_, err := execute(t, "history")
	require.ErrorContains(t, err, "HISTORY_DB")
}

func TestWeatherSyncEPW(t *testing.T) {
	dir := setupEnv(t)
	header := strings.Repeat("HEADER,line\n", domain.EPWHeaderLines)
	epw := writeFile(t, filepath.Join(dir, "weather", "site.epw"),
		header+"2024,6,1,1,60,x,20\n2024,6,30,24,60,x,21\n")
	idf := writeFile(t, filepath.Join(dir, "models", "site.idf"), model("23.2"))

	out, err := execute(t, "weather", "--sync-epw", epw, "--update-idf", idf)
	require.NoError(t, err)
	assert.Contains(t, out, "6/1 - 6/30 (2024)")

	content, err := os.ReadFile(idf)
	require.NoError(t, err)
	assert.Contains(t, string(content), "CustomPeriod")
	assert.NotContains(t, string(content), "Annual")
}

func TestWeatherFlagValidation(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"sync without model", []string{"weather", "--sync-epw", "a.epw"}, "--update-idf"},
		{"missing location", []string{"weather", "--tmy"}, "--lat and --lon"},
		{"tmy with dates", []string{"weather", "--lat", "1", "--lon", "2", "--tmy", "--start", "2024-01-01"}, "--tmy cannot"},
		{"no mode", []string{"weather", "--lat", "1", "--lon", "2"}, "specify --tmy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setupEnv(t)
			_, err := execute(t, tt.args...)
			require.ErrorContains(t, err, tt.want)
		})
	}
}

func TestRunRequiresModelAndWeather(t *testing.T) {
	setupEnv(t)
	_, err := execute(t, "run", "--idf", "model.idf")
	require.ErrorContains(t, err, "required flag")
}
