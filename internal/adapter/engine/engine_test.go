package engine

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/couchcryptid/eplus-toolkit/internal/config"
	"github.com/couchcryptid/eplus-toolkit/internal/domain"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEngine mimics the energyplus command line: it answers --version,
// parses -d/-w, and writes an err file. Models containing FAIL end with a
// fatal error.
const fakeEngine = `#!/bin/sh
if [ "$1" = "--version" ]; then
  echo "EnergyPlus, Version 23.2.0-7636e6b3e9"
  exit 0
fi
out=.
while [ $# -gt 0 ]; do
  case "$1" in
    -d) out="$2"; shift 2 ;;
    -w) shift 2 ;;
    *) idf="$1"; shift ;;
  esac
done
mkdir -p "$out"
echo "running $idf"
if grep -q FAIL "$idf"; then
  printf 'Program Version,EnergyPlus, Version 23.2.0-7636e6b3e9, YMD=2024.06.01 10:15,\n   **  Fatal  ** GetInput errors\n' > "$out/eplusout.err"
  exit 1
fi
printf 'Program Version,EnergyPlus, Version 23.2.0-7636e6b3e9, YMD=2024.06.01 10:15,\n   ** Warning ** something\n   ************* EnergyPlus Completed Successfully-- 1 Warning; 0 Severe Errors;\n' > "$out/eplusout.err"
echo "Date/Time,Electricity:Facility [J](Hourly)" > "$out/eplusout.csv"
echo "<html></html>" > "$out/eplustbl.htm"
exit 0
`

// probeOnlyEngine has no usable --version output and no IDD, so only a
// probe run reveals its version.
const probeOnlyEngine = `#!/bin/sh
if [ "$1" = "--version" ]; then
  exit 1
fi
out=.
while [ $# -gt 0 ]; do
  case "$1" in
    -d) out="$2"; shift 2 ;;
    *) shift ;;
  esac
done
printf 'Program Version,EnergyPlus, Version 24.1.0-9d7789a3ac, YMD=2024.06.01 10:15,\n   ** Severe  ** Version: in IDF="99.9" not the same as expected="24.1"\n' > "$out/eplusout.err"
exit 1
`

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell-script engine fakes need a POSIX shell")
	}
}

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o755))
	return path
}

func writeFile(t *testing.T, path, body string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func testEngine(t *testing.T, binary string, opts ...Option) *Engine {
	t.Helper()
	cfg := &config.Config{
		EngineBinary:   binary,
		PythonBinary:   "python3",
		EnginePackages: []string{"pyenergyplus-lbnl", "pyenergyplus"},
	}
	return New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), opts...)
}

func TestEngine_Run_Success(t *testing.T) {
	skipOnWindows(t)
	dir := t.TempDir()
	bin := writeScript(t, dir, "energyplus", fakeEngine)
	model := writeFile(t, filepath.Join(dir, "1ZoneUncontrolled.idf"), "Version,23.2;\n")
	weather := writeFile(t, filepath.Join(dir, "chicago.epw"), "LOCATION,Chicago\n")

	start := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	clk := clockwork.NewFakeClockAt(start)
	e := testEngine(t, bin, WithClock(clk))

	res, err := e.Run(context.Background(), domain.RunRequest{
		ModelPath:   model,
		WeatherPath: weather,
		OutputDir:   filepath.Join(dir, "out"),
	})
	require.NoError(t, err)

	assert.Equal(t, domain.StatusPassed, res.Status)
	assert.Zero(t, res.ExitCode)
	assert.Empty(t, res.Failure)
	assert.Equal(t, 1, res.Diagnostics.Warnings)
	assert.True(t, res.Diagnostics.Completed)
	assert.Equal(t, "23.2.0-7636e6b3e9", res.EngineVersion)
	assert.Equal(t, start, res.StartedAt)

	names := make([]string, 0, len(res.Outputs))
	for _, o := range res.Outputs {
		names = append(names, o.Name)
		assert.Positive(t, o.Size)
	}
	assert.ElementsMatch(t, []string{"eplustbl.htm", "eplusout.csv", "eplusout.err"}, names)
}

func TestEngine_Run_FatalError(t *testing.T) {
	skipOnWindows(t)
	dir := t.TempDir()
	bin := writeScript(t, dir, "energyplus", fakeEngine)
	model := writeFile(t, filepath.Join(dir, "broken.idf"), "Version,23.2;\nFAIL\n")
	weather := writeFile(t, filepath.Join(dir, "chicago.epw"), "LOCATION,Chicago\n")

	res, err := testEngine(t, bin).Run(context.Background(), domain.RunRequest{
		ModelPath:   model,
		WeatherPath: weather,
		OutputDir:   filepath.Join(dir, "out"),
	})
	require.NoError(t, err)

	assert.Equal(t, domain.StatusFailed, res.Status)
	assert.Equal(t, 1, res.ExitCode)
	assert.Equal(t, 1, res.Diagnostics.Fatal)
	assert.Contains(t, res.Failure, "eplusout.err")
}

func TestEngine_Run_StreamsOutput(t *testing.T) {
	skipOnWindows(t)
	dir := t.TempDir()
	bin := writeScript(t, dir, "energyplus", fakeEngine)
	model := writeFile(t, filepath.Join(dir, "m.idf"), "Version,23.2;\n")
	weather := writeFile(t, filepath.Join(dir, "w.epw"), "LOCATION\n")

	var out bytes.Buffer
	_, err := testEngine(t, bin, WithOutput(&out)).Run(context.Background(), domain.RunRequest{
		ModelPath: model, WeatherPath: weather, OutputDir: filepath.Join(dir, "out"),
	})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "running "+model)
}

func TestEngine_Run_MissingInputs(t *testing.T) {
	dir := t.TempDir()
	model := writeFile(t, filepath.Join(dir, "m.idf"), "Version,23.2;\n")
	e := testEngine(t, filepath.Join(dir, "energyplus"))

	_, err := e.Run(context.Background(), domain.RunRequest{ModelPath: filepath.Join(dir, "nope.idf"), WeatherPath: model, OutputDir: dir})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model")
	assert.True(t, errors.Is(err, os.ErrNotExist))

	_, err = e.Run(context.Background(), domain.RunRequest{ModelPath: model, WeatherPath: "", OutputDir: dir})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "weather file path is required")

	_, err = e.Run(context.Background(), domain.RunRequest{ModelPath: model, WeatherPath: dir, OutputDir: dir})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is a directory")
}

func TestEngine_Locate_ConfiguredBinaryMissing(t *testing.T) {
	e := testEngine(t, filepath.Join(t.TempDir(), "energyplus"))
	_, err := e.Locate(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "EPLUS_BINARY")
}

func TestEngine_EngineVersion_Banner(t *testing.T) {
	skipOnWindows(t)
	bin := writeScript(t, t.TempDir(), "energyplus", fakeEngine)

	info, err := testEngine(t, bin).EngineVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Info{Binary: bin, Version: "23.2.0", Build: "7636e6b3e9", Source: SourceBanner}, info)
}

func TestEngine_EngineVersion_IDD(t *testing.T) {
	skipOnWindows(t)
	dir := t.TempDir()
	bin := writeScript(t, dir, "energyplus", probeOnlyEngine)
	writeFile(t, filepath.Join(dir, "Energy+.idd"), "!IDD_Version 23.1.0\n!IDD_BUILD 87ed9199d4\n")

	info, err := testEngine(t, bin).EngineVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "23.1.0", info.Version)
	assert.Equal(t, SourceIDD, info.Source)
}

func TestEngine_EngineVersion_Probe(t *testing.T) {
	skipOnWindows(t)
	bin := writeScript(t, t.TempDir(), "energyplus", probeOnlyEngine)

	info, err := testEngine(t, bin).EngineVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "24.1.0", info.Version)
	assert.Equal(t, "9d7789a3ac", info.Build)
	assert.Equal(t, SourceProbe, info.Source)
}

func TestEngine_EngineVersion_Unknown(t *testing.T) {
	skipOnWindows(t)
	bin := writeScript(t, t.TempDir(), "energyplus", "#!/bin/sh\nexit 1\n")

	_, err := testEngine(t, bin).EngineVersion(context.Background())
	require.ErrorIs(t, err, ErrVersionUnknown)
}

const fakePython = `#!/bin/sh
# invoked as: python -m pip show <package>
if [ "$4" = "pyenergyplus" ]; then
  printf 'Name: pyenergyplus\nVersion: 23.2.0\nSummary: EnergyPlus\nLocation: %s\n' "$SITE_PACKAGES"
  exit 0
fi
echo "WARNING: Package(s) not found: $4" >&2
exit 1
`

func TestEngine_PackageVersion(t *testing.T) {
	skipOnWindows(t)
	dir := t.TempDir()
	site := filepath.Join(dir, "site-packages")
	t.Setenv("SITE_PACKAGES", site)

	e := testEngine(t, "")
	e.python = writeScript(t, dir, "python3", fakePython)

	info, err := e.PackageVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, PackageInfo{Name: "pyenergyplus", Version: "23.2.0", Location: site}, info)
}

func TestEngine_PackageVersion_NotInstalled(t *testing.T) {
	skipOnWindows(t)
	dir := t.TempDir()
	e := testEngine(t, "")
	e.python = writeScript(t, dir, "python3", "#!/bin/sh\nexit 1\n")

	_, err := e.PackageVersion(context.Background())
	require.ErrorIs(t, err, ErrPackageNotFound)
	assert.Contains(t, err.Error(), "pyenergyplus-lbnl, pyenergyplus")
}

func TestEngine_Locate_FromPackage(t *testing.T) {
	skipOnWindows(t)
	dir := t.TempDir()
	site := filepath.Join(dir, "site-packages")
	t.Setenv("SITE_PACKAGES", site)
	require.NoError(t, os.MkdirAll(filepath.Join(site, "pyenergyplus"), 0o755))
	want := writeScript(t, filepath.Join(site, "pyenergyplus"), "energyplus", fakeEngine)

	e := testEngine(t, "")
	e.python = writeScript(t, dir, "python3", fakePython)

	got, err := e.Locate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestParsePipShow(t *testing.T) {
	info := parsePipShow([]byte("Name: pyenergyplus-lbnl\nVersion: 24.1.0\nLocation: /usr/lib/python3/site-packages\nRequires: \n"))
	assert.Equal(t, PackageInfo{Name: "pyenergyplus-lbnl", Version: "24.1.0", Location: "/usr/lib/python3/site-packages"}, info)
}
