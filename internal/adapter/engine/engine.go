// Package engine locates the EnergyPlus executable, reports its version,
// and runs simulations by invoking it as a subprocess.
package engine

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/couchcryptid/eplus-toolkit/internal/config"
	"github.com/couchcryptid/eplus-toolkit/internal/domain"
	"github.com/jonboulle/clockwork"
)

var (
	// ErrEngineNotFound is returned when no executable can be located.
	ErrEngineNotFound = errors.New("energyplus executable not found")
	// ErrPackageNotFound is returned when none of the pip packages is installed.
	ErrPackageNotFound = errors.New("energyplus pip package not installed")
	// ErrVersionUnknown is returned when every version detection method fails.
	ErrVersionUnknown = errors.New("could not determine energyplus version")
)

const (
	errFileName  = "eplusout.err"
	iddFileName  = "Energy+.idd"
	probeVersion = "99.9"
	iddHeadBytes = 4096
)

// Version detection sources, reported in Info.Source.
const (
	SourceBanner = "version-flag"
	SourceIDD    = "idd"
	SourceProbe  = "probe-run"
)

// PackageInfo is what pip reports about the installed engine package.
type PackageInfo struct {
	Name     string
	Version  string
	Location string
}

// Info describes the located engine.
type Info struct {
	Binary  string
	Version string
	Build   string
	Source  string
}

// Engine wraps the EnergyPlus command line.
type Engine struct {
	binary   string
	python   string
	packages []string
	timeout  time.Duration
	goos     string
	output   io.Writer
	clock    clockwork.Clock
	logger   *slog.Logger

	located string
}

// Option customizes an Engine.
type Option func(*Engine)

// WithOutput streams engine stdout and stderr to w. Output is discarded by default.
func WithOutput(w io.Writer) Option {
	return func(e *Engine) { e.output = w }
}

// WithClock sets the clock used to time runs.
func WithClock(c clockwork.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// New creates an Engine from configuration.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		binary:   cfg.EngineBinary,
		python:   cfg.PythonBinary,
		packages: cfg.EnginePackages,
		timeout:  cfg.EngineTimeout,
		goos:     runtime.GOOS,
		output:   io.Discard,
		clock:    clockwork.NewRealClock(),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// PackageVersion asks pip about each configured package name in order and
// returns the first one installed.
func (e *Engine) PackageVersion(ctx context.Context) (PackageInfo, error) {
	for _, pkg := range e.packages {
		out, err := exec.CommandContext(ctx, e.python, "-m", "pip", "show", pkg).Output()
		if err != nil {
			e.logger.Debug("pip show failed", "package", pkg, "error", err)
			continue
		}
		if info := parsePipShow(out); info.Version != "" {
			return info, nil
		}
	}
	return PackageInfo{}, fmt.Errorf("%w (tried %s)", ErrPackageNotFound, strings.Join(e.packages, ", "))
}

// Locate returns the engine executable: the configured binary, the binary
// shipped inside the pip package, or the first "energyplus" on PATH.
func (e *Engine) Locate(ctx context.Context) (string, error) {
	if e.located != "" {
		return e.located, nil
	}

	if e.binary != "" {
		if _, err := os.Stat(e.binary); err != nil {
			return "", fmt.Errorf("EPLUS_BINARY %s: %w", e.binary, err)
		}
		e.located = e.binary
		return e.located, nil
	}

	if pkg, err := e.PackageVersion(ctx); err == nil && pkg.Location != "" {
		for _, candidate := range e.packageBinaries(pkg.Location) {
			if isExecutable(candidate) {
				e.logger.Debug("engine found in pip package", "package", pkg.Name, "binary", candidate)
				e.located = candidate
				return e.located, nil
			}
		}
	}

	if p, err := exec.LookPath(e.exeName()); err == nil {
		e.located = p
		return e.located, nil
	}
	return "", ErrEngineNotFound
}

// EngineVersion determines the engine version by asking the binary, then
// reading the IDD beside it, then running a probe model whose version
// mismatch makes the engine print its own version to eplusout.err.
func (e *Engine) EngineVersion(ctx context.Context) (Info, error) {
	bin, err := e.Locate(ctx)
	if err != nil {
		return Info{}, err
	}

	out, err := exec.CommandContext(ctx, bin, "--version").CombinedOutput()
	if err == nil {
		if v, build, ok := domain.ParseVersionBanner(string(out)); ok {
			return Info{Binary: bin, Version: v, Build: build, Source: SourceBanner}, nil
		}
	}
	e.logger.Debug("version flag gave no version", "binary", bin, "error", err)

	if v, ok := readIDDVersion(filepath.Join(filepath.Dir(bin), iddFileName)); ok {
		return Info{Binary: bin, Version: v, Source: SourceIDD}, nil
	}

	v, build, err := e.probeVersion(ctx, bin)
	if err != nil {
		return Info{}, fmt.Errorf("%w: %w", ErrVersionUnknown, err)
	}
	return Info{Binary: bin, Version: v, Build: build, Source: SourceProbe}, nil
}

func (e *Engine) probeVersion(ctx context.Context, bin string) (version, build string, err error) {
	dir, err := os.MkdirTemp("", "eplus-version-*")
	if err != nil {
		return "", "", err
	}
	defer os.RemoveAll(dir)

	idf := filepath.Join(dir, "version_check.idf")
	if err := os.WriteFile(idf, []byte("Version,"+probeVersion+";\n"), 0o644); err != nil {
		return "", "", err
	}

	// The probe is expected to fail; only its err file matters.
	_ = exec.CommandContext(ctx, bin, "-d", dir, idf).Run()

	diag, ok, err := readErrFile(filepath.Join(dir, errFileName))
	if err != nil {
		return "", "", err
	}
	if !ok || diag.ProgramVersion == "" {
		return "", "", errors.New("probe run reported no program version")
	}
	version, build, _ = strings.Cut(diag.ProgramVersion, "-")
	return version, build, nil
}

// Run executes one simulation. Input problems and a missing engine are
// returned as errors; engine failures are reported in the result.
func (e *Engine) Run(ctx context.Context, req domain.RunRequest) (domain.RunResult, error) {
	if err := requireFile(req.ModelPath, "model"); err != nil {
		return domain.RunResult{}, err
	}
	if err := requireFile(req.WeatherPath, "weather file"); err != nil {
		return domain.RunResult{}, err
	}
	bin, err := e.Locate(ctx)
	if err != nil {
		return domain.RunResult{}, err
	}
	if err := os.MkdirAll(req.OutputDir, 0o755); err != nil {
		return domain.RunResult{}, fmt.Errorf("create output dir: %w", err)
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	res := domain.RunResult{
		Model:     req.ModelPath,
		Weather:   req.WeatherPath,
		OutputDir: req.OutputDir,
		StartedAt: e.clock.Now(),
	}

	e.logger.Info("simulation starting", "model", req.ModelPath, "weather", req.WeatherPath, "output_dir", req.OutputDir)
	cmd := exec.CommandContext(ctx, bin, "-d", req.OutputDir, "-w", req.WeatherPath, req.ModelPath)
	cmd.Stdout = e.output
	cmd.Stderr = e.output
	runErr := cmd.Run()

	res.FinishedAt = e.clock.Now()
	res.Duration = res.FinishedAt.Sub(res.StartedAt)

	var exitErr *exec.ExitError
	switch {
	case runErr == nil:
	case errors.As(runErr, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	default:
		return domain.RunResult{}, fmt.Errorf("start engine: %w", runErr)
	}

	errPath := filepath.Join(req.OutputDir, errFileName)
	diag, haveErr, err := readErrFile(errPath)
	if err != nil {
		e.logger.Warn("could not read err file", "path", errPath, "error", err)
	}
	res.Diagnostics = diag
	res.EngineVersion = diag.ProgramVersion
	res.Outputs = collectOutputs(req.OutputDir)
	res.Status = domain.DecideStatus(res.ExitCode, diag, haveErr)

	if ctx.Err() != nil {
		res.Status = domain.StatusFailed
		res.Failure = fmt.Sprintf("engine interrupted: %v", ctx.Err())
	} else if !res.Passed() {
		res.Failure = fmt.Sprintf("engine exit code %d, %d severe, %d fatal; see %s",
			res.ExitCode, diag.Severe, diag.Fatal, errPath)
	}

	e.logger.Info("simulation finished",
		"model", req.ModelPath,
		"status", res.Status,
		"exit_code", res.ExitCode,
		"warnings", diag.Warnings,
		"severe", diag.Severe,
		"fatal", diag.Fatal,
		"duration", res.Duration,
	)
	return res, nil
}

func (e *Engine) exeName() string {
	if e.goos == "windows" {
		return "energyplus.exe"
	}
	return "energyplus"
}

func (e *Engine) packageBinaries(location string) []string {
	name := e.exeName()
	return []string{
		filepath.Join(location, "pyenergyplus", name),
		filepath.Join(location, "pyenergyplus", "bin", name),
		filepath.Join(location, "energyplus", name),
	}
}

func parsePipShow(out []byte) PackageInfo {
	var info PackageInfo
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		key, value, ok := strings.Cut(sc.Text(), ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.TrimSpace(key) {
		case "Name":
			info.Name = value
		case "Version":
			info.Version = value
		case "Location":
			info.Location = value
		}
	}
	return info
}

func readIDDVersion(path string) (string, bool) {
	f, err := os.Open(path)
	if err != nil {
		return "", false
	}
	defer f.Close()
	head, err := io.ReadAll(io.LimitReader(f, iddHeadBytes))
	if err != nil {
		return "", false
	}
	return domain.ParseIDDVersion(string(head))
}

// readErrFile parses eplusout.err. ok is false when the file does not exist.
func readErrFile(path string) (diag domain.ErrSummary, ok bool, err error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return domain.ErrSummary{}, false, nil
	}
	if err != nil {
		return domain.ErrSummary{}, false, err
	}
	defer f.Close()
	diag, err = domain.ParseErrFile(f)
	return diag, true, err
}

func collectOutputs(dir string) []domain.OutputFile {
	var outputs []domain.OutputFile
	for _, name := range domain.KeyOutputFiles {
		p := filepath.Join(dir, name)
		st, err := os.Stat(p)
		if err != nil || st.IsDir() {
			continue
		}
		outputs = append(outputs, domain.OutputFile{Name: name, Path: p, Size: st.Size()})
	}
	return outputs
}

func requireFile(path, what string) error {
	if path == "" {
		return fmt.Errorf("%s path is required", what)
	}
	st, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%s %s: %w", what, path, err)
	}
	if st.IsDir() {
		return fmt.Errorf("%s %s is a directory", what, path)
	}
	return nil
}

func isExecutable(path string) bool {
	st, err := os.Stat(path)
	if err != nil || st.IsDir() {
		return false
	}
	return runtime.GOOS == "windows" || st.Mode().Perm()&0o111 != 0
}
