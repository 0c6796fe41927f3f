package models

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/couchcryptid/eplus-toolkit/internal/domain"
)

// ToolFetcher downloads transition executables.
type ToolFetcher interface {
	FetchTransitionTool(ctx context.Context, t domain.Transition, goos string) ([]byte, error)
}

// ToolRunner runs a transition tool on model (a file name inside dir) with
// dir as the working directory.
type ToolRunner func(ctx context.Context, tool, dir, model string) ([]byte, error)

const defaultToolTimeout = 2 * time.Minute

// transitionLeftovers are the files a transition tool leaves beside the model.
var transitionLeftovers = []string{".idfold", ".idfnew", ".VCperr"}

// Upgrader applies chains of transition tools to model files.
type Upgrader struct {
	fetcher  ToolFetcher
	cacheDir string
	local    []string
	goos     string
	run      ToolRunner
	timeout  time.Duration
	logger   *slog.Logger
}

// UpgraderOption customizes an Upgrader.
type UpgraderOption func(*Upgrader)

// WithLocalInstalls sets the IDFVersionUpdater directories searched before
// the cache. By default the usual install locations are globbed.
func WithLocalInstalls(dirs []string) UpgraderOption {
	return func(u *Upgrader) { u.local = dirs }
}

// WithToolRunner replaces process execution of transition tools.
func WithToolRunner(r ToolRunner) UpgraderOption {
	return func(u *Upgrader) { u.run = r }
}

// WithGOOS sets the platform used to name tools.
func WithGOOS(goos string) UpgraderOption {
	return func(u *Upgrader) { u.goos = goos }
}

// WithToolTimeout bounds each transition step.
func WithToolTimeout(d time.Duration) UpgraderOption {
	return func(u *Upgrader) { u.timeout = d }
}

// NewUpgrader creates an Upgrader that caches downloaded tools in cacheDir.
func NewUpgrader(fetcher ToolFetcher, cacheDir string, logger *slog.Logger, opts ...UpgraderOption) *Upgrader {
	u := &Upgrader{
		fetcher:  fetcher,
		cacheDir: cacheDir,
		goos:     runtime.GOOS,
		run:      execTool,
		timeout:  defaultToolTimeout,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(u)
	}
	if u.local == nil {
		u.local = FindLocalInstalls(u.goos)
	}
	return u
}

// UpgradeResult reports what Upgrade did to one model.
type UpgradeResult struct {
	Path  string
	From  string
	To    string
	Steps []domain.Transition
	// Current is true when the model already matched the target.
	Current bool
}

// Upgrade converts the model at path to the target version one release at
// a time. Each step keeps a "<file>.v<version>.backup" copy of its input.
func (u *Upgrader) Upgrade(ctx context.Context, path, target string) (UpgradeResult, error) {
	from, err := ReadVersion(path)
	if err != nil {
		return UpgradeResult{}, err
	}
	res := UpgradeResult{Path: path, From: from, To: from}

	steps, err := domain.TransitionPath(from, target)
	if err != nil {
		return res, err
	}
	if len(steps) == 0 {
		res.Current = true
		return res, nil
	}

	u.logger.Info("upgrading model", "path", path, "from", from, "to", target, "steps", len(steps))
	for _, step := range steps {
		tool, dir, err := u.findTool(ctx, step)
		if err != nil {
			return res, err
		}
		if err := u.runStep(ctx, path, step, tool, dir); err != nil {
			return res, fmt.Errorf("transition %s: %w", step, err)
		}
		res.Steps = append(res.Steps, step)
		u.logger.Info("transition applied", "path", path, "step", step.String())
	}

	res.To, err = ReadVersion(path)
	if err != nil {
		return res, err
	}
	return res, nil
}

// findTool returns a transition executable and the directory to run it in:
// a local install, the cache, or a fresh download into the cache.
func (u *Upgrader) findTool(ctx context.Context, t domain.Transition) (tool, dir string, err error) {
	name := t.ToolName(u.goos)
	for _, d := range u.local {
		p := filepath.Join(d, name)
		if _, err := os.Stat(p); err == nil {
			return p, d, nil
		}
	}

	cached := filepath.Join(u.cacheDir, name)
	if _, err := os.Stat(cached); err == nil {
		return cached, u.cacheDir, nil
	}

	if u.fetcher == nil {
		return "", "", fmt.Errorf("transition tool %s not found locally", name)
	}
	body, err := u.fetcher.FetchTransitionTool(ctx, t, u.goos)
	if err != nil {
		return "", "", fmt.Errorf("transition tool %s not found locally and download failed: %w", name, err)
	}
	if err := os.MkdirAll(u.cacheDir, 0o755); err != nil {
		return "", "", err
	}
	if err := os.WriteFile(cached, body, 0o755); err != nil {
		return "", "", err
	}
	if err := os.Chmod(cached, 0o755); err != nil {
		return "", "", err
	}
	return cached, u.cacheDir, nil
}

func (u *Upgrader) runStep(ctx context.Context, path string, t domain.Transition, tool, dir string) error {
	if err := copyIfMissing(path, fmt.Sprintf("%s.v%s%s", path, t.From.MajorMinor(), backupMarker)); err != nil {
		return fmt.Errorf("backup: %w", err)
	}

	// Tools read the IDD files installed beside them, so the model is
	// converted inside the tool's directory under a unique name and copied
	// back.
	work := path
	if !samePath(filepath.Dir(path), dir) {
		f, err := os.CreateTemp(dir, "eplus-upgrade-*"+idfExt)
		if err != nil {
			return fmt.Errorf("working copy: %w", err)
		}
		work = f.Name()
		_ = f.Close()
		defer os.Remove(work)
		if err := copyFile(path, work); err != nil {
			return err
		}
	}
	name := filepath.Base(work)
	if work != path {
		defer removeLeftovers(dir, name)
	}

	if u.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, u.timeout)
		defer cancel()
	}
	out, runErr := u.run(ctx, tool, dir, name)
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return errors.New("transition timed out")
	}

	if work != path {
		if err := copyFile(work, path); err != nil {
			return err
		}
	}

	got, err := ReadVersion(path)
	if err != nil {
		return err
	}
	if domain.CompareVersions(got, t.To.MajorMinor()) != domain.CompatMatch {
		msg := fmt.Sprintf("version still %s", got)
		if runErr != nil {
			msg += fmt.Sprintf(" (%v: %s)", runErr, strings.TrimSpace(string(out)))
		}
		return errors.New(msg)
	}

	removeLeftovers(dir, name)
	return nil
}

func removeLeftovers(dir, model string) {
	stem := strings.TrimSuffix(model, filepath.Ext(model))
	for _, ext := range transitionLeftovers {
		_ = os.Remove(filepath.Join(dir, stem+ext))
	}
}

// FindLocalInstalls returns the IDFVersionUpdater directories of EnergyPlus
// installs in the usual locations for goos.
func FindLocalInstalls(goos string) []string {
	var patterns []string
	if goos == "windows" {
		for _, drive := range []string{`C:`, `D:`} {
			patterns = append(patterns,
				drive+`\EnergyPlusV*`,
				drive+`\Program Files\EnergyPlusV*`,
				drive+`\Program Files (x86)\EnergyPlusV*`,
			)
		}
	} else {
		patterns = []string{"/usr/local/EnergyPlus-*", "/Applications/EnergyPlus-*"}
		if home, err := os.UserHomeDir(); err == nil {
			patterns = append(patterns, filepath.Join(home, "EnergyPlus-*"))
		}
	}

	var out []string
	for _, pattern := range patterns {
		matches, _ := filepath.Glob(pattern)
		for _, m := range matches {
			updater := filepath.Join(m, "PreProcess", "IDFVersionUpdater")
			if fi, err := os.Stat(updater); err == nil && fi.IsDir() {
				out = append(out, updater)
			}
		}
	}
	return out
}

// MoveModel moves a model into dir, creating dir if needed, and returns the
// new path.
func MoveModel(path, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	dst := filepath.Join(dir, filepath.Base(path))
	if err := moveFile(path, dst); err != nil {
		return "", err
	}
	return dst, nil
}

func execTool(ctx context.Context, tool, dir, model string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, tool, model)
	cmd.Dir = dir
	return cmd.CombinedOutput()
}

func samePath(a, b string) bool {
	aa, err1 := filepath.Abs(a)
	bb, err2 := filepath.Abs(b)
	return err1 == nil && err2 == nil && aa == bb
}
