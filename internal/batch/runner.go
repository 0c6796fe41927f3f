// Package batch runs a list of simulations one after another and reports
// each result to metrics and the optional result sinks.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/eplus-toolkit/internal/domain"
	"github.com/couchcryptid/eplus-toolkit/internal/models"
	"github.com/couchcryptid/eplus-toolkit/internal/observability"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// FileFetcher makes a repository file available locally.
type FileFetcher interface {
	Download(ctx context.Context, req models.DownloadRequest) (models.Downloaded, error)
}

// Simulator runs one simulation.
type Simulator interface {
	Run(ctx context.Context, req domain.RunRequest) (domain.RunResult, error)
}

// ResultPublisher sends a finished run to an event stream.
type ResultPublisher interface {
	Publish(ctx context.Context, result domain.RunResult) error
}

// HistoryRecorder stores a finished run.
type HistoryRecorder interface {
	Record(ctx context.Context, result domain.RunResult) error
}

// Plan is the work for one batch.
type Plan struct {
	// Version is the engine version used to pick repository tags.
	Version   string
	DataDir   string
	OutputDir string
	Jobs      []domain.BatchJob
}

// Summary is the outcome of a batch.
type Summary struct {
	BatchID    string
	Version    string
	Results    []domain.RunResult
	StartedAt  time.Time
	FinishedAt time.Time
}

// Passed counts passed runs.
func (s Summary) Passed() int {
	n := 0
	for _, r := range s.Results {
		if r.Passed() {
			n++
		}
	}
	return n
}

// Failed counts failed runs.
func (s Summary) Failed() int {
	return len(s.Results) - s.Passed()
}

// OK reports whether every run passed.
func (s Summary) OK() bool {
	return len(s.Results) > 0 && s.Failed() == 0
}

// Duration is the wall-clock time of the batch.
func (s Summary) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}

// Runner executes batches sequentially.
type Runner struct {
	fetcher   FileFetcher
	simulator Simulator
	publisher ResultPublisher
	history   HistoryRecorder
	clock     clockwork.Clock
	logger    *slog.Logger
	metrics   *observability.Metrics
	ready     atomic.Bool

	mu       sync.Mutex
	progress domain.BatchProgress
}

// Option customizes a Runner.
type Option func(*Runner)

// WithPublisher sends every result to p.
func WithPublisher(p ResultPublisher) Option {
	return func(r *Runner) { r.publisher = p }
}

// WithHistory records every result in h.
func WithHistory(h HistoryRecorder) Option {
	return func(r *Runner) { r.history = h }
}

// WithClock sets the clock used to time batches.
func WithClock(c clockwork.Clock) Option {
	return func(r *Runner) { r.clock = c }
}

// New creates a Runner.
func New(f FileFetcher, s Simulator, logger *slog.Logger, metrics *observability.Metrics, opts ...Option) *Runner {
	r := &Runner{
		fetcher:   f,
		simulator: s,
		clock:     clockwork.NewRealClock(),
		logger:    logger,
		metrics:   metrics,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CheckReadiness returns nil once the batch has its weather files and is
// running jobs.
func (r *Runner) CheckReadiness(_ context.Context) error {
	if !r.ready.Load() {
		return errors.New("batch has not started running jobs yet")
	}
	return nil
}

// Progress returns a snapshot of the current batch.
func (r *Runner) Progress() domain.BatchProgress {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.progress
}

// Run downloads the weather files, then downloads and simulates each model
// in order. A weather download failure aborts the batch before any job
// runs. A model that cannot be downloaded or run yields a failed result
// and the batch continues. Cancelling ctx stops after the current job.
func (r *Runner) Run(ctx context.Context, plan Plan) (Summary, error) {
	if err := plan.validate(); err != nil {
		return Summary{}, err
	}

	sum := Summary{
		BatchID:   uuid.NewString(),
		Version:   plan.Version,
		StartedAt: r.clock.Now(),
	}
	r.setProgress(func(p *domain.BatchProgress) {
		*p = domain.BatchProgress{BatchID: sum.BatchID, Version: plan.Version, Total: len(plan.Jobs), StartedAt: sum.StartedAt}
	})
	r.logger.Info("batch started", "batch_id", sum.BatchID, "jobs", len(plan.Jobs), "engine_version", plan.Version)
	r.metrics.BatchRunning.Set(1)
	r.metrics.BatchJobs.Observe(float64(len(plan.Jobs)))
	defer func() {
		r.metrics.BatchRunning.Set(0)
		r.setProgress(func(p *domain.BatchProgress) { p.Current = ""; p.Finished = true })
	}()

	weather, err := r.fetchWeather(ctx, plan)
	if err != nil {
		sum.FinishedAt = r.clock.Now()
		return sum, err
	}
	r.ready.Store(true)

	for _, job := range plan.Jobs {
		if ctx.Err() != nil {
			r.logger.Info("batch stopping", "batch_id", sum.BatchID, "reason", ctx.Err())
			break
		}
		r.setProgress(func(p *domain.BatchProgress) { p.Current = job.Model })

		res := r.runJob(ctx, plan, job, weather[job.Weather])
		res.ID = uuid.NewString()
		res.BatchID = sum.BatchID
		r.report(ctx, res)
		sum.Results = append(sum.Results, res)

		r.setProgress(func(p *domain.BatchProgress) {
			p.Done++
			if res.Passed() {
				p.Passed++
			} else {
				p.Failed++
			}
		})
	}

	sum.FinishedAt = r.clock.Now()
	r.metrics.BatchDuration.Observe(sum.Duration().Seconds())
	r.logger.Info("batch finished",
		"batch_id", sum.BatchID,
		"passed", sum.Passed(),
		"failed", sum.Failed(),
		"duration", sum.Duration(),
	)
	return sum, ctx.Err()
}

// fetchWeather downloads each distinct weather file once and maps the
// requested names to local paths.
func (r *Runner) fetchWeather(ctx context.Context, plan Plan) (map[string]string, error) {
	paths := make(map[string]string)
	for _, job := range plan.Jobs {
		if _, ok := paths[job.Weather]; ok {
			continue
		}
		got, err := r.fetcher.Download(ctx, models.DownloadRequest{
			Kind:    domain.KindWeather,
			Name:    job.Weather,
			Dir:     plan.DataDir,
			Version: plan.Version,
		})
		if err != nil {
			return nil, fmt.Errorf("download weather %s: %w", job.Weather, err)
		}
		paths[job.Weather] = got.Path
	}
	return paths, nil
}

func (r *Runner) runJob(ctx context.Context, plan Plan, job domain.BatchJob, weatherPath string) domain.RunResult {
	failed := func(outputDir, reason string) domain.RunResult {
		now := r.clock.Now()
		return domain.RunResult{
			Model:      job.Model,
			Weather:    weatherPath,
			OutputDir:  outputDir,
			Status:     domain.StatusFailed,
			Failure:    reason,
			StartedAt:  now,
			FinishedAt: now,
		}
	}

	got, err := r.fetcher.Download(ctx, models.DownloadRequest{
		Kind:    domain.KindModel,
		Name:    job.Model,
		Dir:     plan.DataDir,
		Version: plan.Version,
	})
	if err != nil {
		r.logger.Warn("model download failed, skipping", "model", job.Model, "error", err)
		return failed("", fmt.Sprintf("download failed: %v", err))
	}

	outputDir := filepath.Join(plan.OutputDir, modelStem(got.Path))
	res, err := r.simulator.Run(ctx, domain.RunRequest{
		ModelPath:   got.Path,
		WeatherPath: weatherPath,
		OutputDir:   outputDir,
	})
	if err != nil {
		r.logger.Error("simulation could not start", "model", got.Path, "error", err)
		res = failed(outputDir, err.Error())
		res.Model = got.Path
	}
	return res
}

// report records one result in metrics and the configured sinks. Sink
// failures are logged and counted but never fail the run.
func (r *Runner) report(ctx context.Context, res domain.RunResult) {
	r.metrics.SimulationRuns.WithLabelValues(string(res.Status)).Inc()
	if res.Duration > 0 {
		r.metrics.SimulationDuration.Observe(res.Duration.Seconds())
	}
	r.metrics.SimulationWarnings.Add(float64(res.Diagnostics.Warnings))
	r.metrics.SimulationSevere.Add(float64(res.Diagnostics.Severe))

	if r.publisher != nil {
		if err := r.publisher.Publish(ctx, res); err != nil {
			r.metrics.PublishErrors.Inc()
			r.logger.Warn("publish result failed", "run_id", res.ID, "error", err)
		}
	}
	if r.history != nil {
		if err := r.history.Record(ctx, res); err != nil {
			r.metrics.HistoryErrors.Inc()
			r.logger.Warn("record result failed", "run_id", res.ID, "error", err)
		}
	}
}

func (r *Runner) setProgress(update func(*domain.BatchProgress)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	update(&r.progress)
}

func (p Plan) validate() error {
	if p.Version == "" {
		return errors.New("batch needs an engine version")
	}
	if len(p.Jobs) == 0 {
		return errors.New("batch has no jobs")
	}
	for i, j := range p.Jobs {
		if j.Model == "" || j.Weather == "" {
			return fmt.Errorf("job %d needs a model and a weather file", i)
		}
	}
	return nil
}

func modelStem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
