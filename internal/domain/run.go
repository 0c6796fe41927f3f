package domain

import "time"

// FileKind selects the repository directory a file is fetched from.
type FileKind string

const (
	KindModel   FileKind = "testfiles"
	KindWeather FileKind = "weather"
)

// KeyOutputFiles are the engine outputs reported after each run.
var KeyOutputFiles = []string{"eplustbl.htm", "eplusout.csv", "eplusmtr.csv", "eplusout.err", "eplusout.eso", "eplusout.mtr"}

// BatchJob pairs a model with the weather file it runs against.
type BatchJob struct {
	Model   string `json:"model"`
	Weather string `json:"weather"`
}

// RunRequest describes a single simulation.
type RunRequest struct {
	ModelPath   string
	WeatherPath string
	OutputDir   string
}

// RunStatus is the outcome of a simulation.
type RunStatus string

const (
	StatusPassed RunStatus = "passed"
	StatusFailed RunStatus = "failed"
)

// OutputFile is one produced file with its size in bytes.
type OutputFile struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Size int64  `json:"size"`
}

// RunResult is the record of one simulation, published and stored as-is.
type RunResult struct {
	ID            string        `json:"id"`
	BatchID       string        `json:"batch_id,omitempty"`
	Model         string        `json:"model"`
	Weather       string        `json:"weather"`
	OutputDir     string        `json:"output_dir"`
	Status        RunStatus     `json:"status"`
	ExitCode      int           `json:"exit_code"`
	Failure       string        `json:"failure,omitempty"`
	Diagnostics   ErrSummary    `json:"diagnostics"`
	Outputs       []OutputFile  `json:"outputs,omitempty"`
	EngineVersion string        `json:"engine_version,omitempty"`
	StartedAt     time.Time     `json:"started_at"`
	FinishedAt    time.Time     `json:"finished_at"`
	Duration      time.Duration `json:"duration_ns"`
}

// Passed reports whether the run succeeded.
func (r RunResult) Passed() bool {
	return r.Status == StatusPassed
}

// Output returns the named output file if the run produced it.
func (r RunResult) Output(name string) (OutputFile, bool) {
	for _, o := range r.Outputs {
		if o.Name == name {
			return o, true
		}
	}
	return OutputFile{}, false
}

// DecideStatus classifies a finished run. A zero exit code passes unless
// the err file reports a fatal error or, when present, never reached the
// completion banner.
func DecideStatus(exitCode int, diag ErrSummary, haveErrFile bool) RunStatus {
	if exitCode != 0 || diag.Fatal > 0 {
		return StatusFailed
	}
	if haveErrFile && !diag.Completed {
		return StatusFailed
	}
	return StatusPassed
}

// BatchProgress is a point-in-time view of a running batch.
type BatchProgress struct {
	BatchID   string    `json:"batch_id,omitempty"`
	Version   string    `json:"engine_version,omitempty"`
	Total     int       `json:"total"`
	Done      int       `json:"done"`
	Passed    int       `json:"passed"`
	Failed    int       `json:"failed"`
	Current   string    `json:"current,omitempty"`
	StartedAt time.Time `json:"started_at"`
	Finished  bool      `json:"finished"`
}

// Remaining is the number of jobs not yet finished.
func (p BatchProgress) Remaining() int {
	if p.Done >= p.Total {
		return 0
	}
	return p.Total - p.Done
}

// Percent is the share of finished jobs, 0 to 100.
func (p BatchProgress) Percent() float64 {
	if p.Total == 0 {
		return 0
	}
	return 100 * float64(p.Done) / float64(p.Total)
}

// Elapsed is the time since the batch started, as seen at now. It is zero
// before the batch starts.
func (p BatchProgress) Elapsed(now time.Time) time.Duration {
	if p.StartedAt.IsZero() || now.Before(p.StartedAt) {
		return 0
	}
	return now.Sub(p.StartedAt)
}
