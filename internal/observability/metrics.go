package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the toolkit.
type Metrics struct {
	// Simulation metrics.
	SimulationRuns     *prometheus.CounterVec // labels: status={passed,failed}
	SimulationDuration prometheus.Histogram
	SimulationWarnings prometheus.Counter
	SimulationSevere   prometheus.Counter

	// Batch metrics.
	BatchRunning  prometheus.Gauge
	BatchJobs     prometheus.Histogram
	BatchDuration prometheus.Histogram

	// Download metrics.
	Downloads        *prometheus.CounterVec   // labels: source={github,open-meteo,pvgis}, outcome={success,error}
	DownloadBytes    *prometheus.CounterVec   // labels: source
	DownloadDuration *prometheus.HistogramVec // labels: source
	TagCache         *prometheus.CounterVec   // labels: result={hit,miss}

	// Result sinks.
	PublishErrors prometheus.Counter
	HistoryErrors prometheus.Counter
}

// NewMetrics creates and registers all toolkit metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		SimulationRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eplus",
			Name:      "simulation_runs_total",
			Help:      "Simulations executed by outcome.",
		}, []string{"status"}),
		SimulationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "eplus",
			Name:      "simulation_duration_seconds",
			Help:      "Wall-clock duration of one engine run.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}),
		SimulationWarnings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "eplus",
			Name:      "simulation_warnings_total",
			Help:      "Warnings reported in eplusout.err across runs.",
		}),
		SimulationSevere: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "eplus",
			Name:      "simulation_severe_errors_total",
			Help:      "Severe errors reported in eplusout.err across runs.",
		}),
		BatchRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "eplus",
			Name:      "batch_running",
			Help:      "1 while a batch is in progress, 0 otherwise.",
		}),
		BatchJobs: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "eplus",
			Name:      "batch_jobs",
			Help:      "Number of jobs per batch.",
			Buckets:   []float64{1, 2, 3, 5, 10, 20, 50, 100},
		}),
		BatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "eplus",
			Name:      "batch_duration_seconds",
			Help:      "Duration of a complete batch.",
			Buckets:   []float64{10, 30, 60, 300, 600, 1800, 3600, 7200},
		}),
		Downloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eplus",
			Name:      "downloads_total",
			Help:      "HTTP downloads by source and outcome.",
		}, []string{"source", "outcome"}),
		DownloadBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eplus",
			Name:      "download_bytes_total",
			Help:      "Bytes downloaded by source.",
		}, []string{"source"}),
		DownloadDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "eplus",
			Name:      "download_duration_seconds",
			Help:      "HTTP download duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"source"}),
		TagCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eplus",
			Name:      "tag_cache_total",
			Help:      "Repository tag cache lookups by result.",
		}, []string{"result"}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "eplus",
			Name:      "publish_errors_total",
			Help:      "Run results that could not be published to Kafka.",
		}),
		HistoryErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "eplus",
			Name:      "history_errors_total",
			Help:      "Run results that could not be stored in the history database.",
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.SimulationRuns,
		m.SimulationDuration,
		m.SimulationWarnings,
		m.SimulationSevere,
		m.BatchRunning,
		m.BatchJobs,
		m.BatchDuration,
		m.Downloads,
		m.DownloadBytes,
		m.DownloadDuration,
		m.TagCache,
		m.PublishErrors,
		m.HistoryErrors,
	}
}

// WriteTextfile writes the default registry in the node_exporter textfile format.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}
