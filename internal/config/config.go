package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Config holds all toolkit settings, populated from environment variables.
type Config struct {
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Engine discovery and execution.
	EngineBinary   string
	PythonBinary   string
	EnginePackages []string
	EngineTimeout  time.Duration

	// Working directories.
	DataDir        string
	OutputDir      string
	BatchOutputDir string
	WeatherDir     string
	ModelDir       string
	CacheDir       string

	// Remote sources.
	GitHubRawURL      string
	GitHubReleasesURL string
	OpenMeteoURL      string
	PVGISURL          string
	HTTPTimeout       time.Duration
	WeatherTimeout    time.Duration
	TagCacheSize      int

	// Optional result sinks. Empty disables them.
	KafkaBrokers []string
	KafkaTopic   string
	HistoryDB    string
	MetricsAddr  string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	httpTimeout, err := parsePositiveDuration("HTTP_TIMEOUT", "30s")
	if err != nil {
		return nil, err
	}
	weatherTimeout, err := parsePositiveDuration("WEATHER_TIMEOUT", "120s")
	if err != nil {
		return nil, err
	}
	engineTimeout, err := time.ParseDuration(sharedcfg.EnvOrDefault("ENGINE_TIMEOUT", "0s"))
	if err != nil || engineTimeout < 0 {
		return nil, errors.New("invalid ENGINE_TIMEOUT")
	}

	var brokers []string
	if v := strings.TrimSpace(os.Getenv("KAFKA_BROKERS")); v != "" {
		brokers = sharedcfg.ParseBrokers(v)
	}

	cfg := &Config{
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "text"),
		ShutdownTimeout: shutdownTimeout,

		EngineBinary:   os.Getenv("EPLUS_BINARY"),
		PythonBinary:   sharedcfg.EnvOrDefault("EPLUS_PYTHON", "python3"),
		EnginePackages: splitList(sharedcfg.EnvOrDefault("EPLUS_PACKAGES", "pyenergyplus-lbnl,pyenergyplus")),
		EngineTimeout:  engineTimeout,

		DataDir:        sharedcfg.EnvOrDefault("EPLUS_DATA_DIR", "data"),
		OutputDir:      sharedcfg.EnvOrDefault("EPLUS_OUTPUT_DIR", "outputs"),
		BatchOutputDir: sharedcfg.EnvOrDefault("EPLUS_BATCH_OUTPUT_DIR", "batch_outputs"),
		WeatherDir:     sharedcfg.EnvOrDefault("EPLUS_WEATHER_DIR", "weather"),
		ModelDir:       sharedcfg.EnvOrDefault("EPLUS_MODEL_DIR", "energyplus/models"),
		CacheDir:       sharedcfg.EnvOrDefault("EPLUS_CACHE_DIR", "tmp/eplus_transitions"),

		GitHubRawURL:      strings.TrimRight(sharedcfg.EnvOrDefault("GITHUB_RAW_URL", "https://raw.githubusercontent.com/NREL/EnergyPlus"), "/"),
		GitHubReleasesURL: strings.TrimRight(sharedcfg.EnvOrDefault("GITHUB_RELEASES_URL", "https://github.com/NREL/EnergyPlus/releases/download"), "/"),
		OpenMeteoURL:      strings.TrimRight(sharedcfg.EnvOrDefault("OPEN_METEO_URL", "https://archive-api.open-meteo.com/v1/archive"), "/"),
		PVGISURL:          strings.TrimRight(sharedcfg.EnvOrDefault("PVGIS_URL", "https://re.jrc.ec.europa.eu/api/v5_3"), "/"),
		HTTPTimeout:       httpTimeout,
		WeatherTimeout:    weatherTimeout,
		TagCacheSize:      parseTagCacheSize(),

		KafkaBrokers: brokers,
		KafkaTopic:   sharedcfg.EnvOrDefault("KAFKA_TOPIC", "simulation-results"),
		HistoryDB:    os.Getenv("HISTORY_DB"),
		MetricsAddr:  os.Getenv("METRICS_ADDR"),
	}

	if len(cfg.EnginePackages) == 0 && cfg.EngineBinary == "" {
		return nil, errors.New("EPLUS_PACKAGES is required when EPLUS_BINARY is not set")
	}
	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaTopic == "" {
		return nil, errors.New("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}
	switch cfg.LogFormat {
	case "json", "text":
	default:
		return nil, fmt.Errorf("invalid LOG_FORMAT %q", cfg.LogFormat)
	}

	return cfg, nil
}

// PublishEnabled reports whether run results are sent to Kafka.
func (c *Config) PublishEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

// HistoryEnabled reports whether run results are stored in SQLite.
func (c *Config) HistoryEnabled() bool {
	return c.HistoryDB != ""
}

func parsePositiveDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parseTagCacheSize() int {
	if s := os.Getenv("TAG_CACHE_SIZE"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return 64
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
