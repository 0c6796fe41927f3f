package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/couchcryptid/eplus-toolkit/internal/domain"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// DefaultWeather is the weather file used by the default batch.
const DefaultWeather = "USA_IL_Chicago-OHare.Intl.AP.725300_TMY3.epw"

// DefaultModels are the example models run by the default batch.
var DefaultModels = []string{
	"1ZoneUncontrolled.idf",
	"5ZoneAutoDXVAV.idf",
	"RefBldgSmallOfficeNew2004_Chicago.idf",
}

// Manifest describes a batch: which models to run against which weather.
type Manifest struct {
	Weather   string        `koanf:"weather"`
	OutputDir string        `koanf:"output_dir"`
	DataDir   string        `koanf:"data_dir"`
	Version   string        `koanf:"version"`
	Jobs      []ManifestJob `koanf:"jobs"`
}

// ManifestJob is one model. An empty Weather uses the manifest default.
type ManifestJob struct {
	Model   string `koanf:"model"`
	Weather string `koanf:"weather"`
}

// DefaultManifest returns the built-in batch rooted at the configured directories.
func DefaultManifest(cfg *Config) Manifest {
	m := Manifest{
		Weather:   DefaultWeather,
		OutputDir: cfg.BatchOutputDir,
		DataDir:   cfg.DataDir,
	}
	for _, model := range DefaultModels {
		m.Jobs = append(m.Jobs, ManifestJob{Model: model})
	}
	return m
}

// LoadManifest layers base, then the YAML file at path (if any), then
// EPLUS_BATCH_* environment variables.
func LoadManifest(path string, base Manifest) (Manifest, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Manifest{}, fmt.Errorf("load manifest %s: %w", path, err)
		}
	}

	// EPLUS_BATCH_WEATHER -> weather, EPLUS_BATCH_OUTPUT_DIR -> output_dir
	envProvider := env.Provider("EPLUS_BATCH_", ".", func(s string) string {
		return strings.TrimPrefix(strings.ToLower(s), "eplus_batch_")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return Manifest{}, err
	}

	m := base
	if k.Exists("jobs") {
		m.Jobs = nil
	}
	if err := k.UnmarshalWithConf("", &m, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return Manifest{}, fmt.Errorf("decode manifest: %w", err)
	}

	if err := m.Validate(); err != nil {
		return Manifest{}, err
	}
	return m, nil
}

// Validate checks that every job has a model and a weather file.
func (m Manifest) Validate() error {
	if len(m.Jobs) == 0 {
		return errors.New("manifest has no jobs")
	}
	if m.OutputDir == "" {
		return errors.New("manifest output_dir must not be empty")
	}
	for i, j := range m.Jobs {
		if strings.TrimSpace(j.Model) == "" {
			return fmt.Errorf("manifest job %d: model is required", i)
		}
		if j.Weather == "" && m.Weather == "" {
			return fmt.Errorf("manifest job %d (%s): no weather file and no default weather", i, j.Model)
		}
	}
	return nil
}

// BatchJobs resolves the default weather into each job.
func (m Manifest) BatchJobs() []domain.BatchJob {
	jobs := make([]domain.BatchJob, len(m.Jobs))
	for i, j := range m.Jobs {
		w := j.Weather
		if w == "" {
			w = m.Weather
		}
		jobs[i] = domain.BatchJob{Model: j.Model, Weather: w}
	}
	return jobs
}
