package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/couchcryptid/eplus-toolkit/internal/adapter/engine"
	"github.com/couchcryptid/eplus-toolkit/internal/adapter/github"
	"github.com/couchcryptid/eplus-toolkit/internal/config"
	"github.com/couchcryptid/eplus-toolkit/internal/observability"
	"github.com/spf13/cobra"
)

// app carries what every subcommand needs once the root has loaded config.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *observability.Metrics

	// engineVersion overrides detection when set.
	engineVersion string
}

var (
	metricsOnce sync.Once
	procMetrics *observability.Metrics
)

// processMetrics registers the collectors once per process.
func processMetrics() *observability.Metrics {
	metricsOnce.Do(func() { procMetrics = observability.NewMetrics() })
	return procMetrics
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "eplus",
		Short: "EnergyPlus toolkit: simulations, batches, weather and model management",
		Long: `eplus drives the EnergyPlus engine shipped with the pyenergyplus pip package.

It detects the installed engine, downloads example models and weather files
at a matching repository tag, runs single simulations or sequential batches,
downloads weather data from Open-Meteo or PVGIS, and keeps model files
compatible with the engine.`,
		SilenceUsage: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.logger = observability.NewLogger(cfg)
			a.metrics = processMetrics()
			return nil
		},
	}
	root.PersistentFlags().StringVar(&a.engineVersion, "engine-version", "", "assume this engine version instead of detecting it")

	root.AddCommand(
		newVersionCmd(a),
		newRunCmd(a),
		newBatchCmd(a),
		newWeatherCmd(a),
		newModelCmd(a),
		newAnalyzeCmd(a),
		newHistoryCmd(a),
	)
	return root
}

func (a *app) engine(opts ...engine.Option) *engine.Engine {
	return engine.New(a.cfg, a.logger, opts...)
}

func (a *app) repository() *github.Client {
	return github.NewClient(a.cfg, a.metrics, a.logger)
}

// detectVersion returns the --engine-version override or asks the engine.
func (a *app) detectVersion(ctx context.Context) (string, error) {
	if a.engineVersion != "" {
		return a.engineVersion, nil
	}
	info, err := a.engine().EngineVersion(ctx)
	if err != nil {
		return "", fmt.Errorf("%w (pass --engine-version to skip detection)", err)
	}
	a.logger.Debug("engine version detected", "version", info.Version, "source", info.Source)
	return info.Version, nil
}
