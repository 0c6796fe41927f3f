package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/couchcryptid/eplus-toolkit/internal/adapter/engine"
	"github.com/couchcryptid/eplus-toolkit/internal/adapter/sqlite"
	"github.com/couchcryptid/eplus-toolkit/internal/domain"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newRunCmd(a *app) *cobra.Command {
	var (
		model, weather, output string
		stream                 bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one simulation",
		Example: `  eplus run --idf data/1ZoneUncontrolled.idf --epw data/USA_IL_Chicago-OHare.Intl.AP.725300_TMY3.epw
  eplus run -i model.idf -w weather.epw -o results/ --stream`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			w := cmd.OutOrStdout()
			if output == "" {
				output = a.cfg.OutputDir
			}

			var opts []engine.Option
			if stream {
				opts = append(opts, engine.WithOutput(os.Stderr))
			}

			banner(w, "EnergyPlus simulation")
			fmt.Fprintf(w, "Model:   %s\n", absPath(model))
			fmt.Fprintf(w, "Weather: %s\n", absPath(weather))
			fmt.Fprintf(w, "Output:  %s\n", absPath(output))

			res, err := a.engine(opts...).Run(ctx, domain.RunRequest{ModelPath: model, WeatherPath: weather, OutputDir: output})
			if err != nil {
				return err
			}
			res.ID = uuid.NewString()
			a.recordRun(cmd, res)

			section(w, "Result "+statusLabel(res.Status))
			printOutputs(w, res.Outputs)
			printDiagnostics(w, res)
			fmt.Fprintf(w, "\nFull results: %s (%s)\n", absPath(output), res.Duration.Round(time.Millisecond))

			if !res.Passed() {
				return errors.New("simulation failed")
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&model, "idf", "i", "", "model file (required)")
	cmd.Flags().StringVarP(&weather, "epw", "w", "", "weather file (required)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output directory (default EPLUS_OUTPUT_DIR)")
	cmd.Flags().BoolVar(&stream, "stream", false, "stream engine output to stderr")
	_ = cmd.MarkFlagRequired("idf")
	_ = cmd.MarkFlagRequired("epw")
	return cmd
}

// recordRun stores a single run in the history database when one is configured.
func (a *app) recordRun(cmd *cobra.Command, res domain.RunResult) {
	if !a.cfg.HistoryEnabled() {
		return
	}
	store, err := sqlite.Open(cmd.Context(), a.cfg.HistoryDB)
	if err != nil {
		a.logger.Warn("open history failed", "error", err)
		return
	}
	defer store.Close()
	if err := store.Record(cmd.Context(), res); err != nil {
		a.metrics.HistoryErrors.Inc()
		a.logger.Warn("record run failed", "run_id", res.ID, "error", err)
	}
}

func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}
