package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/couchcryptid/eplus-toolkit/internal/adapter/httpadapter"
	kafkaadapter "github.com/couchcryptid/eplus-toolkit/internal/adapter/kafka"
	"github.com/couchcryptid/eplus-toolkit/internal/adapter/sqlite"
	"github.com/couchcryptid/eplus-toolkit/internal/batch"
	"github.com/couchcryptid/eplus-toolkit/internal/config"
	"github.com/couchcryptid/eplus-toolkit/internal/models"
	"github.com/couchcryptid/eplus-toolkit/internal/observability"
	"github.com/spf13/cobra"
)

func newBatchCmd(a *app) *cobra.Command {
	var manifestPath, metricsAddr, metricsFile string
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Download and run a list of models one after another",
		Long: `Run the default batch (three example models against the Chicago O'Hare
TMY3 weather file) or the jobs listed in a YAML manifest.

Weather files are downloaded first and the batch stops if that fails. Each
model is then downloaded and simulated in order; a model that cannot be
downloaded is reported as failed and the batch moves on.

Manifest keys (each can be overridden with EPLUS_BATCH_<KEY>):
  version, weather, data_dir, output_dir, jobs: [{model, weather}]`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			w := cmd.OutOrStdout()

			m, err := config.LoadManifest(manifestPath, config.DefaultManifest(a.cfg))
			if err != nil {
				return err
			}
			version := m.Version
			if a.engineVersion != "" || version == "" {
				if version, err = a.detectVersion(ctx); err != nil {
					return err
				}
			}

			var opts []batch.Option
			if a.cfg.PublishEnabled() {
				pub := kafkaadapter.NewPublisher(a.cfg, a.logger)
				defer func() {
					if err := pub.Close(); err != nil {
						a.logger.Error("kafka publisher close error", "error", err)
					}
				}()
				opts = append(opts, batch.WithPublisher(pub))
			}
			if a.cfg.HistoryEnabled() {
				store, err := sqlite.Open(ctx, a.cfg.HistoryDB)
				if err != nil {
					return err
				}
				defer store.Close()
				opts = append(opts, batch.WithHistory(store))
			}

			runner := batch.New(models.NewManager(a.repository(), a.logger), a.engine(), a.logger, a.metrics, opts...)

			if metricsAddr == "" {
				metricsAddr = a.cfg.MetricsAddr
			}
			if metricsAddr != "" {
				srv := httpadapter.NewServer(metricsAddr, runner, a.logger)
				go func() {
					if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						a.logger.Error("http server error", "error", err)
					}
				}()
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
					defer cancel()
					if err := srv.Shutdown(shutdownCtx); err != nil {
						a.logger.Error("http server shutdown error", "error", err)
					}
				}()
			}

			banner(w, "EnergyPlus batch runner")
			fmt.Fprintf(w, "Engine version: %s\n", version)
			fmt.Fprintf(w, "Jobs:           %d\n", len(m.Jobs))

			sum, runErr := runner.Run(ctx, batch.Plan{
				Version:   version,
				DataDir:   m.DataDir,
				OutputDir: m.OutputDir,
				Jobs:      m.BatchJobs(),
			})
			printBatchSummary(w, sum, m.OutputDir)

			if metricsFile != "" {
				if err := observability.WriteTextfile(metricsFile); err != nil {
					a.logger.Error("write metrics file failed", "path", metricsFile, "error", err)
				}
			}

			if runErr != nil {
				return runErr
			}
			if !sum.OK() {
				return fmt.Errorf("%d of %d runs failed", sum.Failed(), len(sum.Results))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&manifestPath, "manifest", "f", "", "YAML batch manifest (default: built-in example batch)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve /healthz, /readyz, /progress and /metrics on this address while running")
	cmd.Flags().StringVar(&metricsFile, "metrics-file", "", "write Prometheus metrics to this file when the batch ends")
	return cmd
}

func printBatchSummary(w io.Writer, sum batch.Summary, outputDir string) {
	section(w, "Batch summary")
	for _, r := range sum.Results {
		fmt.Fprintf(w, "  %-45s %s\n", filepath.Base(r.Model), statusLabel(r.Status))
		if r.Failure != "" {
			fmt.Fprintf(w, "    %s\n", dimStyle.Render(r.Failure))
		}
	}
	fmt.Fprintf(w, "\n  %d passed, %d failed in %s\n", sum.Passed(), sum.Failed(), sum.Duration().Round(time.Second))

	if len(sum.Results) == 0 {
		return
	}
	section(w, "Output directories")
	entries, err := os.ReadDir(outputDir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.IsDir() {
			fmt.Fprintf(w, "  - %s\n", filepath.Join(outputDir, e.Name()))
		}
	}
}
