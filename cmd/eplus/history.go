package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/couchcryptid/eplus-toolkit/internal/adapter/sqlite"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newHistoryCmd(a *app) *cobra.Command {
	var (
		limit  int
		dbPath string
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded simulation runs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			w := cmd.OutOrStdout()
			if dbPath == "" {
				dbPath = a.cfg.HistoryDB
			}
			if dbPath == "" {
				return errors.New("no history database (set HISTORY_DB or pass --db)")
			}

			store, err := sqlite.Open(ctx, dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			sum, err := store.Summarize(ctx)
			if err != nil {
				return err
			}
			runs, err := store.Recent(ctx, limit)
			if err != nil {
				return err
			}

			banner(w, "Run history")
			if sum.Total == 0 {
				fmt.Fprintln(w, "No runs recorded.")
				return nil
			}
			fmt.Fprintf(w, "%d runs: %d passed, %d failed, last %s\n",
				sum.Total, sum.Passed, sum.Failed, humanize.Time(sum.LastRun))
			section(w, fmt.Sprintf("Most recent %d", len(runs)))
			for _, r := range runs {
				fmt.Fprintf(w, "  %s  %-40s %s  %s\n",
					r.FinishedAt.Local().Format(time.DateTime), filepath.Base(r.Model), statusLabel(r.Status),
					dimStyle.Render(r.Duration.Round(time.Millisecond).String()))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "number of runs to show")
	cmd.Flags().StringVar(&dbPath, "db", "", "history database (default HISTORY_DB)")
	return cmd
}
