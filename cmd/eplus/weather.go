package main

import (
	"errors"
	"fmt"

	"github.com/couchcryptid/eplus-toolkit/internal/adapter/openmeteo"
	"github.com/couchcryptid/eplus-toolkit/internal/adapter/pvgis"
	"github.com/couchcryptid/eplus-toolkit/internal/weather"
	"github.com/spf13/cobra"
)

func newWeatherCmd(a *app) *cobra.Command {
	var (
		req     weather.Request
		tmy     bool
		syncEPW string
	)
	cmd := &cobra.Command{
		Use:   "weather",
		Short: "Download weather data and convert it to EPW",
		Example: `  eplus weather --lat 41.88 --lon -87.63 --start 2024-06-01 --end 2024-09-30
  eplus weather --lat 45.07 --lon 7.69 --tmy
  eplus weather --lat 41.88 --lon -87.63 --start 2024-06-01 --end 2024-06-30 --update-idf data/model.idf
  eplus weather --sync-epw weather/site.epw --update-idf data/model.idf`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := cmd.OutOrStdout()

			if syncEPW != "" {
				if req.UpdateIDF == "" {
					return errors.New("--sync-epw needs --update-idf")
				}
				banner(w, "Syncing EPW to IDF run period")
				period, n, err := weather.SyncIDF(syncEPW, req.UpdateIDF)
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "%s %s: RunPeriod set to %s (%d replaced)\n", okStyle.Render("✓"), req.UpdateIDF, period, n)
				return nil
			}

			if !cmd.Flags().Changed("lat") || !cmd.Flags().Changed("lon") {
				return errors.New("--lat and --lon are required for downloading weather data")
			}
			if tmy && (req.Start != "" || req.End != "") {
				return errors.New("--tmy cannot be combined with --start/--end")
			}
			if !tmy && req.Start == "" && req.End == "" {
				return errors.New("specify --tmy for a typical year, or --start and --end for a date range")
			}
			if req.OutDir == "" {
				req.OutDir = a.cfg.WeatherDir
			}

			svc := weather.NewService(
				openmeteo.NewClient(a.cfg, a.metrics, a.logger),
				pvgis.NewClient(a.cfg, a.metrics, a.logger),
				a.logger,
			)

			banner(w, "Weather data downloader")
			fmt.Fprintf(w, "Location: %g, %g\n", req.Lat, req.Lon)
			fmt.Fprintf(w, "Output:   %s\n", req.OutDir)

			res, err := svc.Download(cmd.Context(), req)
			if len(res.Files) > 0 {
				section(w, "Downloaded files ("+res.Source+")")
				for _, f := range res.Files {
					fmt.Fprintf(w, "  - %s\n", f)
				}
			}
			if err != nil {
				return err
			}
			if req.UpdateIDF != "" {
				fmt.Fprintf(w, "\n%s %s: RunPeriod set to %s (%d replaced)\n", okStyle.Render("✓"), req.UpdateIDF, res.Period, res.Replaced)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.Float64Var(&req.Lat, "lat", 0, "latitude in decimal degrees")
	f.Float64Var(&req.Lon, "lon", 0, "longitude in decimal degrees")
	f.StringVar(&req.Start, "start", "", "start date YYYY-MM-DD")
	f.StringVar(&req.End, "end", "", "end date YYYY-MM-DD")
	f.BoolVar(&tmy, "tmy", false, "download a typical meteorological year")
	f.StringVar(&req.Source, "source", weather.SourceAuto, "auto, open-meteo or pvgis")
	f.StringVarP(&req.OutDir, "output", "o", "", "output directory (default EPLUS_WEATHER_DIR)")
	f.StringVar(&req.UpdateIDF, "update-idf", "", "rewrite this model's RunPeriod to the weather file's dates")
	f.StringVar(&syncEPW, "sync-epw", "", "sync --update-idf to an existing EPW without downloading")
	return cmd
}
