package main

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/couchcryptid/eplus-toolkit/internal/config"
	"github.com/couchcryptid/eplus-toolkit/internal/domain"
	"github.com/couchcryptid/eplus-toolkit/internal/models"
	"github.com/spf13/cobra"
)

func newModelCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "model",
		Short: "Download, check, organize and upgrade model files",
	}
	cmd.AddCommand(
		newModelDownloadCmd(a),
		newModelSetVersionCmd(a),
		newModelCheckCmd(a),
		newModelOrganizeCmd(a),
		newModelUpgradeCmd(a),
		newModelBackupsCmd(a),
	)
	return cmd
}

func newModelDownloadCmd(a *app) *cobra.Command {
	var (
		req  models.DownloadRequest
		kind string
	)
	cmd := &cobra.Command{
		Use:   "download NAME...",
		Short: "Download example models or weather files from the EnergyPlus repository",
		Example: `  eplus model download 5ZoneAirCooled
  eplus model download RefBldgMediumOfficeNew2004_Chicago --tag v23.2.0 --set-version 23.2
  eplus model download USA_CO_Golden-NREL.724666_TMY3.epw --kind weather`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			w := cmd.OutOrStdout()

			switch kind {
			case "model":
				req.Kind = domain.KindModel
			case "weather":
				req.Kind = domain.KindWeather
			default:
				return fmt.Errorf("unknown kind %q (want model or weather)", kind)
			}
			if req.Dir == "" {
				req.Dir = a.cfg.DataDir
			}
			if req.Tag == "" {
				v, err := a.detectVersion(ctx)
				if err != nil {
					return err
				}
				req.Version = v
			}

			mgr := models.NewManager(a.repository(), a.logger)
			banner(w, "Model download")
			var failed int
			for _, name := range args {
				req.Name = name
				d, err := mgr.Download(ctx, req)
				if err != nil {
					failed++
					fmt.Fprintf(w, "  %s %s: %s\n", failStyle.Render("✗"), name, err)
					continue
				}
				note := "from " + d.Tag
				if d.Existing {
					note = "already present"
				}
				fmt.Fprintf(w, "  %s %s (%s, %s)\n", okStyle.Render("✓"), d.Path, fileSize(d.Size), note)
				if d.ModelVersion != "" {
					fmt.Fprintf(w, "    version %s\n", d.ModelVersion)
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d downloads failed", failed, len(args))
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&kind, "kind", "model", "model or weather")
	f.StringVar(&req.Dir, "dir", "", "destination directory (default EPLUS_DATA_DIR)")
	f.StringVar(&req.Tag, "tag", "", "repository tag to download from instead of the engine version")
	f.BoolVar(&req.Force, "force", false, "replace files that already exist")
	f.StringVar(&req.SetVersion, "set-version", "", "rewrite the model version header after download")
	return cmd
}

func newModelSetVersionCmd(a *app) *cobra.Command {
	var version string
	cmd := &cobra.Command{
		Use:   "set-version FILE...",
		Short: "Rewrite the Version header of model files",
		Long: `Rewrite the Version object of each model. Only the header changes; use
"eplus model upgrade" to convert the model content. A .backup copy of the
original is kept next to each file.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			if version == "" {
				v, err := a.detectVersion(cmd.Context())
				if err != nil {
					return err
				}
				version = v
			}
			if _, err := domain.ParseVersion(version); err != nil {
				return err
			}
			for _, p := range args {
				old, err := models.SetVersion(p, version)
				if err != nil {
					return fmt.Errorf("%s: %w", p, err)
				}
				fmt.Fprintf(w, "%s %s: %s -> %s\n", okStyle.Render("✓"), p, old, version)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&version, "version", "", "version to write (default: engine version)")
	return cmd
}

func newModelCheckCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check [DIR...]",
		Short: "Compare model versions with the engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			version, err := a.detectVersion(cmd.Context())
			if err != nil {
				return err
			}
			dirs := args
			if len(dirs) == 0 {
				dirs = []string{a.cfg.ModelDir, a.cfg.DataDir}
			}
			found, err := models.Scan(dirs, version)
			if err != nil {
				return err
			}

			banner(w, "Model compatibility (engine "+version+")")
			if len(found) == 0 {
				fmt.Fprintf(w, "No models found in %s\n", strings.Join(dirs, ", "))
				return nil
			}
			counts := map[domain.Compatibility]int{}
			for _, m := range found {
				counts[m.Compat]++
				v := m.Version
				if v == "" {
					v = "?"
				}
				fmt.Fprintf(w, "  %-45s %-8s %s\n", m.Name, v, compatLabel(m.Compat))
			}
			fmt.Fprintf(w, "\n  %d ok, %d need upgrade, %d too new, %d unknown\n",
				counts[domain.CompatMatch], counts[domain.CompatOlder], counts[domain.CompatNewer], counts[domain.CompatUnknown])
			if counts[domain.CompatOlder] > 0 {
				fmt.Fprintln(w, dimStyle.Render("  run \"eplus model upgrade --all\" to convert older models"))
			}
			return nil
		},
	}
}

func newModelOrganizeCmd(a *app) *cobra.Command {
	var (
		dir    string
		dryRun bool
	)
	cmd := &cobra.Command{
		Use:   "organize",
		Short: "Move models that do not match the engine into sibling directories",
		Long: `Models newer than the engine move to "higher_version" and older ones to
"need_update_to_<X>_<Y>v", both next to the model directory. Matching and
unreadable models stay where they are.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := cmd.OutOrStdout()
			if dir == "" {
				dir = a.cfg.ModelDir
			}
			version, err := a.detectVersion(cmd.Context())
			if err != nil {
				return err
			}
			plan, err := models.PlanOrganize(dir, version)
			if err != nil {
				return err
			}

			banner(w, "Organize models (engine "+version+")")
			fmt.Fprintf(w, "  matching: %d  unknown: %d\n", len(plan.Matching), len(plan.Unknown))
			printMoves(w, "Newer than engine", plan.Higher)
			printMoves(w, "Older than engine", plan.Lower)
			if len(plan.Higher)+len(plan.Lower) == 0 {
				fmt.Fprintln(w, "\nNothing to move.")
				return nil
			}
			if dryRun {
				fmt.Fprintln(w, dimStyle.Render("\ndry run: no files moved"))
				return nil
			}
			if err := plan.Apply(); err != nil {
				return err
			}
			fmt.Fprintf(w, "\n%s moved %d models\n", okStyle.Render("✓"), len(plan.Higher)+len(plan.Lower))
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "model directory (default EPLUS_MODEL_DIR)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "show the plan without moving files")
	return cmd
}

func printMoves(w io.Writer, title string, moves []models.Move) {
	if len(moves) == 0 {
		return
	}
	section(w, title)
	for _, mv := range moves {
		fmt.Fprintf(w, "  %s (%s) -> %s\n", mv.Model.Name, mv.Model.Version, mv.To)
	}
}

func newModelUpgradeCmd(a *app) *cobra.Command {
	var (
		all             bool
		dir, target     string
		test            bool
		weather, moveTo string
	)
	cmd := &cobra.Command{
		Use:   "upgrade [FILE...]",
		Short: "Convert models to the engine version with the transition tools",
		Long: `Run the official transition tools one release at a time until each model
reaches the target version. Tools from a local EnergyPlus install are used
when present, otherwise they are downloaded from the GitHub releases and
cached. Every step keeps a "<file>.v<version>.backup" copy of its input.`,
		Example: `  eplus model upgrade energyplus/models/need_update_to_25_1v/old.idf
  eplus model upgrade --all --dir energyplus/models/need_update_to_25_1v --test --move-to energyplus/models`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			w := cmd.OutOrStdout()

			paths := args
			if all {
				if dir == "" {
					dir = a.cfg.ModelDir
				}
				found, err := models.FindModels(dir)
				if err != nil {
					return err
				}
				paths = append(paths, found...)
			}
			if len(paths) == 0 {
				return errors.New("no models given (pass files or --all)")
			}
			if target == "" {
				v, err := a.detectVersion(ctx)
				if err != nil {
					return err
				}
				target = v
			}
			if weather == "" {
				weather = filepath.Join(a.cfg.DataDir, config.DefaultWeather)
			}

			up := models.NewUpgrader(a.repository(), a.cfg.CacheDir, a.logger, models.WithGOOS(runtime.GOOS))
			banner(w, "Model upgrade to "+target)

			var failed int
			for _, p := range paths {
				res, err := up.Upgrade(ctx, p, target)
				if err != nil {
					failed++
					fmt.Fprintf(w, "  %s %s: %s\n", failStyle.Render("✗"), p, err)
					continue
				}
				if res.Current {
					fmt.Fprintf(w, "  %s %s already %s\n", okStyle.Render("✓"), p, res.To)
				} else {
					fmt.Fprintf(w, "  %s %s %s -> %s (%d steps)\n", okStyle.Render("✓"), p, res.From, res.To, len(res.Steps))
				}

				if test {
					out := filepath.Join(a.cfg.OutputDir, "test_"+strings.TrimSuffix(filepath.Base(p), filepath.Ext(p)))
					run, err := a.engine().Run(ctx, domain.RunRequest{ModelPath: p, WeatherPath: weather, OutputDir: out})
					if err != nil || !run.Passed() {
						failed++
						msg := run.Failure
						if err != nil {
							msg = err.Error()
						}
						fmt.Fprintf(w, "    test run %s %s\n", failStyle.Render("FAILED"), msg)
						continue
					}
					fmt.Fprintf(w, "    test run %s (%s)\n", okStyle.Render("PASSED"), out)
				}
				if moveTo != "" {
					dst, err := models.MoveModel(p, moveTo)
					if err != nil {
						failed++
						fmt.Fprintf(w, "    move %s\n", failStyle.Render(err.Error()))
						continue
					}
					fmt.Fprintf(w, "    moved to %s\n", dst)
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d models failed", failed, len(paths))
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.BoolVar(&all, "all", false, "upgrade every model in --dir")
	f.StringVar(&dir, "dir", "", "directory used with --all (default EPLUS_MODEL_DIR)")
	f.StringVar(&target, "target", "", "target version (default: engine version)")
	f.BoolVar(&test, "test", false, "run each upgraded model once")
	f.StringVar(&weather, "weather", "", "weather file for --test (default: the Chicago TMY3 file in EPLUS_DATA_DIR)")
	f.StringVar(&moveTo, "move-to", "", "move upgraded models into this directory")
	return cmd
}

func newModelBackupsCmd(a *app) *cobra.Command {
	var (
		dir    string
		remove bool
	)
	cmd := &cobra.Command{
		Use:   "backups",
		Short: "List or delete model backups",
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := cmd.OutOrStdout()
			if dir == "" {
				dir = a.cfg.ModelDir
			}
			backups, err := models.Backups(dir)
			if err != nil {
				return err
			}
			banner(w, "Model backups in "+dir)
			if len(backups) == 0 {
				fmt.Fprintln(w, "No backups found.")
				return nil
			}
			var total int64
			for _, b := range backups {
				total += b.Size
				ver := b.Version
				if ver == "" {
					ver = "-"
				}
				orig := dimStyle.Render("original missing")
				if b.Original {
					orig = "original present"
				}
				fmt.Fprintf(w, "  %-55s %-8s %10s  %s\n", b.Name, ver, fileSize(b.Size), orig)
			}
			fmt.Fprintf(w, "\n  %d backups, %s\n", len(backups), fileSize(total))
			if !remove {
				return nil
			}
			if err := models.DeleteBackups(backups); err != nil {
				return err
			}
			fmt.Fprintf(w, "%s deleted %d backups\n", okStyle.Render("✓"), len(backups))
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "model directory (default EPLUS_MODEL_DIR)")
	cmd.Flags().BoolVar(&remove, "delete", false, "delete the listed backups")
	return cmd
}
