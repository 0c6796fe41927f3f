package main

import (
	"fmt"

	"github.com/couchcryptid/eplus-toolkit/internal/domain"
	"github.com/couchcryptid/eplus-toolkit/internal/models"
	"github.com/spf13/cobra"
)

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version [model.idf...]",
		Short: "Show the installed engine and check models against it",
		Long: `Report the pip package, the engine binary and its version, then compare
the version header of each given model with the engine (major.minor).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			w := cmd.OutOrStdout()
			eng := a.engine()

			banner(w, "EnergyPlus version check")
			if pkg, err := eng.PackageVersion(ctx); err == nil {
				fmt.Fprintf(w, "Package:        %s %s\n", pkg.Name, pkg.Version)
				fmt.Fprintf(w, "Location:       %s\n", pkg.Location)
			} else {
				fmt.Fprintf(w, "Package:        %s\n", warnStyle.Render(err.Error()))
			}

			version := a.engineVersion
			if version == "" {
				info, err := eng.EngineVersion(ctx)
				if err != nil {
					return fmt.Errorf("%w (pass --engine-version to skip detection)", err)
				}
				version = info.Version
				fmt.Fprintf(w, "Engine binary:  %s\n", info.Binary)
				build := ""
				if info.Build != "" {
					build = " (" + info.Build + ")"
				}
				fmt.Fprintf(w, "Engine version: %s%s %s\n", info.Version, build, dimStyle.Render("via "+info.Source))
			} else {
				fmt.Fprintf(w, "Engine version: %s %s\n", version, dimStyle.Render("from --engine-version"))
			}

			if len(args) == 0 {
				return nil
			}
			section(w, "Models")
			for _, p := range args {
				v, err := models.ReadVersion(p)
				if err != nil {
					fmt.Fprintf(w, "  %s: %s\n", p, failStyle.Render(err.Error()))
					continue
				}
				fmt.Fprintf(w, "  %s: %s %s\n", p, v, compatLabel(domain.CompareVersions(v, version)))
			}
			return nil
		},
	}
}
