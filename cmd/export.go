package main

import (
	"io"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/quakemap/internal/export"
	"github.com/sells-group/quakemap/internal/mapview"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the current feed as a spreadsheet, YAML report or GeoJSON markers",
	RunE: func(cmd *cobra.Command, _ []string) error {
		format, _ := cmd.Flags().GetString("format")
		outPath, _ := cmd.Flags().GetString("out")
		top, _ := cmd.Flags().GetInt("top")

		switch format {
		case "xlsx", "yaml", "geojson":
		default:
			return eris.Errorf("export: unknown format %q", format)
		}

		env, err := initMapEnv(cmd.Context())
		if err != nil {
			return err
		}

		var out io.Writer = os.Stdout
		if outPath != "" {
			f, err := os.Create(outPath)
			if err != nil {
				return eris.Wrap(err, "export: create output")
			}
			defer f.Close() //nolint:errcheck
			out = f
		}

		if err := writeExport(out, env, format, top); err != nil {
			return err
		}
		if outPath != "" {
			zap.L().Info("export written", zap.String("format", format), zap.String("path", outPath))
		}
		return nil
	},
}

func init() {
	exportCmd.Flags().String("format", "xlsx", "export format (xlsx, yaml, geojson)")
	exportCmd.Flags().String("out", "", "output file (default stdout)")
	exportCmd.Flags().Int("top", 10, "strongest quakes included in the yaml report")
	rootCmd.AddCommand(exportCmd)
}

func writeExport(out io.Writer, env *mapEnv, format string, top int) error {
	switch format {
	case "xlsx":
		return export.WriteXLSX(out, env.Quakes)
	case "yaml":
		return export.WriteYAML(out, export.NewReport(env.Source, env.Scheme, env.Quakes, top, time.Now()))
	case "geojson":
		view := mapview.New(env.Quakes, env.Cities, env.Scheme)
		return export.WriteGeoJSON(out, view.Markers())
	default:
		return eris.Errorf("export: unknown format %q", format)
	}
}
