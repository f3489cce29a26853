package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/quakemap/internal/mapview"
	"github.com/sells-group/quakemap/internal/quake"
)

var legendCmd = &cobra.Command{
	Use:   "legend",
	Short: "Print the map key for a style scheme",
	RunE: func(cmd *cobra.Command, _ []string) error {
		scheme, _ := cmd.Flags().GetString("scheme")
		if scheme == "" {
			scheme = cfg.Style.Scheme
		}
		if !quake.ValidScheme(scheme) {
			return eris.Errorf("legend: unknown scheme %q", scheme)
		}
		formatLegend(os.Stdout, mapview.Legend(scheme))
		return nil
	},
}

func init() {
	legendCmd.Flags().String("scheme", "", "style scheme (depth, magnitude; default from config)")
	rootCmd.AddCommand(legendCmd)
}

// formatLegend writes one row per legend entry. Headings have no style.
func formatLegend(out io.Writer, entries []mapview.LegendEntry) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, e := range entries {
		if e.Style == nil {
			_, _ = fmt.Fprintf(w, "%s\n", e.Label)
			continue
		}
		cross := ""
		if e.Style.Cross {
			cross = "+"
		}
		_, _ = fmt.Fprintf(w, "  %s\t%s\t%s\t%.2f\t%s\n",
			e.Label, e.Style.Shape, e.Style.Color, e.Style.Radius, cross)
	}
	_ = w.Flush()
}
