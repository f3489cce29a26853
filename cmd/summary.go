package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/quakemap/internal/export"
	"github.com/sells-group/quakemap/internal/quake"
)

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Count quakes per country",
	RunE: func(cmd *cobra.Command, _ []string) error {
		env, err := initMapEnv(cmd.Context())
		if err != nil {
			return err
		}

		format, _ := cmd.Flags().GetString("format")
		top, _ := cmd.Flags().GetInt("top")

		switch format {
		case "table", "":
			formatSummary(os.Stdout, quake.CountByCountry(env.Quakes))
			return nil
		case "json":
			return writeJSON(os.Stdout, quake.CountByCountry(env.Quakes))
		case "yaml":
			r := export.NewReport(env.Source, env.Scheme, env.Quakes, top, time.Now())
			return export.WriteYAML(os.Stdout, r)
		default:
			return eris.Errorf("summary: unknown format %q", format)
		}
	},
}

func init() {
	summaryCmd.Flags().String("format", "table", "output format (table, json, yaml)")
	summaryCmd.Flags().Int("top", 10, "strongest quakes included in the yaml report")
	rootCmd.AddCommand(summaryCmd)
}

// formatSummary writes per-country counts followed by the ocean count.
func formatSummary(out io.Writer, s quake.Summary) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "COUNTRY\tQUAKES")
	_, _ = fmt.Fprintln(w, "-------\t------")
	for _, c := range s.Countries {
		_, _ = fmt.Fprintf(w, "%s\t%d\n", c.Country, c.Count)
	}
	_, _ = fmt.Fprintf(w, "OCEAN QUAKES\t%d\n", s.Ocean)
	_, _ = fmt.Fprintf(w, "TOTAL\t%d\n", s.Total)
	_ = w.Flush()
}
