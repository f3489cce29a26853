package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/quakemap/internal/model"
	"github.com/sells-group/quakemap/internal/quake"
	"github.com/sells-group/quakemap/internal/store"
)

var quakesCmd = &cobra.Command{
	Use:   "quakes",
	Short: "List earthquakes from the feed",
	Long:  "Lists quakes ordered by magnitude. By default the live feed is loaded and classified; --stored reads quakes persisted by sync instead.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		limit, _ := cmd.Flags().GetInt("limit")
		country, _ := cmd.Flags().GetString("country")
		ocean, _ := cmd.Flags().GetBool("ocean")
		recent, _ := cmd.Flags().GetBool("recent")
		minMag, _ := cmd.Flags().GetFloat64("min-mag")
		stored, _ := cmd.Flags().GetBool("stored")
		format, _ := cmd.Flags().GetString("format")

		var quakes []model.Quake
		if stored {
			st, err := openMigratedStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close() //nolint:errcheck

			filter := store.QuakeFilter{Country: country, OceanOnly: ocean, MinMag: minMag, Limit: limit}
			if recent {
				filter.Since = time.Now().Add(-24 * time.Hour)
			}
			quakes, err = st.ListQuakes(ctx, filter)
			if err != nil {
				return eris.Wrap(err, "quakes")
			}
		} else {
			env, err := initMapEnv(ctx)
			if err != nil {
				return err
			}
			filter := quake.Filter{Country: country, OceanOnly: ocean, RecentOnly: recent, MinMag: minMag}
			quakes = quake.SortByMagnitude(filter.Apply(env.Quakes), limit)
		}

		if len(quakes) == 0 {
			fmt.Fprintln(os.Stderr, "No quakes found.")
			return nil
		}
		return writeQuakes(os.Stdout, quakes, format)
	},
}

func init() {
	quakesCmd.Flags().Int("limit", 0, "max number of quakes (0 = all)")
	quakesCmd.Flags().String("country", "", "only quakes in this country")
	quakesCmd.Flags().Bool("ocean", false, "only ocean quakes")
	quakesCmd.Flags().Bool("recent", false, "only quakes from the past day")
	quakesCmd.Flags().Float64("min-mag", 0, "minimum magnitude")
	quakesCmd.Flags().Bool("stored", false, "read quakes from the store instead of the feed")
	quakesCmd.Flags().String("format", "table", "output format (table, json)")
	rootCmd.AddCommand(quakesCmd)
}

func writeQuakes(out io.Writer, quakes []model.Quake, format string) error {
	switch format {
	case "table", "":
		formatQuakesList(out, quakes)
		return nil
	case "json":
		return writeJSON(out, quakes)
	default:
		return eris.Errorf("unknown format %q", format)
	}
}

// formatQuakesList writes a tabular list of quakes to out.
func formatQuakesList(out io.Writer, quakes []model.Quake) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tMAG\tDEPTH_KM\tPLACE\tAGE\tTHREAT_KM\tTITLE")
	_, _ = fmt.Fprintln(w, "--\t---\t--------\t-----\t---\t---------\t-----")

	for _, q := range quakes {
		title := truncateText(q.Title, 40)
		_, _ = fmt.Fprintf(w, "%s\t%.1f\t%.1f\t%s\t%s\t%.0f\t%s\n",
			q.ID,
			q.Magnitude,
			q.DepthKM,
			placeOf(q),
			q.Age,
			quake.ThreatCircleKM(q.Magnitude),
			title,
		)
	}
	_ = w.Flush()
}

// placeOf returns the country of a land quake or "ocean".
func placeOf(q model.Quake) string {
	if q.OnLand {
		return q.Country
	}
	return "ocean"
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
