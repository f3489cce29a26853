package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/quakemap/internal/model"
	"github.com/sells-group/quakemap/internal/quake"
)

var threatCmd = &cobra.Command{
	Use:   "threat [quake-id]",
	Short: "Show cities threatened by a quake, or quakes threatening a city",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		city, _ := cmd.Flags().GetString("city")
		country, _ := cmd.Flags().GetString("country")
		if (len(args) == 0) == (city == "") {
			return eris.New("threat: give either a quake id or --city")
		}

		env, err := initMapEnv(cmd.Context())
		if err != nil {
			return err
		}

		if city != "" {
			c, err := findCity(env.Cities, city, country)
			if err != nil {
				return err
			}
			quakes := quake.SortByMagnitude(quake.QuakesThreatening(c, env.Quakes), 0)
			if len(quakes) == 0 {
				fmt.Fprintf(os.Stderr, "No quakes threaten %s.\n", c.Name)
				return nil
			}
			formatQuakesList(os.Stdout, quakes)
			return nil
		}

		q, err := findQuake(env.Quakes, args[0])
		if err != nil {
			return err
		}
		formatThreatenedCities(os.Stdout, q, quake.CitiesThreatenedBy(q, env.Cities))
		return nil
	},
}

func init() {
	threatCmd.Flags().String("city", "", "list quakes threatening this city")
	threatCmd.Flags().String("country", "", "disambiguate --city by country")
	rootCmd.AddCommand(threatCmd)
}

func findQuake(quakes []model.Quake, id string) (model.Quake, error) {
	for _, q := range quakes {
		if q.ID == id {
			return q, nil
		}
	}
	return model.Quake{}, eris.Errorf("threat: quake %s not in feed", id)
}

// findCity matches by name and, when given, country. The first match wins.
func findCity(cities []model.City, name, country string) (model.City, error) {
	for _, c := range cities {
		if c.Name == name && (country == "" || c.Country == country) {
			return c, nil
		}
	}
	return model.City{}, eris.Errorf("threat: city %s not found", name)
}

// formatThreatenedCities writes the quake's threat circle and the cities in it.
func formatThreatenedCities(out io.Writer, q model.Quake, cities []model.City) {
	_, _ = fmt.Fprintf(out, "%s\nThreat circle: %.1f km\n\n", q.Title, quake.ThreatCircleKM(q.Magnitude))
	if len(cities) == 0 {
		_, _ = fmt.Fprintln(out, "No cities threatened.")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "CITY\tCOUNTRY\tPOP_M\tDISTANCE_KM")
	_, _ = fmt.Fprintln(w, "----\t-------\t-----\t-----------")
	for _, c := range cities {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%.2f\t%.1f\n",
			c.Name, c.Country, c.Population, quake.DistanceKM(q.Location, c.Location))
	}
	_ = w.Flush()
}
