package mapview

import "github.com/sells-group/quakemap/internal/quake"

// LegendEntry is one row of the map key. Style is nil for text-only rows.
type LegendEntry struct {
	Label string       `json:"label" yaml:"label"`
	Style *quake.Style `json:"style,omitempty" yaml:"style,omitempty"`
}

const keyTitle = "Earthquake Key"

// Legend returns the map key rows for a style scheme, top to bottom.
func Legend(scheme string) []LegendEntry {
	entry := func(label string, st quake.Style) LegendEntry {
		return LegendEntry{Label: label, Style: &st}
	}
	neutral := "#ffffff"

	city := quake.CityStyle()
	rows := []LegendEntry{
		{Label: keyTitle},
		entry("City Marker", city),
		entry("Land Quake", quake.Style{Color: neutral, Radius: 10, Shape: quake.ShapeCircle}),
		entry("Ocean Quake", quake.Style{Color: neutral, Radius: 10, Shape: quake.ShapeSquare}),
	}

	if scheme == quake.SchemeMagnitude {
		rows = append(rows,
			LegendEntry{Label: "Size and Color ~ Magnitude"},
			entry("5.0+ Magnitude", quake.Style{Color: quake.ColorRed, Radius: 15, Shape: quake.ShapeCircle}),
			entry("4.0+ Magnitude", quake.Style{Color: quake.ColorYellow, Radius: 10, Shape: quake.ShapeCircle}),
			entry("Below 4.0", quake.Style{Color: quake.ColorBlue, Radius: 5, Shape: quake.ShapeCircle}),
		)
	} else {
		rows = append(rows,
			LegendEntry{Label: "Size ~ Magnitude"},
			entry("Shallow", quake.Style{Color: quake.ColorYellow, Radius: 10, Shape: quake.ShapeCircle}),
			entry("Intermediate", quake.Style{Color: quake.ColorBlue, Radius: 10, Shape: quake.ShapeCircle}),
			entry("Deep", quake.Style{Color: quake.ColorRed, Radius: 10, Shape: quake.ShapeCircle}),
		)
	}

	return append(rows, entry("Past Day", quake.Style{Color: neutral, Radius: 10, Shape: quake.ShapeCircle, Cross: true}))
}
