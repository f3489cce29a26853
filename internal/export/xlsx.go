// Package export writes quake listings and summaries as XLSX workbooks,
// YAML reports and styled GeoJSON.
package export

import (
	"io"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/quakemap/internal/model"
	"github.com/sells-group/quakemap/internal/quake"
)

// Sheet names in the exported workbook.
const (
	SheetQuakes    = "Quakes"
	SheetCountries = "Countries"
)

var quakeHeader = []string{
	"ID", "Title", "Magnitude", "Depth (km)", "Latitude", "Longitude",
	"Age", "Time (UTC)", "Country", "Location", "Threat Radius (km)",
}

// WriteXLSX writes a workbook with one row per quake and a per-country
// summary sheet.
func WriteXLSX(w io.Writer, quakes []model.Quake) error {
	f := xlsx.NewFile()

	qs, err := f.AddSheet(SheetQuakes)
	if err != nil {
		return eris.Wrap(err, "export: add quakes sheet")
	}
	addStringRow(qs, quakeHeader...)
	for _, q := range quakes {
		row := qs.AddRow()
		row.AddCell().SetString(q.ID)
		row.AddCell().SetString(q.Title)
		row.AddCell().SetFloat(q.Magnitude)
		row.AddCell().SetFloat(q.DepthKM)
		row.AddCell().SetFloat(q.Location.Lat)
		row.AddCell().SetFloat(q.Location.Lon)
		row.AddCell().SetString(q.Age)
		if q.Time.IsZero() {
			row.AddCell().SetString("")
		} else {
			row.AddCell().SetString(q.Time.UTC().Format("2006-01-02 15:04:05"))
		}
		row.AddCell().SetString(q.Country)
		row.AddCell().SetString(placeLabel(q))
		row.AddCell().SetFloat(quake.ThreatCircleKM(q.Magnitude))
	}

	cs, err := f.AddSheet(SheetCountries)
	if err != nil {
		return eris.Wrap(err, "export: add countries sheet")
	}
	summary := quake.CountByCountry(quakes)
	addStringRow(cs, "Country", "Quakes")
	for _, c := range summary.Countries {
		row := cs.AddRow()
		row.AddCell().SetString(c.Country)
		row.AddCell().SetInt(c.Count)
	}
	row := cs.AddRow()
	row.AddCell().SetString("OCEAN QUAKES")
	row.AddCell().SetInt(summary.Ocean)
	row = cs.AddRow()
	row.AddCell().SetString("TOTAL")
	row.AddCell().SetInt(summary.Total)

	return eris.Wrap(f.Write(w), "export: write xlsx")
}

func addStringRow(s *xlsx.Sheet, values ...string) {
	row := s.AddRow()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}

func placeLabel(q model.Quake) string {
	if q.OnLand {
		return "land"
	}
	return "ocean"
}
