package export

import (
	"encoding/json"
	"io"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/quakemap/internal/mapview"
)

// MarkerCollection converts markers to a GeoJSON FeatureCollection of
// points carrying their style as properties.
func MarkerCollection(markers []mapview.Marker) *geojson.FeatureCollection {
	fc := &geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, len(markers))}
	for _, m := range markers {
		props := map[string]interface{}{
			"kind":   string(m.Kind),
			"title":  m.Title,
			"color":  m.Style.Color,
			"radius": m.Style.Radius,
			"shape":  string(m.Style.Shape),
			"hidden": m.Hidden,
		}
		if m.Style.Cross {
			props["cross"] = true
		}
		if m.Selected {
			props["selected"] = true
		}
		if m.Clicked {
			props["clicked"] = true
		}
		fc.Features = append(fc.Features, &geojson.Feature{
			ID:         m.ID,
			Geometry:   geom.NewPointFlat(geom.XY, []float64{m.Location.Lon, m.Location.Lat}),
			Properties: props,
		})
	}
	return fc
}

// WriteGeoJSON encodes markers as a GeoJSON FeatureCollection.
func WriteGeoJSON(w io.Writer, markers []mapview.Marker) error {
	data, err := json.Marshal(MarkerCollection(markers))
	if err != nil {
		return eris.Wrap(err, "export: marshal geojson")
	}
	_, err = w.Write(data)
	return eris.Wrap(err, "export: write geojson")
}
