// Package geodata loads city and country boundary data from GeoJSON and
// shapefiles.
package geodata

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"

	"github.com/sells-group/quakemap/internal/model"
)

// LoadCities decodes a GeoJSON FeatureCollection of city points.
func LoadCities(r io.Reader) ([]model.City, error) {
	doc, err := io.ReadAll(r)
	if err != nil {
		return nil, eris.Wrap(err, "geodata: read cities")
	}
	if err := ValidateCities(doc); err != nil {
		return nil, err
	}

	var fc geojson.FeatureCollection
	if err := json.Unmarshal(doc, &fc); err != nil {
		return nil, eris.Wrap(err, "geodata: decode cities")
	}

	log := zap.L().With(zap.String("component", "geodata"))
	cities := make([]model.City, 0, len(fc.Features))
	for i, f := range fc.Features {
		pt, ok := f.Geometry.(*geom.Point)
		if !ok || pt.Empty() {
			log.Debug("geodata: skipping city without point", zap.Int("feature", i))
			continue
		}
		c := model.City{
			Name:     stringProp(f.Properties, "name"),
			Country:  stringProp(f.Properties, "country"),
			Location: model.Location{Lat: pt.Y(), Lon: pt.X()},
		}
		if !c.Location.Valid() {
			log.Warn("geodata: city out of range", zap.String("name", c.Name))
			continue
		}
		pop, err := numberProp(f.Properties, "population")
		if err != nil {
			log.Warn("geodata: bad population", zap.String("name", c.Name), zap.Error(err))
		}
		c.Population = pop
		cities = append(cities, c)
	}
	return cities, nil
}

// LoadCountries decodes a GeoJSON FeatureCollection of Polygon or
// MultiPolygon country boundaries.
func LoadCountries(r io.Reader) ([]model.Country, error) {
	doc, err := io.ReadAll(r)
	if err != nil {
		return nil, eris.Wrap(err, "geodata: read countries")
	}
	if err := ValidateCountries(doc); err != nil {
		return nil, err
	}

	var fc geojson.FeatureCollection
	if err := json.Unmarshal(doc, &fc); err != nil {
		return nil, eris.Wrap(err, "geodata: decode countries")
	}

	countries := make([]model.Country, 0, len(fc.Features))
	for i, f := range fc.Features {
		name := stringProp(f.Properties, "name")
		if name == "" {
			name = f.ID
		}
		if name == "" {
			name = fmt.Sprintf("country-%d", i)
		}

		mp, err := toMultiPolygon(f.Geometry)
		if err != nil {
			zap.L().Warn("geodata: skipping country", zap.String("name", name), zap.Error(err))
			continue
		}
		countries = append(countries, model.Country{Name: name, Geometry: mp})
	}
	return countries, nil
}

// toMultiPolygon normalizes a polygonal geometry to a 2D MultiPolygon.
func toMultiPolygon(g geom.T) (*geom.MultiPolygon, error) {
	var polys [][][]geom.Coord
	switch t := g.(type) {
	case *geom.Polygon:
		polys = [][][]geom.Coord{t.Coords()}
	case *geom.MultiPolygon:
		polys = t.Coords()
	default:
		return nil, eris.Errorf("geodata: unsupported geometry %T", g)
	}

	for _, poly := range polys {
		for _, ring := range poly {
			for k, c := range ring {
				ring[k] = geom.Coord{c.X(), c.Y()}
			}
		}
	}

	mp, err := geom.NewMultiPolygon(geom.XY).SetCoords(polys)
	if err != nil {
		return nil, eris.Wrap(err, "geodata: build multipolygon")
	}
	if mp.NumPolygons() == 0 {
		return nil, eris.New("geodata: empty geometry")
	}
	return mp, nil
}

func stringProp(props map[string]interface{}, key string) string {
	switch v := props[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func numberProp(props map[string]interface{}, key string) (float64, error) {
	switch v := props[key].(type) {
	case float64:
		return v, nil
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return 0, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, eris.Wrapf(err, "geodata: parse %s", key)
		}
		return f, nil
	case nil:
		return 0, nil
	default:
		return 0, eris.Errorf("geodata: %s has type %T", key, v)
	}
}
