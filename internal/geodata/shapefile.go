package geodata

import (
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"go.uber.org/zap"

	"github.com/sells-group/quakemap/internal/model"
)

// nameFields are tried in order when picking a country name from the DBF.
var nameFields = []string{"NAME", "ADMIN", "NAME_LONG"}

// LoadCountriesShapefile reads country boundaries from a polygon shapefile.
// Clockwise parts start a new polygon; counter-clockwise parts are holes of
// the polygon before them.
func LoadCountriesShapefile(shpPath string) ([]model.Country, error) {
	reader, err := shp.Open(shpPath)
	if err != nil {
		return nil, eris.Wrapf(err, "geodata: open shapefile %s", shpPath)
	}
	defer func() { _ = reader.Close() }()

	nameIdx := -1
	for _, name := range nameFields {
		if nameIdx = fieldIndex(reader, name); nameIdx >= 0 {
			break
		}
	}

	var (
		countries []model.Country
		skipped   int
	)
	for reader.Next() {
		n, shape := reader.Shape()
		poly, ok := shape.(*shp.Polygon)
		if !ok || poly == nil {
			skipped++
			continue
		}

		var name string
		if nameIdx >= 0 {
			name = strings.TrimSpace(strings.TrimRight(reader.Attribute(nameIdx), "\x00"))
		}
		if name == "" {
			skipped++
			continue
		}

		mp := polygonToMultiPolygon(poly)
		if mp == nil {
			zap.L().Debug("geodata: skipping empty shape", zap.Int("record", n), zap.String("name", name))
			skipped++
			continue
		}
		countries = append(countries, model.Country{Name: name, Geometry: mp})
	}

	if skipped > 0 {
		zap.L().Debug("geodata: skipped shapefile records",
			zap.String("path", shpPath),
			zap.Int("skipped", skipped),
		)
	}
	return countries, nil
}

// fieldIndex returns the index of a named DBF field, or -1 if not found.
func fieldIndex(reader *shp.Reader, name string) int {
	for i, f := range reader.Fields() {
		if strings.EqualFold(strings.TrimRight(f.String(), "\x00"), name) {
			return i
		}
	}
	return -1
}

// polygonToMultiPolygon groups shapefile rings into polygons by orientation.
func polygonToMultiPolygon(p *shp.Polygon) *geom.MultiPolygon {
	if p.NumParts == 0 || len(p.Points) == 0 {
		return nil
	}

	var polys [][][]geom.Coord
	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		end := int32(len(p.Points))
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		}
		if start < 0 || end > int32(len(p.Points)) || end-start < 4 {
			continue
		}

		ring := make([]geom.Coord, 0, end-start)
		flat := make([]float64, 0, 2*(end-start))
		for j := start; j < end; j++ {
			ring = append(ring, geom.Coord{p.Points[j].X, p.Points[j].Y})
			flat = append(flat, p.Points[j].X, p.Points[j].Y)
		}

		hole := xy.IsRingCounterClockwise(geom.XY, flat)
		if hole && len(polys) > 0 {
			last := len(polys) - 1
			polys[last] = append(polys[last], ring)
			continue
		}
		polys = append(polys, [][]geom.Coord{ring})
	}

	if len(polys) == 0 {
		return nil
	}
	mp, err := geom.NewMultiPolygon(geom.XY).SetCoords(polys)
	if err != nil {
		zap.L().Debug("geodata: malformed shapefile polygon", zap.Error(err))
		return nil
	}
	return mp
}
