package quake

import (
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"github.com/twpayne/go-geom/xy/location"

	"github.com/sells-group/quakemap/internal/model"
)

type boundary struct {
	name   string
	geom   *geom.MultiPolygon
	bounds *geom.Bounds
}

// Classifier decides whether quakes fall inside any known country.
type Classifier struct {
	countries []boundary
}

// NewClassifier indexes the given countries. Countries without geometry are ignored.
func NewClassifier(countries []model.Country) *Classifier {
	c := &Classifier{countries: make([]boundary, 0, len(countries))}
	for _, ct := range countries {
		if ct.Geometry == nil || ct.Geometry.NumPolygons() == 0 {
			continue
		}
		c.countries = append(c.countries, boundary{
			name:   ct.Name,
			geom:   ct.Geometry,
			bounds: ct.Geometry.Bounds(),
		})
	}
	return c
}

// Len returns the number of indexed countries.
func (c *Classifier) Len() int {
	return len(c.countries)
}

// CountryOf returns the first country containing loc.
func (c *Classifier) CountryOf(loc model.Location) (string, bool) {
	pt := geom.Coord{loc.Lon, loc.Lat}
	for _, b := range c.countries {
		if !b.bounds.OverlapsPoint(geom.XY, pt) {
			continue
		}
		if containsCoord(b.geom, pt) {
			return b.name, true
		}
	}
	return "", false
}

// Classify returns q with Country and OnLand set.
func (c *Classifier) Classify(q model.Quake) model.Quake {
	name, ok := c.CountryOf(q.Location)
	q.Country = name
	q.OnLand = ok
	return q
}

// ClassifyAll classifies every quake, returning a new slice.
func (c *Classifier) ClassifyAll(quakes []model.Quake) []model.Quake {
	out := make([]model.Quake, len(quakes))
	for i, q := range quakes {
		out[i] = c.Classify(q)
	}
	return out
}

// Contains reports whether loc lies inside mp. Points on an exterior ring
// count as inside; points strictly inside a hole do not.
func Contains(mp *geom.MultiPolygon, loc model.Location) bool {
	if mp == nil {
		return false
	}
	return containsCoord(mp, geom.Coord{loc.Lon, loc.Lat})
}

func containsCoord(mp *geom.MultiPolygon, pt geom.Coord) bool {
	layout := mp.Layout()
	for i := 0; i < mp.NumPolygons(); i++ {
		p := mp.Polygon(i)
		if p.NumLinearRings() == 0 {
			continue
		}
		if xy.LocatePointInRing(layout, pt, p.LinearRing(0).FlatCoords()) == location.Exterior {
			continue
		}
		inHole := false
		for j := 1; j < p.NumLinearRings(); j++ {
			if xy.LocatePointInRing(layout, pt, p.LinearRing(j).FlatCoords()) == location.Interior {
				inHole = true
				break
			}
		}
		if !inHole {
			return true
		}
	}
	return false
}
