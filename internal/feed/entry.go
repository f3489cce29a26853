// Package feed turns the earthquake Atom feed into quakes.
package feed

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/quakemap/internal/model"
)

// Category labels used by the feed.
const (
	labelAge       = "Age"
	labelMagnitude = "Magnitude"
)

var (
	titleMagnitude    = regexp.MustCompile(`^\s*M\s*(-?\d+(?:\.\d+)?)`)
	categoryMagnitude = regexp.MustCompile(`(-?\d+(?:\.\d+)?)`)
)

// Category is an Atom <category label="..." term="..."/>.
type Category struct {
	Label string `xml:"label,attr"`
	Term  string `xml:"term,attr"`
}

// Entry is one Atom <entry> of the feed. GeoRSS elements match by local name.
type Entry struct {
	ID         string     `xml:"id"`
	Title      string     `xml:"title"`
	Updated    string     `xml:"updated"`
	Point      string     `xml:"point"`
	Elev       string     `xml:"elev"`
	Categories []Category `xml:"category"`
}

func (e Entry) category(label string) string {
	for _, c := range e.Categories {
		if strings.EqualFold(c.Label, label) {
			return strings.TrimSpace(c.Term)
		}
	}
	return ""
}

// Magnitude reads the magnitude from the title ("M 4.6 - ..."), falling back
// to the Magnitude category.
func (e Entry) Magnitude() (float64, error) {
	if m := titleMagnitude.FindStringSubmatch(e.Title); m != nil {
		return strconv.ParseFloat(m[1], 64)
	}
	if term := e.category(labelMagnitude); term != "" {
		if m := categoryMagnitude.FindString(term); m != "" {
			return strconv.ParseFloat(m, 64)
		}
	}
	return 0, eris.Errorf("feed: no magnitude in entry %q", e.ID)
}

// Location parses the georss point ("lat lon").
func (e Entry) Location() (model.Location, error) {
	fields := strings.Fields(e.Point)
	if len(fields) != 2 {
		return model.Location{}, eris.Errorf("feed: invalid point %q in entry %q", e.Point, e.ID)
	}
	lat, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return model.Location{}, eris.Wrapf(err, "feed: parse latitude in entry %q", e.ID)
	}
	lon, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return model.Location{}, eris.Wrapf(err, "feed: parse longitude in entry %q", e.ID)
	}
	loc := model.Location{Lat: lat, Lon: lon}
	if !loc.Valid() {
		return model.Location{}, eris.Errorf("feed: point out of range %q in entry %q", e.Point, e.ID)
	}
	return loc, nil
}

// DepthKM converts the georss elevation (meters, negative below sea level)
// to a depth in kilometers. A missing elevation is depth 0.
func (e Entry) DepthKM() (float64, error) {
	s := strings.TrimSpace(e.Elev)
	if s == "" {
		return 0, nil
	}
	elev, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, eris.Wrapf(err, "feed: parse elevation in entry %q", e.ID)
	}
	return -elev / 1000, nil
}

// Quake converts the entry.
func (e Entry) Quake() (model.Quake, error) {
	loc, err := e.Location()
	if err != nil {
		return model.Quake{}, err
	}
	mag, err := e.Magnitude()
	if err != nil {
		return model.Quake{}, err
	}
	depth, err := e.DepthKM()
	if err != nil {
		return model.Quake{}, err
	}

	q := model.Quake{
		ID:        strings.TrimSpace(e.ID),
		Title:     strings.TrimSpace(e.Title),
		Location:  loc,
		Magnitude: mag,
		DepthKM:   depth,
		Age:       e.category(labelAge),
	}
	if ts := strings.TrimSpace(e.Updated); ts != "" {
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			q.Time = t.UTC()
		}
	}
	return q, nil
}
