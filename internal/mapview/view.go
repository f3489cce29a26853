// Package mapview is the view-model a map client renders: styled markers,
// hover and click selection, popup titles and threat lines.
package mapview

import (
	"fmt"
	"math"
	"strconv"

	"github.com/sells-group/quakemap/internal/model"
	"github.com/sells-group/quakemap/internal/quake"
)

// Kind distinguishes city and quake markers.
type Kind string

const (
	KindCity  Kind = "city"
	KindQuake Kind = "quake"
)

// LineColor is the stroke colour of threat lines.
const LineColor = "#00ff00"

// Marker is one drawable point on the map.
type Marker struct {
	ID       string         `json:"id"`
	Kind     Kind           `json:"kind"`
	Title    string         `json:"title"`
	Location model.Location `json:"location"`
	Style    quake.Style    `json:"style"`
	Hidden   bool           `json:"hidden"`
	Selected bool           `json:"selected"`
	Clicked  bool           `json:"clicked"`

	quake *model.Quake
	city  *model.City
}

// Line is a threat line from an ocean quake to a city it threatens.
type Line struct {
	QuakeID string         `json:"quake_id"`
	CityID  string         `json:"city_id"`
	From    model.Location `json:"from"`
	To      model.Location `json:"to"`
	Color   string         `json:"color"`
}

// State is the selection state of a View.
type State struct {
	Selected string   `json:"selected,omitempty"`
	Clicked  string   `json:"clicked,omitempty"`
	Title    string   `json:"title,omitempty"` // popup of the hovered marker
	Visible  int      `json:"visible"`
	Hidden   int      `json:"hidden"`
	Lines    []Line   `json:"lines,omitempty"`
	Markers  []Marker `json:"markers,omitempty"`
}

// View holds every marker and the current hover/click selection. It is not
// safe for concurrent use.
type View struct {
	scheme   string
	markers  []*Marker
	byID     map[string]*Marker
	selected *Marker
	clicked  *Marker
}

// New builds a view over the given quakes and cities. City markers come
// first, then quakes, matching draw order.
func New(quakes []model.Quake, cities []model.City, scheme string) *View {
	if !quake.ValidScheme(scheme) {
		scheme = quake.SchemeDepth
	}
	v := &View{
		scheme:  scheme,
		markers: make([]*Marker, 0, len(quakes)+len(cities)),
		byID:    make(map[string]*Marker, len(quakes)+len(cities)),
	}
	for i := range cities {
		c := cities[i]
		v.add(&Marker{
			ID:       c.Key(),
			Kind:     KindCity,
			Title:    CityTitle(c),
			Location: c.Location,
			Style:    quake.CityStyle(),
			city:     &c,
		})
	}
	for i := range quakes {
		q := quakes[i]
		v.add(&Marker{
			ID:       q.ID,
			Kind:     KindQuake,
			Title:    q.Title,
			Location: q.Location,
			Style:    quake.StyleFor(q, scheme),
			quake:    &q,
		})
	}
	return v
}

func (v *View) add(m *Marker) {
	if _, dup := v.byID[m.ID]; dup {
		return
	}
	v.markers = append(v.markers, m)
	v.byID[m.ID] = m
}

// CityTitle is the popup text of a city marker.
func CityTitle(c model.City) string {
	return fmt.Sprintf("%s, %s\nPop: %s Million", c.Name, c.Country,
		strconv.FormatFloat(c.Population, 'f', -1, 64))
}

// Scheme returns the style scheme markers were built with.
func (v *View) Scheme() string { return v.scheme }

// Len returns the number of markers.
func (v *View) Len() int { return len(v.markers) }

// Markers returns a copy of every marker, hidden ones included.
func (v *View) Markers() []Marker {
	out := make([]Marker, len(v.markers))
	for i, m := range v.markers {
		out[i] = *m
	}
	return out
}

// Visible returns a copy of the markers that are not hidden.
func (v *View) Visible() []Marker {
	var out []Marker
	for _, m := range v.markers {
		if !m.Hidden {
			out = append(out, *m)
		}
	}
	return out
}

// Marker looks up a marker by id.
func (v *View) Marker(id string) (Marker, bool) {
	m, ok := v.byID[id]
	if !ok {
		return Marker{}, false
	}
	return *m, true
}

// Hover selects the marker with the given id and returns its popup title.
// An empty or unknown id clears the selection.
func (v *View) Hover(id string) (string, bool) {
	if v.selected != nil {
		v.selected.Selected = false
		v.selected = nil
	}
	m, ok := v.byID[id]
	if !ok {
		return "", false
	}
	m.Selected = true
	v.selected = m
	return m.Title, true
}

// Click applies a click on the marker with the given id. When a marker is
// already clicked any click resets the view. Clicking a city keeps the
// quakes threatening it visible; clicking a quake keeps the cities it
// threatens visible. Everything else is hidden. It reports whether the view
// changed.
func (v *View) Click(id string) bool {
	if v.clicked != nil {
		v.Reset()
		return true
	}

	m, ok := v.byID[id]
	if !ok {
		return false
	}
	m.Clicked = true
	v.clicked = m

	for _, other := range v.markers {
		if other == m {
			continue
		}
		other.Hidden = !related(m, other)
	}
	return true
}

// related reports whether other stays visible while clicked is clicked.
func related(clicked, other *Marker) bool {
	switch {
	case clicked.city != nil && other.quake != nil:
		return quake.Threatens(*other.quake, *clicked.city)
	case clicked.quake != nil && other.city != nil:
		return quake.Threatens(*clicked.quake, *other.city)
	default:
		return false
	}
}

// Reset unhides every marker and clears the click. Hover is kept.
func (v *View) Reset() {
	for _, m := range v.markers {
		m.Hidden = false
		m.Clicked = false
	}
	v.clicked = nil
}

// Clicked returns the clicked marker, if any.
func (v *View) Clicked() (Marker, bool) {
	if v.clicked == nil {
		return Marker{}, false
	}
	return *v.clicked, true
}

// Selected returns the hovered marker, if any.
func (v *View) Selected() (Marker, bool) {
	if v.selected == nil {
		return Marker{}, false
	}
	return *v.selected, true
}

// MarkerAt returns the nearest visible marker within toleranceKM of loc.
func (v *View) MarkerAt(loc model.Location, toleranceKM float64) (Marker, bool) {
	var (
		best     *Marker
		bestDist = math.Inf(1)
	)
	for _, m := range v.markers {
		if m.Hidden {
			continue
		}
		d := quake.DistanceKM(loc, m.Location)
		if d <= toleranceKM && d < bestDist {
			best, bestDist = m, d
		}
	}
	if best == nil {
		return Marker{}, false
	}
	return *best, true
}

// ThreatLines returns one line per city threatened by the clicked quake.
// Only ocean quakes draw lines.
func (v *View) ThreatLines() []Line {
	if v.clicked == nil || v.clicked.quake == nil || v.clicked.quake.OnLand {
		return nil
	}
	q := v.clicked.quake
	var lines []Line
	for _, m := range v.markers {
		if m.city == nil || !quake.Threatens(*q, *m.city) {
			continue
		}
		lines = append(lines, Line{
			QuakeID: q.ID,
			CityID:  m.ID,
			From:    q.Location,
			To:      m.Location,
			Color:   LineColor,
		})
	}
	return lines
}

// State summarizes the selection. withMarkers includes every marker.
func (v *View) State(withMarkers bool) State {
	st := State{Lines: v.ThreatLines()}
	if v.selected != nil {
		st.Selected = v.selected.ID
		st.Title = v.selected.Title
	}
	if v.clicked != nil {
		st.Clicked = v.clicked.ID
	}
	for _, m := range v.markers {
		if m.Hidden {
			st.Hidden++
		} else {
			st.Visible++
		}
	}
	if withMarkers {
		st.Markers = v.Markers()
	}
	return st
}
