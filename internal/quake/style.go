// Package quake holds the earthquake classification rules: marker styling,
// threat circles, land/ocean classification and per-country summaries.
package quake

import "github.com/sells-group/quakemap/internal/model"

// Magnitude thresholds.
const (
	ThresholdLight    = 4.0 // below this a quake is minor
	ThresholdModerate = 5.0 // below this a quake is light
)

// Depth thresholds (kilometers).
const (
	ThresholdIntermediate = 70.0
	ThresholdDeep         = 300.0
)

// Marker colors.
const (
	ColorYellow = "#ffff00"
	ColorBlue   = "#0000ff"
	ColorRed    = "#ff0000"
)

// Style schemes.
const (
	SchemeDepth     = "depth"
	SchemeMagnitude = "magnitude"
)

// MagnitudeClass buckets a quake by magnitude.
type MagnitudeClass string

const (
	MagnitudeMinor    MagnitudeClass = "minor"
	MagnitudeLight    MagnitudeClass = "light"
	MagnitudeModerate MagnitudeClass = "moderate"
)

// DepthClass buckets a quake by hypocenter depth.
type DepthClass string

const (
	DepthShallow      DepthClass = "shallow"
	DepthIntermediate DepthClass = "intermediate"
	DepthDeep         DepthClass = "deep"
)

// Shape is the marker glyph a client should draw.
type Shape string

const (
	ShapeCircle   Shape = "circle"
	ShapeSquare   Shape = "square"
	ShapeTriangle Shape = "triangle"
)

// cityRadius is the size of the city triangle.
const cityRadius = 5.0

// radiusPerMagnitude scales quake markers in the depth scheme.
const radiusPerMagnitude = 1.75

// Style describes how a marker is drawn.
type Style struct {
	Color  string  `json:"color" yaml:"color"`
	Radius float64 `json:"radius" yaml:"radius"`
	Shape  Shape   `json:"shape" yaml:"shape"`
	Cross  bool    `json:"cross,omitempty" yaml:"cross,omitempty"` // past hour/day overlay
}

// ClassifyMagnitude returns the magnitude bucket for m.
func ClassifyMagnitude(m float64) MagnitudeClass {
	switch {
	case m < ThresholdLight:
		return MagnitudeMinor
	case m < ThresholdModerate:
		return MagnitudeLight
	default:
		return MagnitudeModerate
	}
}

// ClassifyDepth returns the depth bucket for a depth in kilometers.
func ClassifyDepth(km float64) DepthClass {
	switch {
	case km < ThresholdIntermediate:
		return DepthShallow
	case km < ThresholdDeep:
		return DepthIntermediate
	default:
		return DepthDeep
	}
}

// ValidScheme reports whether s names a known style scheme.
func ValidScheme(s string) bool {
	return s == SchemeDepth || s == SchemeMagnitude
}

// StyleFor returns the marker style of q under the given scheme. Unknown
// schemes fall back to the depth scheme.
func StyleFor(q model.Quake, scheme string) Style {
	st := Style{Shape: ShapeSquare, Cross: q.Recent()}
	if q.OnLand {
		st.Shape = ShapeCircle
	}

	if scheme == SchemeMagnitude {
		switch ClassifyMagnitude(q.Magnitude) {
		case MagnitudeMinor:
			st.Color, st.Radius = ColorBlue, 5
		case MagnitudeLight:
			st.Color, st.Radius = ColorYellow, 10
		default:
			st.Color, st.Radius = ColorRed, 15
		}
		return st
	}

	st.Radius = radiusPerMagnitude * q.Magnitude
	switch ClassifyDepth(q.DepthKM) {
	case DepthShallow:
		st.Color = ColorYellow
	case DepthIntermediate:
		st.Color = ColorBlue
	default:
		st.Color = ColorRed
	}
	return st
}

// CityStyle returns the style shared by all city markers.
func CityStyle() Style {
	return Style{Color: ColorRed, Radius: cityRadius, Shape: ShapeTriangle}
}
