package model

import "github.com/twpayne/go-geom"

// Country is a named boundary used to decide whether a quake is on land.
type Country struct {
	Name     string
	Geometry *geom.MultiPolygon
}
