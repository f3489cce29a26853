package model

import (
	"time"
)

// Age buckets as published in the feed's "Age" category.
const (
	AgePastHour  = "Past Hour"
	AgePastDay   = "Past Day"
	AgePastWeek  = "Past Week"
	AgePastMonth = "Past Month"
)

// Location is a WGS84 coordinate in degrees.
type Location struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Valid reports whether the coordinate lies within the WGS84 range.
func (l Location) Valid() bool {
	return l.Lat >= -90 && l.Lat <= 90 && l.Lon >= -180 && l.Lon <= 180
}

// Quake is a single earthquake event taken from the feed.
type Quake struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Location  Location  `json:"location"`
	Magnitude float64   `json:"magnitude"`
	DepthKM   float64   `json:"depth_km"`
	Age       string    `json:"age,omitempty"`
	Time      time.Time `json:"time,omitempty"`
	Country   string    `json:"country,omitempty"` // empty for ocean quakes
	OnLand    bool      `json:"on_land"`
}

// Recent reports whether the quake happened within the past day.
func (q Quake) Recent() bool {
	return q.Age == AgePastHour || q.Age == AgePastDay
}

// City is a populated place that can be threatened by quakes.
type City struct {
	Name       string   `json:"name"`
	Country    string   `json:"country"`
	Population float64  `json:"population"` // millions
	Location   Location `json:"location"`
}

// Key returns the identifier used for city markers.
func (c City) Key() string {
	return "city:" + c.Name + "|" + c.Country
}
