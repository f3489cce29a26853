package quake

import (
	"math"

	"github.com/golang/geo/s2"

	"github.com/sells-group/quakemap/internal/model"
)

// EarthRadiusKM is the mean earth radius used for great-circle distances.
const EarthRadiusKM = 6371.0

const kmPerMile = 1.6

// ThreatCircleKM returns the radius around an epicenter within which cities
// are considered threatened: 20 * 1.8^(2m-5) miles.
func ThreatCircleKM(magnitude float64) float64 {
	miles := 20.0 * math.Pow(1.8, 2*magnitude-5)
	return miles * kmPerMile
}

// DistanceKM returns the great-circle distance between two locations.
func DistanceKM(a, b model.Location) float64 {
	pa := s2.LatLngFromDegrees(a.Lat, a.Lon)
	pb := s2.LatLngFromDegrees(b.Lat, b.Lon)
	return pa.Distance(pb).Radians() * EarthRadiusKM
}

// Threatens reports whether the city lies within the quake's threat circle.
func Threatens(q model.Quake, c model.City) bool {
	return DistanceKM(q.Location, c.Location) <= ThreatCircleKM(q.Magnitude)
}

// CitiesThreatenedBy returns the cities inside q's threat circle, in input order.
func CitiesThreatenedBy(q model.Quake, cities []model.City) []model.City {
	var out []model.City
	for _, c := range cities {
		if Threatens(q, c) {
			out = append(out, c)
		}
	}
	return out
}

// QuakesThreatening returns the quakes whose threat circle contains c.
func QuakesThreatening(c model.City, quakes []model.Quake) []model.Quake {
	var out []model.Quake
	for _, q := range quakes {
		if Threatens(q, c) {
			out = append(out, q)
		}
	}
	return out
}
