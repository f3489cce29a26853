package quake

import (
	"sort"

	"github.com/sells-group/quakemap/internal/model"
)

// CountryCount is the number of quakes attributed to one country.
type CountryCount struct {
	Country string `json:"country" yaml:"country"`
	Count   int    `json:"count" yaml:"count"`
}

// Summary is the per-country breakdown of a set of quakes.
type Summary struct {
	Total     int            `json:"total" yaml:"total"`
	Countries []CountryCount `json:"countries" yaml:"countries"`
	Ocean     int            `json:"ocean" yaml:"ocean"`
}

// CountByCountry tallies land quakes per country and counts ocean quakes.
// Countries are ordered by count descending, then name ascending.
func CountByCountry(quakes []model.Quake) Summary {
	counts := make(map[string]int)
	s := Summary{Total: len(quakes)}
	for _, q := range quakes {
		if !q.OnLand {
			s.Ocean++
			continue
		}
		counts[q.Country]++
	}

	s.Countries = make([]CountryCount, 0, len(counts))
	for name, n := range counts {
		s.Countries = append(s.Countries, CountryCount{Country: name, Count: n})
	}
	sort.Slice(s.Countries, func(i, j int) bool {
		if s.Countries[i].Count != s.Countries[j].Count {
			return s.Countries[i].Count > s.Countries[j].Count
		}
		return s.Countries[i].Country < s.Countries[j].Country
	})
	return s
}

// SortByMagnitude returns a copy of quakes ordered by magnitude descending,
// ties broken by most recent first. n <= 0 or n > len(quakes) returns all.
func SortByMagnitude(quakes []model.Quake, n int) []model.Quake {
	out := make([]model.Quake, len(quakes))
	copy(out, quakes)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Magnitude != out[j].Magnitude {
			return out[i].Magnitude > out[j].Magnitude
		}
		return out[i].Time.After(out[j].Time)
	})
	if n > 0 && n < len(out) {
		out = out[:n]
	}
	return out
}

// Filter selects quakes for listing.
type Filter struct {
	Country    string
	OceanOnly  bool
	RecentOnly bool
	MinMag     float64
}

// Apply returns the quakes matching f, in input order.
func (f Filter) Apply(quakes []model.Quake) []model.Quake {
	var out []model.Quake
	for _, q := range quakes {
		if f.Country != "" && q.Country != f.Country {
			continue
		}
		if f.OceanOnly && q.OnLand {
			continue
		}
		if f.RecentOnly && !q.Recent() {
			continue
		}
		if q.Magnitude < f.MinMag {
			continue
		}
		out = append(out, q)
	}
	return out
}

// FilterRecent returns the quakes from the past hour or past day.
func FilterRecent(quakes []model.Quake) []model.Quake {
	return Filter{RecentOnly: true}.Apply(quakes)
}
