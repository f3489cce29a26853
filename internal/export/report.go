package export

import (
	"io"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/quakemap/internal/model"
	"github.com/sells-group/quakemap/internal/quake"
)

// Report is the YAML summary document.
type Report struct {
	GeneratedAt time.Time     `yaml:"generated_at"`
	Source      string        `yaml:"source,omitempty"`
	Scheme      string        `yaml:"scheme,omitempty"`
	Summary     quake.Summary `yaml:"summary"`
	Top         []ReportQuake `yaml:"top"`
}

// ReportQuake is one entry of the top-N list.
type ReportQuake struct {
	ID        string      `yaml:"id"`
	Title     string      `yaml:"title"`
	Magnitude float64     `yaml:"magnitude"`
	DepthKM   float64     `yaml:"depth_km"`
	Country   string      `yaml:"country,omitempty"`
	OnLand    bool        `yaml:"on_land"`
	ThreatKM  float64     `yaml:"threat_km"`
	Style     quake.Style `yaml:"style"`
}

// NewReport builds a report over quakes with the top n by magnitude.
func NewReport(source, scheme string, quakes []model.Quake, n int, now time.Time) Report {
	r := Report{
		GeneratedAt: now.UTC(),
		Source:      source,
		Scheme:      scheme,
		Summary:     quake.CountByCountry(quakes),
	}
	for _, q := range quake.SortByMagnitude(quakes, n) {
		r.Top = append(r.Top, ReportQuake{
			ID:        q.ID,
			Title:     q.Title,
			Magnitude: q.Magnitude,
			DepthKM:   q.DepthKM,
			Country:   q.Country,
			OnLand:    q.OnLand,
			ThreatKM:  quake.ThreatCircleKM(q.Magnitude),
			Style:     quake.StyleFor(q, scheme),
		})
	}
	return r
}

// WriteYAML encodes the report.
func WriteYAML(w io.Writer, r Report) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return eris.Wrap(err, "export: encode yaml")
	}
	return eris.Wrap(enc.Close(), "export: close yaml encoder")
}
