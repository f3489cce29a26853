package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/quakemap/internal/model"
	"github.com/sells-group/quakemap/internal/store"
)

// maxRunsScanned bounds how many recent sync runs one collection reads.
const maxRunsScanned = 1000

// MetricsSnapshot holds a point-in-time view of sync health.
type MetricsSnapshot struct {
	// Sync metrics (within lookback window).
	SyncTotal    int     `json:"sync_total"`
	SyncComplete int     `json:"sync_complete"`
	SyncFailed   int     `json:"sync_failed"`
	SyncRunning  int     `json:"sync_running"`
	SyncFailRate float64 `json:"sync_fail_rate"`
	SinkErrors   int     `json:"sink_errors"`
	NewQuakes    int     `json:"new_quakes"`

	// LastSuccessAt is the finish time of the latest complete run without
	// sink errors, looking past the lookback window. Nil when there is none.
	LastSuccessAt *time.Time `json:"last_success_at,omitempty"`

	// StrongQuakes are stored quakes in the window at or above the alert
	// magnitude, strongest first.
	StrongQuakes []model.Quake `json:"strong_quakes,omitempty"`

	// Metadata.
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// Source is the part of the store read by the collector.
type Source interface {
	ListSyncRuns(ctx context.Context, limit int) ([]model.SyncRun, error)
	ListQuakes(ctx context.Context, filter store.QuakeFilter) ([]model.Quake, error)
}

// Collector gathers metrics from the store.
type Collector struct {
	store          Source
	alertMagnitude float64
}

// NewCollector creates a new metrics collector. alertMagnitude <= 0 disables
// the strong quake lookup.
func NewCollector(st Source, alertMagnitude float64) *Collector {
	return &Collector{store: st, alertMagnitude: alertMagnitude}
}

// Collect gathers a snapshot of sync metrics over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := time.Now().UTC()
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}
	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)

	runs, err := c.store.ListSyncRuns(ctx, maxRunsScanned)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list sync runs")
	}

	for _, r := range runs {
		if succeeded(r) {
			if snap.LastSuccessAt == nil || r.FinishedAt.After(*snap.LastSuccessAt) {
				t := *r.FinishedAt
				snap.LastSuccessAt = &t
			}
		}
		if r.StartedAt.Before(cutoff) {
			continue
		}
		snap.SyncTotal++
		snap.SinkErrors += r.SinkErrors
		snap.NewQuakes += r.New
		switch r.Status {
		case model.SyncStatusComplete:
			snap.SyncComplete++
		case model.SyncStatusFailed:
			snap.SyncFailed++
		case model.SyncStatusRunning:
			snap.SyncRunning++
		}
	}

	if finished := snap.SyncComplete + snap.SyncFailed; finished > 0 {
		snap.SyncFailRate = float64(snap.SyncFailed) / float64(finished)
	}

	if c.alertMagnitude > 0 {
		strong, err := c.store.ListQuakes(ctx, store.QuakeFilter{MinMag: c.alertMagnitude, Since: cutoff})
		if err != nil {
			return nil, eris.Wrap(err, "monitoring: list strong quakes")
		}
		snap.StrongQuakes = strong
	}

	return snap, nil
}

// succeeded reports whether r completed with every sink written. A run that
// completed with sink errors does not count as a success for staleness.
func succeeded(r model.SyncRun) bool {
	return r.Status == model.SyncStatusComplete && r.FinishedAt != nil && r.SinkErrors == 0
}
