package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/quakemap/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertSyncFailureRate AlertType = "sync_failure_rate"
	AlertSyncStale       AlertType = "sync_stale"
	AlertSinkErrors      AlertType = "sink_errors"
	AlertStrongQuake     AlertType = "strong_quake"
)

// minFinishedRuns is the number of finished runs needed before the failure
// rate is judged.
const minFinishedRuns = 3

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a MetricsSnapshot against configured thresholds
// and sends alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	// Check sync failure rate.
	finished := snap.SyncComplete + snap.SyncFailed
	if finished >= minFinishedRuns && snap.SyncFailRate > a.cfg.FailureRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertSyncFailureRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Sync failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d finished in last %dh)",
				snap.SyncFailRate*100, a.cfg.FailureRateThreshold*100,
				snap.SyncFailed, finished, snap.LookbackHours,
			),
			Details: map[string]any{
				"failure_rate": snap.SyncFailRate,
				"threshold":    a.cfg.FailureRateThreshold,
				"failed":       snap.SyncFailed,
				"finished":     finished,
			},
			Timestamp: now,
		})
	}

	// Check staleness.
	if a.cfg.StaleAfterSecs > 0 {
		staleAfter := time.Duration(a.cfg.StaleAfterSecs) * time.Second
		switch {
		case snap.LastSuccessAt == nil:
			alerts = append(alerts, Alert{
				Type:      AlertSyncStale,
				Severity:  "high",
				Message:   "No successful sync recorded",
				Timestamp: now,
			})
		case snap.CollectedAt.Sub(*snap.LastSuccessAt) > staleAfter:
			age := snap.CollectedAt.Sub(*snap.LastSuccessAt).Round(time.Second)
			alerts = append(alerts, Alert{
				Type:     AlertSyncStale,
				Severity: "high",
				Message:  fmt.Sprintf("Last successful sync was %s ago (limit %s)", age, staleAfter),
				Details: map[string]any{
					"last_success_at": *snap.LastSuccessAt,
					"stale_after_s":   a.cfg.StaleAfterSecs,
				},
				Timestamp: now,
			})
		}
	}

	// Check sink errors.
	if snap.SinkErrors > 0 {
		alerts = append(alerts, Alert{
			Type:     AlertSinkErrors,
			Severity: "medium",
			Message:  fmt.Sprintf("%d sink error(s) across %d sync run(s) in last %dh", snap.SinkErrors, snap.SyncTotal, snap.LookbackHours),
			Details: map[string]any{
				"sink_errors": snap.SinkErrors,
				"sync_total":  snap.SyncTotal,
			},
			Timestamp: now,
		})
	}

	// One alert per strong quake.
	for _, q := range snap.StrongQuakes {
		alerts = append(alerts, Alert{
			Type:     AlertStrongQuake,
			Severity: "high",
			Message:  fmt.Sprintf("M %.1f quake: %s", q.Magnitude, q.Title),
			Details: map[string]any{
				"quake_id":  q.ID,
				"magnitude": q.Magnitude,
				"lat":       q.Location.Lat,
				"lon":       q.Location.Lon,
				"on_land":   q.OnLand,
				"country":   q.Country,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

// sendWebhook posts a single alert to the webhook URL.
func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
