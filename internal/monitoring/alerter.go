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

	"github.com/sells-group/permitcheck/internal/config"
	"github.com/sells-group/permitcheck/internal/model"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertStaleSource AlertType = "stale_source"
	AlertEmptyTable  AlertType = "empty_table"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates snapshots against the freshness window and sends
// alerts via webhook.
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

var watched = []struct {
	name  string
	field model.StateField
}{
	{"permits", model.StatePermits},
	{"contractors", model.StateContractors},
	{"property_values", model.StatePropertyValues},
}

// Evaluate returns alerts for sources older than StaleAfter and, once a
// source has refreshed, for tables it left empty. Sources in
// cfg.IgnoreSources are not checked.
func (a *Alerter) Evaluate(snap *Snapshot) []Alert {
	var alerts []Alert
	ignored := make(map[string]bool, len(a.cfg.IgnoreSources))
	for _, s := range a.cfg.IgnoreSources {
		ignored[s] = true
	}

	for _, w := range watched {
		if ignored[w.name] {
			continue
		}
		last := snap.State.Get(w.field)
		if last == nil {
			alerts = append(alerts, Alert{
				Type:      AlertStaleSource,
				Severity:  "medium",
				Message:   fmt.Sprintf("%s has never refreshed", w.name),
				Details:   map[string]any{"source": w.name},
				Timestamp: snap.CollectedAt,
			})
			continue
		}
		if age := snap.CollectedAt.Sub(*last); a.cfg.StaleAfter > 0 && age > a.cfg.StaleAfter {
			alerts = append(alerts, Alert{
				Type:     AlertStaleSource,
				Severity: "high",
				Message: fmt.Sprintf("%s last refreshed %s ago, window is %s",
					w.name, age.Round(time.Minute), a.cfg.StaleAfter),
				Details: map[string]any{
					"source":       w.name,
					"last_refresh": last.UTC().Format(time.RFC3339),
					"stale_after":  a.cfg.StaleAfter.String(),
				},
				Timestamp: snap.CollectedAt,
			})
		}
	}

	if snap.State.PermitsUpdatedAt != nil && !ignored["permits"] && snap.Counts.Permits == 0 {
		alerts = append(alerts, emptyAlert("approved_permit", snap.CollectedAt))
	}
	if snap.State.ContractorsUpdatedAt != nil && !ignored["contractors"] && snap.Counts.Contractors == 0 {
		alerts = append(alerts, emptyAlert("contractor", snap.CollectedAt))
	}
	return alerts
}

func emptyAlert(table string, at time.Time) Alert {
	return Alert{
		Type:      AlertEmptyTable,
		Severity:  "high",
		Message:   fmt.Sprintf("%s is empty after a successful refresh", table),
		Details:   map[string]any{"table": table},
		Timestamp: at,
	}
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
