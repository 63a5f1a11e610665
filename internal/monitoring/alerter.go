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

	"github.com/dailyworker/newsroom/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertManualBacklog  AlertType = "manual_backlog"
	AlertOverdueReviews AlertType = "overdue_reviews"
	AlertEmailQuota     AlertType = "email_quota"
)

// Default thresholds used when the config leaves them unset.
const (
	DefaultManualBacklogMax  = 10
	DefaultOverdueReviewsMax = 5
	DefaultQuotaWarnFraction = 0.8
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a Snapshot against thresholds and posts alerts to a
// webhook.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter creates an Alerter, filling unset thresholds with defaults.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	if cfg.ManualBacklogMax <= 0 {
		cfg.ManualBacklogMax = DefaultManualBacklogMax
	}
	if cfg.OverdueReviewsMax <= 0 {
		cfg.OverdueReviewsMax = DefaultOverdueReviewsMax
	}
	if cfg.QuotaWarnFraction <= 0 {
		cfg.QuotaWarnFraction = DefaultQuotaWarnFraction
	}
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(snap *Snapshot) []Alert {
	var alerts []Alert
	now := snap.CollectedAt

	if backlog := snap.ManualBacklog(); backlog > a.cfg.ManualBacklogMax {
		alerts = append(alerts, Alert{
			Type:     AlertManualBacklog,
			Severity: "medium",
			Message: fmt.Sprintf("%d item(s) awaiting manual intervention (threshold %d)",
				backlog, a.cfg.ManualBacklogMax),
			Details: map[string]any{
				"articles":  snap.ManualArticles,
				"topics":    snap.ManualTopics,
				"threshold": a.cfg.ManualBacklogMax,
			},
			Timestamp: now,
		})
	}

	if snap.OverdueReviews > a.cfg.OverdueReviewsMax {
		alerts = append(alerts, Alert{
			Type:     AlertOverdueReviews,
			Severity: "high",
			Message: fmt.Sprintf("%d review(s) past deadline (threshold %d)",
				snap.OverdueReviews, a.cfg.OverdueReviewsMax),
			Details: map[string]any{
				"overdue":   snap.OverdueReviews,
				"threshold": a.cfg.OverdueReviewsMax,
			},
			Timestamp: now,
		})
	}

	if usage := snap.QuotaUsage(); snap.EmailsQuota > 0 && usage >= a.cfg.QuotaWarnFraction {
		severity := "medium"
		if snap.EmailsSent >= snap.EmailsQuota {
			severity = "high"
		}
		alerts = append(alerts, Alert{
			Type:     AlertEmailQuota,
			Severity: severity,
			Message: fmt.Sprintf("email quota %.0f%% used (%d of %d today)",
				usage*100, snap.EmailsSent, snap.EmailsQuota),
			Details: map[string]any{
				"sent":  snap.EmailsSent,
				"quota": snap.EmailsQuota,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL and returns how
// many were accepted.
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
