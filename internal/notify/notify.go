// Package notify delivers fire-and-acknowledge notifications to the
// external notification service: cooling-off reminders, trusted-contact
// pings, and alert lifecycle events. Delivery failures are logged and
// counted but never surfaced to the caller; the gating path only records
// that scheduling was attempted.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/scamshield/scamshield/internal/alerts"
	"github.com/scamshield/scamshield/internal/idgen"
	"github.com/scamshield/scamshield/internal/risk"
)

var (
	notifyEmitTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scamshield",
		Subsystem: "notify",
		Name:      "emit_total",
		Help:      "Total notification emit attempts by event type.",
	}, []string{"event_type"})

	notifyEmitErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scamshield",
		Subsystem: "notify",
		Name:      "emit_errors_total",
		Help:      "Total notification emit failures by event type.",
	}, []string{"event_type"})
)

func init() {
	prometheus.MustRegister(notifyEmitTotal, notifyEmitErrors)
}

// Emitter posts notification events to the configured service. A nil
// Emitter or empty base URL is a no-op, so wiring is optional.
type Emitter struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewEmitter creates a notification emitter. baseURL may be empty to
// disable outbound notifications.
func NewEmitter(baseURL string, logger *slog.Logger) *Emitter {
	return &Emitter{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
		logger:  logger,
	}
}

func (e *Emitter) emit(ctx context.Context, eventType string, data map[string]any) {
	if e == nil || e.baseURL == "" {
		return
	}
	notifyEmitTotal.WithLabelValues(eventType).Inc()

	body, err := json.Marshal(map[string]any{
		"id":   idgen.WithPrefix("evt_"),
		"type": eventType,
		"ts":   time.Now().UTC(),
		"data": data,
	})
	if err != nil {
		notifyEmitErrors.WithLabelValues(eventType).Inc()
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/events", bytes.NewReader(body))
	if err != nil {
		notifyEmitErrors.WithLabelValues(eventType).Inc()
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		notifyEmitErrors.WithLabelValues(eventType).Inc()
		e.logger.Warn("notification emit failed", "event", eventType, "error", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		notifyEmitErrors.WithLabelValues(eventType).Inc()
		e.logger.Warn("notification emit rejected",
			"event", eventType, "status", resp.StatusCode)
	}
}

// ScheduleCoolingOff asks the service to remind the payer when the
// cooling-off window for a held approval expires.
func (e *Emitter) ScheduleCoolingOff(ctx context.Context, txID string, until time.Time) {
	e.emit(ctx, "cooloff.scheduled", map[string]any{
		"transactionId": txID,
		"until":         until.UTC(),
	})
}

// NotifyTrustedContact pings the account's trusted contact about a
// high-risk transfer in progress.
func (e *Emitter) NotifyTrustedContact(ctx context.Context, txID string, level risk.Level) {
	e.emit(ctx, "trusted_contact.notified", map[string]any{
		"transactionId": txID,
		"level":         string(level),
	})
}

// AlertRaised announces a transaction newly held for review.
func (e *Emitter) AlertRaised(ctx context.Context, a *alerts.Alert) {
	e.emit(ctx, "alert.raised", map[string]any{
		"alertId":       a.ID,
		"transactionId": a.TransactionID,
		"level":         string(a.Level),
		"amount":        fmt.Sprintf("%.2f %s", a.Amount, a.Currency),
	})
}

// AlertDecided announces a reviewer decision on an alert.
func (e *Emitter) AlertDecided(ctx context.Context, a *alerts.Alert) {
	e.emit(ctx, "alert.decided", map[string]any{
		"alertId":         a.ID,
		"transactionId":   a.TransactionID,
		"decision":        string(a.Decision),
		"resultingAction": a.Decision.ResultingAction(),
	})
}
