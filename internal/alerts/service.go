package alerts

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/scamshield/scamshield/internal/idgen"
	"github.com/scamshield/scamshield/internal/metrics"
	"github.com/scamshield/scamshield/internal/pagination"
	"github.com/scamshield/scamshield/internal/risk"
	"github.com/scamshield/scamshield/internal/traces"
)

// Broadcaster pushes alert lifecycle events to realtime subscribers.
type Broadcaster interface {
	Broadcast(event string, payload any)
}

// Notifier informs external parties about alert activity. Calls are
// best-effort; failures never affect the alert itself.
type Notifier interface {
	AlertRaised(ctx context.Context, a *Alert)
	AlertDecided(ctx context.Context, a *Alert)
}

// Service owns the alert queue lifecycle on top of a Store.
type Service struct {
	store    Store
	events   Broadcaster
	notifier Notifier
	logger   *slog.Logger
}

// NewService creates an alert service.
func NewService(store Store, logger *slog.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// WithBroadcaster attaches a realtime event sink.
func (s *Service) WithBroadcaster(b Broadcaster) *Service {
	s.events = b
	return s
}

// WithNotifier attaches an external notification sink.
func (s *Service) WithNotifier(n Notifier) *Service {
	s.notifier = n
	return s
}

// Raise records a held transaction for human review. The payment and
// assessment are snapshotted into the alert; later changes to either
// are not reflected.
func (s *Service) Raise(ctx context.Context, p risk.Payment, a *risk.Assessment) (*Alert, error) {
	alert := &Alert{
		ID:            idgen.WithPrefix("alrt_"),
		TransactionID: p.TransactionID,
		TS:            p.TS,
		SrcAccount:    p.SrcAccount,
		DstAccount:    p.DstAccount,
		Amount:        p.Amount,
		Currency:      p.Currency,
		Channel:       p.Channel,
		Level:         a.Level,
		Score:         a.Score,
		Reasons:       append([]string(nil), a.Reasons...),
		Decision:      DecisionNone,
		CreatedAt:     time.Now().UTC(),
	}

	if err := s.store.Create(ctx, alert); err != nil {
		return nil, fmt.Errorf("create alert: %w", err)
	}

	metrics.AlertsRaisedTotal.Inc()
	s.logger.Info("alert raised",
		"alert_id", alert.ID,
		"transaction_id", alert.TransactionID,
		"level", alert.Level,
		"score", alert.Score)

	s.publish("alert.raised", alert)
	if s.notifier != nil {
		s.notifier.AlertRaised(ctx, alert)
	}
	return alert, nil
}

// Get returns a single alert.
func (s *Service) Get(ctx context.Context, id string) (*Alert, error) {
	return s.store.Get(ctx, id)
}

// List returns alerts newest first, narrowed by the filter. When a limit
// is set, the second return value is an opaque cursor for the next page,
// empty once the queue is exhausted.
func (s *Service) List(ctx context.Context, f ListFilter) ([]*Alert, string, error) {
	if f.Limit <= 0 {
		alerts, err := s.store.List(ctx, f)
		return alerts, "", err
	}

	// Fetch one extra row to learn whether another page exists.
	fetch := f
	fetch.Limit = f.Limit + 1
	alerts, err := s.store.List(ctx, fetch)
	if err != nil {
		return nil, "", err
	}
	alerts, next, _ := pagination.ComputePage(alerts, f.Limit, func(a *Alert) (time.Time, string) {
		return a.CreatedAt, a.ID
	})
	return alerts, next, nil
}

// Decide applies a reviewer decision to an alert. The first decision
// wins; a concurrent loser gets applied=false and the winning alert.
func (s *Service) Decide(ctx context.Context, id string, d Decision) (*Alert, bool, error) {
	if !d.Valid() {
		return nil, false, ErrInvalidDecision
	}

	ctx, span := traces.StartSpan(ctx, "alerts.decide",
		attribute.String("alert.id", id),
		attribute.String("alert.decision", string(d)))
	defer span.End()

	alert, applied, err := s.store.Decide(ctx, id, d)
	if err != nil {
		return nil, false, err
	}

	result := "superseded"
	if applied {
		result = "applied"
	}
	metrics.AlertDecisionsTotal.WithLabelValues(string(d), result).Inc()
	s.logger.Info("alert decision",
		"alert_id", id,
		"decision", d,
		"applied", applied,
		"winning_decision", alert.Decision)

	if applied {
		s.publish("alert.decided", alert)
		if s.notifier != nil {
			s.notifier.AlertDecided(ctx, alert)
		}
	}
	return alert, applied, nil
}

// Stats aggregates the current queue state.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	return s.store.Stats(ctx)
}

// ExportCSV streams the filtered alert queue as CSV.
func (s *Service) ExportCSV(ctx context.Context, w io.Writer, f ListFilter) error {
	alerts, err := s.store.List(ctx, f)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	header := []string{
		"id", "transaction_id", "ts", "src_account", "dst_account",
		"amount", "currency", "channel", "level", "score",
		"reasons", "decision", "created_at", "decided_at",
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, a := range alerts {
		decidedAt := ""
		if a.DecidedAt != nil {
			decidedAt = a.DecidedAt.UTC().Format(time.RFC3339)
		}
		row := []string{
			a.ID,
			a.TransactionID,
			a.TS.UTC().Format(time.RFC3339),
			a.SrcAccount,
			a.DstAccount,
			strconv.FormatFloat(a.Amount, 'f', 2, 64),
			a.Currency,
			a.Channel,
			string(a.Level),
			strconv.FormatFloat(a.Score, 'f', 2, 64),
			strings.Join(a.Reasons, "; "),
			string(a.Decision),
			a.CreatedAt.UTC().Format(time.RFC3339),
			decidedAt,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func (s *Service) publish(event string, a *Alert) {
	if s.events != nil {
		s.events.Broadcast(event, a)
	}
}
