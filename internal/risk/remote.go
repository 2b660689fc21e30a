package risk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/scamshield/scamshield/internal/circuitbreaker"
	"github.com/scamshield/scamshield/internal/idgen"
	"github.com/scamshield/scamshield/internal/retry"
)

const breakerKey = "scorer"

// RemoteScorer calls an external scoring model over HTTP. Responses are
// normalized at the boundary: the wire format may carry either a "level"
// or a legacy "action" (ok/allow|warn|hold) field, and exactly one
// canonical Assessment comes out. Failures and timeouts surface as
// ErrScoringUnavailable so the workflow can fail closed.
type RemoteScorer struct {
	url     string
	client  *http.Client
	policy  Policy
	breaker *circuitbreaker.Breaker
	store   Store
}

// scoreResponse is the wire shape returned by the scoring model. The
// level/action duplication reflects an evolving external contract; it is
// resolved in normalize and never propagates further.
type scoreResponse struct {
	RiskScore      float64  `json:"risk_score"`
	Level          string   `json:"level,omitempty"`
	Action         string   `json:"action,omitempty"`
	Reasons        []string `json:"reasons"`
	CooloffMinutes int      `json:"cooloff_minutes"`
}

// NewRemoteScorer creates a scorer backed by the model at url. The
// http.Client timeout is the outer bound; per-call ctx deadlines still apply.
func NewRemoteScorer(url string, timeout time.Duration, policy Policy) *RemoteScorer {
	return &RemoteScorer{
		url:     url,
		client:  &http.Client{Timeout: timeout},
		policy:  policy,
		breaker: circuitbreaker.New(5, 30*time.Second),
	}
}

// WithStore attaches an audit store for produced assessments.
func (s *RemoteScorer) WithStore(st Store) *RemoteScorer {
	s.store = st
	return s
}

// Score calls the remote model, retrying transient failures.
func (s *RemoteScorer) Score(ctx context.Context, p *Payment) (*Assessment, error) {
	if !s.breaker.Allow(breakerKey) {
		return nil, fmt.Errorf("%w: circuit open", ErrScoringUnavailable)
	}

	var out *Assessment
	err := retry.Do(ctx, 2, 100*time.Millisecond, func() error {
		a, err := s.scoreOnce(ctx, p)
		if err != nil {
			return err
		}
		out = a
		return nil
	})
	if err != nil {
		s.breaker.Failure(breakerKey)
		return nil, fmt.Errorf("%w: %v", ErrScoringUnavailable, err)
	}
	s.breaker.Success(breakerKey)

	if s.store != nil {
		go func() {
			_ = s.store.Record(context.Background(), out)
		}()
	}
	return out, nil
}

func (s *RemoteScorer) scoreOnce(ctx context.Context, p *Payment) (*Assessment, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return nil, retry.Permanent(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return nil, retry.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return nil, retry.Permanent(fmt.Errorf("scorer returned %d", resp.StatusCode))
		}
		return nil, fmt.Errorf("scorer returned %d", resp.StatusCode)
	}

	var wire scoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, err
	}
	return s.normalize(p.TransactionID, &wire)
}

// normalize resolves the level/action union into one canonical Assessment.
func (s *RemoteScorer) normalize(txID string, wire *scoreResponse) (*Assessment, error) {
	if wire.RiskScore < 0 || wire.RiskScore > 100 {
		return nil, retry.Permanent(fmt.Errorf("score %v out of range", wire.RiskScore))
	}

	var level Level
	switch {
	case wire.Level != "":
		switch Level(wire.Level) {
		case LevelLow, LevelMedium, LevelHigh:
			level = Level(wire.Level)
		default:
			return nil, retry.Permanent(fmt.Errorf("unknown level %q", wire.Level))
		}
	case wire.Action != "":
		switch wire.Action {
		case "ok", "allow":
			level = LevelLow
		case "warn":
			level = LevelMedium
		case "hold":
			level = LevelHigh
		default:
			return nil, retry.Permanent(fmt.Errorf("unknown action %q", wire.Action))
		}
	default:
		// Neither field present: bucket the score locally.
		level = s.policy.Bucket(wire.RiskScore)
	}

	cooloff := wire.CooloffMinutes
	if cooloff == 0 {
		cooloff = s.policy.Cooloff(level)
	}

	return &Assessment{
		ID:             idgen.WithPrefix("risk_"),
		TransactionID:  txID,
		Score:          wire.RiskScore,
		Level:          level,
		Reasons:        wire.Reasons,
		CooloffMinutes: cooloff,
		EvaluatedAt:    time.Now(),
	}, nil
}
