// Package risk implements payment risk scoring and the level policy that
// drives the verification workflow.
//
// A payment is evaluated against explainable rules (amount thresholds,
// first-time payee, confirmation-of-payee mismatch, watchlist hits, text
// signals in the description, and per-account velocity) producing a score
// in 0..100. The score is bucketed into a coarse level (low/medium/high)
// by a configurable policy; the level decides which verification stages
// the payer must pass before the transfer is released.
package risk

import (
	"context"
	"errors"
	"time"
)

// Level is the coarse risk bucket derived from a numeric score.
type Level string

const (
	LevelLow    Level = "low"
	LevelMedium Level = "medium"
	LevelHigh   Level = "high"
	// LevelUnknown means scoring has not completed or permanently failed.
	// The workflow treats unknown exactly like high (fail closed).
	LevelUnknown Level = "unknown"
)

// Valid reports whether l is a recognized level.
func (l Level) Valid() bool {
	switch l {
	case LevelLow, LevelMedium, LevelHigh, LevelUnknown:
		return true
	}
	return false
}

// ErrScoringUnavailable indicates the scoring backend could not produce a
// result. Callers must fail closed to LevelUnknown.
var ErrScoringUnavailable = errors.New("risk scoring unavailable")

// Payment is the canonical boundary shape handed to a Scorer.
type Payment struct {
	TransactionID string    `json:"transactionId"`
	TS            time.Time `json:"ts"`
	SrcAccount    string    `json:"srcAccount"`
	DstAccount    string    `json:"dstAccount"`
	Amount        float64   `json:"amount"`
	Currency      string    `json:"currency"`
	Channel       string    `json:"channel"` // web|mobile|branch
	FirstToPayee  bool      `json:"firstToPayee"`
	Description   string    `json:"description,omitempty"`
}

// Assessment is the result of scoring a single payment. Produced exactly
// once per transaction; immutable afterwards.
type Assessment struct {
	ID             string    `json:"id"`
	TransactionID  string    `json:"transactionId"`
	Score          float64   `json:"score"` // 0..100
	Level          Level     `json:"level"`
	Reasons        []string  `json:"reasons"`
	CooloffMinutes int       `json:"cooloffMinutes"`
	EvaluatedAt    time.Time `json:"evaluatedAt"`
}

// Scorer evaluates a payment. Implementations must respect ctx deadlines;
// a returned error means the caller falls back to LevelUnknown.
type Scorer interface {
	Score(ctx context.Context, p *Payment) (*Assessment, error)
}

// Default policy values, from the rule engine this replaces: hold at 60,
// warn at 30, with 30/15 minute cooling-off windows.
const (
	DefaultHoldThreshold = 60.0
	DefaultWarnThreshold = 30.0
	DefaultHoldCooloff   = 30
	DefaultWarnCooloff   = 15
)

// Policy buckets a numeric score into a Level and supplies cooling-off
// defaults. Thresholds are configuration, not invariants.
type Policy struct {
	WarnThreshold      float64
	HoldThreshold      float64
	WarnCooloffMinutes int
	HoldCooloffMinutes int
}

// DefaultPolicy returns the standard bucketing policy.
func DefaultPolicy() Policy {
	return Policy{
		WarnThreshold:      DefaultWarnThreshold,
		HoldThreshold:      DefaultHoldThreshold,
		WarnCooloffMinutes: DefaultWarnCooloff,
		HoldCooloffMinutes: DefaultHoldCooloff,
	}
}

// Bucket maps a score to its level. The bucketing is monotonic and
// non-overlapping: score >= hold → high, >= warn → medium, else low.
func (p Policy) Bucket(score float64) Level {
	switch {
	case score >= p.HoldThreshold:
		return LevelHigh
	case score >= p.WarnThreshold:
		return LevelMedium
	default:
		return LevelLow
	}
}

// Cooloff returns the default cooling-off minutes for a level.
func (p Policy) Cooloff(level Level) int {
	switch level {
	case LevelHigh, LevelUnknown:
		return p.HoldCooloffMinutes
	case LevelMedium:
		return p.WarnCooloffMinutes
	default:
		return 0
	}
}

// AtLeast reports whether a level is at least as severe as min, with
// unknown treated as high.
func (l Level) AtLeast(min Level) bool {
	return severity(l) >= severity(min)
}

func severity(l Level) int {
	switch l {
	case LevelLow:
		return 0
	case LevelMedium:
		return 1
	case LevelHigh, LevelUnknown:
		return 2
	default:
		return 2
	}
}

// Store persists assessments for the audit trail.
type Store interface {
	Record(ctx context.Context, a *Assessment) error
	GetByTransaction(ctx context.Context, txID string) (*Assessment, error)
}
