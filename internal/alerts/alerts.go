// Package alerts owns the queue of transactions held for human review.
//
// An alert is raised when the verification workflow holds a transaction;
// a reviewer then applies exactly one release or cancel decision. The
// decision slot is write-once: concurrent decisions race through a
// compare-and-set, the loser observes the decision that won.
package alerts

import (
	"context"
	"errors"
	"time"

	"github.com/scamshield/scamshield/internal/pagination"
	"github.com/scamshield/scamshield/internal/risk"
)

var (
	// ErrNotFound means no alert exists with the given ID.
	ErrNotFound = errors.New("alert not found")
	// ErrInvalidDecision means the decision is not release or cancel.
	ErrInvalidDecision = errors.New("decision must be release or cancel")
)

// Decision is the reviewer's verdict on a held transaction.
type Decision string

const (
	DecisionNone    Decision = "none"
	DecisionRelease Decision = "release"
	DecisionCancel  Decision = "cancel"
)

// Valid reports whether d is an applicable reviewer decision.
func (d Decision) Valid() bool {
	return d == DecisionRelease || d == DecisionCancel
}

// ResultingAction maps a decision to the action taken on the transaction.
func (d Decision) ResultingAction() string {
	switch d {
	case DecisionRelease:
		return "released"
	case DecisionCancel:
		return "cancelled"
	default:
		return "held"
	}
}

// Alert is a held transaction awaiting review. Transaction and assessment
// fields are snapshots taken when the alert was raised; they are never
// refreshed afterwards.
type Alert struct {
	ID            string     `json:"id"`
	TransactionID string     `json:"transactionId"`
	TS            time.Time  `json:"ts"`
	SrcAccount    string     `json:"srcAccount"`
	DstAccount    string     `json:"dstAccount"`
	Amount        float64    `json:"amount"`
	Currency      string     `json:"currency"`
	Channel       string     `json:"channel"`
	Level         risk.Level `json:"level"`
	Score         float64    `json:"score"`
	Reasons       []string   `json:"reasons"`
	Decision      Decision   `json:"decision"`
	CreatedAt     time.Time  `json:"createdAt"`
	DecidedAt     *time.Time `json:"decidedAt,omitempty"`
}

// ListFilter narrows List results.
type ListFilter struct {
	Level       risk.Level         // only alerts at this level
	DstContains string             // destination account substring
	Since       time.Time          // only alerts created at or after
	Undecided   bool               // only alerts with no decision yet
	Limit       int                // 0 means no limit
	Cursor      *pagination.Cursor // resume after this (created_at, id) position
}

// Stats aggregates the alert queue.
type Stats struct {
	Total           int              `json:"total"`
	ByDecision      map[Decision]int `json:"byDecision"`
	AmountHeld      float64          `json:"amountHeld"`      // undecided alerts
	AmountPrevented float64          `json:"amountPrevented"` // cancelled alerts
}

// Store persists alerts. Decide must be atomic per alert: the first
// decision wins, later ones report applied=false with the winner.
type Store interface {
	Create(ctx context.Context, a *Alert) error
	Get(ctx context.Context, id string) (*Alert, error)
	// List returns alerts newest first.
	List(ctx context.Context, f ListFilter) ([]*Alert, error)
	// Decide compare-and-sets the decision slot. Returns the alert after
	// the operation and whether this call's decision was applied.
	Decide(ctx context.Context, id string, d Decision) (*Alert, bool, error)
	Stats(ctx context.Context) (*Stats, error)
}
