// Package session holds per-transaction verification state.
//
// Each monetary transfer under verification gets one Session, keyed by its
// transaction ID and passed explicitly to every operation. The session owns
// the immutable Transaction plus the assessment and advisory artifacts
// accumulated while the payer walks the verification funnel. There is no
// process-wide current transaction; concurrent sessions are independent.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/scamshield/scamshield/internal/ai"
	"github.com/scamshield/scamshield/internal/risk"
)

// ErrNotFound means no session exists for the transaction ID.
var ErrNotFound = errors.New("session not found")

// Transaction is the transfer being verified. Immutable once scored.
type Transaction struct {
	ID           string    `json:"id"`
	TS           time.Time `json:"ts"`
	SrcAccount   string    `json:"srcAccount"`
	DstAccount   string    `json:"dstAccount"`
	Amount       float64   `json:"amount"`
	Currency     string    `json:"currency"`
	Channel      string    `json:"channel"` // web|mobile|branch
	FirstToPayee bool      `json:"firstToPayee"`
	Description  string    `json:"description,omitempty"`
	DeviceFP     string    `json:"deviceFp,omitempty"`
}

// Session is the verification context for one transaction.
type Session struct {
	Transaction    Transaction        `json:"transaction"`
	Assessment     *risk.Assessment   `json:"assessment,omitempty"`
	Explanation    *ai.Explanation    `json:"explanation,omitempty"`
	Classification *ai.Classification `json:"classification,omitempty"`
	QuizID         string             `json:"quizId,omitempty"`
	AlertID        string             `json:"alertId,omitempty"`
	Decided        bool               `json:"decided"`
	CreatedAt      time.Time          `json:"createdAt"`
	LastActive     time.Time          `json:"lastActive"`
}

// Touch updates the idle clock.
func (s *Session) Touch() {
	s.LastActive = time.Now()
}

// Store persists sessions keyed by transaction ID.
type Store interface {
	Create(ctx context.Context, s *Session) error
	Get(ctx context.Context, txID string) (*Session, error)
	Update(ctx context.Context, s *Session) error
	// PruneIdle removes undecided sessions idle since before the cutoff and
	// returns how many were removed. Decided transactions are kept for audit.
	PruneIdle(ctx context.Context, cutoff time.Time) (int, error)
}
