// Package workflow implements the verification state machine that gates a
// payment behind risk-proportional step-up checks.
//
// Every transaction walks Unscored → Scored(level) → zero or more step-up
// stages → FinalPending → Decided. Which stages are mandatory depends on the
// risk level: low goes straight to final confirmation, medium adds the
// educational checkpoint, high (and unknown, which fails closed to high)
// adds enhanced verification with a cooling-off delay before approval is
// possible. All transitions for one transaction are serialized; stage entry
// is idempotent and out-of-order transitions are rejected, never ignored.
package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/scamshield/scamshield/internal/risk"
)

var (
	// ErrNotFound means no workflow exists for the transaction ID.
	ErrNotFound = errors.New("workflow not found")
	// ErrInvalidTransition means the requested stage is out of order.
	ErrInvalidTransition = errors.New("invalid workflow transition")
	// ErrNotYetEligible means a time-gated transition was attempted before
	// its cooling-off delay elapsed.
	ErrNotYetEligible = errors.New("not yet eligible: cooling-off in progress")
	// ErrQuizPending means the educational stage cannot complete while an
	// issued quiz is still unscored.
	ErrQuizPending = errors.New("quiz must be scored before advancing")
)

// Stage is a position in the verification funnel.
type Stage string

const (
	StageUnscored           Stage = "unscored"
	StageEducationalPending Stage = "educational_pending"
	StageEducationalDone    Stage = "educational_done"
	StageEnhancedPending    Stage = "enhanced_pending"
	StageEnhancedDone       Stage = "enhanced_done"
	StageFinalPending       Stage = "final_pending"
	StageDecided            Stage = "decided"
)

// Outcome is the terminal verdict, set only when Stage is StageDecided.
type Outcome string

const (
	OutcomeNone    Outcome = ""
	OutcomeApprove Outcome = "approve"
	OutcomeDeny    Outcome = "deny"
	OutcomeHeld    Outcome = "held"
)

// State is the authoritative per-transaction workflow record. It references
// the quiz session and alert it spawned by ID only; those objects are owned
// by their own services.
type State struct {
	TransactionID string     `json:"transactionId"`
	Stage         Stage      `json:"stage"`
	Outcome       Outcome    `json:"outcome,omitempty"`
	Level         risk.Level `json:"level,omitempty"`
	Score         float64    `json:"score"`
	QuizID        string     `json:"quizId,omitempty"`
	QuizPassed    bool       `json:"quizPassed"`
	AlertID       string     `json:"alertId,omitempty"`
	CooloffUntil  *time.Time `json:"cooloffUntil,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// Terminal reports whether the workflow has reached its final state.
func (s *State) Terminal() bool {
	return s.Stage == StageDecided
}

// past reports whether the workflow has moved beyond the given stage.
// Stage order is total for the purposes of idempotent re-entry: a skipped
// stage (low risk never sees educational_pending) still counts as passed.
func (s *State) past(stage Stage) bool {
	return stageOrder(s.Stage) > stageOrder(stage)
}

func stageOrder(s Stage) int {
	switch s {
	case StageUnscored:
		return 0
	case StageEducationalPending:
		return 1
	case StageEducationalDone:
		return 2
	case StageEnhancedPending:
		return 3
	case StageEnhancedDone:
		return 4
	case StageFinalPending:
		return 5
	case StageDecided:
		return 6
	default:
		return -1
	}
}

// Store persists workflow states keyed by transaction ID.
type Store interface {
	Put(ctx context.Context, s *State) error
	Get(ctx context.Context, txID string) (*State, error)
}
