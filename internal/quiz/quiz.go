// Package quiz manages step-up knowledge-check sessions.
//
// A quiz is an optional escalation inside the educational checkpoint: the
// payer answers a few scam-awareness questions and the scored outcome gates
// whether the verification workflow may advance. At most one session is
// active per transaction; re-issuing discards the prior session.
package quiz

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNoSession means no quiz session exists for the transaction.
	ErrNoSession = errors.New("no quiz session for transaction")
	// ErrNotIssued means answers were submitted before questions were issued.
	ErrNotIssued = errors.New("quiz session not in issued state")
	// ErrAnswerCount means the answer list does not match the question list.
	ErrAnswerCount = errors.New("answer count does not match question count")
)

// State of a quiz session.
type State string

const (
	StateNotStarted State = "not_started"
	StateIssued     State = "issued"
	StateAnswered   State = "answered"
	StateScored     State = "scored"
)

// Decision is the scored verdict. Only the pass/fail distinction feeds
// workflow gating; anything less than a clean pass fails.
type Decision string

const (
	DecisionPass Decision = "pass"
	DecisionFail Decision = "fail"
)

// Session is one knowledge-check bound to exactly one transaction.
type Session struct {
	ID            string     `json:"id"`
	TransactionID string     `json:"transactionId"`
	State         State      `json:"state"`
	Questions     []string   `json:"questions"`
	Rubric        []string   `json:"rubric,omitempty"`
	Answers       []string   `json:"answers,omitempty"`
	Score         int        `json:"score"` // 0..100, higher = riskier
	Decision      Decision   `json:"decision,omitempty"`
	Reasons       []string   `json:"reasons,omitempty"`
	IssuedAt      time.Time  `json:"issuedAt"`
	ScoredAt      *time.Time `json:"scoredAt,omitempty"`
}

// Issuer generates quiz questions from risk signals.
type Issuer interface {
	IssueQuiz(ctx context.Context, signals map[string]any) (questions, rubric []string, err error)
}

// AnswerScorer evaluates submitted answers. The decision string uses the
// collaborator's vocabulary (release|warn|cancel); the engine normalizes it.
type AnswerScorer interface {
	ScoreQuiz(ctx context.Context, questions, answers []string) (score int, decision string, reasons []string, err error)
}

// Store persists quiz sessions keyed by transaction ID.
type Store interface {
	Put(ctx context.Context, s *Session) error
	Get(ctx context.Context, txID string) (*Session, error)
}
