package quiz

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/scamshield/scamshield/internal/idgen"
	"github.com/scamshield/scamshield/internal/metrics"
)

// Answers at or above this score fail the check. Matches the collaborator's
// warn threshold: anything that isn't a clean release is conservative-fail.
const failScore = 30

// Fallback questions used when no issuer is available. The rubric mirrors
// the scoring heuristic in fallbackScore.
var fallbackQuestions = []string{
	"Were you asked to act urgently or keep this payment secret?",
	"Have you verified the recipient via an official website or phone number?",
	"Is this payment related to investments, crypto, refunds or overpayments?",
}

var fallbackRubric = []string{
	"Q1 = yes: strong risk indicator",
	"Q2 = no: medium risk indicator",
	"Q3 = yes: medium risk indicator",
}

// Engine manages one quiz session per transaction.
type Engine struct {
	issuer Issuer
	scorer AnswerScorer
	store  Store
	logger *slog.Logger
}

// NewEngine creates a quiz engine. issuer and scorer may be nil, in which
// case the deterministic fallback question set and heuristic are used.
func NewEngine(store Store, logger *slog.Logger) *Engine {
	return &Engine{store: store, logger: logger}
}

// WithIssuer attaches an external question generator.
func (e *Engine) WithIssuer(i Issuer) *Engine {
	e.issuer = i
	return e
}

// WithScorer attaches an external answer scorer.
func (e *Engine) WithScorer(s AnswerScorer) *Engine {
	e.scorer = s
	return e
}

// Issue creates a new session for the transaction, replacing any prior one.
// Only the most recent session is authoritative.
func (e *Engine) Issue(ctx context.Context, txID string, signals map[string]any) (*Session, error) {
	questions, rubric := fallbackQuestions, fallbackRubric
	if e.issuer != nil {
		q, r, err := e.issuer.IssueQuiz(ctx, signals)
		if err != nil {
			e.logger.Warn("quiz issuer failed, using fallback questions", "tx", txID, "error", err)
		} else {
			questions, rubric = q, r
		}
	}

	s := &Session{
		ID:            idgen.WithPrefix("quiz_"),
		TransactionID: txID,
		State:         StateIssued,
		Questions:     questions,
		Rubric:        rubric,
		IssuedAt:      time.Now(),
	}
	if err := e.store.Put(ctx, s); err != nil {
		return nil, fmt.Errorf("failed to store quiz session: %w", err)
	}
	return s, nil
}

// Get returns the current session for a transaction.
func (e *Engine) Get(ctx context.Context, txID string) (*Session, error) {
	s, err := e.store.Get(ctx, txID)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, ErrNoSession
	}
	return s, nil
}

// Submit records answers and scores the session. Scoring is done once; a
// collaborator failure is adopted as a fail decision, never retried.
func (e *Engine) Submit(ctx context.Context, txID string, answers []string) (*Session, error) {
	s, err := e.Get(ctx, txID)
	if err != nil {
		return nil, err
	}
	if s.State != StateIssued {
		return nil, fmt.Errorf("%w: state %s", ErrNotIssued, s.State)
	}
	if len(answers) != len(s.Questions) {
		return nil, fmt.Errorf("%w: got %d answers for %d questions", ErrAnswerCount, len(answers), len(s.Questions))
	}

	s.Answers = answers
	s.State = StateAnswered

	score, decision, reasons := e.scoreAnswers(ctx, s)
	now := time.Now()
	s.Score = score
	s.Decision = decision
	s.Reasons = reasons
	s.State = StateScored
	s.ScoredAt = &now

	if err := e.store.Put(ctx, s); err != nil {
		return nil, fmt.Errorf("failed to store scored session: %w", err)
	}
	metrics.QuizOutcomesTotal.WithLabelValues(string(decision)).Inc()
	return s, nil
}

func (e *Engine) scoreAnswers(ctx context.Context, s *Session) (int, Decision, []string) {
	if e.scorer == nil {
		return fallbackScore(s.Answers)
	}

	score, rawDecision, reasons, err := e.scorer.ScoreQuiz(ctx, s.Questions, s.Answers)
	if err != nil {
		// Conservative default: an unevaluated quiz is a failed quiz.
		e.logger.Warn("quiz scorer failed, defaulting to fail", "tx", s.TransactionID, "error", err)
		return 100, DecisionFail, []string{"Unable to evaluate quiz"}
	}
	return score, normalizeDecision(rawDecision, score), reasons
}

// normalizeDecision maps the collaborator vocabulary onto pass/fail.
// Only an explicit release passes; warn and cancel both fail.
func normalizeDecision(raw string, score int) Decision {
	switch strings.ToLower(raw) {
	case "release", "pass":
		return DecisionPass
	case "warn", "cancel", "fail":
		return DecisionFail
	default:
		if score >= failScore {
			return DecisionFail
		}
		return DecisionPass
	}
}

// fallbackScore applies the deterministic heuristic over yes/no answers to
// the fallback question set: Q1 yes 70, Q3 yes 20, Q2 no 10.
func fallbackScore(answers []string) (int, Decision, []string) {
	yes := func(i int) bool {
		return i < len(answers) && strings.EqualFold(strings.TrimSpace(answers[i]), "yes")
	}
	no := func(i int) bool {
		return i < len(answers) && strings.EqualFold(strings.TrimSpace(answers[i]), "no")
	}

	score := 0
	if yes(0) {
		score += 70
	}
	if yes(2) {
		score += 20
	}
	if no(1) {
		score += 10
	}

	decision := DecisionPass
	if score >= failScore {
		decision = DecisionFail
	}
	return score, decision, []string{"Heuristic scoring (no external scorer)"}
}
