package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/scamshield/scamshield/internal/ai"
	"github.com/scamshield/scamshield/internal/alerts"
	"github.com/scamshield/scamshield/internal/idgen"
	"github.com/scamshield/scamshield/internal/metrics"
	"github.com/scamshield/scamshield/internal/quiz"
	"github.com/scamshield/scamshield/internal/risk"
	"github.com/scamshield/scamshield/internal/session"
	"github.com/scamshield/scamshield/internal/syncutil"
	"github.com/scamshield/scamshield/internal/traces"
)

// Notifier schedules cooling-off reminders and trusted-contact pings.
// Fire-and-acknowledge: completion is never awaited by gating logic.
type Notifier interface {
	ScheduleCoolingOff(ctx context.Context, txID string, until time.Time)
	NotifyTrustedContact(ctx context.Context, txID string, level risk.Level)
}

// Engine drives the per-transaction verification state machine. All stage
// transitions for one transaction are serialized on a per-key mutex; the
// engine never holds a lock across a remote call for a different
// transaction.
type Engine struct {
	sessions session.Store
	states   Store
	scorer   risk.Scorer
	policy   risk.Policy
	logger   *slog.Logger

	quizzes  *quiz.Engine
	alerts   *alerts.Service
	advisor  *ai.Client
	notifier Notifier

	mu           syncutil.ShardedMutex
	scoreTimeout time.Duration
	now          func() time.Time
}

// NewEngine creates a workflow engine with the mandatory collaborators.
func NewEngine(sessions session.Store, states Store, scorer risk.Scorer, policy risk.Policy, logger *slog.Logger) *Engine {
	return &Engine{
		sessions:     sessions,
		states:       states,
		scorer:       scorer,
		policy:       policy,
		logger:       logger,
		scoreTimeout: 3 * time.Second,
		now:          time.Now,
	}
}

// WithQuiz attaches the quiz engine used during the educational stage.
func (e *Engine) WithQuiz(q *quiz.Engine) *Engine {
	e.quizzes = q
	return e
}

// WithAlerts attaches the alert service that receives held transactions.
func (e *Engine) WithAlerts(a *alerts.Service) *Engine {
	e.alerts = a
	return e
}

// WithAdvisor attaches the advisory AI client. Explanations and
// classifications are fetched off the gating path and never block it.
func (e *Engine) WithAdvisor(c *ai.Client) *Engine {
	e.advisor = c
	return e
}

// WithNotifier attaches the cooling-off/trusted-contact notifier.
func (e *Engine) WithNotifier(n Notifier) *Engine {
	e.notifier = n
	return e
}

// WithScoreTimeout bounds the scoring call; on expiry the workflow fails
// closed to unknown instead of stalling.
func (e *Engine) WithScoreTimeout(d time.Duration) *Engine {
	e.scoreTimeout = d
	return e
}

// WithClock overrides the time source. Used by tests to cross the
// cooling-off gate without sleeping.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Score evaluates a transaction and opens its verification workflow. The
// assessment is produced exactly once: scoring an already-scored
// transaction returns the existing state untouched. A scoring error or
// timeout resolves to level unknown, which gates identically to high.
func (e *Engine) Score(ctx context.Context, tx session.Transaction) (*State, *session.Session, error) {
	unlock := e.mu.Lock(tx.ID)
	defer unlock()

	if st, err := e.states.Get(ctx, tx.ID); err == nil {
		sess, serr := e.sessions.Get(ctx, tx.ID)
		if serr != nil {
			return nil, nil, serr
		}
		return st, sess, nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, nil, err
	}

	if tx.TS.IsZero() {
		tx.TS = e.now().UTC()
	}

	sess := &session.Session{
		Transaction: tx,
		CreatedAt:   e.now(),
		LastActive:  e.now(),
	}
	if err := e.sessions.Create(ctx, sess); err != nil {
		return nil, nil, fmt.Errorf("create session: %w", err)
	}

	assessment := e.score(ctx, tx)
	sess.Assessment = assessment
	if err := e.sessions.Update(ctx, sess); err != nil {
		return nil, nil, err
	}

	st := &State{
		TransactionID: tx.ID,
		Level:         assessment.Level,
		Score:         assessment.Score,
		CreatedAt:     e.now(),
	}
	if assessment.Level == risk.LevelLow {
		e.setStage(st, StageFinalPending)
	} else {
		e.setStage(st, StageEducationalPending)
	}
	if err := e.states.Put(ctx, st); err != nil {
		return nil, nil, err
	}

	metrics.PaymentsScoredTotal.WithLabelValues(string(assessment.Level)).Inc()
	e.logger.Info("payment scored",
		"transaction_id", tx.ID,
		"score", assessment.Score,
		"level", assessment.Level,
		"stage", st.Stage)

	e.adviseAsync(tx, assessment)
	return st, sess, nil
}

// score runs the scorer under its timeout and fails closed on any error.
func (e *Engine) score(ctx context.Context, tx session.Transaction) *risk.Assessment {
	ctx, span := traces.StartSpan(ctx, "workflow.score",
		attribute.String("transaction.id", tx.ID),
		attribute.Float64("payment.amount", tx.Amount))
	defer span.End()

	sctx, cancel := context.WithTimeout(ctx, e.scoreTimeout)
	defer cancel()

	assessment, err := e.scorer.Score(sctx, payment(tx))
	if err != nil {
		e.logger.Warn("scoring unavailable, failing closed",
			"transaction_id", tx.ID, "error", err)
		return &risk.Assessment{
			ID:             idgen.WithPrefix("risk_"),
			TransactionID:  tx.ID,
			Level:          risk.LevelUnknown,
			Reasons:        []string{"Risk scoring unavailable; transaction treated as high risk"},
			CooloffMinutes: e.policy.Cooloff(risk.LevelUnknown),
			EvaluatedAt:    e.now().UTC(),
		}
	}
	return assessment
}

// Get returns the workflow state for a transaction.
func (e *Engine) Get(ctx context.Context, txID string) (*State, error) {
	return e.states.Get(ctx, txID)
}

// Session returns the verification context for a transaction.
func (e *Engine) Session(ctx context.Context, txID string) (*session.Session, error) {
	return e.sessions.Get(ctx, txID)
}

// CompleteEducational records the educational checkpoint as passed. If a
// quiz was issued for the stage it must be scored first; a failed quiz
// will already have routed the workflow to held. Re-invoking after the
// stage is passed returns the current state without side effects.
func (e *Engine) CompleteEducational(ctx context.Context, txID string) (*State, error) {
	unlock := e.mu.Lock(txID)
	defer unlock()

	st, err := e.states.Get(ctx, txID)
	if err != nil {
		return nil, err
	}
	if st.past(StageEducationalPending) {
		return st, nil
	}
	if st.Stage != StageEducationalPending {
		return nil, fmt.Errorf("%w: educational checkpoint not open in stage %s", ErrInvalidTransition, st.Stage)
	}

	if st.QuizID != "" && !st.QuizPassed {
		qs, qerr := e.quizzes.Get(ctx, txID)
		if qerr != nil {
			return nil, qerr
		}
		if qs.State != quiz.StateScored {
			return nil, ErrQuizPending
		}
		if qs.Decision != quiz.DecisionPass {
			return nil, fmt.Errorf("%w: quiz failed, transaction is held", ErrInvalidTransition)
		}
		st.QuizPassed = true
	}

	e.setStage(st, StageEducationalDone)
	if st.Level.AtLeast(risk.LevelHigh) {
		e.setStage(st, StageEnhancedPending)
	} else {
		e.setStage(st, StageFinalPending)
	}
	if err := e.states.Put(ctx, st); err != nil {
		return nil, err
	}
	e.touch(ctx, txID)
	return st, nil
}

// CompleteEnhanced records the enhanced-verification stage as passed and
// starts the cooling-off clock: final approval is time-gated until the
// delay elapses. Idempotent once passed.
func (e *Engine) CompleteEnhanced(ctx context.Context, txID string) (*State, error) {
	unlock := e.mu.Lock(txID)
	defer unlock()

	st, err := e.states.Get(ctx, txID)
	if err != nil {
		return nil, err
	}
	if st.past(StageEnhancedPending) {
		return st, nil
	}
	if st.Stage != StageEnhancedPending {
		return nil, fmt.Errorf("%w: enhanced verification not open in stage %s", ErrInvalidTransition, st.Stage)
	}

	minutes := e.policy.Cooloff(st.Level)
	if sess, serr := e.sessions.Get(ctx, txID); serr == nil && sess.Assessment != nil && sess.Assessment.CooloffMinutes > 0 {
		minutes = sess.Assessment.CooloffMinutes
	}
	until := e.now().Add(time.Duration(minutes) * time.Minute)
	st.CooloffUntil = &until

	e.setStage(st, StageEnhancedDone)
	e.setStage(st, StageFinalPending)
	if err := e.states.Put(ctx, st); err != nil {
		return nil, err
	}
	e.touch(ctx, txID)

	if e.notifier != nil {
		go func() {
			nctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			e.notifier.ScheduleCoolingOff(nctx, txID, until)
			e.notifier.NotifyTrustedContact(nctx, txID, st.Level)
		}()
	}

	e.logger.Info("cooling-off scheduled",
		"transaction_id", txID, "until", until, "minutes", minutes)
	return st, nil
}

// IssueQuiz opens the optional knowledge check for the educational stage.
// If a quiz already exists for the transaction it is returned as-is; stage
// re-entry never issues a second quiz.
func (e *Engine) IssueQuiz(ctx context.Context, txID string) (*quiz.Session, error) {
	unlock := e.mu.Lock(txID)
	defer unlock()

	st, err := e.states.Get(ctx, txID)
	if err != nil {
		return nil, err
	}
	if st.QuizID != "" {
		return e.quizzes.Get(ctx, txID)
	}
	if st.Stage != StageEducationalPending {
		return nil, fmt.Errorf("%w: quiz is only available during the educational checkpoint", ErrInvalidTransition)
	}

	sess, err := e.sessions.Get(ctx, txID)
	if err != nil {
		return nil, err
	}
	qs, err := e.quizzes.Issue(ctx, txID, signals(sess))
	if err != nil {
		return nil, err
	}

	st.QuizID = qs.ID
	if err := e.states.Put(ctx, st); err != nil {
		return nil, err
	}
	sess.QuizID = qs.ID
	sess.Touch()
	if err := e.sessions.Update(ctx, sess); err != nil {
		return nil, err
	}
	return qs, nil
}

// SubmitQuiz scores the payer's answers. A pass unlocks the educational
// stage; a fail immediately holds the transaction and raises exactly one
// alert for human review.
func (e *Engine) SubmitQuiz(ctx context.Context, txID string, answers []string) (*quiz.Session, *State, error) {
	unlock := e.mu.Lock(txID)
	defer unlock()

	st, err := e.states.Get(ctx, txID)
	if err != nil {
		return nil, nil, err
	}
	if st.QuizID == "" {
		return nil, nil, quiz.ErrNoSession
	}
	if st.Stage != StageEducationalPending {
		return nil, nil, fmt.Errorf("%w: quiz answers not accepted in stage %s", ErrInvalidTransition, st.Stage)
	}

	qs, err := e.quizzes.Submit(ctx, txID, answers)
	if err != nil {
		return nil, nil, err
	}

	if qs.Decision == quiz.DecisionPass {
		st.QuizPassed = true
		if err := e.states.Put(ctx, st); err != nil {
			return nil, nil, err
		}
		e.touch(ctx, txID)
		return qs, st, nil
	}

	if err := e.hold(ctx, st); err != nil {
		return nil, nil, err
	}
	return qs, st, nil
}

// Confirm records the payer's final approval. Only legal in FinalPending;
// for high and unknown risk the transition is additionally time-gated on
// the cooling-off delay.
func (e *Engine) Confirm(ctx context.Context, txID string) (*State, error) {
	unlock := e.mu.Lock(txID)
	defer unlock()

	st, err := e.states.Get(ctx, txID)
	if err != nil {
		return nil, err
	}
	if st.Terminal() {
		if st.Outcome == OutcomeApprove {
			return st, nil
		}
		return nil, fmt.Errorf("%w: transaction already decided (%s)", ErrInvalidTransition, st.Outcome)
	}
	if st.Stage != StageFinalPending {
		return nil, fmt.Errorf("%w: confirmation requires all prior stages, currently %s", ErrInvalidTransition, st.Stage)
	}
	if st.Level.AtLeast(risk.LevelHigh) && st.CooloffUntil != nil && e.now().Before(*st.CooloffUntil) {
		return nil, fmt.Errorf("%w (until %s)", ErrNotYetEligible, st.CooloffUntil.UTC().Format(time.RFC3339))
	}

	return st, e.decide(ctx, st, OutcomeApprove)
}

// Cancel records an explicit user cancellation from any non-terminal
// stage, transitioning to Decided(deny).
func (e *Engine) Cancel(ctx context.Context, txID string) (*State, error) {
	unlock := e.mu.Lock(txID)
	defer unlock()

	st, err := e.states.Get(ctx, txID)
	if err != nil {
		return nil, err
	}
	if st.Terminal() {
		if st.Outcome == OutcomeDeny {
			return st, nil
		}
		return nil, fmt.Errorf("%w: transaction already decided (%s)", ErrInvalidTransition, st.Outcome)
	}

	return st, e.decide(ctx, st, OutcomeDeny)
}

// hold routes the workflow to Decided(held) and raises the alert for
// human review. The alert is raised at most once per transaction.
func (e *Engine) hold(ctx context.Context, st *State) error {
	sess, err := e.sessions.Get(ctx, st.TransactionID)
	if err != nil {
		return err
	}

	if st.AlertID == "" && e.alerts != nil {
		alert, aerr := e.alerts.Raise(ctx, *payment(sess.Transaction), sess.Assessment)
		if aerr != nil {
			return fmt.Errorf("raise alert: %w", aerr)
		}
		st.AlertID = alert.ID
		sess.AlertID = alert.ID
	}

	st.Outcome = OutcomeHeld
	e.setStage(st, StageDecided)
	if err := e.states.Put(ctx, st); err != nil {
		return err
	}
	metrics.WorkflowDecisionsTotal.WithLabelValues(string(OutcomeHeld)).Inc()

	sess.Decided = true
	sess.Touch()
	if err := e.sessions.Update(ctx, sess); err != nil {
		return err
	}

	e.logger.Info("transaction held for review",
		"transaction_id", st.TransactionID, "alert_id", st.AlertID)
	return nil
}

func (e *Engine) decide(ctx context.Context, st *State, outcome Outcome) error {
	st.Outcome = outcome
	e.setStage(st, StageDecided)
	if err := e.states.Put(ctx, st); err != nil {
		return err
	}
	metrics.WorkflowDecisionsTotal.WithLabelValues(string(outcome)).Inc()

	sess, err := e.sessions.Get(ctx, st.TransactionID)
	if err != nil {
		return err
	}
	sess.Decided = true
	sess.Touch()
	if err := e.sessions.Update(ctx, sess); err != nil {
		return err
	}

	e.logger.Info("transaction decided",
		"transaction_id", st.TransactionID, "outcome", outcome)
	return nil
}

func (e *Engine) setStage(st *State, stage Stage) {
	st.Stage = stage
	st.UpdatedAt = e.now()
	metrics.WorkflowTransitionsTotal.WithLabelValues(string(stage)).Inc()
}

// touch refreshes the session idle clock after a successful transition.
func (e *Engine) touch(ctx context.Context, txID string) {
	sess, err := e.sessions.Get(ctx, txID)
	if err != nil {
		return
	}
	sess.Touch()
	_ = e.sessions.Update(ctx, sess)
}

// adviseAsync fetches the advisory explanation and classification off the
// gating path. The session is re-fetched under the transaction lock so a
// slow advisor never clobbers newer state.
func (e *Engine) adviseAsync(tx session.Transaction, assessment *risk.Assessment) {
	if e.advisor == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), ai.DefaultTimeout)
		defer cancel()

		features := map[string]any{
			"amount":         tx.Amount,
			"currency":       tx.Currency,
			"channel":        tx.Channel,
			"first_to_payee": tx.FirstToPayee,
		}
		sigs := map[string]any{
			"score":   assessment.Score,
			"level":   string(assessment.Level),
			"reasons": assessment.Reasons,
		}
		explanation := e.advisor.Explain(ctx, features, sigs)
		classification := e.advisor.Classify(ctx, features, sigs)

		unlock := e.mu.Lock(tx.ID)
		defer unlock()
		sess, err := e.sessions.Get(context.Background(), tx.ID)
		if err != nil {
			return
		}
		sess.Explanation = explanation
		sess.Classification = classification
		if err := e.sessions.Update(context.Background(), sess); err != nil {
			e.logger.Warn("failed to record advisory artifacts",
				"transaction_id", tx.ID, "error", err)
		}
	}()
}

// payment converts the session transaction to the scorer boundary shape.
func payment(t session.Transaction) *risk.Payment {
	return &risk.Payment{
		TransactionID: t.ID,
		TS:            t.TS,
		SrcAccount:    t.SrcAccount,
		DstAccount:    t.DstAccount,
		Amount:        t.Amount,
		Currency:      t.Currency,
		Channel:       t.Channel,
		FirstToPayee:  t.FirstToPayee,
		Description:   t.Description,
	}
}

// signals builds the quiz/AI signal set from the verification context.
func signals(sess *session.Session) map[string]any {
	s := map[string]any{
		"amount":         sess.Transaction.Amount,
		"currency":       sess.Transaction.Currency,
		"channel":        sess.Transaction.Channel,
		"first_to_payee": sess.Transaction.FirstToPayee,
	}
	if sess.Assessment != nil {
		s["score"] = sess.Assessment.Score
		s["level"] = string(sess.Assessment.Level)
		s["reasons"] = sess.Assessment.Reasons
	}
	return s
}
