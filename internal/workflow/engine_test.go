package workflow

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scamshield/scamshield/internal/alerts"
	"github.com/scamshield/scamshield/internal/quiz"
	"github.com/scamshield/scamshield/internal/risk"
	"github.com/scamshield/scamshield/internal/session"
)

type stubScorer struct {
	mu    sync.Mutex
	calls int
	score float64
	err   error
	delay time.Duration
}

func (s *stubScorer) Score(ctx context.Context, p *risk.Payment) (*risk.Assessment, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()

	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}

	pol := risk.DefaultPolicy()
	level := pol.Bucket(s.score)
	return &risk.Assessment{
		ID:             "risk_stub",
		TransactionID:  p.TransactionID,
		Score:          s.score,
		Level:          level,
		Reasons:        []string{"stub"},
		CooloffMinutes: pol.Cooloff(level),
		EvaluatedAt:    time.Now().UTC(),
	}, nil
}

func (s *stubScorer) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type engineEnv struct {
	engine *Engine
	scorer *stubScorer
	alerts *alerts.MemoryStore

	mu  sync.Mutex
	now time.Time
}

func (env *engineEnv) clock() time.Time {
	env.mu.Lock()
	defer env.mu.Unlock()
	return env.now
}

func (env *engineEnv) advance(d time.Duration) {
	env.mu.Lock()
	defer env.mu.Unlock()
	env.now = env.now.Add(d)
}

func newEngineEnv(t *testing.T, score float64) *engineEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	env := &engineEnv{
		scorer: &stubScorer{score: score},
		alerts: alerts.NewMemoryStore(),
		now:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	env.engine = NewEngine(
		session.NewMemoryStore(),
		NewMemoryStore(),
		env.scorer,
		risk.DefaultPolicy(),
		logger,
	).
		WithQuiz(quiz.NewEngine(quiz.NewMemoryStore(), logger)).
		WithAlerts(alerts.NewService(env.alerts, logger)).
		WithClock(env.clock)
	return env
}

func testTx(id string, amount float64) session.Transaction {
	return session.Transaction{
		ID:           id,
		SrcAccount:   "GB29NWBK60161331926819",
		DstAccount:   "DE89370400440532013000",
		Amount:       amount,
		Currency:     "GBP",
		Channel:      "web",
		FirstToPayee: true,
	}
}

func TestScore_LowSkipsStraightToFinal(t *testing.T) {
	env := newEngineEnv(t, 20)
	ctx := context.Background()

	st, sess, err := env.engine.Score(ctx, testTx("tx_low", 50))
	require.NoError(t, err)
	assert.Equal(t, risk.LevelLow, st.Level)
	assert.Equal(t, StageFinalPending, st.Stage)
	require.NotNil(t, sess.Assessment)
	assert.Equal(t, 20.0, sess.Assessment.Score)

	st, err = env.engine.Confirm(ctx, "tx_low")
	require.NoError(t, err)
	assert.Equal(t, StageDecided, st.Stage)
	assert.Equal(t, OutcomeApprove, st.Outcome)
}

func TestScore_MediumRequiresEducationalOnly(t *testing.T) {
	env := newEngineEnv(t, 45)
	ctx := context.Background()

	st, _, err := env.engine.Score(ctx, testTx("tx_med", 800))
	require.NoError(t, err)
	assert.Equal(t, risk.LevelMedium, st.Level)
	assert.Equal(t, StageEducationalPending, st.Stage)

	// Confirming before the checkpoint is an illegal leap.
	_, err = env.engine.Confirm(ctx, "tx_med")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	st, err = env.engine.CompleteEducational(ctx, "tx_med")
	require.NoError(t, err)
	assert.Equal(t, StageFinalPending, st.Stage)
	assert.Nil(t, st.CooloffUntil)

	st, err = env.engine.Confirm(ctx, "tx_med")
	require.NoError(t, err)
	assert.Equal(t, OutcomeApprove, st.Outcome)
}

func TestScore_HighWalksFullFunnelWithCoolingOff(t *testing.T) {
	env := newEngineEnv(t, 80)
	ctx := context.Background()

	st, _, err := env.engine.Score(ctx, testTx("tx_high", 5000))
	require.NoError(t, err)
	assert.Equal(t, risk.LevelHigh, st.Level)
	assert.Equal(t, StageEducationalPending, st.Stage)

	st, err = env.engine.CompleteEducational(ctx, "tx_high")
	require.NoError(t, err)
	assert.Equal(t, StageEnhancedPending, st.Stage)

	st, err = env.engine.CompleteEnhanced(ctx, "tx_high")
	require.NoError(t, err)
	assert.Equal(t, StageFinalPending, st.Stage)
	require.NotNil(t, st.CooloffUntil)
	assert.Equal(t, env.clock().Add(30*time.Minute), *st.CooloffUntil)

	// Inside the cooling-off window the approval is time-gated.
	_, err = env.engine.Confirm(ctx, "tx_high")
	assert.ErrorIs(t, err, ErrNotYetEligible)

	env.advance(31 * time.Minute)
	st, err = env.engine.Confirm(ctx, "tx_high")
	require.NoError(t, err)
	assert.Equal(t, OutcomeApprove, st.Outcome)
}

func TestScore_SecondCallReturnsExistingState(t *testing.T) {
	env := newEngineEnv(t, 80)
	ctx := context.Background()

	first, _, err := env.engine.Score(ctx, testTx("tx_dup", 100))
	require.NoError(t, err)

	second, _, err := env.engine.Score(ctx, testTx("tx_dup", 100))
	require.NoError(t, err)

	assert.Equal(t, first.Stage, second.Stage)
	assert.Equal(t, first.Score, second.Score)
	assert.Equal(t, 1, env.scorer.callCount(), "assessment must be produced exactly once")
}

func TestScore_ConcurrentCallsScoreOnce(t *testing.T) {
	env := newEngineEnv(t, 80)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := env.engine.Score(ctx, testTx("tx_race", 100))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, env.scorer.callCount())
}

func TestScore_ScorerErrorFailsClosedToUnknown(t *testing.T) {
	env := newEngineEnv(t, 10)
	env.scorer.err = errors.New("backend down")
	ctx := context.Background()

	st, sess, err := env.engine.Score(ctx, testTx("tx_unk", 100))
	require.NoError(t, err)
	assert.Equal(t, risk.LevelUnknown, st.Level)
	assert.Equal(t, StageEducationalPending, st.Stage)
	require.NotNil(t, sess.Assessment)
	assert.Equal(t, 30, sess.Assessment.CooloffMinutes)

	// Unknown gates exactly like high: enhanced verification is required.
	st, err = env.engine.CompleteEducational(ctx, "tx_unk")
	require.NoError(t, err)
	assert.Equal(t, StageEnhancedPending, st.Stage)
}

func TestScore_TimeoutFailsClosedToUnknown(t *testing.T) {
	env := newEngineEnv(t, 10)
	env.scorer.delay = 200 * time.Millisecond
	env.engine.WithScoreTimeout(10 * time.Millisecond)
	ctx := context.Background()

	st, _, err := env.engine.Score(ctx, testTx("tx_slow", 100))
	require.NoError(t, err)
	assert.Equal(t, risk.LevelUnknown, st.Level)
}

func TestCompleteEducational_Idempotent(t *testing.T) {
	env := newEngineEnv(t, 45)
	ctx := context.Background()

	_, _, err := env.engine.Score(ctx, testTx("tx_re", 100))
	require.NoError(t, err)

	first, err := env.engine.CompleteEducational(ctx, "tx_re")
	require.NoError(t, err)
	second, err := env.engine.CompleteEducational(ctx, "tx_re")
	require.NoError(t, err)
	assert.Equal(t, first.Stage, second.Stage)
}

func TestCompleteEnhanced_RejectedBeforeEducational(t *testing.T) {
	env := newEngineEnv(t, 80)
	ctx := context.Background()

	_, _, err := env.engine.Score(ctx, testTx("tx_skip", 100))
	require.NoError(t, err)

	_, err = env.engine.CompleteEnhanced(ctx, "tx_skip")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestIssueQuiz_ReturnsSameQuizOnReentry(t *testing.T) {
	env := newEngineEnv(t, 45)
	ctx := context.Background()

	_, _, err := env.engine.Score(ctx, testTx("tx_quiz", 100))
	require.NoError(t, err)

	first, err := env.engine.IssueQuiz(ctx, "tx_quiz")
	require.NoError(t, err)
	second, err := env.engine.IssueQuiz(ctx, "tx_quiz")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID, "stage re-entry must not issue a second quiz")
}

func TestIssueQuiz_OnlyDuringEducational(t *testing.T) {
	env := newEngineEnv(t, 20)
	ctx := context.Background()

	_, _, err := env.engine.Score(ctx, testTx("tx_noquiz", 100))
	require.NoError(t, err)

	_, err = env.engine.IssueQuiz(ctx, "tx_noquiz")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestCompleteEducational_BlocksOnUnscoredQuiz(t *testing.T) {
	env := newEngineEnv(t, 45)
	ctx := context.Background()

	_, _, err := env.engine.Score(ctx, testTx("tx_pend", 100))
	require.NoError(t, err)
	_, err = env.engine.IssueQuiz(ctx, "tx_pend")
	require.NoError(t, err)

	_, err = env.engine.CompleteEducational(ctx, "tx_pend")
	assert.ErrorIs(t, err, ErrQuizPending)
}

func TestSubmitQuiz_PassUnlocksCheckpoint(t *testing.T) {
	env := newEngineEnv(t, 45)
	ctx := context.Background()

	_, _, err := env.engine.Score(ctx, testTx("tx_pass", 100))
	require.NoError(t, err)
	_, err = env.engine.IssueQuiz(ctx, "tx_pass")
	require.NoError(t, err)

	qs, st, err := env.engine.SubmitQuiz(ctx, "tx_pass", []string{"no", "yes", "no"})
	require.NoError(t, err)
	assert.Equal(t, quiz.DecisionPass, qs.Decision)
	assert.True(t, st.QuizPassed)
	assert.Equal(t, StageEducationalPending, st.Stage)

	st, err = env.engine.CompleteEducational(ctx, "tx_pass")
	require.NoError(t, err)
	assert.Equal(t, StageFinalPending, st.Stage)
}

func TestSubmitQuiz_FailHoldsAndRaisesExactlyOneAlert(t *testing.T) {
	env := newEngineEnv(t, 80)
	ctx := context.Background()

	_, _, err := env.engine.Score(ctx, testTx("tx_fail", 9000))
	require.NoError(t, err)
	_, err = env.engine.IssueQuiz(ctx, "tx_fail")
	require.NoError(t, err)

	qs, st, err := env.engine.SubmitQuiz(ctx, "tx_fail", []string{"yes", "no", "yes"})
	require.NoError(t, err)
	assert.Equal(t, quiz.DecisionFail, qs.Decision)
	assert.Equal(t, StageDecided, st.Stage)
	assert.Equal(t, OutcomeHeld, st.Outcome)
	assert.NotEmpty(t, st.AlertID)

	queued, err := env.alerts.List(ctx, alerts.ListFilter{})
	require.NoError(t, err)
	require.Len(t, queued, 1)
	assert.Equal(t, "tx_fail", queued[0].TransactionID)
	assert.Equal(t, risk.LevelHigh, queued[0].Level)

	// The held transaction accepts no further stage transitions.
	_, err = env.engine.Confirm(ctx, "tx_fail")
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, _, err = env.engine.SubmitQuiz(ctx, "tx_fail", []string{"yes", "no", "yes"})
	assert.ErrorIs(t, err, ErrInvalidTransition)

	queued, err = env.alerts.List(ctx, alerts.ListFilter{})
	require.NoError(t, err)
	assert.Len(t, queued, 1, "hold must raise at most one alert")
}

func TestSubmitQuiz_WithoutIssue(t *testing.T) {
	env := newEngineEnv(t, 45)
	ctx := context.Background()

	_, _, err := env.engine.Score(ctx, testTx("tx_noq", 100))
	require.NoError(t, err)

	_, _, err = env.engine.SubmitQuiz(ctx, "tx_noq", []string{"no", "yes", "no"})
	assert.ErrorIs(t, err, quiz.ErrNoSession)
}

func TestCancel_FromEarlyStage(t *testing.T) {
	env := newEngineEnv(t, 80)
	ctx := context.Background()

	_, _, err := env.engine.Score(ctx, testTx("tx_cxl", 100))
	require.NoError(t, err)

	st, err := env.engine.Cancel(ctx, "tx_cxl")
	require.NoError(t, err)
	assert.Equal(t, OutcomeDeny, st.Outcome)

	// Idempotent on repeat, illegal to approve afterwards.
	st, err = env.engine.Cancel(ctx, "tx_cxl")
	require.NoError(t, err)
	assert.Equal(t, OutcomeDeny, st.Outcome)
	_, err = env.engine.Confirm(ctx, "tx_cxl")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestConfirm_IdempotentAfterApprove(t *testing.T) {
	env := newEngineEnv(t, 20)
	ctx := context.Background()

	_, _, err := env.engine.Score(ctx, testTx("tx_ok", 100))
	require.NoError(t, err)

	first, err := env.engine.Confirm(ctx, "tx_ok")
	require.NoError(t, err)
	second, err := env.engine.Confirm(ctx, "tx_ok")
	require.NoError(t, err)
	assert.Equal(t, first.Outcome, second.Outcome)
}

func TestGet_UnknownTransaction(t *testing.T) {
	env := newEngineEnv(t, 20)

	_, err := env.engine.Get(context.Background(), "tx_missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
