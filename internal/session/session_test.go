package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scamshield/scamshield/internal/risk"
)

func newSession(txID string) *Session {
	return &Session{
		Transaction: Transaction{
			ID:         txID,
			SrcAccount: "GB29NWBK60161331926819",
			DstAccount: "DE89370400440532013000",
			Amount:     100,
			Currency:   "GBP",
			Channel:    "web",
		},
		CreatedAt:  time.Now(),
		LastActive: time.Now(),
	}
}

func TestMemoryStore_CreateGetUpdate(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, newSession("tx_1")))
	assert.Error(t, s.Create(ctx, newSession("tx_1")), "duplicate create is rejected")

	got, err := s.Get(ctx, "tx_1")
	require.NoError(t, err)
	assert.Equal(t, "tx_1", got.Transaction.ID)

	got.Assessment = &risk.Assessment{TransactionID: "tx_1", Score: 42, Level: risk.LevelMedium, Reasons: []string{"r1"}}
	require.NoError(t, s.Update(ctx, got))

	again, err := s.Get(ctx, "tx_1")
	require.NoError(t, err)
	require.NotNil(t, again.Assessment)
	assert.Equal(t, 42.0, again.Assessment.Score)

	// Store hands out copies; mutating a returned session must not leak back.
	again.Assessment.Score = 99
	fresh, err := s.Get(ctx, "tx_1")
	require.NoError(t, err)
	assert.Equal(t, 42.0, fresh.Assessment.Score)

	_, err = s.Get(ctx, "tx_missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Update(ctx, newSession("tx_missing")), ErrNotFound)
}

func TestMemoryStore_PruneIdleKeepsDecided(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	stale := newSession("tx_stale")
	stale.LastActive = time.Now().Add(-2 * time.Hour)
	require.NoError(t, s.Create(ctx, stale))

	decided := newSession("tx_done")
	decided.LastActive = time.Now().Add(-2 * time.Hour)
	decided.Decided = true
	require.NoError(t, s.Create(ctx, decided))

	active := newSession("tx_live")
	require.NoError(t, s.Create(ctx, active))

	pruned, err := s.PruneIdle(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, pruned)

	_, err = s.Get(ctx, "tx_stale")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Get(ctx, "tx_done")
	assert.NoError(t, err, "decided sessions are kept for audit")
	_, err = s.Get(ctx, "tx_live")
	assert.NoError(t, err)
}

func TestTouch_RefreshesIdleClock(t *testing.T) {
	sess := newSession("tx_t")
	before := sess.LastActive
	time.Sleep(5 * time.Millisecond)
	sess.Touch()
	assert.True(t, sess.LastActive.After(before))
}
