package alerts

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scamshield/scamshield/internal/risk"
	"github.com/scamshield/scamshield/internal/testutil"
)

func TestPostgresStore_CreateGetDecide(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()

	a := &Alert{
		ID:            "alrt_pg1",
		TransactionID: "tx_pg1",
		TS:            time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		SrcAccount:    "GB29NWBK60161331926819",
		DstAccount:    "DE89370400440532013000",
		Amount:        999.99,
		Currency:      "GBP",
		Channel:       "web",
		Level:         risk.LevelHigh,
		Score:         82.5,
		Reasons:       []string{"large amount"},
		Decision:      DecisionNone,
		CreatedAt:     time.Now().UTC(),
	}
	require.NoError(t, store.Create(ctx, a))

	got, err := store.Get(ctx, "alrt_pg1")
	require.NoError(t, err)
	assert.Equal(t, "tx_pg1", got.TransactionID)
	assert.Equal(t, risk.LevelHigh, got.Level)
	assert.Equal(t, []string{"large amount"}, got.Reasons)
	assert.Equal(t, DecisionNone, got.Decision)

	_, err = store.Get(ctx, "alrt_nope")
	assert.ErrorIs(t, err, ErrNotFound)

	won, applied, err := store.Decide(ctx, "alrt_pg1", DecisionCancel)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, DecisionCancel, won.Decision)
	assert.NotNil(t, won.DecidedAt)

	lost, applied, err := store.Decide(ctx, "alrt_pg1", DecisionRelease)
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, DecisionCancel, lost.Decision)
}

func TestPostgresStore_DecideRace(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, &Alert{
		ID:            "alrt_race",
		TransactionID: "tx_race",
		TS:            time.Now().UTC(),
		SrcAccount:    "GB29NWBK60161331926819",
		DstAccount:    "DE89370400440532013000",
		Amount:        100,
		Currency:      "GBP",
		Channel:       "web",
		Level:         risk.LevelHigh,
		Score:         70,
		CreatedAt:     time.Now().UTC(),
	}))

	var wg sync.WaitGroup
	var mu sync.Mutex
	appliedCount := 0
	for i := 0; i < 8; i++ {
		d := DecisionRelease
		if i%2 == 1 {
			d = DecisionCancel
		}
		wg.Add(1)
		go func(d Decision) {
			defer wg.Done()
			_, applied, err := store.Decide(ctx, "alrt_race", d)
			if !assert.NoError(t, err) {
				return
			}
			if applied {
				mu.Lock()
				appliedCount++
				mu.Unlock()
			}
		}(d)
	}
	wg.Wait()

	assert.Equal(t, 1, appliedCount)
}

func TestPostgresStore_ListFilters(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	levels := []risk.Level{risk.LevelHigh, risk.LevelMedium, risk.LevelHigh}
	for i, level := range levels {
		require.NoError(t, store.Create(ctx, &Alert{
			ID:            "alrt_l" + string(rune('0'+i)),
			TransactionID: "tx_l" + string(rune('0'+i)),
			TS:            base,
			SrcAccount:    "GB29NWBK60161331926819",
			DstAccount:    "DE89370400440532013000",
			Amount:        float64(100 * (i + 1)),
			Currency:      "GBP",
			Channel:       "web",
			Level:         level,
			Score:         70,
			CreatedAt:     base.Add(time.Duration(i) * time.Minute),
		}))
	}

	highs, err := store.List(ctx, ListFilter{Level: risk.LevelHigh})
	require.NoError(t, err)
	assert.Len(t, highs, 2)

	all, err := store.List(ctx, ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "alrt_l2", all[0].ID, "newest first")

	since, err := store.List(ctx, ListFilter{Since: base.Add(90 * time.Second)})
	require.NoError(t, err)
	assert.Len(t, since, 1)

	dst, err := store.List(ctx, ListFilter{DstContains: "de8937"})
	require.NoError(t, err)
	assert.Len(t, dst, 3)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 600.0, stats.AmountHeld)
}
