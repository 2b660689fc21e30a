package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDo_SucceedsFirstTry(t *testing.T) {
	calls := 0
	err := Do(context.Background(), 3, time.Millisecond, func() error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_RetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := Do(context.Background(), 5, time.Millisecond, func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	boom := errors.New("still broken")
	calls := 0
	err := Do(context.Background(), 3, time.Millisecond, func() error {
		calls++
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, calls)
}

func TestDo_PermanentStopsImmediately(t *testing.T) {
	boom := errors.New("bad request")
	calls := 0
	err := Do(context.Background(), 5, time.Millisecond, func() error {
		calls++
		return Permanent(boom)
	})

	assert.Equal(t, boom, err, "Permanent is unwrapped on return")
	assert.Equal(t, 1, calls)
}

func TestDo_WrappedPermanentDetected(t *testing.T) {
	calls := 0
	err := Do(context.Background(), 5, time.Millisecond, func() error {
		calls++
		return Permanent(errors.New("rejected"))
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := Do(ctx, 10, time.Second, func() error {
		calls++
		return errors.New("transient")
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls, "cancellation interrupts the backoff wait")
}

func TestDo_ZeroAttemptsCoercedToOne(t *testing.T) {
	calls := 0
	err := Do(context.Background(), 0, time.Millisecond, func() error {
		calls++
		return errors.New("nope")
	})

	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestPermanentError_Unwrap(t *testing.T) {
	inner := errors.New("root cause")
	err := Permanent(inner)

	assert.ErrorIs(t, err, inner)
	assert.Equal(t, "root cause", err.Error())
}
