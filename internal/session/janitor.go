package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// Janitor periodically prunes undecided sessions that have been idle past
// the policy window. Decided transactions are never pruned here; they stay
// for audit.
type Janitor struct {
	store    Store
	ttl      time.Duration
	interval time.Duration
	logger   *slog.Logger
	stop     chan struct{}
	running  atomic.Bool
}

// NewJanitor creates a session janitor with the given idle window.
func NewJanitor(store Store, ttl time.Duration, logger *slog.Logger) *Janitor {
	return &Janitor{
		store:    store,
		ttl:      ttl,
		interval: time.Minute,
		logger:   logger,
		stop:     make(chan struct{}),
	}
}

// Running reports whether the janitor loop is actively running.
func (j *Janitor) Running() bool {
	return j.running.Load()
}

// Start begins the prune loop. Call in a goroutine.
func (j *Janitor) Start(ctx context.Context) {
	j.running.Store(true)
	defer j.running.Store(false)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-j.stop:
			return
		case <-ticker.C:
			j.safePrune(ctx)
		}
	}
}

// Stop signals the janitor to stop.
func (j *Janitor) Stop() {
	select {
	case j.stop <- struct{}{}:
	default:
	}
}

func (j *Janitor) safePrune(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			j.logger.Error("panic in session janitor", "panic", fmt.Sprint(r))
		}
	}()

	cutoff := time.Now().Add(-j.ttl)
	pruned, err := j.store.PruneIdle(ctx, cutoff)
	if err != nil {
		j.logger.Warn("failed to prune idle sessions", "error", err)
		return
	}
	if pruned > 0 {
		j.logger.Info("pruned idle sessions", "count", pruned, "idle_window", j.ttl)
	}
}
