package alerts

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-memory implementation of Store for demo/test use.
// The per-alert decision CAS runs under a single mutex; contention is only
// ever per-alert in practice and the critical section is a few loads.
type MemoryStore struct {
	mu     sync.RWMutex
	alerts map[string]*Alert
	order  []string // insertion order, oldest first
}

// NewMemoryStore creates an in-memory alert store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{alerts: make(map[string]*Alert)}
}

func (s *MemoryStore) Create(ctx context.Context, a *Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := copyAlert(a)
	if cp.Decision == "" {
		cp.Decision = DecisionNone
	}
	s.alerts[a.ID] = cp
	s.order = append(s.order, a.ID)
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.alerts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyAlert(a), nil
}

func (s *MemoryStore) List(ctx context.Context, f ListFilter) ([]*Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Alert
	// Newest first
	for i := len(s.order) - 1; i >= 0; i-- {
		a := s.alerts[s.order[i]]
		if !matches(a, f) {
			continue
		}
		out = append(out, copyAlert(a))
	}

	// Stable by creation time for alerts created in the same instant.
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if c := f.Cursor; c != nil {
		// Keyset: keep only alerts strictly after the cursor position
		// in newest-first order.
		i := 0
		for ; i < len(out); i++ {
			a := out[i]
			if a.CreatedAt.Before(c.CreatedAt) ||
				(a.CreatedAt.Equal(c.CreatedAt) && a.ID < c.ID) {
				break
			}
		}
		out = out[i:]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *MemoryStore) Decide(ctx context.Context, id string, d Decision) (*Alert, bool, error) {
	if !d.Valid() {
		return nil, false, ErrInvalidDecision
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.alerts[id]
	if !ok {
		return nil, false, ErrNotFound
	}

	// Compare-and-set: only a still-undecided slot accepts a decision.
	if a.Decision != DecisionNone {
		return copyAlert(a), false, nil
	}

	now := time.Now()
	a.Decision = d
	a.DecidedAt = &now
	return copyAlert(a), true, nil
}

func (s *MemoryStore) Stats(ctx context.Context) (*Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := &Stats{ByDecision: make(map[Decision]int)}
	for _, a := range s.alerts {
		st.Total++
		st.ByDecision[a.Decision]++
		switch a.Decision {
		case DecisionNone:
			st.AmountHeld += a.Amount
		case DecisionCancel:
			st.AmountPrevented += a.Amount
		}
	}
	return st, nil
}

func matches(a *Alert, f ListFilter) bool {
	if f.Level != "" && a.Level != f.Level {
		return false
	}
	if f.DstContains != "" && !strings.Contains(strings.ToUpper(a.DstAccount), strings.ToUpper(f.DstContains)) {
		return false
	}
	if !f.Since.IsZero() && a.CreatedAt.Before(f.Since) {
		return false
	}
	if f.Undecided && a.Decision != DecisionNone {
		return false
	}
	return true
}

func copyAlert(in *Alert) *Alert {
	out := *in
	out.Reasons = append([]string(nil), in.Reasons...)
	if in.DecidedAt != nil {
		t := *in.DecidedAt
		out.DecidedAt = &t
	}
	return &out
}
