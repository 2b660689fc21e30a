package workflow

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory workflow state store for development and
// tests. Copies in and out so callers never share the stored struct.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[string]*State
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[string]*State)}
}

// Put stores or replaces the state for its transaction.
func (s *MemoryStore) Put(_ context.Context, st *State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[st.TransactionID] = copyState(st)
	return nil
}

// Get returns the state for a transaction.
func (s *MemoryStore) Get(_ context.Context, txID string) (*State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.states[txID]
	if !ok {
		return nil, ErrNotFound
	}
	return copyState(st), nil
}

func copyState(st *State) *State {
	c := *st
	if st.CooloffUntil != nil {
		t := *st.CooloffUntil
		c.CooloffUntil = &t
	}
	return &c
}
