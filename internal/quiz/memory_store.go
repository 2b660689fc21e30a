package quiz

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory implementation of Store for demo/test use.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session // transactionID → session
}

// NewMemoryStore creates an in-memory quiz session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*Session)}
}

func (s *MemoryStore) Put(ctx context.Context, sess *Session) error {
	s.mu.Lock()
	s.sessions[sess.TransactionID] = copySession(sess)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, txID string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[txID]
	if !ok {
		return nil, nil
	}
	return copySession(sess), nil
}

func copySession(in *Session) *Session {
	out := *in
	out.Questions = append([]string(nil), in.Questions...)
	out.Rubric = append([]string(nil), in.Rubric...)
	out.Answers = append([]string(nil), in.Answers...)
	out.Reasons = append([]string(nil), in.Reasons...)
	if in.ScoredAt != nil {
		t := *in.ScoredAt
		out.ScoredAt = &t
	}
	return &out
}
