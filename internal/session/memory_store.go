package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/scamshield/scamshield/internal/metrics"
)

// MemoryStore is an in-memory implementation of Store for demo/test use.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewMemoryStore creates an in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*Session)}
}

func (s *MemoryStore) Create(ctx context.Context, sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[sess.Transaction.ID]; exists {
		return fmt.Errorf("session %s already exists", sess.Transaction.ID)
	}
	s.sessions[sess.Transaction.ID] = copySession(sess)
	metrics.ActiveSessions.Set(float64(len(s.sessions)))
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, txID string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[txID]
	if !ok {
		return nil, ErrNotFound
	}
	return copySession(sess), nil
}

func (s *MemoryStore) Update(ctx context.Context, sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sess.Transaction.ID]; !ok {
		return ErrNotFound
	}
	s.sessions[sess.Transaction.ID] = copySession(sess)
	return nil
}

func (s *MemoryStore) PruneIdle(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pruned := 0
	for id, sess := range s.sessions {
		if !sess.Decided && sess.LastActive.Before(cutoff) {
			delete(s.sessions, id)
			pruned++
		}
	}
	metrics.ActiveSessions.Set(float64(len(s.sessions)))
	return pruned, nil
}

func copySession(in *Session) *Session {
	out := *in
	if in.Assessment != nil {
		a := *in.Assessment
		a.Reasons = append([]string(nil), in.Assessment.Reasons...)
		out.Assessment = &a
	}
	if in.Explanation != nil {
		e := *in.Explanation
		e.KeyReasons = append([]string(nil), in.Explanation.KeyReasons...)
		e.Recommendations = append([]string(nil), in.Explanation.Recommendations...)
		out.Explanation = &e
	}
	if in.Classification != nil {
		c := *in.Classification
		out.Classification = &c
	}
	return &out
}
