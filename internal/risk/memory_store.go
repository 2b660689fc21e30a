package risk

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory implementation of Store for demo/test use.
type MemoryStore struct {
	mu          sync.RWMutex
	assessments map[string]*Assessment // transactionID → assessment
}

// NewMemoryStore creates an in-memory assessment store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{assessments: make(map[string]*Assessment)}
}

func (s *MemoryStore) Record(ctx context.Context, a *Assessment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *a
	cp.Reasons = append([]string(nil), a.Reasons...)
	s.assessments[a.TransactionID] = &cp
	return nil
}

func (s *MemoryStore) GetByTransaction(ctx context.Context, txID string) (*Assessment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.assessments[txID]
	if !ok {
		return nil, nil
	}
	cp := *a
	cp.Reasons = append([]string(nil), a.Reasons...)
	return &cp, nil
}
