package watchlist

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory implementation of Store for demo/test use.
type MemoryStore struct {
	mu       sync.RWMutex
	accounts map[string]bool
}

// NewMemoryStore creates an empty in-memory watchlist.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{accounts: make(map[string]bool)}
}

func (s *MemoryStore) Add(ctx context.Context, account string) error {
	s.mu.Lock()
	s.accounts[normalize(account)] = true
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Remove(ctx context.Context, account string) error {
	s.mu.Lock()
	delete(s.accounts, normalize(account))
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	out := make([]string, 0, len(s.accounts))
	for a := range s.accounts {
		out = append(out, a)
	}
	s.mu.RUnlock()
	sort.Strings(out)
	return out, nil
}

func (s *MemoryStore) Contains(ctx context.Context, account string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accounts[normalize(account)], nil
}
