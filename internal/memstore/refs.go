package memstore

import (
	"context"
	"sync"
)

// RefStore tracks claimed payment references.
type RefStore struct {
	mu      sync.Mutex
	claimed map[string]bool
}

func NewRefStore() *RefStore {
	return &RefStore{claimed: make(map[string]bool)}
}

func (s *RefStore) Claim(_ context.Context, reference string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.claimed[reference] {
		return false, nil
	}
	s.claimed[reference] = true
	return true, nil
}

func (s *RefStore) Release(_ context.Context, reference string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.claimed, reference)
	return nil
}
