package store

import (
	"context"
	"sync"

	"github.com/tradelab/sim-engine/internal/model"
)

// MemoryStore implements Store with an in-memory map. Used for testing and
// development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu         sync.RWMutex
	portfolios map[string]*model.Portfolio
	saves      int
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		portfolios: make(map[string]*model.Portfolio),
	}
}

func (s *MemoryStore) LoadPortfolio(_ context.Context, userID string) (*model.Portfolio, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.portfolios[userID]
	if !ok {
		return nil, ErrNotFound
	}
	if err := Validate(p); err != nil {
		return nil, err
	}
	return p.Clone(), nil
}

func (s *MemoryStore) SavePortfolio(_ context.Context, userID string, p *model.Portfolio) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Store a copy to avoid external mutation.
	s.portfolios[userID] = p.Clone()
	s.saves++
	return nil
}

// SaveCount reports how many saves have been applied. Test hook for
// verifying debounced persistence.
func (s *MemoryStore) SaveCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}
