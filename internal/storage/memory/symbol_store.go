package memory

import (
	"context"
	"sync"

	"impact-cost-lab/internal/storage"
)

// SymbolStore is an in-memory implementation of storage.SymbolStore.
type SymbolStore struct {
	mu   sync.RWMutex
	data map[string]struct{}
}

// NewSymbolStore creates a new in-memory symbol store.
func NewSymbolStore() *SymbolStore {
	return &SymbolStore{data: make(map[string]struct{})}
}

// Insert registers a ticker. Inserting an existing ticker is a no-op.
func (s *SymbolStore) Insert(_ context.Context, ticker string) error {
	if ticker == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[ticker] = struct{}{}
	return nil
}

// Exists reports whether a ticker is registered.
func (s *SymbolStore) Exists(_ context.Context, ticker string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.data[ticker]
	return ok, nil
}

var _ storage.SymbolStore = (*SymbolStore)(nil)
