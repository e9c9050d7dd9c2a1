package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"impact-cost-lab/internal/domain"
	"impact-cost-lab/internal/storage"
)

// LiquidityStore is an in-memory implementation of storage.LiquidityStore.
type LiquidityStore struct {
	mu   sync.RWMutex
	data map[string]*domain.LiquiditySample // keyed by (ticker, date)
}

// NewLiquidityStore creates a new in-memory liquidity store.
func NewLiquidityStore() *LiquidityStore {
	return &LiquidityStore{data: make(map[string]*domain.LiquiditySample)}
}

func liquidityKey(ticker string, date time.Time) string {
	return fmt.Sprintf("%s|%s", ticker, date.Format(domain.DateLayout))
}

// Insert adds a sample. Returns ErrDuplicateKey if (ticker, date) exists.
func (s *LiquidityStore) Insert(_ context.Context, sample *domain.LiquiditySample) error {
	if sample == nil || sample.Ticker == "" || sample.ADVUSD.Sign() <= 0 {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := liquidityKey(sample.Ticker, sample.Date)
	if _, exists := s.data[key]; exists {
		return storage.ErrDuplicateKey
	}

	cp := *sample
	s.data[key] = &cp
	return nil
}

// Get retrieves the sample for a ticker/date.
func (s *LiquidityStore) Get(_ context.Context, ticker string, date time.Time) (*domain.LiquiditySample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sample, ok := s.data[liquidityKey(ticker, date)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *sample
	return &cp, nil
}

var _ storage.LiquidityStore = (*LiquidityStore)(nil)
