package cache

import (
	"context"
	"sync"
	"time"

	"impact-cost-lab/internal/domain"
)

// MemoryCache is an in-memory implementation of ADVCache with per-entry
// expiry, used in tests and single-process deployments.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	payload   domain.CachedADV
	expiresAt time.Time // zero = no expiry
}

// NewMemoryCache creates a new in-memory ADV cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// Compile-time interface check.
var _ ADVCache = (*MemoryCache)(nil)

// GetADV retrieves a cached ADV payload.
func (c *MemoryCache) GetADV(_ context.Context, ticker string, date time.Time) (*domain.CachedADV, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[Key(DefaultNamespace, ticker, date)]
	if !ok {
		return nil, ErrCacheMiss
	}
	if !entry.expiresAt.IsZero() && c.now().After(entry.expiresAt) {
		return nil, ErrCacheMiss
	}

	cp := entry.payload
	return &cp, nil
}

// SetADV stores a payload with a bounded TTL.
func (c *MemoryCache) SetADV(_ context.Context, payload *domain.CachedADV, ttl time.Duration) error {
	date, err := time.Parse(domain.DateLayout, payload.Date)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entry := memoryEntry{payload: *payload}
	if ttl > 0 {
		entry.expiresAt = c.now().Add(ttl)
	}
	c.entries[Key(DefaultNamespace, payload.Ticker, date)] = entry
	return nil
}
