// Package cache provides the ADV cache port and its adapters. The cache is
// a pure performance layer: adapter failures are surfaced as errors but
// callers treat any error as a miss and fall through to the durable store.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"impact-cost-lab/internal/domain"
)

// ErrCacheMiss is returned when a key is absent or the adapter failed.
var ErrCacheMiss = errors.New("cache miss")

// ADVCache caches ADV lookups keyed by (ticker, date).
type ADVCache interface {
	// GetADV retrieves a cached ADV payload. Returns ErrCacheMiss when the
	// key is absent; adapter failures may be returned as-is and must be
	// treated as misses.
	GetADV(ctx context.Context, ticker string, date time.Time) (*domain.CachedADV, error)

	// SetADV stores a payload with a bounded TTL.
	SetADV(ctx context.Context, payload *domain.CachedADV, ttl time.Duration) error
}

// Key builds the cache key for a ticker/date pair.
func Key(namespace, ticker string, date time.Time) string {
	return fmt.Sprintf("%s:%s:%s", namespace, strings.ToUpper(ticker), date.Format(domain.DateLayout))
}
