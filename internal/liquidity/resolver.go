// Package liquidity resolves average-daily-volume figures for estimation,
// preferring the cache and falling back to the durable store. The cache is
// strictly a latency optimization: correctness never depends on it.
package liquidity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"impact-cost-lab/internal/cache"
	"impact-cost-lab/internal/domain"
	"impact-cost-lab/internal/observability"
	"impact-cost-lab/internal/storage"
)

// ErrADVNotAvailable is returned when no liquidity data exists for a
// ticker/date. There is no silent default.
var ErrADVNotAvailable = errors.New("no liquidity data for ticker/date")

// CodeADVNotAvailable is the taxonomy code recorded for ADV failures.
const CodeADVNotAvailable = "AdvNotAvailable"

// DefaultTTL bounds how long a cached ADV entry lives.
const DefaultTTL = 15 * time.Minute

// Resolver fetches ADV for a ticker/date, cache first.
type Resolver struct {
	store  storage.LiquidityStore
	cache  cache.ADVCache
	ttl    time.Duration
	logger *zap.Logger
}

// NewResolver creates a Resolver. cache may be nil, which disables
// caching entirely; ttl <= 0 falls back to DefaultTTL.
func NewResolver(store storage.LiquidityStore, advCache cache.ADVCache, ttl time.Duration, logger *zap.Logger) *Resolver {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{store: store, cache: advCache, ttl: ttl, logger: logger}
}

// ADV returns the liquidity sample for a ticker/date. Cache failures are
// treated as misses and the durable store is consulted; a missing durable
// row fails with ErrADVNotAvailable.
func (r *Resolver) ADV(ctx context.Context, ticker string, date time.Time) (*domain.LiquiditySample, error) {
	if r.cache != nil {
		cached, err := r.cache.GetADV(ctx, ticker, date)
		if err == nil {
			if sample, serr := cached.Sample(); serr == nil {
				observability.RecordADVCache(true)
				return sample, nil
			}
			// Corrupt payload: fall through to the store.
		} else if !errors.Is(err, cache.ErrCacheMiss) {
			r.logger.Debug("adv cache read failed, treating as miss",
				zap.String("ticker", ticker),
				zap.Error(err))
		}
	}

	observability.RecordADVCache(false)
	sample, err := r.store.Get(ctx, ticker, date)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%s %s: %w", ticker, date.Format(domain.DateLayout), ErrADVNotAvailable)
		}
		return nil, fmt.Errorf("liquidity store: %w", err)
	}

	if r.cache != nil {
		payload := &domain.CachedADV{
			Ticker:   sample.Ticker,
			Date:     sample.Date.Format(domain.DateLayout),
			ADVUSD:   sample.ADVUSD,
			CachedAt: time.Now().UTC(),
		}
		if err := r.cache.SetADV(ctx, payload, r.ttl); err != nil {
			r.logger.Debug("adv cache write failed",
				zap.String("ticker", ticker),
				zap.Error(err))
		}
	}

	return sample, nil
}
