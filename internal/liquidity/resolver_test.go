package liquidity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"impact-cost-lab/internal/cache"
	"impact-cost-lab/internal/domain"
	"impact-cost-lab/internal/storage/memory"
)

var testDate = time.Date(2025, 9, 19, 0, 0, 0, 0, time.UTC)

// failingCache always errors, to exercise the fail-open path.
type failingCache struct{}

func (failingCache) GetADV(context.Context, string, time.Time) (*domain.CachedADV, error) {
	return nil, errors.New("redis: connection refused")
}

func (failingCache) SetADV(context.Context, *domain.CachedADV, time.Duration) error {
	return errors.New("redis: connection refused")
}

// countingStore wraps the memory store and counts durable reads.
type countingStore struct {
	*memory.LiquidityStore
	gets int
}

func (s *countingStore) Get(ctx context.Context, ticker string, date time.Time) (*domain.LiquiditySample, error) {
	s.gets++
	return s.LiquidityStore.Get(ctx, ticker, date)
}

func seedStore(t *testing.T) *memory.LiquidityStore {
	t.Helper()
	store := memory.NewLiquidityStore()
	err := store.Insert(context.Background(), &domain.LiquiditySample{
		Ticker: "AAPL",
		Date:   testDate,
		ADVUSD: decimal.RequireFromString("255000000000"),
	})
	require.NoError(t, err)
	return store
}

func TestResolver_CacheMissPopulatesCache(t *testing.T) {
	ctx := context.Background()
	store := &countingStore{LiquidityStore: seedStore(t)}
	advCache := cache.NewMemoryCache()
	r := NewResolver(store, advCache, time.Minute, nil)

	first, err := r.ADV(ctx, "AAPL", testDate)
	require.NoError(t, err)
	assert.True(t, first.ADVUSD.Equal(decimal.RequireFromString("255000000000")))
	assert.Equal(t, 1, store.gets)

	// Second lookup is served by the cache and returns the same value.
	second, err := r.ADV(ctx, "AAPL", testDate)
	require.NoError(t, err)
	assert.True(t, second.ADVUSD.Equal(first.ADVUSD), "lookups must be idempotent")
	assert.Equal(t, 1, store.gets, "second lookup must not hit the durable store")
}

func TestResolver_NotFound(t *testing.T) {
	r := NewResolver(memory.NewLiquidityStore(), cache.NewMemoryCache(), time.Minute, nil)

	_, err := r.ADV(context.Background(), "ZZZZ", testDate)
	assert.ErrorIs(t, err, ErrADVNotAvailable)
}

func TestResolver_CacheFailureFallsThrough(t *testing.T) {
	store := &countingStore{LiquidityStore: seedStore(t)}
	r := NewResolver(store, failingCache{}, time.Minute, nil)

	sample, err := r.ADV(context.Background(), "AAPL", testDate)
	require.NoError(t, err, "cache failure must not change correctness")
	assert.True(t, sample.ADVUSD.Equal(decimal.RequireFromString("255000000000")))
	assert.Equal(t, 1, store.gets)
}

func TestResolver_NilCacheMeansDurableOnly(t *testing.T) {
	store := &countingStore{LiquidityStore: seedStore(t)}
	r := NewResolver(store, nil, time.Minute, nil)

	for i := 0; i < 2; i++ {
		_, err := r.ADV(context.Background(), "AAPL", testDate)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, store.gets)
}
