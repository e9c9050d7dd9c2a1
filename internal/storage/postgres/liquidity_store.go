package postgres

import (
	"context"
	"fmt"
	"time"

	"impact-cost-lab/internal/domain"
	"impact-cost-lab/internal/storage"
)

// LiquidityStore implements storage.LiquidityStore using PostgreSQL.
type LiquidityStore struct {
	pool *Pool
}

// NewLiquidityStore creates a new LiquidityStore.
func NewLiquidityStore(pool *Pool) *LiquidityStore {
	return &LiquidityStore{pool: pool}
}

// Compile-time interface check.
var _ storage.LiquidityStore = (*LiquidityStore)(nil)

// Insert adds a sample. Returns ErrDuplicateKey if (ticker, date) exists.
func (s *LiquidityStore) Insert(ctx context.Context, sample *domain.LiquiditySample) error {
	if sample == nil || sample.Ticker == "" || sample.ADVUSD.Sign() <= 0 {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO daily_liquidity (ticker, d, adv_usd)
		VALUES ($1, $2, $3::numeric)
	`

	_, err := s.pool.Exec(ctx, query, sample.Ticker, sample.Date, sample.ADVUSD.String())
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert liquidity sample: %w", err)
	}
	return nil
}

// Get retrieves the sample for a ticker/date.
func (s *LiquidityStore) Get(ctx context.Context, ticker string, date time.Time) (*domain.LiquiditySample, error) {
	query := `
		SELECT ticker, d, adv_usd::text
		FROM daily_liquidity
		WHERE ticker = $1 AND d = $2
	`

	var (
		sample domain.LiquiditySample
		advRaw string
	)
	err := s.pool.QueryRow(ctx, query, ticker, date).Scan(&sample.Ticker, &sample.Date, &advRaw)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get liquidity sample: %w", err)
	}

	sample.ADVUSD, err = scanDecimal(advRaw)
	if err != nil {
		return nil, err
	}
	return &sample, nil
}
