package postgres

import (
	"context"
	"fmt"

	"impact-cost-lab/internal/storage"
)

// SymbolStore implements storage.SymbolStore using PostgreSQL.
type SymbolStore struct {
	pool *Pool
}

// NewSymbolStore creates a new SymbolStore.
func NewSymbolStore(pool *Pool) *SymbolStore {
	return &SymbolStore{pool: pool}
}

// Compile-time interface check.
var _ storage.SymbolStore = (*SymbolStore)(nil)

// Insert registers a ticker. Inserting an existing ticker is a no-op.
func (s *SymbolStore) Insert(ctx context.Context, ticker string) error {
	if ticker == "" {
		return storage.ErrInvalidInput
	}

	query := `INSERT INTO symbols (ticker) VALUES ($1) ON CONFLICT (ticker) DO NOTHING`

	if _, err := s.pool.Exec(ctx, query, ticker); err != nil {
		return fmt.Errorf("insert symbol: %w", err)
	}
	return nil
}

// Exists reports whether a ticker is registered.
func (s *SymbolStore) Exists(ctx context.Context, ticker string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM symbols WHERE ticker = $1)`, ticker,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check symbol exists: %w", err)
	}
	return exists, nil
}
