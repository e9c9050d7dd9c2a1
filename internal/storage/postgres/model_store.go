package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"impact-cost-lab/internal/domain"
	"impact-cost-lab/internal/storage"
)

// ModelStore implements storage.ModelStore using PostgreSQL.
type ModelStore struct {
	pool *Pool
}

// NewModelStore creates a new ModelStore.
func NewModelStore(pool *Pool) *ModelStore {
	return &ModelStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ModelStore = (*ModelStore)(nil)

const modelColumns = `name, version, params::text, active, created_at`

// Insert adds a model definition. Returns ErrDuplicateKey if (name, version) exists.
func (s *ModelStore) Insert(ctx context.Context, m *domain.ImpactModel) error {
	if m == nil || m.Name == "" || m.Version < 1 {
		return storage.ErrInvalidInput
	}

	params, err := json.Marshal(m.Params)
	if err != nil {
		return fmt.Errorf("marshal model params: %w", err)
	}

	query := `
		INSERT INTO impact_models (name, version, params, active)
		VALUES ($1, $2, $3::jsonb, $4)
	`

	_, err = s.pool.Exec(ctx, query, m.Name, m.Version, string(params), m.Active)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert impact model: %w", err)
	}
	return nil
}

// Get retrieves a model by exact (name, version), active or not.
func (s *ModelStore) Get(ctx context.Context, name string, version int) (*domain.ImpactModel, error) {
	query := `
		SELECT ` + modelColumns + `
		FROM impact_models
		WHERE name = $1 AND version = $2
	`

	m, err := scanModel(s.pool.QueryRow(ctx, query, name, version))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get impact model: %w", err)
	}
	return m, nil
}

// GetLatestActive retrieves the highest-version active model for name.
func (s *ModelStore) GetLatestActive(ctx context.Context, name string) (*domain.ImpactModel, error) {
	query := `
		SELECT ` + modelColumns + `
		FROM impact_models
		WHERE name = $1 AND active = true
		ORDER BY version DESC
		LIMIT 1
	`

	m, err := scanModel(s.pool.QueryRow(ctx, query, name))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get latest active model: %w", err)
	}
	return m, nil
}

// GetActive retrieves all active models ordered by name ASC, version DESC.
func (s *ModelStore) GetActive(ctx context.Context) ([]*domain.ImpactModel, error) {
	query := `
		SELECT ` + modelColumns + `
		FROM impact_models
		WHERE active = true
		ORDER BY name ASC, version DESC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("get active models: %w", err)
	}
	defer rows.Close()

	var models []*domain.ImpactModel
	for rows.Next() {
		m, err := scanModel(rows)
		if err != nil {
			return nil, fmt.Errorf("scan active model: %w", err)
		}
		models = append(models, m)
	}
	return models, rows.Err()
}

// SetActive toggles activation for (name, version).
func (s *ModelStore) SetActive(ctx context.Context, name string, version int, active bool) error {
	query := `UPDATE impact_models SET active = $3 WHERE name = $1 AND version = $2`

	tag, err := s.pool.Exec(ctx, query, name, version, active)
	if err != nil {
		return fmt.Errorf("set model active: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// scanModel scans a single model row.
func scanModel(row pgx.Row) (*domain.ImpactModel, error) {
	var (
		m          domain.ImpactModel
		paramsJSON string
		createdAt  time.Time
	)
	if err := row.Scan(&m.Name, &m.Version, &paramsJSON, &m.Active, &createdAt); err != nil {
		return nil, err
	}

	m.Params = make(map[string]decimal.Decimal)
	if err := json.Unmarshal([]byte(paramsJSON), &m.Params); err != nil {
		return nil, fmt.Errorf("unmarshal model params: %w", err)
	}
	m.CreatedAt = createdAt
	return &m, nil
}
