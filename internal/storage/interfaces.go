package storage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"impact-cost-lab/internal/domain"
)

// ModelStore provides access to impact_models storage.
// Model rows are reference data: seeded once, immutable apart from
// activation toggling, read-only during estimation.
type ModelStore interface {
	// Insert adds a model definition. Returns ErrDuplicateKey if
	// (name, version) exists.
	Insert(ctx context.Context, m *domain.ImpactModel) error

	// Get retrieves a model by exact (name, version), active or not.
	// Returns ErrNotFound if not exists.
	Get(ctx context.Context, name string, version int) (*domain.ImpactModel, error)

	// GetLatestActive retrieves the highest-version active model for name.
	// Returns ErrNotFound if no active row matches.
	GetLatestActive(ctx context.Context, name string) (*domain.ImpactModel, error)

	// GetActive retrieves all active models ordered by name ASC, version DESC.
	GetActive(ctx context.Context) ([]*domain.ImpactModel, error)

	// SetActive toggles activation for (name, version).
	// Returns ErrNotFound if no such row.
	SetActive(ctx context.Context, name string, version int, active bool) error
}

// LiquidityStore provides access to daily_liquidity storage.
// Append-only: new dates are added, existing rows are not mutated.
type LiquidityStore interface {
	// Insert adds a sample. Returns ErrDuplicateKey if (ticker, date) exists.
	Insert(ctx context.Context, s *domain.LiquiditySample) error

	// Get retrieves the sample for a ticker/date. Returns ErrNotFound
	// if no row exists.
	Get(ctx context.Context, ticker string, date time.Time) (*domain.LiquiditySample, error)
}

// RequestStore provides access to cost_requests and cost_results storage.
// Request/result rows are single-writer-per-key: the submitter creates the
// pending row, exactly one worker advances it afterwards.
type RequestStore interface {
	// CreateRequest persists a new request with status pending.
	// Returns ErrDuplicateKey if the id exists.
	CreateRequest(ctx context.Context, r *domain.EstimateRequest) error

	// GetRequest retrieves a request by id. Returns ErrNotFound if not exists.
	GetRequest(ctx context.Context, id uuid.UUID) (*domain.EstimateRequest, error)

	// TransitionStatus moves a request from one status to another as an
	// atomic compare-and-set. Returns ErrNotFound for an unknown id and
	// ErrInvalidTransition when the stored status is not `from`.
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to domain.Status) error

	// SaveResult durably writes the result and flips the owning request to
	// the terminal status in one atomic step, so no reader can observe a
	// terminal status without its payload. `from` guards the transition the
	// same way TransitionStatus does.
	SaveResult(ctx context.Context, res *domain.EstimateResult, from, to domain.Status) error

	// GetResult retrieves the result owned by a request.
	// Returns ErrNotFound if no result has been written.
	GetResult(ctx context.Context, id uuid.UUID) (*domain.EstimateResult, error)
}

// SymbolStore provides access to the symbols reference table.
type SymbolStore interface {
	// Insert registers a ticker. Idempotent: inserting an existing
	// ticker is a no-op.
	Insert(ctx context.Context, ticker string) error

	// Exists reports whether a ticker is registered.
	Exists(ctx context.Context, ticker string) (bool, error)
}
