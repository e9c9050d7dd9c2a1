package impact

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"impact-cost-lab/internal/domain"
	"impact-cost-lab/internal/storage"
)

// Model parameter names
const (
	paramC   = "c"   // pct_adv impact coefficient, >= 0
	paramCap = "cap" // pct_adv participation cap, optional, in (0, 1]
	paramA   = "A"   // sqrt coefficient, required
	paramB   = "B"   // sqrt intercept, required
)

var decimalOne = decimal.NewFromInt(1)

// Registry resolves (name, version) pairs to active, parameter-validated
// impact models. Validation happens once here, at resolve time, so the
// compute path can assume well-formed parameters.
type Registry struct {
	models storage.ModelStore
}

// NewRegistry creates a Registry backed by the given model store.
func NewRegistry(models storage.ModelStore) *Registry {
	return &Registry{models: models}
}

// Resolve returns the active model for name. A nil version selects the
// highest-version active row. Returns ErrModelNotFound when nothing
// matches and ErrInvalidModelParams when the stored parameter set is
// malformed.
func (r *Registry) Resolve(ctx context.Context, name string, version *int) (*domain.ImpactModel, error) {
	var (
		m   *domain.ImpactModel
		err error
	)
	if version == nil {
		m, err = r.models.GetLatestActive(ctx, name)
	} else {
		m, err = r.models.Get(ctx, name, *version)
		if err == nil && !m.Active {
			return nil, fmt.Errorf("model %s v%d is inactive: %w", name, *version, ErrModelNotFound)
		}
	}
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("model %s: %w", name, ErrModelNotFound)
		}
		return nil, fmt.Errorf("resolve model %s: %w", name, err)
	}

	if err := ValidateParams(m); err != nil {
		return nil, err
	}
	return m, nil
}

// ResolveActive returns every active model with validated parameters,
// used when a submission names no model and all variants are evaluated.
func (r *Registry) ResolveActive(ctx context.Context) ([]*domain.ImpactModel, error) {
	models, err := r.models.GetActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active models: %w", err)
	}

	// Keep only the highest version per name; GetActive orders version DESC.
	seen := make(map[string]struct{}, len(models))
	var out []*domain.ImpactModel
	for _, m := range models {
		if _, ok := seen[m.Name]; ok {
			continue
		}
		seen[m.Name] = struct{}{}
		if err := ValidateParams(m); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no active models: %w", ErrModelNotFound)
	}
	return out, nil
}

// ValidateParams checks parameter presence and ranges for a model.
// Fails fast with ErrInvalidModelParams so compute never sees a
// half-formed model.
func ValidateParams(m *domain.ImpactModel) error {
	switch m.Name {
	case domain.ModelPctADV:
		c, ok := m.Param(paramC)
		if !ok {
			return fmt.Errorf("pct_adv v%d missing %q: %w", m.Version, paramC, ErrInvalidModelParams)
		}
		if c.Sign() < 0 {
			return fmt.Errorf("pct_adv v%d: c must be non-negative, got %s: %w", m.Version, c, ErrInvalidModelParams)
		}
		if cap, ok := m.Param(paramCap); ok {
			if cap.Sign() <= 0 || cap.GreaterThan(decimalOne) {
				return fmt.Errorf("pct_adv v%d: cap must be in (0, 1], got %s: %w", m.Version, cap, ErrInvalidModelParams)
			}
		}
		return nil

	case domain.ModelSqrt:
		if _, ok := m.Param(paramA); !ok {
			return fmt.Errorf("sqrt v%d missing %q: %w", m.Version, paramA, ErrInvalidModelParams)
		}
		if _, ok := m.Param(paramB); !ok {
			return fmt.Errorf("sqrt v%d missing %q: %w", m.Version, paramB, ErrInvalidModelParams)
		}
		return nil

	default:
		return fmt.Errorf("model %q: %w", m.Name, ErrModelNotFound)
	}
}
