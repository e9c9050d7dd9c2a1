package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ImpactModel is a versioned, parameterized cost-model definition.
// Corresponds to impact_models table in PostgreSQL, keyed by (name, version).
type ImpactModel struct {
	Name      string                     // "pct_adv" | "sqrt"
	Version   int                        // >= 1
	Params    map[string]decimal.Decimal // named numeric coefficients
	Active    bool                       // lookups select active models only
	CreatedAt time.Time                  // record creation timestamp
}

// Known model names
const (
	ModelPctADV = "pct_adv"
	ModelSqrt   = "sqrt"
)

// Param returns the named coefficient and whether it is present.
func (m *ImpactModel) Param(name string) (decimal.Decimal, bool) {
	v, ok := m.Params[name]
	return v, ok
}
