package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CostBreakdown is the cost produced by one impact model variant.
type CostBreakdown struct {
	Name    string                     `json:"name"`
	Version int                        `json:"version"`
	Params  map[string]decimal.Decimal `json:"parameters"`
	CostUSD decimal.Decimal            `json:"cost_usd"`
	CostBPS decimal.Decimal            `json:"cost_bps"`
}

// EstimateResult is the terminal outcome of an estimate request, owned
// 1:1 by the request. Corresponds to cost_results table in PostgreSQL.
// Written exactly once, at the terminal transition; immutable afterward.
// ErrorCode/ErrorMessage are populated only for failed requests.
type EstimateResult struct {
	RequestID     uuid.UUID                // PRIMARY KEY, FK to cost_requests
	ADVUSD        decimal.Decimal          // resolved liquidity used
	ResolvedPrice decimal.Decimal          // share price applied
	Models        map[string]CostBreakdown // per-model breakdown, keyed by name
	BestModel     string                   // cheapest model by cost_bps
	TotalCostUSD  decimal.Decimal          // best model's dollar cost
	TotalCostBPS  decimal.Decimal          // best model's cost in basis points
	ErrorCode     string                   // failure taxonomy code, "" on success
	ErrorMessage  string
	ComputedAt    time.Time
}

// Failed reports whether the result records a failure rather than costs.
func (r *EstimateResult) Failed() bool {
	return r.ErrorCode != ""
}
