// Package impact implements the cost-model engine: a registry resolving
// versioned model definitions and the pure calculators behind them.
//
// Dollar-valued fields stay in exact decimal arithmetic end to end; only
// the square-root term of the sqrt model goes through float64, since it is
// expressed in basis points rather than currency.
package impact

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"impact-cost-lab/internal/domain"
)

var bpsPerUnit = decimal.NewFromInt(10000)

// PctADVCost computes the pct_adv model: participation q is the traded
// notional as a fraction of daily dollar volume, clamped at cap when a cap
// is set, and cost is c * q of the notional.
//
//	cost_usd = c * min(notional/adv, cap) * notional
//	cost_bps = c * min(notional/adv, cap) * 10000
func PctADVCost(notionalUSD, advUSD, c decimal.Decimal, cap *decimal.Decimal) (costUSD, costBPS decimal.Decimal, err error) {
	if notionalUSD.Sign() <= 0 {
		return decimal.Zero, decimal.Zero, fmt.Errorf("notional %s: %w", notionalUSD, ErrInvalidTradeInput)
	}
	if advUSD.Sign() <= 0 {
		return decimal.Zero, decimal.Zero, fmt.Errorf("adv_usd %s: %w", advUSD, ErrInvalidLiquidity)
	}

	q := notionalUSD.Div(advUSD)
	if cap != nil && q.GreaterThan(*cap) {
		q = *cap
	}

	impact := c.Mul(q)
	return notionalUSD.Mul(impact), impact.Mul(bpsPerUnit), nil
}

// SqrtCost computes the sqrt model: cost in basis points grows with the
// square root of the share count relative to daily share volume.
//
//	cost_bps = a * sqrt(shares/adv_shares) + b
//	cost_usd = notional * cost_bps / 10000
//
// advShares is ADV expressed in shares; callers holding only the dollar
// figure derive it as adv_usd / price.
func SqrtCost(shares int64, advShares, price, a, b decimal.Decimal) (costUSD, costBPS decimal.Decimal, err error) {
	if shares <= 0 {
		return decimal.Zero, decimal.Zero, fmt.Errorf("shares %d: %w", shares, ErrInvalidTradeInput)
	}
	if advShares.Sign() <= 0 {
		return decimal.Zero, decimal.Zero, fmt.Errorf("adv_shares %s: %w", advShares, ErrInvalidLiquidity)
	}
	if price.Sign() <= 0 {
		return decimal.Zero, decimal.Zero, fmt.Errorf("price %s: %w", price, ErrInvalidTradeInput)
	}

	ratio, _ := decimal.NewFromInt(shares).Div(advShares).Float64()
	costBPS = a.Mul(decimal.NewFromFloat(math.Sqrt(ratio))).Add(b)

	notional := decimal.NewFromInt(shares).Mul(price)
	return notional.Mul(costBPS).Div(bpsPerUnit), costBPS, nil
}

// Compute dispatches to the calculator matching the model's name and
// returns the per-model cost breakdown. The model is assumed to be
// registry-validated; parameter presence is not re-checked here.
func Compute(m *domain.ImpactModel, shares int64, price, advUSD decimal.Decimal) (domain.CostBreakdown, error) {
	bd := domain.CostBreakdown{Name: m.Name, Version: m.Version, Params: m.Params}

	switch m.Name {
	case domain.ModelPctADV:
		c := m.Params[paramC]
		var cap *decimal.Decimal
		if v, ok := m.Param(paramCap); ok {
			cap = &v
		}
		notional := decimal.NewFromInt(shares).Mul(price)
		usd, bps, err := PctADVCost(notional, advUSD, c, cap)
		if err != nil {
			return domain.CostBreakdown{}, err
		}
		bd.CostUSD, bd.CostBPS = usd, bps
		return bd, nil

	case domain.ModelSqrt:
		if price.Sign() <= 0 {
			return domain.CostBreakdown{}, fmt.Errorf("price %s: %w", price, ErrInvalidTradeInput)
		}
		advShares := advUSD.Div(price)
		usd, bps, err := SqrtCost(shares, advShares, price, m.Params[paramA], m.Params[paramB])
		if err != nil {
			return domain.CostBreakdown{}, err
		}
		bd.CostUSD, bd.CostBPS = usd, bps
		return bd, nil

	default:
		return domain.CostBreakdown{}, fmt.Errorf("model %q: %w", m.Name, ErrModelNotFound)
	}
}
