// Package seed provides the reference data set: the two shipped impact
// models plus a handful of symbols and daily liquidity rows for local
// runs. Applying it twice is a no-op.
package seed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"impact-cost-lab/internal/domain"
	"impact-cost-lab/internal/storage"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func day(s string) time.Time {
	d, err := time.Parse(domain.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return d
}

// Models returns the shipped impact model definitions.
func Models() []*domain.ImpactModel {
	return []*domain.ImpactModel{
		{
			Name:    domain.ModelPctADV,
			Version: 1,
			Params:  map[string]decimal.Decimal{"c": dec("0.5"), "cap": dec("0.1")},
			Active:  true,
		},
		{
			Name:    domain.ModelSqrt,
			Version: 1,
			Params:  map[string]decimal.Decimal{"A": dec("25.0"), "B": dec("2.0")},
			Active:  true,
		},
	}
}

// Symbols returns the reference tickers.
func Symbols() []string {
	return []string{"AAPL", "MSFT", "NVDA"}
}

// Liquidity returns sample daily liquidity rows for the reference
// tickers.
func Liquidity() []*domain.LiquiditySample {
	return []*domain.LiquiditySample{
		{Ticker: "AAPL", Date: day("2025-09-19"), ADVUSD: dec("255000000000")},
		{Ticker: "AAPL", Date: day("2025-09-22"), ADVUSD: dec("248000000000")},
		{Ticker: "MSFT", Date: day("2025-09-19"), ADVUSD: dec("110000000000")},
		{Ticker: "MSFT", Date: day("2025-09-22"), ADVUSD: dec("104000000000")},
		{Ticker: "NVDA", Date: day("2025-09-19"), ADVUSD: dec("310000000000")},
	}
}

// Apply inserts the reference data, skipping rows that already exist.
func Apply(ctx context.Context, models storage.ModelStore, symbols storage.SymbolStore, liq storage.LiquidityStore) error {
	for _, m := range Models() {
		if err := models.Insert(ctx, m); err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
			return fmt.Errorf("seed model %s v%d: %w", m.Name, m.Version, err)
		}
	}
	for _, t := range Symbols() {
		if err := symbols.Insert(ctx, t); err != nil {
			return fmt.Errorf("seed symbol %s: %w", t, err)
		}
	}
	for _, s := range Liquidity() {
		if err := liq.Insert(ctx, s); err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
			return fmt.Errorf("seed liquidity %s %s: %w", s.Ticker, s.Date.Format(domain.DateLayout), err)
		}
	}
	return nil
}
