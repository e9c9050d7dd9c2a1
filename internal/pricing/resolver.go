// Package pricing determines the share price applied to an estimate via a
// strict, ordered override chain. There is deliberately no hardcoded
// last-resort price: when nothing in the chain resolves, estimation fails
// closed rather than producing a cost figure from an assumed notional.
package pricing

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"impact-cost-lab/internal/domain"
)

// ErrPriceUnavailable is returned when no override in the chain resolves.
var ErrPriceUnavailable = errors.New("price unavailable: no override resolves")

// CodePriceUnavailable is the taxonomy code recorded for price failures.
const CodePriceUnavailable = "PriceUnavailable"

// Environment keys consumed by FromEnv.
const (
	envPrefix      = "PRICE_"
	envTestDefault = "PRICE_TEST_DEFAULT"
	envDefault     = "DEFAULT_SHARE_PRICE"
)

// source is one step of the chain. ok=false means "no opinion, ask the
// next source".
type source func(ticker string, date time.Time) (decimal.Decimal, bool)

// Resolver resolves share prices through an ordered chain, first match
// wins.
type Resolver struct {
	chain []source
}

// Options configures the chain, highest precedence first:
// per-ticker-per-date override, per-ticker override, test-only default
// (honored only when AllowTestDefault is set), process-wide default.
type Options struct {
	// DatedOverrides is keyed by "<TICKER>|<YYYY-MM-DD>".
	DatedOverrides map[string]decimal.Decimal

	// TickerOverrides is keyed by upper-case ticker.
	TickerOverrides map[string]decimal.Decimal

	// TestDefault is a convenience for non-production contexts only.
	TestDefault *decimal.Decimal

	// AllowTestDefault gates TestDefault; off in production.
	AllowTestDefault bool

	// Default is the process-wide fallback price.
	Default *decimal.Decimal
}

// NewResolver builds the resolver chain from options.
func NewResolver(opts Options) *Resolver {
	r := &Resolver{}

	if len(opts.DatedOverrides) > 0 {
		overrides := opts.DatedOverrides
		r.chain = append(r.chain, func(ticker string, date time.Time) (decimal.Decimal, bool) {
			p, ok := overrides[datedKey(ticker, date)]
			return p, ok
		})
	}
	if len(opts.TickerOverrides) > 0 {
		overrides := opts.TickerOverrides
		r.chain = append(r.chain, func(ticker string, _ time.Time) (decimal.Decimal, bool) {
			p, ok := overrides[strings.ToUpper(ticker)]
			return p, ok
		})
	}
	if opts.AllowTestDefault && opts.TestDefault != nil {
		p := *opts.TestDefault
		r.chain = append(r.chain, func(string, time.Time) (decimal.Decimal, bool) {
			return p, true
		})
	}
	if opts.Default != nil {
		p := *opts.Default
		r.chain = append(r.chain, func(string, time.Time) (decimal.Decimal, bool) {
			return p, true
		})
	}

	return r
}

// Price resolves the share price for a ticker/date. Returns
// ErrPriceUnavailable when nothing in the chain matches.
func (r *Resolver) Price(ticker string, date time.Time) (decimal.Decimal, error) {
	for _, src := range r.chain {
		if p, ok := src(ticker, date); ok {
			if p.Sign() <= 0 {
				continue
			}
			return p, nil
		}
	}
	return decimal.Zero, fmt.Errorf("%s %s: %w", ticker, date.Format(domain.DateLayout), ErrPriceUnavailable)
}

// FromEnv builds Options from the process environment:
//
//	PRICE_<TICKER>_<YYYY-MM-DD>  dated override
//	PRICE_<TICKER>               ticker override
//	PRICE_TEST_DEFAULT           test-only default
//	DEFAULT_SHARE_PRICE          process-wide default
//
// Values that fail to parse as decimals are skipped, never defaulted.
func FromEnv(environ []string, allowTestDefault bool) Options {
	opts := Options{
		DatedOverrides:   make(map[string]decimal.Decimal),
		TickerOverrides:  make(map[string]decimal.Decimal),
		AllowTestDefault: allowTestDefault,
	}

	for _, kv := range environ {
		key, value, found := strings.Cut(kv, "=")
		if !found || value == "" {
			continue
		}

		switch {
		case key == envTestDefault:
			if p, err := decimal.NewFromString(value); err == nil {
				opts.TestDefault = &p
			}
		case key == envDefault:
			if p, err := decimal.NewFromString(value); err == nil {
				opts.Default = &p
			}
		case strings.HasPrefix(key, envPrefix):
			p, err := decimal.NewFromString(value)
			if err != nil {
				continue
			}
			rest := strings.TrimPrefix(key, envPrefix)
			if ticker, date, ok := splitDatedOverride(rest); ok {
				opts.DatedOverrides[datedKey(ticker, date)] = p
			} else {
				opts.TickerOverrides[strings.ToUpper(rest)] = p
			}
		}
	}

	return opts
}

// splitDatedOverride splits "<TICKER>_<YYYY-MM-DD>" key remainders.
func splitDatedOverride(rest string) (string, time.Time, bool) {
	idx := strings.LastIndex(rest, "_")
	if idx <= 0 {
		return "", time.Time{}, false
	}
	date, err := time.Parse(domain.DateLayout, rest[idx+1:])
	if err != nil {
		return "", time.Time{}, false
	}
	return rest[:idx], date, true
}

func datedKey(ticker string, date time.Time) string {
	return strings.ToUpper(ticker) + "|" + date.Format(domain.DateLayout)
}
