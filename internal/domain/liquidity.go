package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the canonical wire/storage format for trade dates.
const DateLayout = "2006-01-02"

// LiquiditySample is the average daily dollar volume for a ticker on a
// trading day. Corresponds to daily_liquidity table in PostgreSQL,
// keyed by (ticker, d). Append-only reference data.
type LiquiditySample struct {
	Ticker string          // FK to symbols
	Date   time.Time       // trading day (date precision)
	ADVUSD decimal.Decimal // average daily dollar volume, > 0
}

// CachedADV is the cache-port payload for an ADV lookup.
type CachedADV struct {
	Ticker   string          `json:"ticker"`
	Date     string          `json:"d"` // DateLayout
	ADVUSD   decimal.Decimal `json:"adv_usd"`
	CachedAt time.Time       `json:"cached_at"`
}

// Sample converts the cached payload back into a LiquiditySample.
func (c *CachedADV) Sample() (*LiquiditySample, error) {
	d, err := time.Parse(DateLayout, c.Date)
	if err != nil {
		return nil, err
	}
	return &LiquiditySample{Ticker: c.Ticker, Date: d, ADVUSD: c.ADVUSD}, nil
}
