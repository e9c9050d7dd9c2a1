package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Side is the direction of the trade being estimated.
type Side string

// Trade sides
const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Valid reports whether the side is one of the known values.
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// Status is the lifecycle state of an estimate request.
type Status string

// Request lifecycle states
const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no further transition is allowed from s.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// CanTransitionTo reports whether s -> next is a legal lifecycle move.
// pending may fail directly when dispatch or queueing gives up before a
// worker ever claims the request.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusRunning || next == StatusFailed
	case StatusRunning:
		return next == StatusSucceeded || next == StatusFailed
	default:
		return false
	}
}

// EstimateRequest is a submitted cost-estimation request.
// Corresponds to cost_requests table in PostgreSQL. The request id is
// generated once at submission and is the sole retrieval key; logically
// identical submissions get independent ids.
type EstimateRequest struct {
	ID           uuid.UUID       // PRIMARY KEY
	Ticker       string          // FK to symbols
	Shares       int64           // > 0
	Side         Side            // "buy" | "sell"
	TradeDate    time.Time       // trading day (date precision)
	NotionalUSD  decimal.Decimal // shares * resolved price, > 0
	ModelName    string          // requested model, "" = all active models
	ModelVersion *int            // requested version, nil = highest active
	Status       Status
	CreatedAt    time.Time
}
