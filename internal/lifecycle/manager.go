// Package lifecycle owns the request state machine from submission to
// terminal result: validation, synchronous price resolution, the pending
// record, and dispatch onto the job queue with a bounded retry policy.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"impact-cost-lab/internal/domain"
	"impact-cost-lab/internal/impact"
	"impact-cost-lab/internal/observability"
	"impact-cost-lab/internal/pricing"
	"impact-cost-lab/internal/queue"
	"impact-cost-lab/internal/storage"
)

// DefaultDispatchDelays is the backoff schedule between queue dispatch
// attempts at submission. Attempts = len(delays) + 1.
var DefaultDispatchDelays = []time.Duration{100 * time.Millisecond, 500 * time.Millisecond, 2 * time.Second}

// SubmitInput is one estimate submission, as received from the boundary.
type SubmitInput struct {
	Ticker       string
	Shares       int64
	Side         domain.Side
	TradeDate    time.Time
	ModelName    string // "" evaluates every active model
	ModelVersion *int   // nil selects the highest active version
}

func (in *SubmitInput) validate() error {
	if strings.TrimSpace(in.Ticker) == "" {
		return fmt.Errorf("ticker is required: %w", ErrInvalidInput)
	}
	if in.Shares <= 0 {
		return fmt.Errorf("shares must be positive, got %d: %w", in.Shares, ErrInvalidInput)
	}
	if !in.Side.Valid() {
		return fmt.Errorf("side %q: %w", in.Side, ErrInvalidInput)
	}
	if in.TradeDate.IsZero() {
		return fmt.Errorf("trade date is required: %w", ErrInvalidInput)
	}
	if in.ModelVersion != nil && in.ModelName == "" {
		return fmt.Errorf("model version without model name: %w", ErrInvalidInput)
	}
	return nil
}

// StatusView is the poll answer for one request: the request itself plus
// its result once a terminal status is reached.
type StatusView struct {
	Request *domain.EstimateRequest
	Result  *domain.EstimateResult // nil while pending/running
}

// Manager validates submissions, persists the pending record and hands the
// compute job to the queue. It is the only writer of the pending status;
// everything after dispatch belongs to the worker.
type Manager struct {
	requests storage.RequestStore
	symbols  storage.SymbolStore
	registry *impact.Registry
	prices   *pricing.Resolver
	jobs     queue.Queue
	delays   []time.Duration
	logger   *zap.Logger
}

// NewManager creates a Manager. dispatchDelays may be nil, which selects
// DefaultDispatchDelays.
func NewManager(
	requests storage.RequestStore,
	symbols storage.SymbolStore,
	registry *impact.Registry,
	prices *pricing.Resolver,
	jobs queue.Queue,
	dispatchDelays []time.Duration,
	logger *zap.Logger,
) *Manager {
	if dispatchDelays == nil {
		dispatchDelays = DefaultDispatchDelays
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		requests: requests,
		symbols:  symbols,
		registry: registry,
		prices:   prices,
		jobs:     jobs,
		delays:   dispatchDelays,
		logger:   logger,
	}
}

// Submit validates the input, resolves the price synchronously, persists
// the request as pending and enqueues the compute job. Validation and
// pricing failures reject the submission before anything is persisted.
// Dispatch exhaustion leaves the request terminally failed and returns
// ErrQueueDispatch together with the id, so the caller can still fetch
// the recorded failure.
func (m *Manager) Submit(ctx context.Context, in SubmitInput) (uuid.UUID, error) {
	if err := in.validate(); err != nil {
		observability.RecordRejection(CodeInvalidInput)
		return uuid.Nil, err
	}
	ticker := strings.ToUpper(strings.TrimSpace(in.Ticker))

	// Model resolution fails fast here so a bad model name or parameter
	// set never produces an orphaned pending record.
	if in.ModelName != "" {
		if _, err := m.registry.Resolve(ctx, in.ModelName, in.ModelVersion); err != nil {
			observability.RecordRejection(impact.Code(err))
			return uuid.Nil, err
		}
	} else {
		if _, err := m.registry.ResolveActive(ctx); err != nil {
			observability.RecordRejection(impact.Code(err))
			return uuid.Nil, err
		}
	}

	price, err := m.prices.Price(ticker, in.TradeDate)
	if err != nil {
		observability.RecordRejection(pricing.CodePriceUnavailable)
		return uuid.Nil, err
	}
	notional := decimal.NewFromInt(in.Shares).Mul(price)

	if err := m.symbols.Insert(ctx, ticker); err != nil {
		return uuid.Nil, fmt.Errorf("register symbol %s: %w", ticker, err)
	}

	req := &domain.EstimateRequest{
		ID:           uuid.New(),
		Ticker:       ticker,
		Shares:       in.Shares,
		Side:         in.Side,
		TradeDate:    in.TradeDate,
		NotionalUSD:  notional,
		ModelName:    in.ModelName,
		ModelVersion: in.ModelVersion,
		Status:       domain.StatusPending,
		CreatedAt:    time.Now().UTC(),
	}
	if err := m.requests.CreateRequest(ctx, req); err != nil {
		return uuid.Nil, fmt.Errorf("create request: %w", err)
	}

	if err := m.dispatch(ctx, req.ID); err != nil {
		return req.ID, err
	}

	observability.RecordSubmission()
	m.logger.Info("estimate request submitted",
		zap.String("request_id", req.ID.String()),
		zap.String("ticker", ticker),
		zap.Int64("shares", in.Shares),
		zap.String("side", string(in.Side)))
	return req.ID, nil
}

// dispatch hands the job to the queue, retrying per the backoff schedule.
// Exhaustion marks the request failed with the last dispatch error.
func (m *Manager) dispatch(ctx context.Context, id uuid.UUID) error {
	job := &queue.Job{RequestID: id, EnqueuedAt: time.Now().UTC()}

	var lastErr error
	for attempt := 0; attempt <= len(m.delays); attempt++ {
		if attempt > 0 {
			observability.RecordEnqueueRetry()
			select {
			case <-ctx.Done():
				lastErr = ctx.Err()
				return m.failDispatch(id, lastErr)
			case <-time.After(m.delays[attempt-1]):
			}
		}
		if lastErr = m.jobs.Enqueue(ctx, job); lastErr == nil {
			return nil
		}
		m.logger.Warn("queue dispatch failed",
			zap.String("request_id", id.String()),
			zap.Int("attempt", attempt),
			zap.Error(lastErr))
	}
	return m.failDispatch(id, lastErr)
}

// failDispatch records dispatch exhaustion as the terminal outcome.
// The result write uses a background context so the failure is still
// durably recorded when the caller's context is already done.
func (m *Manager) failDispatch(id uuid.UUID, cause error) error {
	res := &domain.EstimateResult{
		RequestID:    id,
		ErrorCode:    CodeQueueDispatch,
		ErrorMessage: cause.Error(),
		ComputedAt:   time.Now().UTC(),
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.requests.SaveResult(ctx, res, domain.StatusPending, domain.StatusFailed); err != nil {
		m.logger.Error("recording dispatch failure failed",
			zap.String("request_id", id.String()),
			zap.Error(err))
	}
	observability.RecordRejection(CodeQueueDispatch)
	return fmt.Errorf("request %s: %w: %v", id, ErrQueueDispatch, cause)
}

// Fetch returns the request and, once terminal, its result.
func (m *Manager) Fetch(ctx context.Context, id uuid.UUID) (*StatusView, error) {
	req, err := m.requests.GetRequest(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("request %s: %w", id, ErrRequestNotFound)
		}
		return nil, fmt.Errorf("fetch request %s: %w", id, err)
	}

	view := &StatusView{Request: req}
	if !req.Status.Terminal() {
		return view, nil
	}

	res, err := m.requests.GetResult(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("fetch result %s: %w", id, err)
	}
	view.Result = res
	return view, nil
}
