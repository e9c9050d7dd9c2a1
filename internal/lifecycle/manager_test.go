package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"impact-cost-lab/internal/domain"
	"impact-cost-lab/internal/impact"
	"impact-cost-lab/internal/pricing"
	"impact-cost-lab/internal/queue"
	"impact-cost-lab/internal/storage"
	"impact-cost-lab/internal/storage/memory"
)

var tradeDate = time.Date(2025, 9, 19, 0, 0, 0, 0, time.UTC)

// countingRequests wraps the memory request store and counts creates, so
// tests can assert that rejected submissions persist nothing.
type countingRequests struct {
	*memory.RequestStore
	creates int
}

func (s *countingRequests) CreateRequest(ctx context.Context, r *domain.EstimateRequest) error {
	s.creates++
	return s.RequestStore.CreateRequest(ctx, r)
}

// failingQueue rejects every dispatch.
type failingQueue struct{}

func (failingQueue) Enqueue(context.Context, *queue.Job) error {
	return queue.ErrDispatchFailure
}

func (failingQueue) EnqueueDelayed(context.Context, *queue.Job, time.Duration) error {
	return queue.ErrDispatchFailure
}

func (failingQueue) Dequeue(ctx context.Context) (*queue.Job, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type fixture struct {
	manager  *Manager
	requests *countingRequests
	symbols  *memory.SymbolStore
	jobs     *queue.MemoryQueue
}

func newFixture(t *testing.T, jobs queue.Queue) *fixture {
	t.Helper()
	ctx := context.Background()

	models := memory.NewModelStore()
	require.NoError(t, models.Insert(ctx, &domain.ImpactModel{
		Name:    domain.ModelPctADV,
		Version: 1,
		Params:  map[string]decimal.Decimal{"c": decimal.RequireFromString("0.5"), "cap": decimal.RequireFromString("0.1")},
		Active:  true,
	}))

	prices := pricing.NewResolver(pricing.Options{
		TickerOverrides: map[string]decimal.Decimal{"AAPL": decimal.RequireFromString("200")},
	})

	f := &fixture{
		requests: &countingRequests{RequestStore: memory.NewRequestStore()},
		symbols:  memory.NewSymbolStore(),
	}
	if mq, ok := jobs.(*queue.MemoryQueue); ok {
		f.jobs = mq
	}
	f.manager = NewManager(f.requests, f.symbols, impact.NewRegistry(models), prices, jobs, []time.Duration{time.Millisecond}, nil)
	return f
}

func TestSubmit_PersistsPendingAndEnqueues(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, queue.NewMemoryQueue(4))

	id, err := f.manager.Submit(ctx, SubmitInput{
		Ticker:    "aapl",
		Shares:    1000,
		Side:      domain.SideBuy,
		TradeDate: tradeDate,
	})
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, id)

	req, err := f.requests.GetRequest(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, req.Status)
	assert.Equal(t, "AAPL", req.Ticker)
	assert.True(t, req.NotionalUSD.Equal(decimal.RequireFromString("200000")), "notional = %s", req.NotionalUSD)

	registered, err := f.symbols.Exists(ctx, "AAPL")
	require.NoError(t, err)
	assert.True(t, registered)

	job, err := f.jobs.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, id, job.RequestID)
	assert.Equal(t, 0, job.Attempt)
}

func TestSubmit_DistinctIDsPerSubmission(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, queue.NewMemoryQueue(4))
	in := SubmitInput{Ticker: "AAPL", Shares: 1000, Side: domain.SideBuy, TradeDate: tradeDate}

	first, err := f.manager.Submit(ctx, in)
	require.NoError(t, err)
	second, err := f.manager.Submit(ctx, in)
	require.NoError(t, err)

	assert.NotEqual(t, first, second, "identical parameters still get independent request ids")
}

func TestSubmit_InvalidInput(t *testing.T) {
	f := newFixture(t, queue.NewMemoryQueue(4))

	cases := []SubmitInput{
		{Ticker: "", Shares: 1000, Side: domain.SideBuy, TradeDate: tradeDate},
		{Ticker: "AAPL", Shares: 0, Side: domain.SideBuy, TradeDate: tradeDate},
		{Ticker: "AAPL", Shares: 1000, Side: "hold", TradeDate: tradeDate},
		{Ticker: "AAPL", Shares: 1000, Side: domain.SideBuy},
		{Ticker: "AAPL", Shares: 1000, Side: domain.SideBuy, TradeDate: tradeDate, ModelVersion: ptr(1)},
	}
	for _, in := range cases {
		_, err := f.manager.Submit(context.Background(), in)
		assert.ErrorIs(t, err, ErrInvalidInput, "input %+v", in)
	}
	assert.Zero(t, f.requests.creates, "rejected submissions must not be persisted")
}

func TestSubmit_UnknownModelRejectedSynchronously(t *testing.T) {
	f := newFixture(t, queue.NewMemoryQueue(4))

	_, err := f.manager.Submit(context.Background(), SubmitInput{
		Ticker:    "AAPL",
		Shares:    1000,
		Side:      domain.SideBuy,
		TradeDate: tradeDate,
		ModelName: "vwap",
	})
	assert.ErrorIs(t, err, impact.ErrModelNotFound)
	assert.Zero(t, f.requests.creates)
}

func TestSubmit_NoPriceRejectsBeforePersisting(t *testing.T) {
	f := newFixture(t, queue.NewMemoryQueue(4))

	// TSLA has no override anywhere in the chain.
	_, err := f.manager.Submit(context.Background(), SubmitInput{
		Ticker:    "TSLA",
		Shares:    1000,
		Side:      domain.SideSell,
		TradeDate: tradeDate,
	})
	assert.ErrorIs(t, err, pricing.ErrPriceUnavailable)
	assert.Zero(t, f.requests.creates, "no orphaned pending record")

	registered, err := f.symbols.Exists(context.Background(), "TSLA")
	require.NoError(t, err)
	assert.False(t, registered)
}

func TestSubmit_DispatchExhaustionMarksFailed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, failingQueue{})

	id, err := f.manager.Submit(ctx, SubmitInput{
		Ticker:    "AAPL",
		Shares:    1000,
		Side:      domain.SideBuy,
		TradeDate: tradeDate,
	})
	require.ErrorIs(t, err, ErrQueueDispatch)
	require.NotEqual(t, uuid.Nil, id, "the failed request is still fetchable")

	view, err := f.manager.Fetch(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, view.Request.Status)
	require.NotNil(t, view.Result)
	assert.Equal(t, CodeQueueDispatch, view.Result.ErrorCode)
	assert.True(t, view.Result.Failed())
}

func TestFetch_Unknown(t *testing.T) {
	f := newFixture(t, queue.NewMemoryQueue(4))

	_, err := f.manager.Fetch(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrRequestNotFound)
}

func TestFetch_NonTerminalHasNoResult(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, queue.NewMemoryQueue(4))

	id, err := f.manager.Submit(ctx, SubmitInput{
		Ticker:    "AAPL",
		Shares:    1000,
		Side:      domain.SideBuy,
		TradeDate: tradeDate,
	})
	require.NoError(t, err)

	view, err := f.manager.Fetch(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, view.Request.Status)
	assert.Nil(t, view.Result)
}

func ptr[T any](v T) *T { return &v }

var _ storage.RequestStore = (*countingRequests)(nil)
