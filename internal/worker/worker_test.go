package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"impact-cost-lab/internal/cache"
	"impact-cost-lab/internal/domain"
	"impact-cost-lab/internal/impact"
	"impact-cost-lab/internal/liquidity"
	"impact-cost-lab/internal/queue"
	"impact-cost-lab/internal/storage"
	"impact-cost-lab/internal/storage/memory"
)

var tradeDate = time.Date(2025, 9, 19, 0, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// flakyLiquidity fails a set number of reads before delegating, to drive
// the transient retry path.
type flakyLiquidity struct {
	storage.LiquidityStore
	failures int
}

func (s *flakyLiquidity) Get(ctx context.Context, ticker string, date time.Time) (*domain.LiquiditySample, error) {
	if s.failures > 0 {
		s.failures--
		return nil, errors.New("connection reset")
	}
	return s.LiquidityStore.Get(ctx, ticker, date)
}

type fixture struct {
	worker   *Worker
	requests *memory.RequestStore
	jobs     *queue.MemoryQueue
}

// newFixture builds a worker over memory adapters. Liquidity is seeded
// with AAPL adv_usd 2.55e11 for the trade date; both reference models are
// active.
func newFixture(t *testing.T, liqStore storage.LiquidityStore, backoff []time.Duration, jobTimeout time.Duration) *fixture {
	t.Helper()
	ctx := context.Background()

	models := memory.NewModelStore()
	require.NoError(t, models.Insert(ctx, &domain.ImpactModel{
		Name:    domain.ModelPctADV,
		Version: 1,
		Params:  map[string]decimal.Decimal{"c": dec("0.5"), "cap": dec("0.1")},
		Active:  true,
	}))
	require.NoError(t, models.Insert(ctx, &domain.ImpactModel{
		Name:    domain.ModelSqrt,
		Version: 1,
		Params:  map[string]decimal.Decimal{"A": dec("25"), "B": dec("2")},
		Active:  true,
	}))

	jobs := queue.NewMemoryQueue(8)
	t.Cleanup(jobs.Close)

	f := &fixture{
		requests: memory.NewRequestStore(),
		jobs:     jobs,
	}
	adv := liquidity.NewResolver(liqStore, cache.NewMemoryCache(), time.Minute, nil)
	f.worker = New(jobs, f.requests, adv, impact.NewRegistry(models), backoff, jobTimeout, nil)
	return f
}

func seededLiquidity(t *testing.T) *memory.LiquidityStore {
	t.Helper()
	store := memory.NewLiquidityStore()
	require.NoError(t, store.Insert(context.Background(), &domain.LiquiditySample{
		Ticker: "AAPL",
		Date:   tradeDate,
		ADVUSD: dec("255000000000"),
	}))
	return store
}

// submit persists a pending request and returns the matching job.
func (f *fixture) submit(t *testing.T, req *domain.EstimateRequest) *queue.Job {
	t.Helper()
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	req.Status = domain.StatusPending
	require.NoError(t, f.requests.CreateRequest(context.Background(), req))
	return &queue.Job{RequestID: req.ID, EnqueuedAt: time.Now().UTC()}
}

func aaplRequest(modelName string) *domain.EstimateRequest {
	return &domain.EstimateRequest{
		Ticker:      "AAPL",
		Shares:      1000,
		Side:        domain.SideBuy,
		TradeDate:   tradeDate,
		NotionalUSD: dec("200000"), // 1000 shares at 200
		ModelName:   modelName,
	}
}

func TestProcess_PctADV(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, seededLiquidity(t), nil, 0)

	req := aaplRequest(domain.ModelPctADV)
	job := f.submit(t, req)
	f.worker.process(ctx, job)

	stored, err := f.requests.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSucceeded, stored.Status)

	res, err := f.requests.GetResult(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ModelPctADV, res.BestModel)
	assert.True(t, res.ResolvedPrice.Equal(dec("200")))
	assert.True(t, res.ADVUSD.Equal(dec("255000000000")))

	// q = 200000 / 2.55e11, far below the 0.1 cap:
	// cost_usd = 0.5 * q * 200000 ~= 0.0784
	usd, _ := res.TotalCostUSD.Float64()
	assert.InDelta(t, 0.0784, usd, 0.0005)
}

func TestProcess_PctADVCapBinds(t *testing.T) {
	ctx := context.Background()
	store := memory.NewLiquidityStore()
	require.NoError(t, store.Insert(ctx, &domain.LiquiditySample{
		Ticker: "AAPL",
		Date:   tradeDate,
		ADVUSD: dec("1000000"),
	}))
	f := newFixture(t, store, nil, 0)

	req := aaplRequest(domain.ModelPctADV)
	job := f.submit(t, req)
	f.worker.process(ctx, job)

	res, err := f.requests.GetResult(ctx, req.ID)
	require.NoError(t, err)

	// q = 200000 / 1000000 = 0.2, clamped at 0.1:
	// cost_usd = 0.5 * 0.1 * 200000 = 10000
	assert.True(t, res.TotalCostUSD.Equal(dec("10000")), "cost_usd = %s", res.TotalCostUSD)
}

func TestProcess_Sqrt(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, seededLiquidity(t), nil, 0)

	req := aaplRequest(domain.ModelSqrt)
	job := f.submit(t, req)
	f.worker.process(ctx, job)

	res, err := f.requests.GetResult(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ModelSqrt, res.BestModel)

	// adv_shares = 2.55e11 / 200 = 1.275e9
	// cost_bps = 25 * sqrt(1000 / 1.275e9) + 2 ~= 2.0221
	bps, _ := res.TotalCostBPS.Float64()
	assert.InDelta(t, 2.0221, bps, 0.0005)
}

func TestProcess_AllActiveModelsWhenNoneNamed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, seededLiquidity(t), nil, 0)

	req := aaplRequest("")
	job := f.submit(t, req)
	f.worker.process(ctx, job)

	res, err := f.requests.GetResult(ctx, req.ID)
	require.NoError(t, err)
	require.Len(t, res.Models, 2)
	assert.Contains(t, res.Models, domain.ModelPctADV)
	assert.Contains(t, res.Models, domain.ModelSqrt)

	// pct_adv lands around 0.0039 bps against this liquidity, sqrt around
	// 2.02, so pct_adv is the cheapest variant.
	assert.Equal(t, domain.ModelPctADV, res.BestModel)
	assert.True(t, res.TotalCostBPS.Equal(res.Models[domain.ModelPctADV].CostBPS))
}

func TestProcess_NoLiquidityFailsWithCode(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, memory.NewLiquidityStore(), nil, 0)

	req := aaplRequest("")
	job := f.submit(t, req)
	f.worker.process(ctx, job)

	stored, err := f.requests.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, stored.Status)

	res, err := f.requests.GetResult(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, liquidity.CodeADVNotAvailable, res.ErrorCode)
	assert.NotEmpty(t, res.ErrorMessage)
}

func TestProcess_TransientFailureRequeues(t *testing.T) {
	ctx := context.Background()
	flaky := &flakyLiquidity{LiquidityStore: seededLiquidity(t), failures: 1}
	f := newFixture(t, flaky, []time.Duration{time.Millisecond}, 0)

	req := aaplRequest(domain.ModelPctADV)
	job := f.submit(t, req)
	f.worker.process(ctx, job)

	// The request stays claimed across the backoff window.
	stored, err := f.requests.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRunning, stored.Status)

	dctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	retried, err := f.jobs.Dequeue(dctx)
	require.NoError(t, err)
	assert.Equal(t, 1, retried.Attempt)

	// The retried attempt computes against the recovered store.
	f.worker.process(ctx, retried)
	stored, err = f.requests.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSucceeded, stored.Status)
}

func TestProcess_RetryExhaustionFailsTerminally(t *testing.T) {
	ctx := context.Background()
	flaky := &flakyLiquidity{LiquidityStore: seededLiquidity(t), failures: 10}
	f := newFixture(t, flaky, []time.Duration{}, 0)

	req := aaplRequest(domain.ModelPctADV)
	job := f.submit(t, req)
	f.worker.process(ctx, job)

	stored, err := f.requests.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, stored.Status)

	res, err := f.requests.GetResult(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, CodeInternal, res.ErrorCode)
}

func TestProcess_StaleJobTimesOut(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, seededLiquidity(t), nil, time.Millisecond)

	req := aaplRequest(domain.ModelPctADV)
	job := f.submit(t, req)
	job.EnqueuedAt = time.Now().Add(-time.Minute)
	f.worker.process(ctx, job)

	res, err := f.requests.GetResult(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, CodeTimeout, res.ErrorCode)

	stored, err := f.requests.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, stored.Status)
}

func TestProcess_TerminalRequestIsNotRecomputed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, seededLiquidity(t), nil, 0)

	req := aaplRequest(domain.ModelPctADV)
	job := f.submit(t, req)
	f.worker.process(ctx, job)

	before, err := f.requests.GetResult(ctx, req.ID)
	require.NoError(t, err)

	// A duplicate delivery of the same job must not disturb the result.
	f.worker.process(ctx, job)
	after, err := f.requests.GetResult(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, before.ComputedAt, after.ComputedAt)
	assert.True(t, before.TotalCostUSD.Equal(after.TotalCostUSD))
}

func TestRun_StopsOnCancel(t *testing.T) {
	f := newFixture(t, seededLiquidity(t), nil, 0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.worker.Run(ctx) }()

	req := aaplRequest(domain.ModelPctADV)
	job := f.submit(t, req)
	require.NoError(t, f.jobs.Enqueue(ctx, job))

	require.Eventually(t, func() bool {
		stored, err := f.requests.GetRequest(context.Background(), req.ID)
		return err == nil && stored.Status == domain.StatusSucceeded
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop on cancel")
	}
}
