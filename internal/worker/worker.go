// Package worker consumes compute jobs from the queue and drives each
// estimate request to its terminal state: claim, resolve liquidity and
// price, run the impact models, write the result.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"impact-cost-lab/internal/domain"
	"impact-cost-lab/internal/impact"
	"impact-cost-lab/internal/liquidity"
	"impact-cost-lab/internal/observability"
	"impact-cost-lab/internal/pricing"
	"impact-cost-lab/internal/queue"
	"impact-cost-lab/internal/storage"
)

// Taxonomy codes owned by the worker.
const (
	// CodeTimeout is recorded when a job sat in the queue past the
	// configured cutoff and is failed instead of computed.
	CodeTimeout = "Timeout"

	// CodeInternal is recorded when transient infrastructure errors
	// exhaust the retry budget; the last error text is kept alongside.
	CodeInternal = "Internal"
)

// DefaultBackoff is the delay schedule between compute attempts after a
// transient failure. Attempts = len(schedule) + 1.
var DefaultBackoff = []time.Duration{10 * time.Second, 30 * time.Second, 90 * time.Second}

// Worker runs the compute pipeline for dequeued jobs. Each request is
// claimed by exactly one worker via the conditional status transition;
// a claim that loses the race drops the job without side effects.
type Worker struct {
	jobs       queue.Queue
	requests   storage.RequestStore
	adv        *liquidity.Resolver
	registry   *impact.Registry
	backoff    []time.Duration
	jobTimeout time.Duration // 0 disables the stale-job cutoff
	logger     *zap.Logger
}

// New creates a Worker. backoff may be nil, which selects DefaultBackoff.
func New(
	jobs queue.Queue,
	requests storage.RequestStore,
	adv *liquidity.Resolver,
	registry *impact.Registry,
	backoff []time.Duration,
	jobTimeout time.Duration,
	logger *zap.Logger,
) *Worker {
	if backoff == nil {
		backoff = DefaultBackoff
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		jobs:       jobs,
		requests:   requests,
		adv:        adv,
		registry:   registry,
		backoff:    backoff,
		jobTimeout: jobTimeout,
		logger:     logger,
	}
}

// Run consumes jobs until ctx is cancelled or the queue closes.
func (w *Worker) Run(ctx context.Context) error {
	for {
		job, err := w.jobs.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, queue.ErrQueueClosed) {
				return nil
			}
			w.logger.Warn("dequeue failed", zap.Error(err))
			continue
		}
		w.process(ctx, job)
	}
}

// process runs one compute attempt for one job.
func (w *Worker) process(ctx context.Context, job *queue.Job) {
	log := w.logger.With(
		zap.String("request_id", job.RequestID.String()),
		zap.Int("attempt", job.Attempt))

	if w.jobTimeout > 0 && time.Since(job.EnqueuedAt) > w.jobTimeout {
		w.failStale(ctx, job, log)
		return
	}

	if !w.claim(ctx, job, log) {
		return
	}

	req, err := w.requests.GetRequest(ctx, job.RequestID)
	if err != nil {
		log.Error("claimed request vanished", zap.Error(err))
		return
	}

	start := time.Now()
	res, err := w.compute(ctx, req)
	if err != nil {
		if code := failureCode(err); code != "" {
			w.failTerminal(ctx, req, code, err, log)
			observability.RecordCompletion(string(domain.StatusFailed), time.Since(start).Seconds())
			return
		}
		w.retryOrExhaust(ctx, job, req, err, log)
		return
	}

	if err := w.requests.SaveResult(ctx, res, domain.StatusRunning, domain.StatusSucceeded); err != nil {
		// The result write itself is infrastructure: retry the attempt.
		w.retryOrExhaust(ctx, job, req, fmt.Errorf("save result: %w", err), log)
		return
	}
	observability.RecordCompletion(string(domain.StatusSucceeded), time.Since(start).Seconds())
	log.Info("estimate computed",
		zap.String("best_model", res.BestModel),
		zap.String("total_cost_usd", res.TotalCostUSD.String()),
		zap.String("total_cost_bps", res.TotalCostBPS.String()))
}

// claim takes ownership of the request. The first attempt requires the
// pending to running move; retried attempts find their request already
// running, since a transient failure never regresses the status.
func (w *Worker) claim(ctx context.Context, job *queue.Job, log *zap.Logger) bool {
	err := w.requests.TransitionStatus(ctx, job.RequestID, domain.StatusPending, domain.StatusRunning)
	if err == nil {
		return true
	}
	if errors.Is(err, storage.ErrInvalidTransition) && job.Attempt > 0 {
		req, gerr := w.requests.GetRequest(ctx, job.RequestID)
		if gerr == nil && req.Status == domain.StatusRunning {
			return true
		}
	}
	log.Debug("claim skipped", zap.Error(err))
	return false
}

// compute resolves liquidity, derives the price applied at submission and
// evaluates the requested model, or every active model when none was
// named. The cheapest variant by cost_bps becomes the headline figure.
func (w *Worker) compute(ctx context.Context, req *domain.EstimateRequest) (*domain.EstimateResult, error) {
	sample, err := w.adv.ADV(ctx, req.Ticker, req.TradeDate)
	if err != nil {
		return nil, err
	}

	// The submission already priced the trade; notional / shares recovers
	// the exact figure without consulting the override chain again.
	price := req.NotionalUSD.DivRound(decimal.NewFromInt(req.Shares), 12)

	var models []*domain.ImpactModel
	if req.ModelName != "" {
		m, err := w.registry.Resolve(ctx, req.ModelName, req.ModelVersion)
		if err != nil {
			return nil, err
		}
		models = []*domain.ImpactModel{m}
	} else {
		if models, err = w.registry.ResolveActive(ctx); err != nil {
			return nil, err
		}
	}

	breakdown := make(map[string]domain.CostBreakdown, len(models))
	var best *domain.CostBreakdown
	for _, m := range models {
		bd, err := impact.Compute(m, req.Shares, price, sample.ADVUSD)
		if err != nil {
			return nil, err
		}
		breakdown[bd.Name] = bd
		if best == nil || bd.CostBPS.LessThan(best.CostBPS) {
			b := bd
			best = &b
		}
	}

	return &domain.EstimateResult{
		RequestID:     req.ID,
		ADVUSD:        sample.ADVUSD,
		ResolvedPrice: price,
		Models:        breakdown,
		BestModel:     best.Name,
		TotalCostUSD:  best.CostUSD,
		TotalCostBPS:  best.CostBPS,
		ComputedAt:    time.Now().UTC(),
	}, nil
}

// retryOrExhaust re-enqueues the job with the attempt-indexed backoff, or
// fails the request terminally once the budget is spent.
func (w *Worker) retryOrExhaust(ctx context.Context, job *queue.Job, req *domain.EstimateRequest, cause error, log *zap.Logger) {
	if job.Attempt < len(w.backoff) {
		delay := w.backoff[job.Attempt]
		next := &queue.Job{
			RequestID:  job.RequestID,
			Attempt:    job.Attempt + 1,
			EnqueuedAt: time.Now().UTC(),
		}
		if err := w.jobs.EnqueueDelayed(ctx, next, delay); err == nil {
			observability.RecordRequeue()
			log.Warn("transient failure, job re-enqueued",
				zap.Duration("delay", delay),
				zap.Error(cause))
			return
		}
		cause = fmt.Errorf("re-enqueue after %v: %w", cause, queue.ErrDispatchFailure)
	}
	w.failTerminal(ctx, req, CodeInternal, cause, log)
	observability.RecordCompletion(string(domain.StatusFailed), 0)
}

// failTerminal writes the failed result from the running state.
func (w *Worker) failTerminal(ctx context.Context, req *domain.EstimateRequest, code string, cause error, log *zap.Logger) {
	res := &domain.EstimateResult{
		RequestID:    req.ID,
		ErrorCode:    code,
		ErrorMessage: cause.Error(),
		ComputedAt:   time.Now().UTC(),
	}
	if err := w.requests.SaveResult(ctx, res, domain.StatusRunning, domain.StatusFailed); err != nil {
		log.Error("recording failure failed",
			zap.String("code", code),
			zap.Error(err))
		return
	}
	observability.RecordComputeFailure(code)
	log.Info("estimate failed",
		zap.String("code", code),
		zap.String("message", cause.Error()))
}

// failStale fails a job that outlived the queue cutoff without computing.
// The request may be pending (never claimed) or still running from an
// earlier attempt.
func (w *Worker) failStale(ctx context.Context, job *queue.Job, log *zap.Logger) {
	cause := fmt.Errorf("job enqueued %s exceeded timeout %s", job.EnqueuedAt.Format(time.RFC3339), w.jobTimeout)
	res := &domain.EstimateResult{
		RequestID:    job.RequestID,
		ErrorCode:    CodeTimeout,
		ErrorMessage: cause.Error(),
		ComputedAt:   time.Now().UTC(),
	}
	err := w.requests.SaveResult(ctx, res, domain.StatusPending, domain.StatusFailed)
	if errors.Is(err, storage.ErrInvalidTransition) {
		err = w.requests.SaveResult(ctx, res, domain.StatusRunning, domain.StatusFailed)
	}
	if err != nil {
		log.Debug("stale job skipped", zap.Error(err))
		return
	}
	observability.RecordComputeFailure(CodeTimeout)
	observability.RecordCompletion(string(domain.StatusFailed), 0)
	log.Warn("stale job failed without compute", zap.Error(cause))
}

// failureCode maps computation errors to their taxonomy codes. A blank
// code means the error is transient infrastructure and eligible for retry.
func failureCode(err error) string {
	if code := impact.Code(err); code != "" {
		return code
	}
	if errors.Is(err, liquidity.ErrADVNotAvailable) {
		return liquidity.CodeADVNotAvailable
	}
	if errors.Is(err, pricing.ErrPriceUnavailable) {
		return pricing.CodePriceUnavailable
	}
	return ""
}
