package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"impact-cost-lab/internal/domain"
	"impact-cost-lab/internal/storage"
)

// RequestStore implements storage.RequestStore using PostgreSQL.
// The terminal write path (SaveResult) commits the result row and the
// status flip in one transaction so a poller can never observe a terminal
// status without its payload.
type RequestStore struct {
	pool *Pool
}

// NewRequestStore creates a new RequestStore.
func NewRequestStore(pool *Pool) *RequestStore {
	return &RequestStore{pool: pool}
}

// Compile-time interface check.
var _ storage.RequestStore = (*RequestStore)(nil)

// CreateRequest persists a new request with status pending.
func (s *RequestStore) CreateRequest(ctx context.Context, r *domain.EstimateRequest) error {
	if r == nil || r.ID == uuid.Nil || r.Ticker == "" || r.Shares <= 0 {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO cost_requests
			(id, ticker, shares, side, d, notional_usd, model_name, model_version, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6::numeric, $7, $8, $9, $10)
	`

	var modelName *string
	if r.ModelName != "" {
		modelName = &r.ModelName
	}
	createdAt := r.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	status := r.Status
	if status == "" {
		status = domain.StatusPending
	}

	_, err := s.pool.Exec(ctx, query,
		r.ID,
		r.Ticker,
		r.Shares,
		string(r.Side),
		r.TradeDate,
		r.NotionalUSD.String(),
		modelName,
		r.ModelVersion,
		string(status),
		createdAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert cost request: %w", err)
	}
	return nil
}

// GetRequest retrieves a request by id.
func (s *RequestStore) GetRequest(ctx context.Context, id uuid.UUID) (*domain.EstimateRequest, error) {
	query := `
		SELECT id, ticker, shares, side, d, notional_usd::text, model_name, model_version, status, created_at
		FROM cost_requests
		WHERE id = $1
	`

	var (
		r           domain.EstimateRequest
		side        string
		notionalRaw string
		modelName   *string
		status      string
	)
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&r.ID, &r.Ticker, &r.Shares, &side, &r.TradeDate,
		&notionalRaw, &modelName, &r.ModelVersion, &status, &r.CreatedAt,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get cost request: %w", err)
	}

	r.Side = domain.Side(side)
	r.Status = domain.Status(status)
	if modelName != nil {
		r.ModelName = *modelName
	}
	r.NotionalUSD, err = scanDecimal(notionalRaw)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// TransitionStatus moves a request from one status to another as an
// atomic compare-and-set.
func (s *RequestStore) TransitionStatus(ctx context.Context, id uuid.UUID, from, to domain.Status) error {
	if !from.CanTransitionTo(to) {
		return storage.ErrInvalidTransition
	}

	query := `UPDATE cost_requests SET status = $3 WHERE id = $1 AND status = $2`

	tag, err := s.pool.Exec(ctx, query, id, string(from), string(to))
	if err != nil {
		return fmt.Errorf("transition request status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.classifyMissedUpdate(ctx, id)
	}
	return nil
}

// SaveResult writes the result and flips the owning request to the
// terminal status in one transaction.
func (s *RequestStore) SaveResult(ctx context.Context, res *domain.EstimateResult, from, to domain.Status) error {
	if res == nil || res.RequestID == uuid.Nil {
		return storage.ErrInvalidInput
	}
	if !to.Terminal() || !from.CanTransitionTo(to) {
		return storage.ErrInvalidTransition
	}

	modelsJSON, err := json.Marshal(res.Models)
	if err != nil {
		return fmt.Errorf("marshal result models: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin result tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE cost_requests SET status = $3 WHERE id = $1 AND status = $2`,
		res.RequestID, string(from), string(to),
	)
	if err != nil {
		return fmt.Errorf("flip request status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.classifyMissedUpdate(ctx, res.RequestID)
	}

	computedAt := res.ComputedAt
	if computedAt.IsZero() {
		computedAt = time.Now().UTC()
	}

	// Costs are NULL only on failure; a zero cost on success is a real value.
	var advS, priceS, usdS, bpsS *string
	if res.ADVUSD.Sign() > 0 {
		advS = nullString(res.ADVUSD.String())
	}
	if res.ResolvedPrice.Sign() > 0 {
		priceS = nullString(res.ResolvedPrice.String())
	}
	if !res.Failed() {
		usdS = nullString(res.TotalCostUSD.String())
		bpsS = nullString(res.TotalCostBPS.String())
	}

	// Upsert: a retried terminal write must not violate 1:1 ownership.
	_, err = tx.Exec(ctx, `
		INSERT INTO cost_results
			(request_id, adv_usd, resolved_price, models, best_model,
			 total_cost_usd, total_cost_bps, error_code, error_message, computed_at)
		VALUES ($1, $2::numeric, $3::numeric, $4::jsonb, $5, $6::numeric, $7::numeric, $8, $9, $10)
		ON CONFLICT (request_id) DO UPDATE SET
			adv_usd = excluded.adv_usd,
			resolved_price = excluded.resolved_price,
			models = excluded.models,
			best_model = excluded.best_model,
			total_cost_usd = excluded.total_cost_usd,
			total_cost_bps = excluded.total_cost_bps,
			error_code = excluded.error_code,
			error_message = excluded.error_message,
			computed_at = excluded.computed_at
	`,
		res.RequestID,
		advS,
		priceS,
		string(modelsJSON),
		nullString(res.BestModel),
		usdS,
		bpsS,
		nullString(res.ErrorCode),
		nullString(res.ErrorMessage),
		computedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert cost result: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit result tx: %w", err)
	}
	return nil
}

// GetResult retrieves the result owned by a request.
func (s *RequestStore) GetResult(ctx context.Context, id uuid.UUID) (*domain.EstimateResult, error) {
	query := `
		SELECT request_id, adv_usd::text, resolved_price::text, models::text, best_model,
		       total_cost_usd::text, total_cost_bps::text, error_code, error_message, computed_at
		FROM cost_results
		WHERE request_id = $1
	`

	var (
		res              domain.EstimateResult
		advRaw, priceRaw *string
		modelsJSON       *string
		bestModel        *string
		usdRaw, bpsRaw   *string
		errCode, errMsg  *string
	)
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&res.RequestID, &advRaw, &priceRaw, &modelsJSON, &bestModel,
		&usdRaw, &bpsRaw, &errCode, &errMsg, &res.ComputedAt,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get cost result: %w", err)
	}

	for _, f := range []struct {
		raw *string
		dst *decimal.Decimal
	}{
		{advRaw, &res.ADVUSD},
		{priceRaw, &res.ResolvedPrice},
		{usdRaw, &res.TotalCostUSD},
		{bpsRaw, &res.TotalCostBPS},
	} {
		if f.raw == nil {
			continue
		}
		if *f.dst, err = scanDecimal(*f.raw); err != nil {
			return nil, err
		}
	}

	if modelsJSON != nil && *modelsJSON != "" {
		res.Models = make(map[string]domain.CostBreakdown)
		if err := json.Unmarshal([]byte(*modelsJSON), &res.Models); err != nil {
			return nil, fmt.Errorf("unmarshal result models: %w", err)
		}
	}
	if bestModel != nil {
		res.BestModel = *bestModel
	}
	if errCode != nil {
		res.ErrorCode = *errCode
	}
	if errMsg != nil {
		res.ErrorMessage = *errMsg
	}
	return &res, nil
}

// classifyMissedUpdate distinguishes an unknown id from a lost
// compare-and-set after a conditional UPDATE matched no rows.
func (s *RequestStore) classifyMissedUpdate(ctx context.Context, id uuid.UUID) error {
	var status string
	err := s.pool.QueryRow(ctx, `SELECT status FROM cost_requests WHERE id = $1`, id).Scan(&status)
	if err != nil {
		if isNotFoundError(err) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("check request status: %w", err)
	}
	return storage.ErrInvalidTransition
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
