// Package main runs the estimate API server: submission, polling, health
// and metrics over a thin JSON boundary around the lifecycle manager.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"impact-cost-lab/internal/cache"
	"impact-cost-lab/internal/config"
	"impact-cost-lab/internal/domain"
	"impact-cost-lab/internal/impact"
	"impact-cost-lab/internal/lifecycle"
	"impact-cost-lab/internal/liquidity"
	"impact-cost-lab/internal/logger"
	"impact-cost-lab/internal/observability"
	"impact-cost-lab/internal/pricing"
	"impact-cost-lab/internal/queue"
	"impact-cost-lab/internal/storage"
	"impact-cost-lab/internal/storage/memory"
	pgstore "impact-cost-lab/internal/storage/postgres"
	"impact-cost-lab/internal/storage/seed"
	"impact-cost-lab/internal/worker"
)

func main() {
	loadEnvFile()

	useMemory := flag.Bool("use-memory", false, "Use in-memory storage, cache and queue instead of Postgres/Redis")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log, err := logger.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deps, cleanup, err := buildDeps(ctx, cfg, *useMemory, log)
	if err != nil {
		log.Fatal("failed to build dependencies", zap.Error(err))
	}
	defer cleanup()

	prices := pricing.NewResolver(pricing.FromEnv(os.Environ(), cfg.Pricing.AllowTestDefault))
	registry := impact.NewRegistry(deps.models)
	manager := lifecycle.NewManager(deps.requests, deps.symbols, registry, prices, deps.jobs, cfg.Queue.DispatchDelays, log)

	// With in-memory adapters nothing else can see the queue, so run an
	// embedded worker in-process.
	if *useMemory {
		w := worker.New(deps.jobs, deps.requests, deps.adv, registry, cfg.Worker.Backoff, cfg.Worker.JobTimeout, log)
		go w.Run(ctx)
	}

	api := &apiServer{manager: manager, logger: log}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /estimates", api.handleSubmit)
	mux.HandleFunc("GET /estimates/{id}", api.handleFetch)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("GET /metrics", observability.Handler())

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info("shutting down", zap.String("signal", sig.String()))
		shCtx, shCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shCancel()
		if err := srv.Shutdown(shCtx); err != nil {
			log.Warn("shutdown did not drain cleanly", zap.Error(err))
		}
		cancel()
	}()

	log.Info("estimate server listening", zap.String("addr", cfg.Server.Addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("server error", zap.Error(err))
	}
	log.Info("shutdown complete")
}

// deps holds the wired ports behind the manager.
type deps struct {
	models   storage.ModelStore
	requests storage.RequestStore
	symbols  storage.SymbolStore
	adv      *liquidity.Resolver
	jobs     queue.Queue
}

// buildDeps wires either the in-memory or the Postgres/Redis adapters.
func buildDeps(ctx context.Context, cfg *config.Config, useMemory bool, log *zap.Logger) (*deps, func(), error) {
	if useMemory {
		mq := queue.NewMemoryQueue(1024)
		liq := memory.NewLiquidityStore()
		d := &deps{
			models:   memory.NewModelStore(),
			requests: memory.NewRequestStore(),
			symbols:  memory.NewSymbolStore(),
			jobs:     mq,
		}
		d.adv = liquidity.NewResolver(liq, cache.NewMemoryCache(), cfg.Cache.TTL, log)
		if err := seed.Apply(ctx, d.models, d.symbols, liq); err != nil {
			mq.Close()
			return nil, nil, err
		}
		return d, func() { mq.Close() }, nil
	}

	pool, err := pgstore.NewPool(ctx, cfg.Postgres.DSN)
	if err != nil {
		return nil, nil, err
	}
	advCache, err := cache.NewRedisCache(ctx, cfg.Redis.URL, cfg.Cache.Namespace)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	jobs, err := queue.NewRedisQueue(ctx, cfg.Redis.URL, cfg.Queue.Name)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}

	d := &deps{
		models:   pgstore.NewModelStore(pool),
		requests: pgstore.NewRequestStore(pool),
		symbols:  pgstore.NewSymbolStore(pool),
		jobs:     jobs,
	}
	d.adv = liquidity.NewResolver(pgstore.NewLiquidityStore(pool), advCache, cfg.Cache.TTL, log)

	cleanup := func() {
		jobs.Close()
		pool.Close()
	}
	return d, cleanup, nil
}

// apiServer is the JSON boundary over the lifecycle manager.
type apiServer struct {
	manager *lifecycle.Manager
	logger  *zap.Logger
}

type submitRequest struct {
	Ticker       string `json:"ticker"`
	Shares       int64  `json:"shares"`
	Side         string `json:"side"`
	Date         string `json:"date"`
	ModelName    string `json:"model_name,omitempty"`
	ModelVersion *int   `json:"model_version,omitempty"`
}

type submitResponse struct {
	RequestID string `json:"request_id"`
}

type fetchResponse struct {
	RequestID string          `json:"request_id"`
	Status    string          `json:"status"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     *errorBody      `json:"error,omitempty"`
}

type resultBody struct {
	ADVUSD        string                          `json:"adv_usd"`
	ResolvedPrice string                          `json:"resolved_price"`
	Models        map[string]domain.CostBreakdown `json:"models"`
	BestModel     string                          `json:"best_model"`
	TotalCostUSD  string                          `json:"total_cost_usd"`
	TotalCostBPS  string                          `json:"total_cost_bps"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (s *apiServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var body submitRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidInput", "malformed JSON body")
		return
	}

	date, err := time.Parse(domain.DateLayout, body.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "InvalidInput", "date must be YYYY-MM-DD")
		return
	}

	id, err := s.manager.Submit(r.Context(), lifecycle.SubmitInput{
		Ticker:       body.Ticker,
		Shares:       body.Shares,
		Side:         domain.Side(strings.ToLower(body.Side)),
		TradeDate:    date,
		ModelName:    body.ModelName,
		ModelVersion: body.ModelVersion,
	})
	if err != nil {
		status, code := submitErrorStatus(err)
		writeError(w, status, code, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, submitResponse{RequestID: id.String()})
}

func (s *apiServer) handleFetch(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "InvalidInput", "request id must be a UUID")
		return
	}

	view, err := s.manager.Fetch(r.Context(), id)
	if err != nil {
		if errors.Is(err, lifecycle.ErrRequestNotFound) {
			writeError(w, http.StatusNotFound, lifecycle.CodeRequestNotFound, err.Error())
			return
		}
		s.logger.Error("fetch failed", zap.String("request_id", id.String()), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal", "fetch failed")
		return
	}

	resp := fetchResponse{
		RequestID: view.Request.ID.String(),
		Status:    string(view.Request.Status),
	}
	if res := view.Result; res != nil {
		if res.Failed() {
			resp.Error = &errorBody{Code: res.ErrorCode, Message: res.ErrorMessage}
		} else {
			payload, err := json.Marshal(resultBody{
				ADVUSD:        res.ADVUSD.String(),
				ResolvedPrice: res.ResolvedPrice.String(),
				Models:        res.Models,
				BestModel:     res.BestModel,
				TotalCostUSD:  res.TotalCostUSD.String(),
				TotalCostBPS:  res.TotalCostBPS.String(),
			})
			if err == nil {
				resp.Result = payload
			}
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// submitErrorStatus maps submission failures to HTTP statuses and
// taxonomy codes.
func submitErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, lifecycle.ErrInvalidInput):
		return http.StatusBadRequest, lifecycle.CodeInvalidInput
	case errors.Is(err, impact.ErrModelNotFound), errors.Is(err, impact.ErrInvalidModelParams):
		return http.StatusUnprocessableEntity, impact.Code(err)
	case errors.Is(err, pricing.ErrPriceUnavailable):
		return http.StatusUnprocessableEntity, pricing.CodePriceUnavailable
	case errors.Is(err, lifecycle.ErrQueueDispatch):
		return http.StatusBadGateway, lifecycle.CodeQueueDispatch
	default:
		return http.StatusInternalServerError, "Internal"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]errorBody{"error": {Code: code, Message: message}})
}

// loadEnvFile loads environment variables from .env file if it exists.
func loadEnvFile() {
	data, err := os.ReadFile(".env")
	if err != nil {
		return
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}
