// Package main runs the compute workers: N concurrent consumers pulling
// estimate jobs from the shared queue and writing terminal results.
package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"go.uber.org/zap"

	"impact-cost-lab/internal/cache"
	"impact-cost-lab/internal/config"
	"impact-cost-lab/internal/impact"
	"impact-cost-lab/internal/liquidity"
	"impact-cost-lab/internal/logger"
	"impact-cost-lab/internal/queue"
	pgstore "impact-cost-lab/internal/storage/postgres"
	"impact-cost-lab/internal/worker"
)

func main() {
	loadEnvFile()

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

	pool, err := pgstore.NewPool(ctx, cfg.Postgres.DSN)
	if err != nil {
		log.Fatal("connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	advCache, err := cache.NewRedisCache(ctx, cfg.Redis.URL, cfg.Cache.Namespace)
	if err != nil {
		log.Fatal("connect to redis cache", zap.Error(err))
	}
	jobs, err := queue.NewRedisQueue(ctx, cfg.Redis.URL, cfg.Queue.Name)
	if err != nil {
		log.Fatal("connect to redis queue", zap.Error(err))
	}
	defer jobs.Close()

	requests := pgstore.NewRequestStore(pool)
	registry := impact.NewRegistry(pgstore.NewModelStore(pool))
	adv := liquidity.NewResolver(pgstore.NewLiquidityStore(pool), advCache, cfg.Cache.TTL, log)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info("shutting down", zap.String("signal", sig.String()))
		cancel()
	}()

	log.Info("starting workers",
		zap.Int("concurrency", cfg.Worker.Concurrency),
		zap.String("queue", cfg.Queue.Name))

	var wg sync.WaitGroup
	for i := 0; i < cfg.Worker.Concurrency; i++ {
		w := worker.New(jobs, requests, adv, registry, cfg.Worker.Backoff, cfg.Worker.JobTimeout, log.With(zap.Int("worker", i)))
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := w.Run(ctx); err != nil {
				log.Error("worker stopped with error", zap.Error(err))
			}
		}()
	}
	wg.Wait()
	log.Info("shutdown complete")
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
