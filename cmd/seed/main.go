// Package main applies the database migrations and seeds the reference
// data: impact models, symbols and sample daily liquidity. Safe to run
// repeatedly.
package main

import (
	"context"
	"flag"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"impact-cost-lab/internal/config"
	"impact-cost-lab/internal/logger"
	"impact-cost-lab/internal/storage/migrations"
	pgstore "impact-cost-lab/internal/storage/postgres"
	"impact-cost-lab/internal/storage/seed"
)

func main() {
	loadEnvFile()

	migrateOnly := flag.Bool("migrate-only", false, "Apply migrations without seeding data")
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

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := pgstore.NewPool(ctx, cfg.Postgres.DSN)
	if err != nil {
		log.Fatal("connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		log.Fatal("apply migrations", zap.Error(err))
	}
	log.Info("migrations applied")

	if *migrateOnly {
		return
	}

	err = seed.Apply(ctx,
		pgstore.NewModelStore(pool),
		pgstore.NewSymbolStore(pool),
		pgstore.NewLiquidityStore(pool))
	if err != nil {
		log.Fatal("seed reference data", zap.Error(err))
	}
	log.Info("reference data seeded",
		zap.Int("models", len(seed.Models())),
		zap.Int("symbols", len(seed.Symbols())),
		zap.Int("liquidity_rows", len(seed.Liquidity())))
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
