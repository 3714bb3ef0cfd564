// Package main provides the scheduled snapshot capture entry point.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/portfolio-tracker/internal/config"
	"github.com/portfolio-tracker/internal/job"
	"github.com/portfolio-tracker/internal/logging"
	"github.com/portfolio-tracker/internal/service"
	"github.com/portfolio-tracker/internal/storage"
	"github.com/portfolio-tracker/internal/types"
)

func main() {
	var (
		snapshotType = flag.String("type", "eod", "Snapshot type: eod, hourly")
		timeout      = flag.Duration("timeout", 30*time.Minute, "Job timeout")
	)
	flag.Parse()

	st := types.SnapshotType(*snapshotType)
	if !st.Valid() || st == types.SnapshotManual {
		log.Fatalf("Unsupported scheduled snapshot type: %s", *snapshotType)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logging.Init(logging.ParseLevel(cfg.Logging.Level), logging.ParseFormat(cfg.Logging.Format))
	logger := logging.Global()

	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		logger.WithError(err).Fatal("failed to connect to Postgres")
	}
	defer postgres.Close()

	redis, err := storage.NewRedisCache(&cfg.Database.Redis)
	if err != nil {
		logger.WithError(err).Fatal("failed to connect to Redis")
	}
	defer func() {
		_ = redis.Close() // nolint:errcheck // cleanup in defer
	}()

	assetRepo := storage.NewAssetRepository(postgres)
	accountRepo := storage.NewAccountRepository(postgres)
	portfolioRepo := storage.NewPortfolioRepository(postgres)
	snapshotRepo := storage.NewSnapshotRepository(postgres)
	cache := storage.NewCacheService(redis, cfg.Cache.TTL)

	normalizer := service.NewNormalizer(assetRepo, logger)
	allocationService := service.NewAllocationService(portfolioRepo, accountRepo, assetRepo, normalizer, cache, logger)
	snapshotService := service.NewSnapshotService(portfolioRepo, snapshotRepo, accountRepo, allocationService, logger)

	runner := job.NewRunner(logger)
	snapshotJob := job.NewSnapshotJob(snapshotService, st)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	result := runner.Run(ctx, snapshotJob.Name(), snapshotJob.Run)
	if !result.Success {
		os.Exit(1)
	}
}
