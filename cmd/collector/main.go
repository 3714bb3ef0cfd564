// Package main provides the reference data collector entry point. It runs
// one collector job per invocation, suitable for cron scheduling.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/portfolio-tracker/internal/config"
	"github.com/portfolio-tracker/internal/connector"
	"github.com/portfolio-tracker/internal/job"
	"github.com/portfolio-tracker/internal/logging"
	"github.com/portfolio-tracker/internal/storage"
)

func main() {
	var (
		jobName = flag.String("job", "prices", "Collector job: prices, rankings, contracts")
		timeout = flag.Duration("timeout", 30*time.Minute, "Job timeout")
	)
	flag.Parse()

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

	assetRepo := storage.NewAssetRepository(postgres)
	market := connector.NewCoinGeckoClient(&cfg.Market)
	runner := job.NewRunner(logger)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var result job.JobResult
	switch *jobName {
	case "prices":
		j := job.NewPriceCollectionJob(market, assetRepo, cfg.Jobs.TopCoinsLimit, cfg.Jobs.PriceBatchSize)
		result = runner.Run(ctx, j.Name(), j.Run)
	case "rankings":
		j := job.NewRankingCollectionJob(market, assetRepo, cfg.Jobs.TopCoinsLimit, cfg.Jobs.PriceBatchSize)
		result = runner.Run(ctx, j.Name(), j.Run)
	case "contracts":
		j := job.NewContractCollectionJob(market, assetRepo, cfg.Jobs.TopCoinsLimit, cfg.Jobs.PriceBatchSize)
		result = runner.Run(ctx, j.Name(), j.Run)
	default:
		logger.WithField("job", *jobName).Fatal("unknown collector job")
	}

	if !result.Success {
		os.Exit(1)
	}
}
