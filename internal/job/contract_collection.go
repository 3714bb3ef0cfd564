package job

import (
	"context"
	"fmt"
	"strings"

	"github.com/portfolio-tracker/internal/connector"
	"github.com/portfolio-tracker/internal/models"
	"github.com/portfolio-tracker/internal/types"
)

// platformChains maps provider platform slugs to internal chain identifiers.
// Platforms outside this map are skipped.
var platformChains = map[string]types.ChainID{
	"ethereum":            types.ChainEthereum,
	"arbitrum-one":        types.ChainArbitrum,
	"optimistic-ethereum": types.ChainOptimism,
	"base":                types.ChainBase,
	"binance-smart-chain": types.ChainBSC,
	"polygon-pos":         types.ChainPolygon,
}

type coinDetailer interface {
	GetCoinDetail(ctx context.Context, coinID string) (*connector.CoinDetail, error)
}

type contractWriter interface {
	ListActiveWithCoinGeckoID(ctx context.Context, limit int) ([]*models.Asset, error)
	UpsertContracts(ctx context.Context, contracts []*models.AssetContract) (int, error)
}

// ContractCollectionJob backfills (chain, contract address) mappings for
// tracked assets so wallet holdings can resolve through the contract table.
type ContractCollectionJob struct {
	market    coinDetailer
	assets    contractWriter
	limit     int
	batchSize int
}

// NewContractCollectionJob creates a contract collection job.
func NewContractCollectionJob(market coinDetailer, assets contractWriter, limit, batchSize int) *ContractCollectionJob {
	if batchSize <= 0 {
		batchSize = 500
	}
	return &ContractCollectionJob{
		market:    market,
		assets:    assets,
		limit:     limit,
		batchSize: batchSize,
	}
}

// Name returns the job name used in logs and results.
func (j *ContractCollectionJob) Name() string { return "contract_collection" }

// Run walks the tracked assets, fetches each coin's platform addresses, and
// upserts the recognized ones. A single coin failing to fetch is skipped and
// counted, not fatal.
func (j *ContractCollectionJob) Run(ctx context.Context, metrics *JobMetrics) error {
	assets, err := j.assets.ListActiveWithCoinGeckoID(ctx, j.limit)
	if err != nil {
		return fmt.Errorf("failed to list tracked assets: %w", err)
	}
	metrics.Processed = len(assets)

	var batch []*models.AssetContract
	written := 0

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := j.assets.UpsertContracts(ctx, dedupContracts(batch))
		if err != nil {
			return fmt.Errorf("contract flush failed: %w", err)
		}
		written += n
		batch = batch[:0]
		return nil
	}

	for _, asset := range assets {
		detail, err := j.market.GetCoinDetail(ctx, *asset.CoinGeckoID)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			metrics.Skipped++
			continue
		}

		for platform, address := range detail.Platforms {
			chain, ok := platformChains[platform]
			if !ok || strings.TrimSpace(address) == "" {
				continue
			}
			batch = append(batch, &models.AssetContract{
				Chain:           chain,
				ContractAddress: strings.ToLower(address),
				AssetID:         asset.ID,
			})
		}

		if len(batch) >= j.batchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}

	if err := flush(); err != nil {
		return err
	}

	metrics.Created = written
	metrics.SetCustom("contractsWritten", written)
	return nil
}
