package job

import (
	"context"
	"fmt"
	"time"

	"github.com/portfolio-tracker/internal/models"
	"github.com/portfolio-tracker/internal/types"
)

type rankingWriter interface {
	UpsertAssets(ctx context.Context, assets []*models.Asset) (created, updated int, err error)
	GetIDsByCoinGeckoIDs(ctx context.Context, coinGeckoIDs []string) (map[string]string, error)
	UpsertRankings(ctx context.Context, rankings []*models.AssetRanking) (int, error)
}

// RankingCollectionJob records daily market cap rankings. Rankings are keyed
// by (asset, date, source), so the scheduled run and any manual re-run on the
// same day converge on one row per asset.
type RankingCollectionJob struct {
	market    marketLister
	assets    rankingWriter
	limit     int
	batchSize int
}

// NewRankingCollectionJob creates a ranking collection job.
func NewRankingCollectionJob(market marketLister, assets rankingWriter, limit, batchSize int) *RankingCollectionJob {
	if batchSize <= 0 {
		batchSize = 500
	}
	return &RankingCollectionJob{
		market:    market,
		assets:    assets,
		limit:     limit,
		batchSize: batchSize,
	}
}

// Name returns the job name used in logs and results.
func (j *RankingCollectionJob) Name() string { return "ranking_collection" }

// Run fetches the ranked market listing and writes one ranking row per asset
// for today's date.
func (j *RankingCollectionJob) Run(ctx context.Context, metrics *JobMetrics) error {
	var rows []*models.AssetRanking
	snapshotDate := time.Now().UTC().Truncate(24 * time.Hour)

	fetched, err := fetchMarkets(ctx, j.market, j.limit)
	if err != nil {
		return err
	}
	metrics.Processed = len(fetched)

	assets := make([]*models.Asset, 0, len(fetched))
	coinGeckoIDs := make([]string, 0, len(fetched))
	for _, row := range fetched {
		cgID := row.ID
		assets = append(assets, &models.Asset{
			Symbol:      normalizeSymbol(row.Symbol),
			Name:        row.Name,
			CoinGeckoID: &cgID,
			IsActive:    true,
		})
		coinGeckoIDs = append(coinGeckoIDs, row.ID)
	}

	created, updated, err := j.assets.UpsertAssets(ctx, dedupAssets(assets))
	if err != nil {
		return fmt.Errorf("asset upsert failed: %w", err)
	}
	metrics.Created += created
	metrics.Updated += updated

	ids, err := j.assets.GetIDsByCoinGeckoIDs(ctx, coinGeckoIDs)
	if err != nil {
		return fmt.Errorf("asset id mapping failed: %w", err)
	}

	for _, row := range fetched {
		assetID, ok := ids[row.ID]
		if !ok || row.MarketCapRank <= 0 {
			metrics.Skipped++
			continue
		}

		ranking := &models.AssetRanking{
			AssetID:      assetID,
			SnapshotDate: snapshotDate,
			Source:       types.PriceSourcePrimary,
			Rank:         row.MarketCapRank,
		}
		if row.MarketCap != nil {
			ranking.Metadata = map[string]interface{}{"marketCapUsd": *row.MarketCap}
		}
		rows = append(rows, ranking)
	}

	written := 0
	for start := 0; start < len(rows); start += j.batchSize {
		end := start + j.batchSize
		if end > len(rows) {
			end = len(rows)
		}
		n, err := j.assets.UpsertRankings(ctx, dedupRankings(rows[start:end]))
		if err != nil {
			return fmt.Errorf("ranking flush failed: %w", err)
		}
		written += n
	}

	metrics.SetCustom("rankingsWritten", written)
	metrics.SetCustom("snapshotDate", snapshotDate.Format("2006-01-02"))
	return nil
}
