package job

import (
	"context"
	"fmt"
	"time"

	"github.com/portfolio-tracker/internal/connector"
	"github.com/portfolio-tracker/internal/models"
	"github.com/portfolio-tracker/internal/types"
	"github.com/shopspring/decimal"
)

// marketsPageSize is the provider's maximum page size for market listings.
const marketsPageSize = 250

type marketLister interface {
	ListMarkets(ctx context.Context, page, perPage int) ([]connector.CoinMarketData, error)
}

type priceMarketClient interface {
	marketLister
	SimplePrices(ctx context.Context, coinIDs []string) (map[string]float64, error)
}

type referenceDataWriter interface {
	UpsertAssets(ctx context.Context, assets []*models.Asset) (created, updated int, err error)
	GetIDsByCoinGeckoIDs(ctx context.Context, coinGeckoIDs []string) (map[string]string, error)
	ListActiveWithCoinGeckoID(ctx context.Context, limit int) ([]*models.Asset, error)
	UpsertPrices(ctx context.Context, prices []*models.AssetPrice) (int, error)
}

// PriceCollectionJob refreshes asset identities and price observations for
// the top-ranked coins, then backfills tracked assets that fell out of the
// listing through the bulk simple-price endpoint. Each observation is keyed
// by (asset, minute, source); re-running inside the same minute overwrites
// rather than duplicates.
type PriceCollectionJob struct {
	market    priceMarketClient
	assets    referenceDataWriter
	limit     int
	batchSize int
}

// NewPriceCollectionJob creates a price collection job. limit bounds how many
// top coins are fetched; batchSize is the upsert flush threshold.
func NewPriceCollectionJob(market priceMarketClient, assets referenceDataWriter, limit, batchSize int) *PriceCollectionJob {
	if batchSize <= 0 {
		batchSize = 500
	}
	return &PriceCollectionJob{
		market:    market,
		assets:    assets,
		limit:     limit,
		batchSize: batchSize,
	}
}

// Name returns the job name used in logs and results.
func (j *PriceCollectionJob) Name() string { return "price_collection" }

// Run fetches market pages, upserts the asset identities, then writes the
// price batch. Both batches are deduplicated before flushing so one atomic
// statement never sees the same key twice.
func (j *PriceCollectionJob) Run(ctx context.Context, metrics *JobMetrics) error {
	rows, err := fetchMarkets(ctx, j.market, j.limit)
	if err != nil {
		return err
	}
	metrics.Processed = len(rows)

	idsByCoinGecko, err := j.syncAssets(ctx, rows, metrics)
	if err != nil {
		return err
	}

	observedAt := models.RoundToMinute(time.Now())
	var batch []*models.AssetPrice
	flushed := 0

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := j.assets.UpsertPrices(ctx, dedupPrices(batch))
		if err != nil {
			return fmt.Errorf("price flush failed: %w", err)
		}
		flushed += n
		batch = batch[:0]
		return nil
	}

	for _, row := range rows {
		assetID, ok := idsByCoinGecko[row.ID]
		if !ok {
			metrics.Skipped++
			continue
		}

		price := &models.AssetPrice{
			AssetID:   assetID,
			Timestamp: observedAt,
			Source:    types.PriceSourcePrimary,
			PriceUSD:  decimal.NewFromFloat(row.CurrentPrice),
		}
		if row.TotalVolume != nil {
			v := decimal.NewFromFloat(*row.TotalVolume)
			price.Volume24hUSD = &v
		}
		if row.MarketCap != nil {
			v := decimal.NewFromFloat(*row.MarketCap)
			price.MarketCapUSD = &v
		}
		if row.PriceChangePct24 != nil {
			v := decimal.NewFromFloat(*row.PriceChangePct24)
			price.ChangePercent24h = &v
		}

		batch = append(batch, price)
		if len(batch) >= j.batchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}

	backfilled, err := j.backfillTrackedPrices(ctx, rows, observedAt, &batch, flush, metrics)
	if err != nil {
		return err
	}

	if err := flush(); err != nil {
		return err
	}

	metrics.SetCustom("pricesWritten", flushed)
	metrics.SetCustom("backfilledAssets", backfilled)
	metrics.SetCustom("observedAt", observedAt.Format(time.RFC3339))
	return nil
}

// backfillTrackedPrices fetches simple prices for active tracked assets the
// market listing did not cover, so assets held in portfolios keep getting
// observations after they drop out of the top ranks.
func (j *PriceCollectionJob) backfillTrackedPrices(
	ctx context.Context,
	rows []connector.CoinMarketData,
	observedAt time.Time,
	batch *[]*models.AssetPrice,
	flush func() error,
	metrics *JobMetrics,
) (int, error) {
	tracked, err := j.assets.ListActiveWithCoinGeckoID(ctx, j.limit)
	if err != nil {
		return 0, fmt.Errorf("tracked asset listing failed: %w", err)
	}

	covered := make(map[string]bool, len(rows))
	for _, row := range rows {
		covered[row.ID] = true
	}

	var missing []string
	assetIDByCoinGecko := make(map[string]string)
	for _, asset := range tracked {
		if asset.CoinGeckoID == nil || covered[*asset.CoinGeckoID] {
			continue
		}
		missing = append(missing, *asset.CoinGeckoID)
		assetIDByCoinGecko[*asset.CoinGeckoID] = asset.ID
	}
	if len(missing) == 0 {
		return 0, nil
	}

	simple, err := j.market.SimplePrices(ctx, missing)
	if err != nil {
		return 0, fmt.Errorf("simple price fetch failed: %w", err)
	}

	written := 0
	for _, cgID := range missing {
		usd, ok := simple[cgID]
		if !ok {
			metrics.Skipped++
			continue
		}
		*batch = append(*batch, &models.AssetPrice{
			AssetID:   assetIDByCoinGecko[cgID],
			Timestamp: observedAt,
			Source:    types.PriceSourcePrimary,
			PriceUSD:  decimal.NewFromFloat(usd),
		})
		written++
		if len(*batch) >= j.batchSize {
			if err := flush(); err != nil {
				return written, err
			}
		}
	}
	return written, nil
}

// fetchMarkets pages through the ranked market listing until limit rows are
// collected or the listing runs out. per_page must stay constant across
// pages: the provider windows by (page-1)*per_page, so changing it mid-run
// shifts earlier ranks back into view and drops the tail.
func fetchMarkets(ctx context.Context, market marketLister, limit int) ([]connector.CoinMarketData, error) {
	perPage := marketsPageSize
	if limit < perPage {
		perPage = limit
	}

	var rows []connector.CoinMarketData
	for page := 1; len(rows) < limit; page++ {
		pageRows, err := market.ListMarkets(ctx, page, perPage)
		if err != nil {
			return nil, fmt.Errorf("markets fetch failed on page %d: %w", page, err)
		}
		if len(pageRows) == 0 {
			break
		}
		rows = append(rows, pageRows...)
		if len(pageRows) < perPage {
			break
		}
	}
	if len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

// syncAssets upserts identities for the fetched rows and returns the
// CoinGecko-to-internal ID mapping for the batch.
func (j *PriceCollectionJob) syncAssets(ctx context.Context, rows []connector.CoinMarketData, metrics *JobMetrics) (map[string]string, error) {
	assets := make([]*models.Asset, 0, len(rows))
	coinGeckoIDs := make([]string, 0, len(rows))
	for _, row := range rows {
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
		return nil, fmt.Errorf("asset upsert failed: %w", err)
	}
	metrics.Created += created
	metrics.Updated += updated

	ids, err := j.assets.GetIDsByCoinGeckoIDs(ctx, coinGeckoIDs)
	if err != nil {
		return nil, fmt.Errorf("asset id mapping failed: %w", err)
	}
	return ids, nil
}
