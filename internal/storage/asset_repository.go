package storage

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/portfolio-tracker/internal/errors"
	"github.com/portfolio-tracker/internal/models"
	"github.com/portfolio-tracker/internal/types"
)

// pgCardinalityViolation is raised when one atomic batch tries to upsert the
// same uniqueness key twice. The collector jobs deduplicate before flushing,
// so seeing this at runtime means a caller skipped that step.
const pgCardinalityViolation = "21000"

// AssetRepository handles canonical asset, contract, price, and ranking
// persistence. The construction core reads it; only collector jobs write.
type AssetRepository struct {
	db *PostgresDB
}

// NewAssetRepository creates a new asset repository
func NewAssetRepository(db *PostgresDB) *AssetRepository {
	return &AssetRepository{db: db}
}

// GetByID retrieves an asset by its canonical ID
func (r *AssetRepository) GetByID(ctx context.Context, id string) (*models.Asset, error) {
	query := `
		SELECT id, symbol, name, coingecko_id, is_active, created_at, updated_at
		FROM assets
		WHERE id = $1
	`

	var asset models.Asset
	err := r.db.Pool().QueryRow(ctx, query, id).Scan(
		&asset.ID,
		&asset.Symbol,
		&asset.Name,
		&asset.CoinGeckoID,
		&asset.IsActive,
		&asset.CreatedAt,
		&asset.UpdatedAt,
	)
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, errors.NewNotFoundError("asset", id)
		}
		return nil, fmt.Errorf("failed to get asset: %w", err)
	}

	return &asset, nil
}

// GetBySymbol retrieves the asset for a canonical symbol. When several assets
// share a symbol, the one with the best (lowest) latest ranking wins; assets
// without a ranking sort last.
func (r *AssetRepository) GetBySymbol(ctx context.Context, symbol string) (*models.Asset, error) {
	query := `
		SELECT a.id, a.symbol, a.name, a.coingecko_id, a.is_active, a.created_at, a.updated_at
		FROM assets a
		LEFT JOIN LATERAL (
			SELECT r.rank
			FROM asset_rankings r
			WHERE r.asset_id = a.id
			ORDER BY r.snapshot_date DESC
			LIMIT 1
		) lr ON true
		WHERE a.symbol = $1
		ORDER BY lr.rank ASC NULLS LAST, a.created_at ASC
		LIMIT 1
	`

	var asset models.Asset
	err := r.db.Pool().QueryRow(ctx, query, strings.ToUpper(symbol)).Scan(
		&asset.ID,
		&asset.Symbol,
		&asset.Name,
		&asset.CoinGeckoID,
		&asset.IsActive,
		&asset.CreatedAt,
		&asset.UpdatedAt,
	)
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, errors.NewNotFoundError("asset", symbol)
		}
		return nil, fmt.Errorf("failed to get asset by symbol: %w", err)
	}

	return &asset, nil
}

// GetAssetByContract resolves a (chain, contract address) pair to its linked
// asset. The address is lowercase-normalized before lookup.
func (r *AssetRepository) GetAssetByContract(ctx context.Context, chain types.ChainID, contractAddress string) (*models.Asset, error) {
	query := `
		SELECT a.id, a.symbol, a.name, a.coingecko_id, a.is_active, a.created_at, a.updated_at
		FROM asset_contracts c
		JOIN assets a ON a.id = c.asset_id
		WHERE c.chain = $1 AND c.contract_address = $2
	`

	var asset models.Asset
	err := r.db.Pool().QueryRow(ctx, query, chain, strings.ToLower(contractAddress)).Scan(
		&asset.ID,
		&asset.Symbol,
		&asset.Name,
		&asset.CoinGeckoID,
		&asset.IsActive,
		&asset.CreatedAt,
		&asset.UpdatedAt,
	)
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, errors.NewNotFoundError("asset_contract", fmt.Sprintf("%s:%s", chain, contractAddress))
		}
		return nil, fmt.Errorf("failed to get asset by contract: %w", err)
	}

	return &asset, nil
}

// LatestPrice returns the most recent price observation for an asset. Ties on
// the minute-rounded timestamp are broken by preferring the primary source.
func (r *AssetRepository) LatestPrice(ctx context.Context, assetID string) (*models.AssetPrice, error) {
	query := `
		SELECT asset_id, ts, source, price_usd, volume_24h_usd, market_cap_usd, change_percent_24h, created_at
		FROM asset_prices
		WHERE asset_id = $1
		ORDER BY ts DESC, CASE WHEN source = $2 THEN 0 ELSE 1 END ASC
		LIMIT 1
	`

	var price models.AssetPrice
	err := r.db.Pool().QueryRow(ctx, query, assetID, types.PriceSourcePrimary).Scan(
		&price.AssetID,
		&price.Timestamp,
		&price.Source,
		&price.PriceUSD,
		&price.Volume24hUSD,
		&price.MarketCapUSD,
		&price.ChangePercent24h,
		&price.CreatedAt,
	)
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, errors.NewNotFoundError("asset_price", assetID)
		}
		return nil, fmt.Errorf("failed to get latest price: %w", err)
	}

	return &price, nil
}

// ListActiveWithCoinGeckoID returns up to limit active assets that carry a
// CoinGecko identifier, ordered by symbol for stable batching.
func (r *AssetRepository) ListActiveWithCoinGeckoID(ctx context.Context, limit int) ([]*models.Asset, error) {
	query := `
		SELECT id, symbol, name, coingecko_id, is_active, created_at, updated_at
		FROM assets
		WHERE is_active AND coingecko_id IS NOT NULL
		ORDER BY symbol ASC
		LIMIT $1
	`

	rows, err := r.db.Pool().Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list assets: %w", err)
	}
	defer rows.Close()

	var assets []*models.Asset
	for rows.Next() {
		var asset models.Asset
		if err := rows.Scan(
			&asset.ID,
			&asset.Symbol,
			&asset.Name,
			&asset.CoinGeckoID,
			&asset.IsActive,
			&asset.CreatedAt,
			&asset.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan asset: %w", err)
		}
		assets = append(assets, &asset)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating assets: %w", err)
	}

	return assets, nil
}

// GetIDsByCoinGeckoIDs maps CoinGecko identifiers to internal asset IDs for
// the given set. Unknown identifiers are simply absent from the result.
func (r *AssetRepository) GetIDsByCoinGeckoIDs(ctx context.Context, coinGeckoIDs []string) (map[string]string, error) {
	if len(coinGeckoIDs) == 0 {
		return map[string]string{}, nil
	}

	query := `SELECT coingecko_id, id FROM assets WHERE coingecko_id = ANY($1)`

	rows, err := r.db.Pool().Query(ctx, query, coinGeckoIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to map coingecko ids: %w", err)
	}
	defer rows.Close()

	ids := make(map[string]string, len(coinGeckoIDs))
	for rows.Next() {
		var cgID, id string
		if err := rows.Scan(&cgID, &id); err != nil {
			return nil, fmt.Errorf("failed to scan id mapping: %w", err)
		}
		ids[cgID] = id
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating id mappings: %w", err)
	}

	return ids, nil
}

// UpsertAssets atomically inserts or refreshes assets keyed by their
// CoinGecko ID. Every asset in the batch must carry one; symbols are not
// unique, so they cannot key the upsert. Returns how many rows were created
// versus updated in place.
func (r *AssetRepository) UpsertAssets(ctx context.Context, assets []*models.Asset) (created, updated int, err error) {
	if len(assets) == 0 {
		return 0, 0, nil
	}

	now := time.Now().UTC()
	var (
		placeholders []string
		args         []interface{}
	)
	for i, asset := range assets {
		if asset.CoinGeckoID == nil || *asset.CoinGeckoID == "" {
			return 0, 0, errors.NewValidationError("coingeckoId", fmt.Sprintf("asset %s has no coingecko id", asset.Symbol))
		}
		if asset.ID == "" {
			asset.ID = uuid.New().String()
		}
		base := i * 6
		placeholders = append(placeholders, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6,
		))
		args = append(args, asset.ID, asset.Symbol, asset.Name, asset.CoinGeckoID, asset.IsActive, now)
	}

	query := fmt.Sprintf(`
		INSERT INTO assets (id, symbol, name, coingecko_id, is_active, updated_at)
		VALUES %s
		ON CONFLICT (coingecko_id) DO UPDATE SET
			symbol = EXCLUDED.symbol,
			name = EXCLUDED.name,
			is_active = EXCLUDED.is_active,
			updated_at = EXCLUDED.updated_at
		RETURNING (xmax = 0) AS inserted
	`, strings.Join(placeholders, ", "))

	rows, err := r.db.Pool().Query(ctx, query, args...)
	if err != nil {
		return 0, 0, wrapUpsertError("assets", err)
	}
	defer rows.Close()

	for rows.Next() {
		var inserted bool
		if err := rows.Scan(&inserted); err != nil {
			return created, updated, fmt.Errorf("failed to scan upsert result: %w", err)
		}
		if inserted {
			created++
		} else {
			updated++
		}
	}

	if err := rows.Err(); err != nil {
		return created, updated, wrapUpsertError("assets", err)
	}

	return created, updated, nil
}

// UpsertPrices atomically writes a batch of price observations keyed by
// (asset_id, ts, source). Callers must deduplicate the batch first; a batch
// containing the same key twice fails with an upsert conflict.
func (r *AssetRepository) UpsertPrices(ctx context.Context, prices []*models.AssetPrice) (int, error) {
	if len(prices) == 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	var (
		placeholders []string
		args         []interface{}
	)
	for i, p := range prices {
		base := i * 8
		placeholders = append(placeholders, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8,
		))
		args = append(args,
			p.AssetID,
			models.RoundToMinute(p.Timestamp),
			p.Source,
			p.PriceUSD,
			p.Volume24hUSD,
			p.MarketCapUSD,
			p.ChangePercent24h,
			now,
		)
	}

	query := fmt.Sprintf(`
		INSERT INTO asset_prices (asset_id, ts, source, price_usd, volume_24h_usd, market_cap_usd, change_percent_24h, created_at)
		VALUES %s
		ON CONFLICT (asset_id, ts, source) DO UPDATE SET
			price_usd = EXCLUDED.price_usd,
			volume_24h_usd = EXCLUDED.volume_24h_usd,
			market_cap_usd = EXCLUDED.market_cap_usd,
			change_percent_24h = EXCLUDED.change_percent_24h
	`, strings.Join(placeholders, ", "))

	tag, err := r.db.Pool().Exec(ctx, query, args...)
	if err != nil {
		return 0, wrapUpsertError("asset_prices", err)
	}

	return int(tag.RowsAffected()), nil
}

// UpsertRankings atomically writes a batch of ranking observations keyed by
// (asset_id, snapshot_date, source). Batches must be pre-deduplicated.
func (r *AssetRepository) UpsertRankings(ctx context.Context, rankings []*models.AssetRanking) (int, error) {
	if len(rankings) == 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	var (
		placeholders []string
		args         []interface{}
	)
	for i, rk := range rankings {
		metadata, err := json.Marshal(rk.Metadata)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal ranking metadata: %w", err)
		}
		base := i * 6
		placeholders = append(placeholders, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6,
		))
		args = append(args, rk.AssetID, rk.SnapshotDate, rk.Source, rk.Rank, metadata, now)
	}

	query := fmt.Sprintf(`
		INSERT INTO asset_rankings (asset_id, snapshot_date, source, rank, metadata, created_at)
		VALUES %s
		ON CONFLICT (asset_id, snapshot_date, source) DO UPDATE SET
			rank = EXCLUDED.rank,
			metadata = EXCLUDED.metadata
	`, strings.Join(placeholders, ", "))

	tag, err := r.db.Pool().Exec(ctx, query, args...)
	if err != nil {
		return 0, wrapUpsertError("asset_rankings", err)
	}

	return int(tag.RowsAffected()), nil
}

// UpsertContracts atomically writes a batch of contract mappings keyed by
// (chain, contract_address). Addresses are lowercase-normalized here so the
// uniqueness key holds regardless of the connector's casing.
func (r *AssetRepository) UpsertContracts(ctx context.Context, contracts []*models.AssetContract) (int, error) {
	if len(contracts) == 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	var (
		placeholders []string
		args         []interface{}
	)
	for i, c := range contracts {
		base := i * 4
		placeholders = append(placeholders, fmt.Sprintf(
			"($%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4,
		))
		args = append(args, c.Chain, strings.ToLower(c.ContractAddress), c.AssetID, now)
	}

	query := fmt.Sprintf(`
		INSERT INTO asset_contracts (chain, contract_address, asset_id, created_at)
		VALUES %s
		ON CONFLICT (chain, contract_address) DO UPDATE SET
			asset_id = EXCLUDED.asset_id
	`, strings.Join(placeholders, ", "))

	tag, err := r.db.Pool().Exec(ctx, query, args...)
	if err != nil {
		return 0, wrapUpsertError("asset_contracts", err)
	}

	return int(tag.RowsAffected()), nil
}

// wrapUpsertError maps a same-batch duplicate-key failure to the conflict
// category; anything else surfaces as a database error.
func wrapUpsertError(table string, err error) error {
	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) && pgErr.Code == pgCardinalityViolation {
		return errors.NewUpsertConflictError(table, err)
	}
	return errors.NewDatabaseError(fmt.Sprintf("upsert %s", table), err)
}
