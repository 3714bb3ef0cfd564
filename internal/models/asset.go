// Package models provides the persistence-facing data structures for the
// portfolio tracker.
package models

import (
	"time"

	"github.com/portfolio-tracker/internal/types"
	"github.com/shopspring/decimal"
)

// Asset is the canonical identity all exchange tickers and contract
// addresses for the same token resolve to. Refreshed only by collector
// jobs keyed by coingecko_id; symbols are not unique across assets.
type Asset struct {
	ID          string    `json:"id"`
	Symbol      string    `json:"symbol"`
	Name        string    `json:"name"`
	CoinGeckoID *string   `json:"coingeckoId,omitempty"`
	IsActive    bool      `json:"isActive"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// AssetContract maps an on-chain contract address to a canonical asset.
// Contract addresses are stored lowercase; unique per (chain, contract_address).
type AssetContract struct {
	Chain           types.ChainID `json:"chain"`
	ContractAddress string        `json:"contractAddress"`
	AssetID         string        `json:"assetId"`
	CreatedAt       time.Time     `json:"createdAt"`
}

// AssetPrice is a point observation of an asset's USD price.
// Timestamps are rounded to the minute; unique per (asset_id, ts, source).
type AssetPrice struct {
	AssetID          string           `json:"assetId"`
	Timestamp        time.Time        `json:"timestamp"`
	Source           string           `json:"source"`
	PriceUSD         decimal.Decimal  `json:"priceUsd"`
	Volume24hUSD     *decimal.Decimal `json:"volume24hUsd,omitempty"`
	MarketCapUSD     *decimal.Decimal `json:"marketCapUsd,omitempty"`
	ChangePercent24h *decimal.Decimal `json:"changePercent24h,omitempty"`
	CreatedAt        time.Time        `json:"createdAt"`
}

// AssetRanking is a dated market-cap ranking observation for an asset.
// Unique per (asset_id, snapshot_date, source).
type AssetRanking struct {
	AssetID      string                 `json:"assetId"`
	SnapshotDate time.Time              `json:"snapshotDate"`
	Source       string                 `json:"source"`
	Rank         int                    `json:"rank"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt    time.Time              `json:"createdAt"`
}

// RoundToMinute truncates a timestamp to the start of its minute. Collector
// jobs use this so repeated runs within the same minute resolve to the same
// uniqueness key instead of piling up near-duplicate rows.
func RoundToMinute(t time.Time) time.Time {
	return t.UTC().Truncate(time.Minute)
}
