package job

import (
	"testing"
	"time"

	"github.com/portfolio-tracker/internal/models"
	"github.com/portfolio-tracker/internal/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDedupPricesKeepsLast(t *testing.T) {
	ts := time.Date(2026, 9, 1, 12, 30, 0, 0, time.UTC)

	prices := []*models.AssetPrice{
		{AssetID: "a1", Timestamp: ts, Source: "coingecko", PriceUSD: decimal.NewFromInt(100)},
		{AssetID: "a2", Timestamp: ts, Source: "coingecko", PriceUSD: decimal.NewFromInt(5)},
		{AssetID: "a1", Timestamp: ts, Source: "coingecko", PriceUSD: decimal.NewFromInt(101)},
	}

	out := dedupPrices(prices)

	require.Len(t, out, 2)
	assert.Equal(t, "a1", out[0].AssetID)
	// The later observation replaced the earlier one in place
	assert.True(t, out[0].PriceUSD.Equal(decimal.NewFromInt(101)))
	assert.Equal(t, "a2", out[1].AssetID)
}

func TestDedupPricesDistinguishesMinutesAndSources(t *testing.T) {
	ts := time.Date(2026, 9, 1, 12, 30, 10, 0, time.UTC)

	prices := []*models.AssetPrice{
		{AssetID: "a1", Timestamp: ts, Source: "coingecko"},
		// Same minute after rounding, different source
		{AssetID: "a1", Timestamp: ts.Add(20 * time.Second), Source: "binance"},
		// Next minute, same source
		{AssetID: "a1", Timestamp: ts.Add(time.Minute), Source: "coingecko"},
		// Same minute and source as the first entry, collapses into it
		{AssetID: "a1", Timestamp: ts.Add(30 * time.Second), Source: "coingecko"},
	}

	out := dedupPrices(prices)
	assert.Len(t, out, 3)
}

func TestDedupRankingsKeepsLast(t *testing.T) {
	date := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)

	rankings := []*models.AssetRanking{
		{AssetID: "a1", SnapshotDate: date, Source: "coingecko", Rank: 5},
		{AssetID: "a1", SnapshotDate: date, Source: "coingecko", Rank: 4},
	}

	out := dedupRankings(rankings)

	require.Len(t, out, 1)
	assert.Equal(t, 4, out[0].Rank)
}

func TestDedupContractsNormalizesCase(t *testing.T) {
	contracts := []*models.AssetContract{
		{Chain: types.ChainEthereum, ContractAddress: "0xABCDEF", AssetID: "a1"},
		{Chain: types.ChainEthereum, ContractAddress: "0xabcdef", AssetID: "a2"},
		{Chain: types.ChainArbitrum, ContractAddress: "0xabcdef", AssetID: "a3"},
	}

	out := dedupContracts(contracts)

	require.Len(t, out, 2)
	assert.Equal(t, "a2", out[0].AssetID)
	assert.Equal(t, "a3", out[1].AssetID)
}

func TestDedupAssetsKeysOnCoinGeckoID(t *testing.T) {
	btc := "bitcoin"
	wbtc := "wrapped-bitcoin"

	assets := []*models.Asset{
		{Symbol: "BTC", CoinGeckoID: &btc},
		// Same ticker, different coin, stays separate
		{Symbol: "BTC", CoinGeckoID: &wbtc},
		{Symbol: "BTC", CoinGeckoID: &btc, Name: "Bitcoin"},
	}

	out := dedupAssets(assets)

	require.Len(t, out, 2)
	assert.Equal(t, "Bitcoin", out[0].Name)
}
