package job

import (
	"fmt"
	"strings"

	"github.com/portfolio-tracker/internal/models"
)

// One atomic upsert cannot touch the same uniqueness key twice, so every
// batch is deduplicated before it is flushed. Keep-last wins: when a provider
// reports the same key more than once in a fetch, the later observation
// replaces the earlier one.

// normalizeSymbol maps a provider ticker to its canonical uppercase form.
func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// dedupPrices collapses a price batch to one row per (asset_id, ts, source).
func dedupPrices(prices []*models.AssetPrice) []*models.AssetPrice {
	seen := make(map[string]int, len(prices))
	out := make([]*models.AssetPrice, 0, len(prices))
	for _, p := range prices {
		key := fmt.Sprintf("%s|%d|%s", p.AssetID, models.RoundToMinute(p.Timestamp).Unix(), p.Source)
		if idx, ok := seen[key]; ok {
			out[idx] = p
			continue
		}
		seen[key] = len(out)
		out = append(out, p)
	}
	return out
}

// dedupRankings collapses a ranking batch to one row per
// (asset_id, snapshot_date, source).
func dedupRankings(rankings []*models.AssetRanking) []*models.AssetRanking {
	seen := make(map[string]int, len(rankings))
	out := make([]*models.AssetRanking, 0, len(rankings))
	for _, r := range rankings {
		key := fmt.Sprintf("%s|%s|%s", r.AssetID, r.SnapshotDate.Format("2006-01-02"), r.Source)
		if idx, ok := seen[key]; ok {
			out[idx] = r
			continue
		}
		seen[key] = len(out)
		out = append(out, r)
	}
	return out
}

// dedupContracts collapses a contract batch to one row per
// (chain, contract_address).
func dedupContracts(contracts []*models.AssetContract) []*models.AssetContract {
	seen := make(map[string]int, len(contracts))
	out := make([]*models.AssetContract, 0, len(contracts))
	for _, c := range contracts {
		key := fmt.Sprintf("%s|%s", c.Chain, strings.ToLower(c.ContractAddress))
		if idx, ok := seen[key]; ok {
			out[idx] = c
			continue
		}
		seen[key] = len(out)
		out = append(out, c)
	}
	return out
}

// dedupAssets collapses an asset batch to one row per CoinGecko ID, falling
// back to the symbol for rows without one.
func dedupAssets(assets []*models.Asset) []*models.Asset {
	seen := make(map[string]int, len(assets))
	out := make([]*models.Asset, 0, len(assets))
	for _, a := range assets {
		key := strings.ToUpper(a.Symbol)
		if a.CoinGeckoID != nil && *a.CoinGeckoID != "" {
			key = *a.CoinGeckoID
		}
		if idx, ok := seen[key]; ok {
			out[idx] = a
			continue
		}
		seen[key] = len(out)
		out = append(out, a)
	}
	return out
}
