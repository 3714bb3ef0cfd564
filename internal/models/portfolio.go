package models

import (
	"time"

	"github.com/portfolio-tracker/internal/types"
	"github.com/shopspring/decimal"
)

// Portfolio groups a set of accounts into one consolidated view.
type Portfolio struct {
	ID           string    `json:"id"`
	UserID       string    `json:"userId"`
	Name         string    `json:"name"`
	BaseCurrency string    `json:"baseCurrency"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// AllocationItem is one line of a constructed allocation. The identity key
// within an allocation is (asset, chain): the same symbol held on two chains
// stays two distinct items.
type AllocationItem struct {
	Asset     string           `json:"asset"`
	Chain     *types.ChainID   `json:"chain,omitempty"`
	Quantity  decimal.Decimal  `json:"quantity"`
	PriceUSD  *decimal.Decimal `json:"priceUsd,omitempty"`
	ValueUSD  decimal.Decimal  `json:"valueUsd"`
	WeightPct float64          `json:"weightPct"`
	Unpriced  bool             `json:"unpriced"`
	// Context carries the normalizer's diagnostic for unpriced lines.
	Context string `json:"context,omitempty"`
}

// PortfolioAllocation is the current, mutable, priced and weighted view of a
// portfolio's holdings. Exactly one row exists per portfolio; construction
// replaces it wholesale with a single atomic upsert.
type PortfolioAllocation struct {
	PortfolioID   string           `json:"portfolioId"`
	AsOf          time.Time        `json:"asOf"`
	TotalValueUSD decimal.Decimal  `json:"totalValueUsd"`
	Items         []AllocationItem `json:"items"`
	UpdatedAt     time.Time        `json:"updatedAt"`
}

// PricedItems returns the items that carry a price observation.
func (a *PortfolioAllocation) PricedItems() []AllocationItem {
	var out []AllocationItem
	for _, item := range a.Items {
		if !item.Unpriced {
			out = append(out, item)
		}
	}
	return out
}

// UnpricedItems returns the items flagged as unpriced.
func (a *PortfolioAllocation) UnpricedItems() []AllocationItem {
	var out []AllocationItem
	for _, item := range a.Items {
		if item.Unpriced {
			out = append(out, item)
		}
	}
	return out
}
