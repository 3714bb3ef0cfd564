package models

import (
	"time"

	"github.com/portfolio-tracker/internal/types"
	"github.com/shopspring/decimal"
)

// SnapshotMetadata captures context about the allocation a snapshot was
// derived from.
type SnapshotMetadata struct {
	PortfolioName  string    `json:"portfolioName"`
	AllocationAsOf time.Time `json:"allocationAsOf"`
	AccountCount   int       `json:"accountCount,omitempty"`
	HoldingsCount  int       `json:"holdingsCount"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Snapshot is an immutable, dated copy of a portfolio allocation. Unique per
// (portfolio_id, snapshot_date, snapshot_type) so re-triggered capture jobs
// resolve to the existing record instead of duplicating it.
type Snapshot struct {
	ID            string             `json:"id"`
	PortfolioID   string             `json:"portfolioId"`
	SnapshotDate  time.Time          `json:"snapshotDate"`
	SnapshotType  types.SnapshotType `json:"snapshotType"`
	TotalValueUSD decimal.Decimal    `json:"totalValueUsd"`
	Holdings      []AllocationItem   `json:"holdings"`
	Metadata      SnapshotMetadata   `json:"metadata"`
	CreatedAt     time.Time          `json:"createdAt"`
}
