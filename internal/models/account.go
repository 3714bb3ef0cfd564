package models

import (
	"time"

	"github.com/portfolio-tracker/internal/types"
	"github.com/shopspring/decimal"
)

// AccountHolding is a raw, unpriced quantity reported by an account sync.
// The holdings list on an account is overwritten wholesale on each sync;
// no history is retained at this layer.
type AccountHolding struct {
	Asset     string           `json:"asset"`
	Chain     *types.ChainID   `json:"chain,omitempty"`
	Quantity  decimal.Decimal  `json:"quantity"`
	Available *decimal.Decimal `json:"available,omitempty"`
	Frozen    *decimal.Decimal `json:"frozen,omitempty"`
}

// AvailableQuantity returns the unfrozen quantity, defaulting to the total
// quantity for legacy holdings that predate the available field.
func (h *AccountHolding) AvailableQuantity() decimal.Decimal {
	if h.Available != nil {
		return *h.Available
	}
	return h.Quantity
}

// FrozenQuantity returns the locked quantity, defaulting to zero.
func (h *AccountHolding) FrozenQuantity() decimal.Decimal {
	if h.Frozen != nil {
		return *h.Frozen
	}
	return decimal.Zero
}

// Account is a wallet or exchange account owned by exactly one user.
// Holdings are written by the account-sync collaborator and read-only
// from the construction core's perspective.
type Account struct {
	ID            string            `json:"id"`
	UserID        string            `json:"userId"`
	Name          string            `json:"name"`
	Type          types.AccountType `json:"type"`
	WalletAddress *string           `json:"walletAddress,omitempty"`
	Exchange      *string           `json:"exchange,omitempty"`
	EnabledChains []types.ChainID   `json:"enabledChains,omitempty"`
	Holdings      []AccountHolding  `json:"holdings,omitempty"`
	LastSyncedAt  *time.Time        `json:"lastSyncedAt,omitempty"`
	CreatedAt     time.Time         `json:"createdAt"`
	UpdatedAt     time.Time         `json:"updatedAt"`
}
