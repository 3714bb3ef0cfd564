// Package types provides common type definitions for the portfolio tracker system.
package types

// ChainID represents supported blockchain networks
type ChainID string

const (
	// ChainEthereum represents the Ethereum mainnet
	ChainEthereum ChainID = "ethereum"
	// ChainArbitrum represents the Arbitrum network
	ChainArbitrum ChainID = "arbitrum"
	// ChainOptimism represents the Optimism network
	ChainOptimism ChainID = "optimism"
	// ChainBase represents the Base network
	ChainBase ChainID = "base"
	// ChainBSC represents the BNB Smart Chain
	ChainBSC ChainID = "bsc"
	// ChainPolygon represents the Polygon network
	ChainPolygon ChainID = "polygon"
)

// KnownChains lists the chain tags recognized when parsing chain-qualified
// symbols such as "USDT-ethereum". Suffixes outside this set are treated as
// part of a hyphenated symbol, not as a chain.
var KnownChains = []ChainID{
	ChainEthereum,
	ChainArbitrum,
	ChainOptimism,
	ChainBase,
	ChainBSC,
	ChainPolygon,
}

// IsKnownChain reports whether the given tag is a recognized chain identifier.
func IsKnownChain(tag string) bool {
	for _, c := range KnownChains {
		if string(c) == tag {
			return true
		}
	}
	return false
}

// AccountType represents the kind of account holdings are synced from
type AccountType string

const (
	// AccountTypeWallet represents an on-chain wallet account
	AccountTypeWallet AccountType = "wallet"
	// AccountTypeExchange represents an exchange account
	AccountTypeExchange AccountType = "exchange"
)

// SnapshotType represents how a portfolio snapshot was triggered
type SnapshotType string

const (
	// SnapshotEOD represents the scheduled end-of-day snapshot
	SnapshotEOD SnapshotType = "eod"
	// SnapshotManual represents a user-triggered snapshot
	SnapshotManual SnapshotType = "manual"
	// SnapshotHourly represents the scheduled hourly snapshot
	SnapshotHourly SnapshotType = "hourly"
)

// Valid reports whether t is one of the supported snapshot types.
func (t SnapshotType) Valid() bool {
	switch t {
	case SnapshotEOD, SnapshotManual, SnapshotHourly:
		return true
	}
	return false
}

// IdentifierKind describes the source of a raw holding identifier fed into
// the asset identity normalizer.
type IdentifierKind string

const (
	// IdentifierExchangeSymbol is a ticker symbol reported by an exchange
	IdentifierExchangeSymbol IdentifierKind = "exchange_symbol"
	// IdentifierContractAddress is an on-chain token contract address
	IdentifierContractAddress IdentifierKind = "contract_address"
	// IdentifierGenericSymbol is a symbol without a specific source context
	IdentifierGenericSymbol IdentifierKind = "symbol"
)

// PriceSourcePrimary is the canonical price source preferred when two
// observations share the same timestamp.
const PriceSourcePrimary = "coingecko"

// ServiceError represents a structured error response
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}
