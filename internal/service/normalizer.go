// Package service implements the portfolio construction core: asset identity
// normalization, allocation construction, and snapshot management.
package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/portfolio-tracker/internal/errors"
	"github.com/portfolio-tracker/internal/logging"
	"github.com/portfolio-tracker/internal/models"
	"github.com/portfolio-tracker/internal/types"
)

// RawIdentifier is an asset identifier as reported by an account source,
// before any canonical mapping.
type RawIdentifier struct {
	Value string
	Kind  types.IdentifierKind
	// Chain is required for contract addresses and optional context for
	// symbols.
	Chain *types.ChainID
}

// AssetIdentity is a successfully resolved canonical identity.
type AssetIdentity struct {
	AssetID     string
	Symbol      string
	Chain       *types.ChainID
	CoinGeckoID *string
}

// UnknownIdentifier records an identifier that could not be mapped, with
// enough context to diagnose or backfill it later.
type UnknownIdentifier struct {
	Identifier string
	Kind       types.IdentifierKind
	Chain      *types.ChainID
	Reason     string
}

// NormalizationResult is a tagged result: exactly one of Mapped or Unknown is
// set. An unmappable identifier is ordinary data, not an error; errors are
// reserved for infrastructure failures during lookup.
type NormalizationResult struct {
	Mapped  *AssetIdentity
	Unknown *UnknownIdentifier
}

// IsMapped reports whether the identifier resolved to a canonical asset.
func (r NormalizationResult) IsMapped() bool {
	return r.Mapped != nil
}

type normalizerAssetReader interface {
	GetBySymbol(ctx context.Context, symbol string) (*models.Asset, error)
	GetAssetByContract(ctx context.Context, chain types.ChainID, contractAddress string) (*models.Asset, error)
}

// Normalizer maps raw holding identifiers to canonical asset identities. It
// only reads reference data; collectors own the writes.
type Normalizer struct {
	assets normalizerAssetReader
	logger *logging.Logger
}

// NewNormalizer creates a new normalizer
func NewNormalizer(assets normalizerAssetReader, logger *logging.Logger) *Normalizer {
	return &Normalizer{
		assets: assets,
		logger: logger,
	}
}

// Normalize resolves one raw identifier. Contract addresses resolve through
// the (chain, lowercase address) contract table; symbols first strip a
// recognized chain suffix ("USDT-ethereum"), then match the uppercased
// symbol, with ranking deciding symbol collisions at the repository.
func (n *Normalizer) Normalize(ctx context.Context, raw RawIdentifier) (NormalizationResult, error) {
	value := strings.TrimSpace(raw.Value)
	if value == "" {
		return n.unknownResult(raw, "empty identifier"), nil
	}

	if raw.Kind == types.IdentifierContractAddress {
		return n.normalizeContract(ctx, raw, value)
	}

	symbol, chain := splitChainSuffix(value)
	if chain == nil {
		chain = raw.Chain
	}

	asset, err := n.assets.GetBySymbol(ctx, strings.ToUpper(symbol))
	if err != nil {
		if errors.IsNotFound(err) {
			return n.unknownResult(raw, fmt.Sprintf("no asset matches symbol %q", strings.ToUpper(symbol))), nil
		}
		return NormalizationResult{}, fmt.Errorf("symbol lookup failed: %w", err)
	}

	return n.mappedResult(raw, asset, chain), nil
}

func (n *Normalizer) normalizeContract(ctx context.Context, raw RawIdentifier, value string) (NormalizationResult, error) {
	if raw.Chain == nil {
		return n.unknownResult(raw, "contract address without a chain"), nil
	}

	asset, err := n.assets.GetAssetByContract(ctx, *raw.Chain, strings.ToLower(value))
	if err != nil {
		if errors.IsNotFound(err) {
			return n.unknownResult(raw, fmt.Sprintf("no asset linked to contract %s on %s", strings.ToLower(value), *raw.Chain)), nil
		}
		return NormalizationResult{}, fmt.Errorf("contract lookup failed: %w", err)
	}

	return n.mappedResult(raw, asset, raw.Chain), nil
}

// splitChainSuffix parses chain-qualified symbols of the form SYMBOL-CHAIN.
// Only recognized chain tags split; "WBTC-PERP" stays a whole symbol.
func splitChainSuffix(value string) (string, *types.ChainID) {
	idx := strings.LastIndex(value, "-")
	if idx <= 0 || idx == len(value)-1 {
		return value, nil
	}

	tag := strings.ToLower(value[idx+1:])
	if !types.IsKnownChain(tag) {
		return value, nil
	}

	chain := types.ChainID(tag)
	return value[:idx], &chain
}

func (n *Normalizer) mappedResult(raw RawIdentifier, asset *models.Asset, chain *types.ChainID) NormalizationResult {
	n.logger.WithFields(map[string]interface{}{
		"identifier": raw.Value,
		"kind":       raw.Kind,
		"symbol":     asset.Symbol,
		"assetId":    asset.ID,
	}).Info("identifier mapped")

	return NormalizationResult{
		Mapped: &AssetIdentity{
			AssetID:     asset.ID,
			Symbol:      asset.Symbol,
			Chain:       chain,
			CoinGeckoID: asset.CoinGeckoID,
		},
	}
}

func (n *Normalizer) unknownResult(raw RawIdentifier, reason string) NormalizationResult {
	n.logger.WithFields(map[string]interface{}{
		"identifier": raw.Value,
		"kind":       raw.Kind,
		"reason":     reason,
	}).Warn("identifier unmapped")

	return NormalizationResult{
		Unknown: &UnknownIdentifier{
			Identifier: raw.Value,
			Kind:       raw.Kind,
			Chain:      raw.Chain,
			Reason:     reason,
		},
	}
}
