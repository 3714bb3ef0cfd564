package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/portfolio-tracker/internal/errors"
	"github.com/portfolio-tracker/internal/logging"
	"github.com/portfolio-tracker/internal/models"
	"github.com/portfolio-tracker/internal/storage"
	"github.com/portfolio-tracker/internal/types"
	"github.com/shopspring/decimal"
)

type allocationPortfolioRepository interface {
	GetByID(ctx context.Context, id string) (*models.Portfolio, error)
	GetByIDAndUser(ctx context.Context, id, userID string) (*models.Portfolio, error)
	UpsertAllocation(ctx context.Context, allocation *models.PortfolioAllocation) error
	GetAllocation(ctx context.Context, portfolioID string) (*models.PortfolioAllocation, error)
}

type allocationAccountRepository interface {
	ListByPortfolio(ctx context.Context, portfolioID string) ([]*models.Account, error)
}

type priceReader interface {
	LatestPrice(ctx context.Context, assetID string) (*models.AssetPrice, error)
}

type identityNormalizer interface {
	Normalize(ctx context.Context, raw RawIdentifier) (NormalizationResult, error)
}

// AllocationService constructs and serves portfolio allocations. Construction
// flattens account holdings, normalizes identities, groups by (asset, chain),
// prices each group, and replaces the portfolio's allocation row atomically.
type AllocationService struct {
	portfolios allocationPortfolioRepository
	accounts   allocationAccountRepository
	prices     priceReader
	normalizer identityNormalizer
	cache      *storage.CacheService
	logger     *logging.Logger
}

// NewAllocationService creates a new allocation service. The cache is
// optional; a nil cache means every read hits the database.
func NewAllocationService(
	portfolios allocationPortfolioRepository,
	accounts allocationAccountRepository,
	prices priceReader,
	normalizer identityNormalizer,
	cache *storage.CacheService,
	logger *logging.Logger,
) *AllocationService {
	return &AllocationService{
		portfolios: portfolios,
		accounts:   accounts,
		prices:     prices,
		normalizer: normalizer,
		cache:      cache,
		logger:     logger,
	}
}

// allocationGroup accumulates holdings for one (asset, chain) identity.
type allocationGroup struct {
	asset    string
	chain    *types.ChainID
	assetID  string
	mapped   bool
	context  string
	quantity decimal.Decimal
}

// Construct rebuilds a portfolio's allocation from its current account
// holdings and reference data. An empty userID skips the ownership check for
// internal callers such as the snapshot job.
func (s *AllocationService) Construct(ctx context.Context, portfolioID, userID string) (*models.PortfolioAllocation, error) {
	portfolio, err := s.resolvePortfolio(ctx, portfolioID, userID)
	if err != nil {
		return nil, err
	}

	accounts, err := s.accounts.ListByPortfolio(ctx, portfolio.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load accounts: %w", err)
	}

	groups, err := s.groupHoldings(ctx, accounts)
	if err != nil {
		return nil, err
	}

	allocation := &models.PortfolioAllocation{
		PortfolioID: portfolio.ID,
		AsOf:        time.Now().UTC(),
	}

	total := decimal.Zero
	for _, g := range groups {
		item := models.AllocationItem{
			Asset:    g.asset,
			Chain:    g.chain,
			Quantity: g.quantity,
			ValueUSD: decimal.Zero,
			Unpriced: true,
			Context:  g.context,
		}

		if g.mapped {
			price, err := s.prices.LatestPrice(ctx, g.assetID)
			switch {
			case err == nil:
				p := price.PriceUSD
				item.PriceUSD = &p
				item.ValueUSD = g.quantity.Mul(p)
				item.Unpriced = false
				item.Context = ""
			case errors.IsNotFound(err):
				item.Context = "no price observation"
			default:
				return nil, fmt.Errorf("failed to load price for %s: %w", g.asset, err)
			}
		}

		total = total.Add(item.ValueUSD)
		allocation.Items = append(allocation.Items, item)
	}

	allocation.TotalValueUSD = total
	applyWeights(allocation.Items, total)
	sortItems(allocation.Items)

	if err := s.portfolios.UpsertAllocation(ctx, allocation); err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.InvalidateAllocation(ctx, portfolio.ID); err != nil {
			s.logger.WithError(err).WithField("portfolioId", portfolio.ID).Warn("failed to invalidate allocation cache")
		}
	}

	s.logger.WithFields(map[string]interface{}{
		"portfolioId": portfolio.ID,
		"items":       len(allocation.Items),
		"totalUsd":    allocation.TotalValueUSD.String(),
	}).Info("allocation constructed")

	return allocation, nil
}

// GetLatest returns a portfolio's current allocation, serving from cache when
// possible. With constructIfMissing set, a portfolio that has never been
// constructed gets built on demand instead of returning no-allocation.
func (s *AllocationService) GetLatest(ctx context.Context, portfolioID, userID string, constructIfMissing bool) (*models.PortfolioAllocation, error) {
	portfolio, err := s.resolvePortfolio(ctx, portfolioID, userID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		var cached models.PortfolioAllocation
		hit, err := s.cache.Get(ctx, s.cache.AllocationKey(portfolio.ID), &cached)
		if err != nil {
			s.logger.WithError(err).WithField("portfolioId", portfolio.ID).Warn("allocation cache read failed")
		} else if hit {
			return &cached, nil
		}
	}

	allocation, err := s.portfolios.GetAllocation(ctx, portfolio.ID)
	if err != nil {
		if errors.IsNotFound(err) && constructIfMissing {
			return s.Construct(ctx, portfolioID, userID)
		}
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, s.cache.AllocationKey(portfolio.ID), allocation); err != nil {
			s.logger.WithError(err).WithField("portfolioId", portfolio.ID).Warn("allocation cache write failed")
		}
	}

	return allocation, nil
}

func (s *AllocationService) resolvePortfolio(ctx context.Context, portfolioID, userID string) (*models.Portfolio, error) {
	if portfolioID == "" {
		return nil, errors.NewValidationError("portfolioId", "must not be empty")
	}
	if userID == "" {
		return s.portfolios.GetByID(ctx, portfolioID)
	}
	return s.portfolios.GetByIDAndUser(ctx, portfolioID, userID)
}

// groupHoldings flattens account holdings and accumulates them per
// (asset, chain) identity. The same symbol held on two chains stays two
// groups; the same identity across accounts merges into one.
func (s *AllocationService) groupHoldings(ctx context.Context, accounts []*models.Account) ([]*allocationGroup, error) {
	groups := make(map[string]*allocationGroup)
	var order []string

	for _, account := range accounts {
		for _, holding := range account.Holdings {
			// Zero-quantity holdings stay visible as zero-value line items
			raw := rawIdentifierFor(account, holding)
			result, err := s.normalizer.Normalize(ctx, raw)
			if err != nil {
				return nil, fmt.Errorf("normalization failed for %q: %w", holding.Asset, err)
			}

			var g allocationGroup
			if result.IsMapped() {
				g = allocationGroup{
					asset:   result.Mapped.Symbol,
					chain:   result.Mapped.Chain,
					assetID: result.Mapped.AssetID,
					mapped:  true,
				}
			} else {
				g = allocationGroup{
					asset:   strings.ToUpper(result.Unknown.Identifier),
					chain:   result.Unknown.Chain,
					context: result.Unknown.Reason,
				}
			}

			key := groupKey(g.asset, g.chain)
			existing, ok := groups[key]
			if !ok {
				g.quantity = holding.Quantity
				groups[key] = &g
				order = append(order, key)
				continue
			}
			existing.quantity = existing.quantity.Add(holding.Quantity)
		}
	}

	out := make([]*allocationGroup, 0, len(order))
	for _, key := range order {
		out = append(out, groups[key])
	}
	return out, nil
}

// rawIdentifierFor classifies a holding's identifier. Wallet holdings that
// look like EVM addresses resolve through the contract table; everything else
// resolves as a symbol.
func rawIdentifierFor(account *models.Account, holding models.AccountHolding) RawIdentifier {
	kind := types.IdentifierGenericSymbol
	switch {
	case looksLikeAddress(holding.Asset):
		kind = types.IdentifierContractAddress
	case account.Type == types.AccountTypeExchange:
		kind = types.IdentifierExchangeSymbol
	}

	return RawIdentifier{
		Value: holding.Asset,
		Kind:  kind,
		Chain: holding.Chain,
	}
}

func looksLikeAddress(value string) bool {
	return len(value) == 42 && strings.HasPrefix(strings.ToLower(value), "0x")
}

func groupKey(asset string, chain *types.ChainID) string {
	if chain == nil {
		return asset
	}
	return asset + "|" + string(*chain)
}

// applyWeights assigns each item its share of the total in percent. A zero
// total leaves every weight at zero rather than dividing by it.
func applyWeights(items []models.AllocationItem, total decimal.Decimal) {
	if total.IsZero() {
		return
	}
	for i := range items {
		items[i].WeightPct = items[i].ValueUSD.Div(total).Mul(decimal.NewFromInt(100)).InexactFloat64()
	}
}

// sortItems orders items by value descending, then symbol ascending so equal
// values land in a stable order.
func sortItems(items []models.AllocationItem) {
	sort.SliceStable(items, func(i, j int) bool {
		cmp := items[i].ValueUSD.Cmp(items[j].ValueUSD)
		if cmp != 0 {
			return cmp > 0
		}
		return items[i].Asset < items[j].Asset
	})
}
