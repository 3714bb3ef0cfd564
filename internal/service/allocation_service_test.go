package service

import (
	"context"
	"math"
	"testing"

	"github.com/portfolio-tracker/internal/errors"
	"github.com/portfolio-tracker/internal/models"
	"github.com/portfolio-tracker/internal/types"
	"github.com/shopspring/decimal"
)

// Mock repositories for testing

type mockPortfolioRepo struct {
	portfolios  map[string]*models.Portfolio
	allocations map[string]*models.PortfolioAllocation
	upserts     int
}

func (m *mockPortfolioRepo) GetByID(ctx context.Context, id string) (*models.Portfolio, error) {
	if p, ok := m.portfolios[id]; ok {
		return p, nil
	}
	return nil, errors.NewNotFoundError("portfolio", id)
}

func (m *mockPortfolioRepo) GetByIDAndUser(ctx context.Context, id, userID string) (*models.Portfolio, error) {
	if p, ok := m.portfolios[id]; ok && p.UserID == userID {
		return p, nil
	}
	return nil, errors.NewNotFoundError("portfolio", id)
}

func (m *mockPortfolioRepo) UpsertAllocation(ctx context.Context, allocation *models.PortfolioAllocation) error {
	if m.allocations == nil {
		m.allocations = make(map[string]*models.PortfolioAllocation)
	}
	m.allocations[allocation.PortfolioID] = allocation
	m.upserts++
	return nil
}

func (m *mockPortfolioRepo) GetAllocation(ctx context.Context, portfolioID string) (*models.PortfolioAllocation, error) {
	if a, ok := m.allocations[portfolioID]; ok {
		return a, nil
	}
	return nil, errors.NewNoAllocationError(portfolioID)
}

type mockAccountRepo struct {
	accounts map[string][]*models.Account
}

func (m *mockAccountRepo) ListByPortfolio(ctx context.Context, portfolioID string) ([]*models.Account, error) {
	return m.accounts[portfolioID], nil
}

type mockPriceReader struct {
	prices map[string]decimal.Decimal
}

func (m *mockPriceReader) LatestPrice(ctx context.Context, assetID string) (*models.AssetPrice, error) {
	if price, ok := m.prices[assetID]; ok {
		return &models.AssetPrice{AssetID: assetID, Source: types.PriceSourcePrimary, PriceUSD: price}, nil
	}
	return nil, errors.NewNotFoundError("asset_price", assetID)
}

func newTestAllocationService(
	portfolios *mockPortfolioRepo,
	accounts *mockAccountRepo,
	prices *mockPriceReader,
	assets *mockAssetReader,
) *AllocationService {
	normalizer := NewNormalizer(assets, testLogger())
	return NewAllocationService(portfolios, accounts, prices, normalizer, nil, testLogger())
}

func holding(asset string, qty string, chain *types.ChainID) models.AccountHolding {
	return models.AccountHolding{
		Asset:    asset,
		Chain:    chain,
		Quantity: decimal.RequireFromString(qty),
	}
}

func TestConstructMergesSameAssetAcrossAccounts(t *testing.T) {
	portfolios := &mockPortfolioRepo{portfolios: map[string]*models.Portfolio{
		"p1": {ID: "p1", UserID: "u1", Name: "Main"},
	}}
	accounts := &mockAccountRepo{accounts: map[string][]*models.Account{
		"p1": {
			{ID: "a1", Type: types.AccountTypeExchange, Holdings: []models.AccountHolding{holding("BTC", "1", nil)}},
			{ID: "a2", Type: types.AccountTypeExchange, Holdings: []models.AccountHolding{holding("btc", "0.5", nil)}},
		},
	}}
	prices := &mockPriceReader{prices: map[string]decimal.Decimal{
		"asset-btc": decimal.NewFromInt(50000),
	}}
	assets := &mockAssetReader{bySymbol: map[string]*models.Asset{
		"BTC": {ID: "asset-btc", Symbol: "BTC"},
	}}

	svc := newTestAllocationService(portfolios, accounts, prices, assets)

	allocation, err := svc.Construct(context.Background(), "p1", "u1")
	if err != nil {
		t.Fatalf("Construct failed: %v", err)
	}

	if len(allocation.Items) != 1 {
		t.Fatalf("Expected 1 item, got %d", len(allocation.Items))
	}
	item := allocation.Items[0]
	if !item.Quantity.Equal(decimal.RequireFromString("1.5")) {
		t.Errorf("Expected quantity 1.5, got %s", item.Quantity)
	}
	if !allocation.TotalValueUSD.Equal(decimal.NewFromInt(75000)) {
		t.Errorf("Expected total 75000, got %s", allocation.TotalValueUSD)
	}
	if math.Abs(item.WeightPct-100) > 1e-9 {
		t.Errorf("Expected weight 100, got %f", item.WeightPct)
	}
	if portfolios.upserts != 1 {
		t.Errorf("Expected exactly one allocation upsert, got %d", portfolios.upserts)
	}
}

func TestConstructKeepsChainsSeparate(t *testing.T) {
	portfolios := &mockPortfolioRepo{portfolios: map[string]*models.Portfolio{
		"p1": {ID: "p1", UserID: "u1"},
	}}
	accounts := &mockAccountRepo{accounts: map[string][]*models.Account{
		"p1": {
			{ID: "a1", Type: types.AccountTypeWallet, Holdings: []models.AccountHolding{
				holding("USDT-ethereum", "100", nil),
				holding("USDT-arbitrum", "200", nil),
			}},
		},
	}}
	prices := &mockPriceReader{prices: map[string]decimal.Decimal{
		"asset-usdt": decimal.NewFromInt(1),
	}}
	assets := &mockAssetReader{bySymbol: map[string]*models.Asset{
		"USDT": {ID: "asset-usdt", Symbol: "USDT"},
	}}

	svc := newTestAllocationService(portfolios, accounts, prices, assets)

	allocation, err := svc.Construct(context.Background(), "p1", "u1")
	if err != nil {
		t.Fatalf("Construct failed: %v", err)
	}

	if len(allocation.Items) != 2 {
		t.Fatalf("Expected 2 items for same symbol on two chains, got %d", len(allocation.Items))
	}
	// Value desc: arbitrum (200) before ethereum (100)
	if allocation.Items[0].Chain == nil || *allocation.Items[0].Chain != types.ChainArbitrum {
		t.Errorf("Expected arbitrum item first, got %v", allocation.Items[0].Chain)
	}
	if !allocation.TotalValueUSD.Equal(decimal.NewFromInt(300)) {
		t.Errorf("Expected total 300, got %s", allocation.TotalValueUSD)
	}
}

func TestConstructUnknownAssetIsUnpriced(t *testing.T) {
	portfolios := &mockPortfolioRepo{portfolios: map[string]*models.Portfolio{
		"p1": {ID: "p1", UserID: "u1"},
	}}
	accounts := &mockAccountRepo{accounts: map[string][]*models.Account{
		"p1": {
			{ID: "a1", Type: types.AccountTypeExchange, Holdings: []models.AccountHolding{
				holding("BTC", "1", nil),
				holding("UNKNOWNTOKEN", "1000", nil),
			}},
		},
	}}
	prices := &mockPriceReader{prices: map[string]decimal.Decimal{
		"asset-btc": decimal.NewFromInt(50000),
	}}
	assets := &mockAssetReader{bySymbol: map[string]*models.Asset{
		"BTC": {ID: "asset-btc", Symbol: "BTC"},
	}}

	svc := newTestAllocationService(portfolios, accounts, prices, assets)

	allocation, err := svc.Construct(context.Background(), "p1", "u1")
	if err != nil {
		t.Fatalf("Construct failed: %v", err)
	}

	if len(allocation.Items) != 2 {
		t.Fatalf("Expected 2 items, got %d", len(allocation.Items))
	}

	priced := allocation.PricedItems()
	if len(priced) != 1 || priced[0].Asset != "BTC" {
		t.Fatalf("Expected BTC as the only priced item, got %v", priced)
	}
	if priced[0].WeightPct != 100 {
		t.Errorf("Expected the priced item to carry the full weight, got %f", priced[0].WeightPct)
	}

	unpriced := allocation.UnpricedItems()
	if len(unpriced) != 1 {
		t.Fatalf("Expected 1 unpriced item, got %d", len(unpriced))
	}
	if unpriced[0].Asset != "UNKNOWNTOKEN" {
		t.Errorf("Expected UNKNOWNTOKEN unpriced, got %s", unpriced[0].Asset)
	}
	if unpriced[0].Context == "" {
		t.Error("Expected diagnostic context on the unpriced item")
	}
	if !unpriced[0].ValueUSD.IsZero() || unpriced[0].WeightPct != 0 {
		t.Error("Unpriced item must not contribute value or weight")
	}

	// Total only counts the priced item
	if !allocation.TotalValueUSD.Equal(decimal.NewFromInt(50000)) {
		t.Errorf("Expected total 50000, got %s", allocation.TotalValueUSD)
	}
}

func TestConstructKnownAssetWithoutPrice(t *testing.T) {
	portfolios := &mockPortfolioRepo{portfolios: map[string]*models.Portfolio{
		"p1": {ID: "p1", UserID: "u1"},
	}}
	accounts := &mockAccountRepo{accounts: map[string][]*models.Account{
		"p1": {
			{ID: "a1", Type: types.AccountTypeExchange, Holdings: []models.AccountHolding{holding("NEW", "10", nil)}},
		},
	}}
	prices := &mockPriceReader{}
	assets := &mockAssetReader{bySymbol: map[string]*models.Asset{
		"NEW": {ID: "asset-new", Symbol: "NEW"},
	}}

	svc := newTestAllocationService(portfolios, accounts, prices, assets)

	allocation, err := svc.Construct(context.Background(), "p1", "u1")
	if err != nil {
		t.Fatalf("Construct failed: %v", err)
	}

	if len(allocation.Items) != 1 || !allocation.Items[0].Unpriced {
		t.Fatal("Expected one unpriced item for asset without price observation")
	}
	if allocation.Items[0].Context != "no price observation" {
		t.Errorf("Unexpected context: %q", allocation.Items[0].Context)
	}
}

func TestConstructZeroTotalLeavesWeightsZero(t *testing.T) {
	portfolios := &mockPortfolioRepo{portfolios: map[string]*models.Portfolio{
		"p1": {ID: "p1", UserID: "u1"},
	}}
	accounts := &mockAccountRepo{accounts: map[string][]*models.Account{
		"p1": {
			{ID: "a1", Type: types.AccountTypeExchange, Holdings: []models.AccountHolding{holding("MYSTERY", "5", nil)}},
		},
	}}

	svc := newTestAllocationService(portfolios, accounts, &mockPriceReader{}, &mockAssetReader{})

	allocation, err := svc.Construct(context.Background(), "p1", "u1")
	if err != nil {
		t.Fatalf("Construct failed: %v", err)
	}

	if !allocation.TotalValueUSD.IsZero() {
		t.Errorf("Expected zero total, got %s", allocation.TotalValueUSD)
	}
	for _, item := range allocation.Items {
		if item.WeightPct != 0 {
			t.Errorf("Expected zero weight, got %f", item.WeightPct)
		}
	}
}

func TestConstructRetainsZeroQuantityHoldings(t *testing.T) {
	portfolios := &mockPortfolioRepo{portfolios: map[string]*models.Portfolio{
		"p1": {ID: "p1", UserID: "u1"},
	}}
	accounts := &mockAccountRepo{accounts: map[string][]*models.Account{
		"p1": {
			{ID: "a1", Type: types.AccountTypeExchange, Holdings: []models.AccountHolding{
				holding("BTC", "1", nil),
				holding("ETH", "0", nil),
			}},
		},
	}}
	prices := &mockPriceReader{prices: map[string]decimal.Decimal{
		"asset-btc": decimal.NewFromInt(50000),
		"asset-eth": decimal.NewFromInt(3000),
	}}
	assets := &mockAssetReader{bySymbol: map[string]*models.Asset{
		"BTC": {ID: "asset-btc", Symbol: "BTC"},
		"ETH": {ID: "asset-eth", Symbol: "ETH"},
	}}

	svc := newTestAllocationService(portfolios, accounts, prices, assets)

	allocation, err := svc.Construct(context.Background(), "p1", "u1")
	if err != nil {
		t.Fatalf("Construct failed: %v", err)
	}

	// The empty ETH position stays visible but contributes nothing
	if len(allocation.Items) != 2 {
		t.Fatalf("Expected zero-quantity holding retained, got %d items", len(allocation.Items))
	}
	eth := allocation.Items[1]
	if eth.Asset != "ETH" {
		t.Fatalf("Expected ETH last, got %s", eth.Asset)
	}
	if !eth.ValueUSD.IsZero() || eth.WeightPct != 0 {
		t.Errorf("Zero-quantity holding must carry zero value and weight, got value=%s weight=%f", eth.ValueUSD, eth.WeightPct)
	}
	if !allocation.TotalValueUSD.Equal(decimal.NewFromInt(50000)) {
		t.Errorf("Expected total 50000, got %s", allocation.TotalValueUSD)
	}
}

func TestConstructOwnershipCheck(t *testing.T) {
	portfolios := &mockPortfolioRepo{portfolios: map[string]*models.Portfolio{
		"p1": {ID: "p1", UserID: "u1"},
	}}

	svc := newTestAllocationService(portfolios, &mockAccountRepo{}, &mockPriceReader{}, &mockAssetReader{})

	_, err := svc.Construct(context.Background(), "p1", "intruder")
	if err == nil {
		t.Fatal("Expected error for foreign user")
	}
	if !errors.IsNotFound(err) {
		t.Errorf("Expected not-found for ownership miss, got %v", err)
	}
}

func TestGetLatestConstructsWhenMissing(t *testing.T) {
	portfolios := &mockPortfolioRepo{portfolios: map[string]*models.Portfolio{
		"p1": {ID: "p1", UserID: "u1"},
	}}
	accounts := &mockAccountRepo{accounts: map[string][]*models.Account{
		"p1": {
			{ID: "a1", Type: types.AccountTypeExchange, Holdings: []models.AccountHolding{holding("BTC", "2", nil)}},
		},
	}}
	prices := &mockPriceReader{prices: map[string]decimal.Decimal{
		"asset-btc": decimal.NewFromInt(100),
	}}
	assets := &mockAssetReader{bySymbol: map[string]*models.Asset{
		"BTC": {ID: "asset-btc", Symbol: "BTC"},
	}}

	svc := newTestAllocationService(portfolios, accounts, prices, assets)

	allocation, err := svc.GetLatest(context.Background(), "p1", "u1", true)
	if err != nil {
		t.Fatalf("GetLatest failed: %v", err)
	}
	if !allocation.TotalValueUSD.Equal(decimal.NewFromInt(200)) {
		t.Errorf("Expected total 200, got %s", allocation.TotalValueUSD)
	}

	// Without construct-on-demand, a missing allocation is an error
	portfolios.allocations = nil
	if _, err := svc.GetLatest(context.Background(), "p1", "u1", false); err == nil {
		t.Fatal("Expected no-allocation error with constructIfMissing=false")
	}
}

func TestSortItemsValueDescThenSymbolAsc(t *testing.T) {
	items := []models.AllocationItem{
		{Asset: "ZZZ", ValueUSD: decimal.NewFromInt(10)},
		{Asset: "AAA", ValueUSD: decimal.NewFromInt(10)},
		{Asset: "MID", ValueUSD: decimal.NewFromInt(50)},
	}

	sortItems(items)

	want := []string{"MID", "AAA", "ZZZ"}
	for i, symbol := range want {
		if items[i].Asset != symbol {
			t.Errorf("Position %d: expected %s, got %s", i, symbol, items[i].Asset)
		}
	}
}
