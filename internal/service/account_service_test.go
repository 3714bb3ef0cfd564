package service

import (
	"context"
	"testing"

	"github.com/portfolio-tracker/internal/errors"
	"github.com/portfolio-tracker/internal/models"
	"github.com/portfolio-tracker/internal/types"
)

type mockSyncAccountRepo struct {
	accounts     map[string]*models.Account
	replaced     map[string][]models.AccountHolding
	replaceCalls int
}

func (m *mockSyncAccountRepo) GetByID(ctx context.Context, id string) (*models.Account, error) {
	if a, ok := m.accounts[id]; ok {
		return a, nil
	}
	return nil, errors.NewNotFoundError("account", id)
}

func (m *mockSyncAccountRepo) GetByIDAndUser(ctx context.Context, id, userID string) (*models.Account, error) {
	if a, ok := m.accounts[id]; ok && a.UserID == userID {
		return a, nil
	}
	return nil, errors.NewNotFoundError("account", id)
}

func (m *mockSyncAccountRepo) ReplaceHoldings(ctx context.Context, accountID string, holdings []models.AccountHolding) error {
	if _, ok := m.accounts[accountID]; !ok {
		return errors.NewNotFoundError("account", accountID)
	}
	if m.replaced == nil {
		m.replaced = make(map[string][]models.AccountHolding)
	}
	m.replaced[accountID] = holdings
	m.replaceCalls++
	return nil
}

func TestSyncHoldingsOverwritesWholesale(t *testing.T) {
	repo := &mockSyncAccountRepo{accounts: map[string]*models.Account{
		"a1": {ID: "a1", UserID: "u1", Type: types.AccountTypeExchange, Holdings: []models.AccountHolding{
			holding("BTC", "1", nil),
			holding("ETH", "10", nil),
		}},
	}}
	svc := NewAccountService(repo, testLogger())

	next := []models.AccountHolding{holding("SOL", "25", nil)}
	if err := svc.SyncHoldings(context.Background(), "a1", "u1", next); err != nil {
		t.Fatalf("SyncHoldings failed: %v", err)
	}

	// The previous list is gone entirely, not merged
	got := repo.replaced["a1"]
	if len(got) != 1 || got[0].Asset != "SOL" {
		t.Fatalf("Expected wholesale replacement with SOL, got %v", got)
	}
	if repo.replaceCalls != 1 {
		t.Errorf("Expected exactly one replace, got %d", repo.replaceCalls)
	}
}

func TestSyncHoldingsEmptyListClearsAccount(t *testing.T) {
	repo := &mockSyncAccountRepo{accounts: map[string]*models.Account{
		"a1": {ID: "a1", UserID: "u1", Holdings: []models.AccountHolding{holding("BTC", "1", nil)}},
	}}
	svc := NewAccountService(repo, testLogger())

	if err := svc.SyncHoldings(context.Background(), "a1", "u1", nil); err != nil {
		t.Fatalf("SyncHoldings failed: %v", err)
	}

	if repo.replaceCalls != 1 {
		t.Fatalf("Expected the empty sync to write, got %d calls", repo.replaceCalls)
	}
	if len(repo.replaced["a1"]) != 0 {
		t.Errorf("Expected the account cleared, got %v", repo.replaced["a1"])
	}
}

func TestSyncHoldingsForeignAccountIsNotFound(t *testing.T) {
	repo := &mockSyncAccountRepo{accounts: map[string]*models.Account{
		"a1": {ID: "a1", UserID: "owner"},
	}}
	svc := NewAccountService(repo, testLogger())

	err := svc.SyncHoldings(context.Background(), "a1", "intruder", []models.AccountHolding{holding("BTC", "1", nil)})
	if !errors.IsNotFound(err) {
		t.Fatalf("Expected not-found for a foreign account, got %v", err)
	}
	if repo.replaceCalls != 0 {
		t.Error("Holdings must not be written for a foreign account")
	}
}

func TestSyncHoldingsRejectsNegativeQuantity(t *testing.T) {
	repo := &mockSyncAccountRepo{accounts: map[string]*models.Account{
		"a1": {ID: "a1", UserID: "u1"},
	}}
	svc := NewAccountService(repo, testLogger())

	err := svc.SyncHoldings(context.Background(), "a1", "u1", []models.AccountHolding{holding("BTC", "-1", nil)})
	if err == nil {
		t.Fatal("Expected a validation error for a negative quantity")
	}
	if repo.replaceCalls != 0 {
		t.Error("Invalid holdings must not reach the store")
	}
}

func TestSyncHoldingsRejectsEmptyAsset(t *testing.T) {
	repo := &mockSyncAccountRepo{accounts: map[string]*models.Account{
		"a1": {ID: "a1", UserID: "u1"},
	}}
	svc := NewAccountService(repo, testLogger())

	err := svc.SyncHoldings(context.Background(), "a1", "u1", []models.AccountHolding{holding(" ", "1", nil)})
	if err == nil {
		t.Fatal("Expected a validation error for an empty asset identifier")
	}
	if repo.replaceCalls != 0 {
		t.Error("Invalid holdings must not reach the store")
	}
}
