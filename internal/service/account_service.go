package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/portfolio-tracker/internal/errors"
	"github.com/portfolio-tracker/internal/logging"
	"github.com/portfolio-tracker/internal/models"
)

type accountSyncRepository interface {
	GetByID(ctx context.Context, id string) (*models.Account, error)
	GetByIDAndUser(ctx context.Context, id, userID string) (*models.Account, error)
	ReplaceHoldings(ctx context.Context, accountID string, holdings []models.AccountHolding) error
}

// AccountService owns the holdings write path fed by account sync. Each sync
// overwrites the account's holdings wholesale and stamps last_synced_at; no
// history is kept at this layer.
type AccountService struct {
	accounts accountSyncRepository
	logger   *logging.Logger
}

// NewAccountService creates a new account service
func NewAccountService(accounts accountSyncRepository, logger *logging.Logger) *AccountService {
	return &AccountService{
		accounts: accounts,
		logger:   logger,
	}
}

// SyncHoldings replaces an account's holdings with the given list. An empty
// userID skips the ownership check for internal sync callers. An empty list
// is a valid sync result and clears the account.
func (s *AccountService) SyncHoldings(ctx context.Context, accountID, userID string, holdings []models.AccountHolding) error {
	if accountID == "" {
		return errors.NewValidationError("accountId", "must not be empty")
	}

	account, err := s.resolveAccount(ctx, accountID, userID)
	if err != nil {
		return err
	}

	for i, h := range holdings {
		if strings.TrimSpace(h.Asset) == "" {
			return errors.NewValidationError("holdings", fmt.Sprintf("entry %d has an empty asset identifier", i))
		}
		if h.Quantity.IsNegative() {
			return errors.NewValidationError("holdings", fmt.Sprintf("entry %d has a negative quantity", i))
		}
	}

	if err := s.accounts.ReplaceHoldings(ctx, account.ID, holdings); err != nil {
		return err
	}

	s.logger.WithFields(map[string]interface{}{
		"accountId": account.ID,
		"holdings":  len(holdings),
	}).Info("account holdings synced")

	return nil
}

func (s *AccountService) resolveAccount(ctx context.Context, accountID, userID string) (*models.Account, error) {
	if userID == "" {
		return s.accounts.GetByID(ctx, accountID)
	}
	return s.accounts.GetByIDAndUser(ctx, accountID, userID)
}
