package storage

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/portfolio-tracker/internal/errors"
	"github.com/portfolio-tracker/internal/models"
	"github.com/portfolio-tracker/internal/types"
)

// AccountRepository handles account persistence. Holdings live as a JSONB
// document on the account row and are replaced wholesale on each sync.
type AccountRepository struct {
	db *PostgresDB
}

// NewAccountRepository creates a new account repository
func NewAccountRepository(db *PostgresDB) *AccountRepository {
	return &AccountRepository{db: db}
}

// Create inserts a new account
func (r *AccountRepository) Create(ctx context.Context, account *models.Account) error {
	if account.ID == "" {
		account.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	account.CreatedAt = now
	account.UpdatedAt = now

	holdings, err := json.Marshal(account.Holdings)
	if err != nil {
		return fmt.Errorf("failed to marshal holdings: %w", err)
	}

	chains := make([]string, 0, len(account.EnabledChains))
	for _, c := range account.EnabledChains {
		chains = append(chains, string(c))
	}

	query := `
		INSERT INTO accounts (id, user_id, name, type, wallet_address, exchange, enabled_chains, holdings, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err = r.db.Pool().Exec(ctx, query,
		account.ID,
		account.UserID,
		account.Name,
		account.Type,
		account.WalletAddress,
		account.Exchange,
		chains,
		holdings,
		account.CreatedAt,
		account.UpdatedAt,
	)
	if err != nil {
		return errors.NewDatabaseError("create account", err)
	}

	return nil
}

// GetByID retrieves an account by ID
func (r *AccountRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	query := `
		SELECT id, user_id, name, type, wallet_address, exchange, enabled_chains, holdings, last_synced_at, created_at, updated_at
		FROM accounts
		WHERE id = $1
	`

	account, err := scanAccount(r.db.Pool().QueryRow(ctx, query, id))
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, errors.NewNotFoundError("account", id)
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	return account, nil
}

// GetByIDAndUser retrieves an account only if it belongs to the given user
func (r *AccountRepository) GetByIDAndUser(ctx context.Context, id, userID string) (*models.Account, error) {
	query := `
		SELECT id, user_id, name, type, wallet_address, exchange, enabled_chains, holdings, last_synced_at, created_at, updated_at
		FROM accounts
		WHERE id = $1 AND user_id = $2
	`

	account, err := scanAccount(r.db.Pool().QueryRow(ctx, query, id, userID))
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, errors.NewNotFoundError("account", id)
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	return account, nil
}

// ListByPortfolio returns every account linked to a portfolio, holdings
// included, ordered by creation time for deterministic construction input.
func (r *AccountRepository) ListByPortfolio(ctx context.Context, portfolioID string) ([]*models.Account, error) {
	query := `
		SELECT a.id, a.user_id, a.name, a.type, a.wallet_address, a.exchange, a.enabled_chains, a.holdings, a.last_synced_at, a.created_at, a.updated_at
		FROM accounts a
		JOIN portfolio_accounts pa ON pa.account_id = a.id
		WHERE pa.portfolio_id = $1
		ORDER BY a.created_at ASC
	`

	rows, err := r.db.Pool().Query(ctx, query, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to list portfolio accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*models.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, account)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accounts: %w", err)
	}

	return accounts, nil
}

// ReplaceHoldings overwrites an account's holdings document and stamps the
// sync time. The previous list is discarded; holdings carry no history.
func (r *AccountRepository) ReplaceHoldings(ctx context.Context, accountID string, holdings []models.AccountHolding) error {
	data, err := json.Marshal(holdings)
	if err != nil {
		return fmt.Errorf("failed to marshal holdings: %w", err)
	}

	query := `
		UPDATE accounts
		SET holdings = $2, last_synced_at = $3, updated_at = $3
		WHERE id = $1
	`

	tag, err := r.db.Pool().Exec(ctx, query, accountID, data, time.Now().UTC())
	if err != nil {
		return errors.NewDatabaseError("replace holdings", err)
	}
	if tag.RowsAffected() == 0 {
		return errors.NewNotFoundError("account", accountID)
	}

	return nil
}

// rowScanner covers both pgx.Row and pgx.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAccount(row rowScanner) (*models.Account, error) {
	var (
		account  models.Account
		chains   []string
		holdings []byte
	)
	err := row.Scan(
		&account.ID,
		&account.UserID,
		&account.Name,
		&account.Type,
		&account.WalletAddress,
		&account.Exchange,
		&chains,
		&holdings,
		&account.LastSyncedAt,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	for _, c := range chains {
		account.EnabledChains = append(account.EnabledChains, types.ChainID(c))
	}
	if len(holdings) > 0 {
		if err := json.Unmarshal(holdings, &account.Holdings); err != nil {
			return nil, fmt.Errorf("failed to unmarshal holdings: %w", err)
		}
	}

	return &account, nil
}
