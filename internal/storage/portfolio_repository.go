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
)

// PortfolioRepository handles portfolio persistence, account membership, and
// the single current allocation row each portfolio carries.
type PortfolioRepository struct {
	db *PostgresDB
}

// NewPortfolioRepository creates a new portfolio repository
func NewPortfolioRepository(db *PostgresDB) *PortfolioRepository {
	return &PortfolioRepository{db: db}
}

// Create inserts a new portfolio
func (r *PortfolioRepository) Create(ctx context.Context, portfolio *models.Portfolio) error {
	if portfolio.ID == "" {
		portfolio.ID = uuid.New().String()
	}
	if portfolio.BaseCurrency == "" {
		portfolio.BaseCurrency = "USD"
	}
	now := time.Now().UTC()
	portfolio.CreatedAt = now
	portfolio.UpdatedAt = now

	query := `
		INSERT INTO portfolios (id, user_id, name, base_currency, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.Pool().Exec(ctx, query,
		portfolio.ID,
		portfolio.UserID,
		portfolio.Name,
		portfolio.BaseCurrency,
		portfolio.CreatedAt,
		portfolio.UpdatedAt,
	)
	if err != nil {
		return errors.NewDatabaseError("create portfolio", err)
	}

	return nil
}

// GetByID retrieves a portfolio by ID
func (r *PortfolioRepository) GetByID(ctx context.Context, id string) (*models.Portfolio, error) {
	query := `
		SELECT id, user_id, name, base_currency, created_at, updated_at
		FROM portfolios
		WHERE id = $1
	`

	var p models.Portfolio
	err := r.db.Pool().QueryRow(ctx, query, id).Scan(
		&p.ID, &p.UserID, &p.Name, &p.BaseCurrency, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, errors.NewNotFoundError("portfolio", id)
		}
		return nil, fmt.Errorf("failed to get portfolio: %w", err)
	}

	return &p, nil
}

// GetByIDAndUser retrieves a portfolio only if it belongs to the given user.
// Ownership misses surface as not-found so the API never confirms that a
// foreign portfolio exists.
func (r *PortfolioRepository) GetByIDAndUser(ctx context.Context, id, userID string) (*models.Portfolio, error) {
	query := `
		SELECT id, user_id, name, base_currency, created_at, updated_at
		FROM portfolios
		WHERE id = $1 AND user_id = $2
	`

	var p models.Portfolio
	err := r.db.Pool().QueryRow(ctx, query, id, userID).Scan(
		&p.ID, &p.UserID, &p.Name, &p.BaseCurrency, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, errors.NewNotFoundError("portfolio", id)
		}
		return nil, fmt.Errorf("failed to get portfolio: %w", err)
	}

	return &p, nil
}

// ListByUser returns the user's portfolios, newest first
func (r *PortfolioRepository) ListByUser(ctx context.Context, userID string) ([]*models.Portfolio, error) {
	query := `
		SELECT id, user_id, name, base_currency, created_at, updated_at
		FROM portfolios
		WHERE user_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.db.Pool().Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list portfolios: %w", err)
	}
	defer rows.Close()

	var portfolios []*models.Portfolio
	for rows.Next() {
		var p models.Portfolio
		if err := rows.Scan(&p.ID, &p.UserID, &p.Name, &p.BaseCurrency, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan portfolio: %w", err)
		}
		portfolios = append(portfolios, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating portfolios: %w", err)
	}

	return portfolios, nil
}

// ListAllIDs returns every portfolio ID, used by the fleet-wide snapshot job
func (r *PortfolioRepository) ListAllIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.Pool().Query(ctx, `SELECT id FROM portfolios ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list portfolio ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan portfolio id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating portfolio ids: %w", err)
	}

	return ids, nil
}

// LinkAccount adds an account to a portfolio. Linking twice is a no-op.
func (r *PortfolioRepository) LinkAccount(ctx context.Context, portfolioID, accountID string) error {
	query := `
		INSERT INTO portfolio_accounts (portfolio_id, account_id, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (portfolio_id, account_id) DO NOTHING
	`

	_, err := r.db.Pool().Exec(ctx, query, portfolioID, accountID, time.Now().UTC())
	if err != nil {
		return errors.NewDatabaseError("link account", err)
	}

	return nil
}

// UnlinkAccount removes an account from a portfolio
func (r *PortfolioRepository) UnlinkAccount(ctx context.Context, portfolioID, accountID string) error {
	query := `DELETE FROM portfolio_accounts WHERE portfolio_id = $1 AND account_id = $2`

	_, err := r.db.Pool().Exec(ctx, query, portfolioID, accountID)
	if err != nil {
		return errors.NewDatabaseError("unlink account", err)
	}

	return nil
}

// UpsertAllocation replaces a portfolio's current allocation in one atomic
// statement. Concurrent constructions for the same portfolio serialize on the
// row; readers see either the previous complete allocation or the new one,
// never a partial state.
func (r *PortfolioRepository) UpsertAllocation(ctx context.Context, allocation *models.PortfolioAllocation) error {
	items, err := json.Marshal(allocation.Items)
	if err != nil {
		return fmt.Errorf("failed to marshal allocation items: %w", err)
	}

	allocation.UpdatedAt = time.Now().UTC()

	query := `
		INSERT INTO portfolio_allocations (portfolio_id, as_of, total_value_usd, items, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (portfolio_id) DO UPDATE SET
			as_of = EXCLUDED.as_of,
			total_value_usd = EXCLUDED.total_value_usd,
			items = EXCLUDED.items,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.Pool().Exec(ctx, query,
		allocation.PortfolioID,
		allocation.AsOf,
		allocation.TotalValueUSD,
		items,
		allocation.UpdatedAt,
	)
	if err != nil {
		return errors.NewDatabaseError("upsert allocation", err)
	}

	return nil
}

// GetAllocation returns a portfolio's current allocation, or not-found if it
// has never been constructed.
func (r *PortfolioRepository) GetAllocation(ctx context.Context, portfolioID string) (*models.PortfolioAllocation, error) {
	query := `
		SELECT portfolio_id, as_of, total_value_usd, items, updated_at
		FROM portfolio_allocations
		WHERE portfolio_id = $1
	`

	var (
		allocation models.PortfolioAllocation
		items      []byte
	)
	err := r.db.Pool().QueryRow(ctx, query, portfolioID).Scan(
		&allocation.PortfolioID,
		&allocation.AsOf,
		&allocation.TotalValueUSD,
		&items,
		&allocation.UpdatedAt,
	)
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, errors.NewNoAllocationError(portfolioID)
		}
		return nil, fmt.Errorf("failed to get allocation: %w", err)
	}

	if len(items) > 0 {
		if err := json.Unmarshal(items, &allocation.Items); err != nil {
			return nil, fmt.Errorf("failed to unmarshal allocation items: %w", err)
		}
	}

	return &allocation, nil
}
