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

// SnapshotRepository handles snapshot persistence. Snapshots are immutable
// once written; creation is idempotent on (portfolio_id, snapshot_date,
// snapshot_type).
type SnapshotRepository struct {
	db *PostgresDB
}

// NewSnapshotRepository creates a new snapshot repository
func NewSnapshotRepository(db *PostgresDB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

// Create writes a snapshot if none exists for its idempotency key and returns
// the stored record either way. The insert uses ON CONFLICT DO NOTHING, so a
// re-triggered capture reads back the existing snapshot instead of
// overwriting it. The returned bool reports whether this call created it.
func (r *SnapshotRepository) Create(ctx context.Context, snapshot *models.Snapshot) (*models.Snapshot, bool, error) {
	if snapshot.ID == "" {
		snapshot.ID = uuid.New().String()
	}
	snapshot.CreatedAt = time.Now().UTC()
	snapshot.SnapshotDate = snapshot.SnapshotDate.UTC().Truncate(24 * time.Hour)

	holdings, err := json.Marshal(snapshot.Holdings)
	if err != nil {
		return nil, false, fmt.Errorf("failed to marshal snapshot holdings: %w", err)
	}
	metadata, err := json.Marshal(snapshot.Metadata)
	if err != nil {
		return nil, false, fmt.Errorf("failed to marshal snapshot metadata: %w", err)
	}

	query := `
		INSERT INTO snapshots (id, portfolio_id, snapshot_date, snapshot_type, total_value_usd, holdings, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (portfolio_id, snapshot_date, snapshot_type) DO NOTHING
	`

	tag, err := r.db.Pool().Exec(ctx, query,
		snapshot.ID,
		snapshot.PortfolioID,
		snapshot.SnapshotDate,
		snapshot.SnapshotType,
		snapshot.TotalValueUSD,
		holdings,
		metadata,
		snapshot.CreatedAt,
	)
	if err != nil {
		return nil, false, errors.NewDatabaseError("create snapshot", err)
	}

	if tag.RowsAffected() > 0 {
		return snapshot, true, nil
	}

	existing, err := r.getByKey(ctx, snapshot.PortfolioID, snapshot.SnapshotDate, snapshot.SnapshotType)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (r *SnapshotRepository) getByKey(ctx context.Context, portfolioID string, date time.Time, snapshotType types.SnapshotType) (*models.Snapshot, error) {
	query := `
		SELECT id, portfolio_id, snapshot_date, snapshot_type, total_value_usd, holdings, metadata, created_at
		FROM snapshots
		WHERE portfolio_id = $1 AND snapshot_date = $2 AND snapshot_type = $3
	`

	snapshot, err := scanSnapshot(r.db.Pool().QueryRow(ctx, query, portfolioID, date, snapshotType))
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, errors.NewNotFoundError("snapshot", fmt.Sprintf("%s:%s:%s", portfolioID, date.Format("2006-01-02"), snapshotType))
		}
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}

	return snapshot, nil
}

// SnapshotFilter narrows a snapshot listing. Zero values mean no constraint.
type SnapshotFilter struct {
	Type  types.SnapshotType
	From  time.Time
	To    time.Time
	Limit int
}

// List returns a portfolio's snapshots in chronological order, optionally
// filtered by type and date range.
func (r *SnapshotRepository) List(ctx context.Context, portfolioID string, filter SnapshotFilter) ([]*models.Snapshot, error) {
	query := `
		SELECT id, portfolio_id, snapshot_date, snapshot_type, total_value_usd, holdings, metadata, created_at
		FROM snapshots
		WHERE portfolio_id = $1
	`
	args := []interface{}{portfolioID}

	if filter.Type != "" {
		args = append(args, filter.Type)
		query += fmt.Sprintf(" AND snapshot_type = $%d", len(args))
	}
	if !filter.From.IsZero() {
		args = append(args, filter.From.UTC())
		query += fmt.Sprintf(" AND snapshot_date >= $%d", len(args))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To.UTC())
		query += fmt.Sprintf(" AND snapshot_date <= $%d", len(args))
	}

	query += " ORDER BY snapshot_date ASC, snapshot_type ASC"

	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.db.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []*models.Snapshot
	for rows.Next() {
		snapshot, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		snapshots = append(snapshots, snapshot)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshots: %w", err)
	}

	return snapshots, nil
}

// GetLatest returns a portfolio's most recent snapshot of any type
func (r *SnapshotRepository) GetLatest(ctx context.Context, portfolioID string) (*models.Snapshot, error) {
	query := `
		SELECT id, portfolio_id, snapshot_date, snapshot_type, total_value_usd, holdings, metadata, created_at
		FROM snapshots
		WHERE portfolio_id = $1
		ORDER BY snapshot_date DESC, created_at DESC
		LIMIT 1
	`

	snapshot, err := scanSnapshot(r.db.Pool().QueryRow(ctx, query, portfolioID))
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, errors.NewNotFoundError("snapshot", portfolioID)
		}
		return nil, fmt.Errorf("failed to get latest snapshot: %w", err)
	}

	return snapshot, nil
}

func scanSnapshot(row rowScanner) (*models.Snapshot, error) {
	var (
		snapshot models.Snapshot
		holdings []byte
		metadata []byte
	)
	err := row.Scan(
		&snapshot.ID,
		&snapshot.PortfolioID,
		&snapshot.SnapshotDate,
		&snapshot.SnapshotType,
		&snapshot.TotalValueUSD,
		&holdings,
		&metadata,
		&snapshot.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(holdings) > 0 {
		if err := json.Unmarshal(holdings, &snapshot.Holdings); err != nil {
			return nil, fmt.Errorf("failed to unmarshal snapshot holdings: %w", err)
		}
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &snapshot.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal snapshot metadata: %w", err)
		}
	}

	return &snapshot, nil
}
