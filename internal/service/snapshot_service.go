package service

import (
	"context"
	"time"

	"github.com/portfolio-tracker/internal/errors"
	"github.com/portfolio-tracker/internal/logging"
	"github.com/portfolio-tracker/internal/models"
	"github.com/portfolio-tracker/internal/storage"
	"github.com/portfolio-tracker/internal/types"
)

type snapshotPortfolioRepository interface {
	GetByID(ctx context.Context, id string) (*models.Portfolio, error)
	GetByIDAndUser(ctx context.Context, id, userID string) (*models.Portfolio, error)
	ListAllIDs(ctx context.Context) ([]string, error)
}

type snapshotRepository interface {
	Create(ctx context.Context, snapshot *models.Snapshot) (*models.Snapshot, bool, error)
	List(ctx context.Context, portfolioID string, filter storage.SnapshotFilter) ([]*models.Snapshot, error)
	GetLatest(ctx context.Context, portfolioID string) (*models.Snapshot, error)
}

type snapshotAccountRepository interface {
	ListByPortfolio(ctx context.Context, portfolioID string) ([]*models.Account, error)
}

type allocationProvider interface {
	GetLatest(ctx context.Context, portfolioID, userID string, constructIfMissing bool) (*models.PortfolioAllocation, error)
}

// SnapshotService captures immutable dated copies of portfolio allocations.
// Capture is idempotent on (portfolio, date, type): re-triggering a capture
// returns the snapshot that already exists instead of writing a second one.
type SnapshotService struct {
	portfolios  snapshotPortfolioRepository
	snapshots   snapshotRepository
	accounts    snapshotAccountRepository
	allocations allocationProvider
	logger      *logging.Logger
}

// NewSnapshotService creates a new snapshot service
func NewSnapshotService(
	portfolios snapshotPortfolioRepository,
	snapshots snapshotRepository,
	accounts snapshotAccountRepository,
	allocations allocationProvider,
	logger *logging.Logger,
) *SnapshotService {
	return &SnapshotService{
		portfolios:  portfolios,
		snapshots:   snapshots,
		accounts:    accounts,
		allocations: allocations,
		logger:      logger,
	}
}

// Capture snapshots a portfolio's allocation for the given date and type.
// The returned bool reports whether this call created the snapshot; false
// means an identical capture already ran and its record was returned. With
// constructIfMissing set, a never-constructed portfolio gets an allocation
// built first; otherwise the capture fails with no-allocation.
func (s *SnapshotService) Capture(
	ctx context.Context,
	portfolioID, userID string,
	date time.Time,
	snapshotType types.SnapshotType,
	constructIfMissing bool,
) (*models.Snapshot, bool, error) {
	if !snapshotType.Valid() {
		return nil, false, errors.NewValidationError("snapshotType", "must be one of eod, manual, hourly")
	}
	if date.IsZero() {
		return nil, false, errors.NewValidationError("snapshotDate", "must not be zero")
	}

	portfolio, err := s.resolvePortfolio(ctx, portfolioID, userID)
	if err != nil {
		return nil, false, err
	}

	allocation, err := s.allocations.GetLatest(ctx, portfolioID, userID, constructIfMissing)
	if err != nil {
		return nil, false, err
	}

	accountCount := 0
	if accounts, err := s.accounts.ListByPortfolio(ctx, portfolio.ID); err == nil {
		accountCount = len(accounts)
	} else {
		s.logger.WithError(err).WithField("portfolioId", portfolio.ID).Warn("failed to count accounts for snapshot metadata")
	}

	snapshot := &models.Snapshot{
		PortfolioID:   portfolio.ID,
		SnapshotDate:  date,
		SnapshotType:  snapshotType,
		TotalValueUSD: allocation.TotalValueUSD,
		Holdings:      allocation.Items,
		Metadata: models.SnapshotMetadata{
			PortfolioName:  portfolio.Name,
			AllocationAsOf: allocation.AsOf,
			AccountCount:   accountCount,
			HoldingsCount:  len(allocation.Items),
			CreatedAt:      time.Now().UTC(),
		},
	}

	stored, created, err := s.snapshots.Create(ctx, snapshot)
	if err != nil {
		return nil, false, err
	}

	s.logger.WithFields(map[string]interface{}{
		"portfolioId":  portfolio.ID,
		"snapshotDate": stored.SnapshotDate.Format("2006-01-02"),
		"snapshotType": stored.SnapshotType,
		"created":      created,
	}).Info("snapshot capture resolved")

	return stored, created, nil
}

// List returns a portfolio's snapshots in chronological order, honoring the
// filter's type and date-range constraints.
func (s *SnapshotService) List(ctx context.Context, portfolioID, userID string, filter storage.SnapshotFilter) ([]*models.Snapshot, error) {
	if filter.Type != "" && !filter.Type.Valid() {
		return nil, errors.NewValidationError("type", "must be one of eod, manual, hourly")
	}

	portfolio, err := s.resolvePortfolio(ctx, portfolioID, userID)
	if err != nil {
		return nil, err
	}

	return s.snapshots.List(ctx, portfolio.ID, filter)
}

// GetLatest returns the portfolio's most recent snapshot of any type.
func (s *SnapshotService) GetLatest(ctx context.Context, portfolioID, userID string) (*models.Snapshot, error) {
	portfolio, err := s.resolvePortfolio(ctx, portfolioID, userID)
	if err != nil {
		return nil, err
	}

	return s.snapshots.GetLatest(ctx, portfolio.ID)
}

// CaptureSummary reports the outcome of a fleet-wide capture.
type CaptureSummary struct {
	Created  int
	Existing int
	Failed   int
}

// CaptureAll captures a snapshot for every portfolio. One portfolio failing
// never blocks the rest; failures are counted and logged per portfolio. With
// constructIfMissing false, portfolios without a constructed allocation are
// counted as failures rather than silently skipped.
func (s *SnapshotService) CaptureAll(
	ctx context.Context,
	date time.Time,
	snapshotType types.SnapshotType,
	constructIfMissing bool,
) (CaptureSummary, error) {
	ids, err := s.portfolios.ListAllIDs(ctx)
	if err != nil {
		return CaptureSummary{}, err
	}

	var summary CaptureSummary
	for _, id := range ids {
		_, created, err := s.Capture(ctx, id, "", date, snapshotType, constructIfMissing)
		if err != nil {
			summary.Failed++
			s.logger.WithError(err).WithField("portfolioId", id).Error("snapshot capture failed")
			continue
		}
		if created {
			summary.Created++
		} else {
			summary.Existing++
		}
	}

	return summary, nil
}

func (s *SnapshotService) resolvePortfolio(ctx context.Context, portfolioID, userID string) (*models.Portfolio, error) {
	if portfolioID == "" {
		return nil, errors.NewValidationError("portfolioId", "must not be empty")
	}
	if userID == "" {
		return s.portfolios.GetByID(ctx, portfolioID)
	}
	return s.portfolios.GetByIDAndUser(ctx, portfolioID, userID)
}
