package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/portfolio-tracker/internal/errors"
	"github.com/portfolio-tracker/internal/logging"
	"github.com/portfolio-tracker/internal/models"
	"github.com/portfolio-tracker/internal/storage"
	"github.com/portfolio-tracker/internal/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Mock services for testing

type mockAllocationService struct {
	allocation *models.PortfolioAllocation
	err        error
	lastFlag   bool
}

func (m *mockAllocationService) Construct(ctx context.Context, portfolioID, userID string) (*models.PortfolioAllocation, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.allocation, nil
}

func (m *mockAllocationService) GetLatest(ctx context.Context, portfolioID, userID string, constructIfMissing bool) (*models.PortfolioAllocation, error) {
	m.lastFlag = constructIfMissing
	if m.err != nil {
		return nil, m.err
	}
	return m.allocation, nil
}

type mockSnapshotService struct {
	snapshot *models.Snapshot
	created  bool
	err      error
}

func (m *mockSnapshotService) Capture(ctx context.Context, portfolioID, userID string, date time.Time, snapshotType types.SnapshotType, constructIfMissing bool) (*models.Snapshot, bool, error) {
	if m.err != nil {
		return nil, false, m.err
	}
	return m.snapshot, m.created, nil
}

func (m *mockSnapshotService) List(ctx context.Context, portfolioID, userID string, filter storage.SnapshotFilter) ([]*models.Snapshot, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.snapshot == nil {
		return nil, nil
	}
	return []*models.Snapshot{m.snapshot}, nil
}

func (m *mockSnapshotService) GetLatest(ctx context.Context, portfolioID, userID string) (*models.Snapshot, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.snapshot, nil
}

type mockAccountService struct {
	lastAccountID string
	lastHoldings  []models.AccountHolding
	err           error
}

func (m *mockAccountService) SyncHoldings(ctx context.Context, accountID, userID string, holdings []models.AccountHolding) error {
	if m.err != nil {
		return m.err
	}
	m.lastAccountID = accountID
	m.lastHoldings = holdings
	return nil
}

type mockPortfolioStore struct {
	portfolios map[string]*models.Portfolio
}

func (m *mockPortfolioStore) Create(ctx context.Context, portfolio *models.Portfolio) error {
	portfolio.ID = "p-new"
	return nil
}

func (m *mockPortfolioStore) GetByIDAndUser(ctx context.Context, id, userID string) (*models.Portfolio, error) {
	if p, ok := m.portfolios[id]; ok && p.UserID == userID {
		return p, nil
	}
	return nil, errors.NewNotFoundError("portfolio", id)
}

func (m *mockPortfolioStore) ListByUser(ctx context.Context, userID string) ([]*models.Portfolio, error) {
	return nil, nil
}

func (m *mockPortfolioStore) LinkAccount(ctx context.Context, portfolioID, accountID string) error {
	return nil
}

func (m *mockPortfolioStore) UnlinkAccount(ctx context.Context, portfolioID, accountID string) error {
	return nil
}

func newTestServer(alloc *mockAllocationService, snap *mockSnapshotService, portfolios *mockPortfolioStore) *Server {
	return newTestServerWithAccounts(alloc, snap, &mockAccountService{}, portfolios)
}

func newTestServerWithAccounts(alloc *mockAllocationService, snap *mockSnapshotService, accounts *mockAccountService, portfolios *mockPortfolioStore) *Server {
	if portfolios == nil {
		portfolios = &mockPortfolioStore{}
	}
	return NewServer(
		&ServerConfig{Host: "127.0.0.1", Port: "0"},
		alloc,
		snap,
		accounts,
		portfolios,
		logging.New(logging.LevelError, logging.FormatText),
	)
}

func doRequest(s *Server, method, path, userID string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(&mockAllocationService{}, &mockSnapshotService{}, nil)

	rec := doRequest(s, http.MethodGet, "/health", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestGetAllocationRequiresUser(t *testing.T) {
	s := newTestServer(&mockAllocationService{}, &mockSnapshotService{}, nil)

	rec := doRequest(s, http.MethodGet, "/api/portfolios/p1/allocation", "", nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGetAllocation(t *testing.T) {
	alloc := &mockAllocationService{allocation: &models.PortfolioAllocation{
		PortfolioID:   "p1",
		TotalValueUSD: decimal.NewFromInt(500),
	}}
	s := newTestServer(alloc, &mockSnapshotService{}, nil)

	rec := doRequest(s, http.MethodGet, "/api/portfolios/p1/allocation", "u1", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	// Default behavior constructs a missing allocation on demand
	assert.True(t, alloc.lastFlag)

	rec = doRequest(s, http.MethodGet, "/api/portfolios/p1/allocation?construct=false", "u1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, alloc.lastFlag)
}

func TestGetAllocationNotFound(t *testing.T) {
	alloc := &mockAllocationService{err: errors.NewNoAllocationError("p1")}
	s := newTestServer(alloc, &mockSnapshotService{}, nil)

	rec := doRequest(s, http.MethodGet, "/api/portfolios/p1/allocation", "u1", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "NO_ALLOCATION", body.Error.Code)
}

func TestCreateSnapshotStatusReflectsIdempotence(t *testing.T) {
	snapshot := &models.Snapshot{ID: "s1", PortfolioID: "p1", SnapshotType: types.SnapshotManual}

	// First capture creates
	s := newTestServer(&mockAllocationService{}, &mockSnapshotService{snapshot: snapshot, created: true}, nil)
	rec := doRequest(s, http.MethodPost, "/api/portfolios/p1/snapshots", "u1", []byte(`{}`))
	assert.Equal(t, http.StatusCreated, rec.Code)

	// Re-triggered capture resolves to the existing snapshot
	s = newTestServer(&mockAllocationService{}, &mockSnapshotService{snapshot: snapshot, created: false}, nil)
	rec = doRequest(s, http.MethodPost, "/api/portfolios/p1/snapshots", "u1", []byte(`{}`))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateSnapshotRejectsBadDate(t *testing.T) {
	s := newTestServer(&mockAllocationService{}, &mockSnapshotService{}, nil)

	rec := doRequest(s, http.MethodPost, "/api/portfolios/p1/snapshots", "u1", []byte(`{"date":"09/01/2026"}`))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListSnapshotsEmptyIsArray(t *testing.T) {
	s := newTestServer(&mockAllocationService{}, &mockSnapshotService{}, nil)

	rec := doRequest(s, http.MethodGet, "/api/portfolios/p1/snapshots", "u1", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", string(bytes.TrimSpace(rec.Body.Bytes())), "empty list must serialize as [] not null")
}

func TestListSnapshotsRejectsBadLimit(t *testing.T) {
	s := newTestServer(&mockAllocationService{}, &mockSnapshotService{}, nil)

	rec := doRequest(s, http.MethodGet, "/api/portfolios/p1/snapshots?limit=-3", "u1", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreatePortfolio(t *testing.T) {
	s := newTestServer(&mockAllocationService{}, &mockSnapshotService{}, nil)

	rec := doRequest(s, http.MethodPost, "/api/portfolios", "u1", []byte(`{"name":"Main"}`))

	assert.Equal(t, http.StatusCreated, rec.Code)

	var portfolio models.Portfolio
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &portfolio))
	assert.Equal(t, "p-new", portfolio.ID)
	assert.Equal(t, "u1", portfolio.UserID)
}

func TestCreatePortfolioRequiresName(t *testing.T) {
	s := newTestServer(&mockAllocationService{}, &mockSnapshotService{}, nil)

	rec := doRequest(s, http.MethodPost, "/api/portfolios", "u1", []byte(`{}`))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSyncHoldings(t *testing.T) {
	accounts := &mockAccountService{}
	s := newTestServerWithAccounts(&mockAllocationService{}, &mockSnapshotService{}, accounts, nil)

	body := []byte(`{"holdings":[{"asset":"BTC","quantity":"1.5"},{"asset":"ETH","quantity":"10"}]}`)
	rec := doRequest(s, http.MethodPut, "/api/accounts/a1/holdings", "u1", body)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "a1", accounts.lastAccountID)
	require.Len(t, accounts.lastHoldings, 2)
	assert.Equal(t, "BTC", accounts.lastHoldings[0].Asset)
	assert.True(t, accounts.lastHoldings[0].Quantity.Equal(decimal.RequireFromString("1.5")))
}

func TestSyncHoldingsRequiresUser(t *testing.T) {
	s := newTestServer(&mockAllocationService{}, &mockSnapshotService{}, nil)

	rec := doRequest(s, http.MethodPut, "/api/accounts/a1/holdings", "", []byte(`{"holdings":[]}`))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSyncHoldingsUnknownAccountIsNotFound(t *testing.T) {
	accounts := &mockAccountService{err: errors.NewNotFoundError("account", "a9")}
	s := newTestServerWithAccounts(&mockAllocationService{}, &mockSnapshotService{}, accounts, nil)

	rec := doRequest(s, http.MethodPut, "/api/accounts/a9/holdings", "u1", []byte(`{"holdings":[]}`))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetForeignPortfolioIsNotFound(t *testing.T) {
	portfolios := &mockPortfolioStore{portfolios: map[string]*models.Portfolio{
		"p1": {ID: "p1", UserID: "owner"},
	}}
	s := newTestServer(&mockAllocationService{}, &mockSnapshotService{}, portfolios)

	rec := doRequest(s, http.MethodGet, "/api/portfolios/p1", "intruder", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
