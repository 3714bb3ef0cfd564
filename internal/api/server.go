// Package api provides the HTTP API server implementation.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/portfolio-tracker/internal/logging"
	"github.com/portfolio-tracker/internal/models"
	"github.com/portfolio-tracker/internal/service"
	"github.com/portfolio-tracker/internal/storage"
	"github.com/portfolio-tracker/internal/types"
)

// Service interfaces for dependency injection and testing

// AllocationServiceInterface defines the interface for allocation operations
type AllocationServiceInterface interface {
	Construct(ctx context.Context, portfolioID, userID string) (*models.PortfolioAllocation, error)
	GetLatest(ctx context.Context, portfolioID, userID string, constructIfMissing bool) (*models.PortfolioAllocation, error)
}

// SnapshotServiceInterface defines the interface for snapshot operations
type SnapshotServiceInterface interface {
	Capture(ctx context.Context, portfolioID, userID string, date time.Time, snapshotType types.SnapshotType, constructIfMissing bool) (*models.Snapshot, bool, error)
	List(ctx context.Context, portfolioID, userID string, filter storage.SnapshotFilter) ([]*models.Snapshot, error)
	GetLatest(ctx context.Context, portfolioID, userID string) (*models.Snapshot, error)
}

// AccountServiceInterface defines the account sync operations
type AccountServiceInterface interface {
	SyncHoldings(ctx context.Context, accountID, userID string, holdings []models.AccountHolding) error
}

// PortfolioRepositoryInterface defines the portfolio operations the API
// exposes directly
type PortfolioRepositoryInterface interface {
	Create(ctx context.Context, portfolio *models.Portfolio) error
	GetByIDAndUser(ctx context.Context, id, userID string) (*models.Portfolio, error)
	ListByUser(ctx context.Context, userID string) ([]*models.Portfolio, error)
	LinkAccount(ctx context.Context, portfolioID, accountID string) error
	UnlinkAccount(ctx context.Context, portfolioID, accountID string) error
}

// Server represents the HTTP API server.
type Server struct {
	router            *mux.Router
	httpServer        *http.Server
	allocationService AllocationServiceInterface
	snapshotService   SnapshotServiceInterface
	accountService    AccountServiceInterface
	portfolioRepo     PortfolioRepositoryInterface
	logger            *logging.Logger
	config            *ServerConfig
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// NewServer creates a new API server instance.
func NewServer(
	config *ServerConfig,
	allocationService AllocationServiceInterface,
	snapshotService SnapshotServiceInterface,
	accountService AccountServiceInterface,
	portfolioRepo PortfolioRepositoryInterface,
	logger *logging.Logger,
) *Server {
	s := &Server{
		router:            mux.NewRouter(),
		allocationService: allocationService,
		snapshotService:   snapshotService,
		accountService:    accountService,
		portfolioRepo:     portfolioRepo,
		logger:            logger,
		config:            config,
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	s.router.Use(LoggingMiddleware(s.logger))
	s.router.Use(RecoveryMiddleware(s.logger))
	s.router.Use(CORSMiddleware)

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	// Health check endpoint
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	api := s.router.PathPrefix("/api").Subrouter()

	// Portfolio endpoints
	api.HandleFunc("/portfolios", s.handleCreatePortfolio).Methods("POST")
	api.HandleFunc("/portfolios", s.handleListPortfolios).Methods("GET")
	api.HandleFunc("/portfolios/{id}", s.handleGetPortfolio).Methods("GET")
	api.HandleFunc("/portfolios/{id}/accounts/{accountId}", s.handleLinkAccount).Methods("PUT")
	api.HandleFunc("/portfolios/{id}/accounts/{accountId}", s.handleUnlinkAccount).Methods("DELETE")

	// Account sync endpoint (holdings arrive pre-synced from collaborators)
	api.HandleFunc("/accounts/{id}/holdings", s.handleSyncHoldings).Methods("PUT")

	// Allocation endpoints
	api.HandleFunc("/portfolios/{id}/allocation", s.handleGetAllocation).Methods("GET")
	api.HandleFunc("/portfolios/{id}/allocation/construct", s.handleConstructAllocation).Methods("POST")

	// Snapshot endpoints
	api.HandleFunc("/portfolios/{id}/snapshots", s.handleCreateSnapshot).Methods("POST")
	api.HandleFunc("/portfolios/{id}/snapshots", s.handleListSnapshots).Methods("GET")
	api.HandleFunc("/portfolios/{id}/snapshots/latest", s.handleGetLatestSnapshot).Methods("GET")
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "portfolio-tracker",
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.WithField("addr", s.httpServer.Addr).Info("starting API server")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down API server")
	return s.httpServer.Shutdown(ctx)
}

// Handler returns the root handler, used by tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

var _ AllocationServiceInterface = (*service.AllocationService)(nil)
var _ SnapshotServiceInterface = (*service.SnapshotService)(nil)
var _ AccountServiceInterface = (*service.AccountService)(nil)
var _ PortfolioRepositoryInterface = (*storage.PortfolioRepository)(nil)
