package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/portfolio-tracker/internal/models"
)

// handleCreatePortfolio handles POST /api/portfolios - Create portfolio
func (s *Server) handleCreatePortfolio(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name         string `json:"name"`
		BaseCurrency string `json:"baseCurrency,omitempty"`
	}

	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}
	if req.Name == "" {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Portfolio name required", nil)
		return
	}

	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	portfolio := &models.Portfolio{
		UserID:       userID,
		Name:         req.Name,
		BaseCurrency: req.BaseCurrency,
	}

	if err := s.portfolioRepo.Create(r.Context(), portfolio); err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, portfolio)
}

// handleListPortfolios handles GET /api/portfolios - List the user's portfolios
func (s *Server) handleListPortfolios(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	portfolios, err := s.portfolioRepo.ListByUser(r.Context(), userID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if portfolios == nil {
		portfolios = []*models.Portfolio{}
	}

	respondJSON(w, http.StatusOK, portfolios)
}

// handleGetPortfolio handles GET /api/portfolios/:id - Get portfolio details
func (s *Server) handleGetPortfolio(w http.ResponseWriter, r *http.Request) {
	portfolioID := mux.Vars(r)["id"]
	if portfolioID == "" {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Portfolio ID required", nil)
		return
	}

	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	portfolio, err := s.portfolioRepo.GetByIDAndUser(r.Context(), portfolioID, userID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, portfolio)
}

// handleLinkAccount handles PUT /api/portfolios/:id/accounts/:accountId
func (s *Server) handleLinkAccount(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	portfolioID := vars["id"]
	accountID := vars["accountId"]

	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	// Ownership check before touching the membership table
	if _, err := s.portfolioRepo.GetByIDAndUser(r.Context(), portfolioID, userID); err != nil {
		respondServiceError(w, err)
		return
	}

	if err := s.portfolioRepo.LinkAccount(r.Context(), portfolioID, accountID); err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusNoContent, nil)
}

// handleUnlinkAccount handles DELETE /api/portfolios/:id/accounts/:accountId
func (s *Server) handleUnlinkAccount(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	portfolioID := vars["id"]
	accountID := vars["accountId"]

	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if _, err := s.portfolioRepo.GetByIDAndUser(r.Context(), portfolioID, userID); err != nil {
		respondServiceError(w, err)
		return
	}

	if err := s.portfolioRepo.UnlinkAccount(r.Context(), portfolioID, accountID); err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusNoContent, nil)
}
