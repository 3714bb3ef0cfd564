package api

import (
	"net/http"

	"github.com/gorilla/mux"
)

// handleGetAllocation handles GET /api/portfolios/:id/allocation - Read the
// latest constructed allocation. By default a portfolio that has never been
// constructed gets built on demand; pass construct=false to disable that and
// receive NO_ALLOCATION instead.
func (s *Server) handleGetAllocation(w http.ResponseWriter, r *http.Request) {
	portfolioID := mux.Vars(r)["id"]
	if portfolioID == "" {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Portfolio ID required", nil)
		return
	}

	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	constructIfMissing := r.URL.Query().Get("construct") != "false"

	allocation, err := s.allocationService.GetLatest(r.Context(), portfolioID, userID, constructIfMissing)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, allocation)
}

// handleConstructAllocation handles POST /api/portfolios/:id/allocation/construct
// Force a rebuild of the portfolio's allocation from current holdings.
func (s *Server) handleConstructAllocation(w http.ResponseWriter, r *http.Request) {
	portfolioID := mux.Vars(r)["id"]
	if portfolioID == "" {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Portfolio ID required", nil)
		return
	}

	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	allocation, err := s.allocationService.Construct(r.Context(), portfolioID, userID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, allocation)
}
