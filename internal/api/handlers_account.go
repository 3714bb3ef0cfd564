package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/portfolio-tracker/internal/models"
)

// handleSyncHoldings handles PUT /api/accounts/:id/holdings - Replace an
// account's holdings wholesale
func (s *Server) handleSyncHoldings(w http.ResponseWriter, r *http.Request) {
	accountID := mux.Vars(r)["id"]

	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req struct {
		Holdings []models.AccountHolding `json:"holdings"`
	}
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	if err := s.accountService.SyncHoldings(r.Context(), accountID, userID, req.Holdings); err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusNoContent, nil)
}
