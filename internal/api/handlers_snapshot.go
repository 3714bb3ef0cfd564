package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/portfolio-tracker/internal/models"
	"github.com/portfolio-tracker/internal/storage"
	"github.com/portfolio-tracker/internal/types"
)

const dateLayout = "2006-01-02"

// handleCreateSnapshot handles POST /api/portfolios/:id/snapshots - Capture a
// snapshot. Repeating the same capture returns the existing snapshot with
// 200 instead of 201.
func (s *Server) handleCreateSnapshot(w http.ResponseWriter, r *http.Request) {
	portfolioID := mux.Vars(r)["id"]
	if portfolioID == "" {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Portfolio ID required", nil)
		return
	}

	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req struct {
		Date string `json:"date,omitempty"`
		Type string `json:"type,omitempty"`
	}
	// An empty body means capture for today as a manual snapshot
	if err := parseJSONBody(r, &req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	date := time.Now().UTC()
	if req.Date != "" {
		parsed, err := time.Parse(dateLayout, req.Date)
		if err != nil {
			respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid date format (use YYYY-MM-DD)", nil)
			return
		}
		date = parsed
	}

	snapshotType := types.SnapshotManual
	if req.Type != "" {
		snapshotType = types.SnapshotType(req.Type)
	}

	snapshot, created, err := s.snapshotService.Capture(r.Context(), portfolioID, userID, date, snapshotType, true)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	respondJSON(w, status, snapshot)
}

// handleListSnapshots handles GET /api/portfolios/:id/snapshots - List
// snapshots chronologically, optionally filtered by type and date range.
func (s *Server) handleListSnapshots(w http.ResponseWriter, r *http.Request) {
	portfolioID := mux.Vars(r)["id"]
	if portfolioID == "" {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Portfolio ID required", nil)
		return
	}

	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	filter := storage.SnapshotFilter{
		Type: types.SnapshotType(query.Get("type")),
	}

	if from := query.Get("from"); from != "" {
		parsed, err := time.Parse(dateLayout, from)
		if err != nil {
			respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid from date (use YYYY-MM-DD)", nil)
			return
		}
		filter.From = parsed
	}
	if to := query.Get("to"); to != "" {
		parsed, err := time.Parse(dateLayout, to)
		if err != nil {
			respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid to date (use YYYY-MM-DD)", nil)
			return
		}
		filter.To = parsed
	}
	if limit := query.Get("limit"); limit != "" {
		parsed, err := strconv.Atoi(limit)
		if err != nil || parsed < 0 {
			respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid limit", nil)
			return
		}
		filter.Limit = parsed
	}

	snapshots, err := s.snapshotService.List(r.Context(), portfolioID, userID, filter)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if snapshots == nil {
		snapshots = []*models.Snapshot{}
	}

	respondJSON(w, http.StatusOK, snapshots)
}

// handleGetLatestSnapshot handles GET /api/portfolios/:id/snapshots/latest
func (s *Server) handleGetLatestSnapshot(w http.ResponseWriter, r *http.Request) {
	portfolioID := mux.Vars(r)["id"]
	if portfolioID == "" {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Portfolio ID required", nil)
		return
	}

	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	snapshot, err := s.snapshotService.GetLatest(r.Context(), portfolioID, userID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, snapshot)
}
