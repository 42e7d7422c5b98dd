package api

import (
	"net/http"

	"github.com/vestival/algorand-tracker/internal/models"
	"github.com/vestival/algorand-tracker/internal/types"
)

// handleRefreshPortfolio handles POST /api/portfolio/refresh
func (s *Server) handleRefreshPortfolio(w http.ResponseWriter, r *http.Request) {
	result, err := s.portfolioService.Refresh(r.Context(), userIDFromContext(r.Context()))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// handleGetSnapshot handles GET /api/portfolio/snapshot
func (s *Server) handleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	snapshot, err := s.portfolioService.GetLatestSnapshot(r.Context(), userIDFromContext(r.Context()))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]*models.PortfolioSnapshot{"snapshot": snapshot})
}

// handleGetHistory handles GET /api/portfolio/history?mode=snapshots|reconstructed
func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	mode := types.HistoryMode(r.URL.Query().Get("mode"))

	points, err := s.portfolioService.GetHistory(r.Context(), userIDFromContext(r.Context()), mode)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	if points == nil {
		points = []models.HistoryPoint{}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"history": points})
}
