package api

import (
	"net/http"

	apperrors "github.com/vestival/algorand-tracker/internal/errors"
	"github.com/vestival/algorand-tracker/internal/service"
)

// handleListWallets handles GET /api/wallets
func (s *Server) handleListWallets(w http.ResponseWriter, r *http.Request) {
	wallets, err := s.walletService.List(r.Context(), userIDFromContext(r.Context()))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"wallets": wallets})
}

// handleLinkWallet handles POST /api/wallets
func (s *Server) handleLinkWallet(w http.ResponseWriter, r *http.Request) {
	var req service.LinkWalletInput
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, apperrors.CodeInvalidInput, "Invalid request body", nil)
		return
	}

	wallet, err := s.walletService.Link(r.Context(), userIDFromContext(r.Context()), &req)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"wallet": wallet})
}
