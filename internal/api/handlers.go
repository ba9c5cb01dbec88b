package api

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/portfolio-tracker/internal/service"
)

// userID pulls the caller identity from the X-User-ID header. Auth proper
// lives at the gateway; the server only needs the identity for scoping.
func userID(r *http.Request) string {
	return r.Header.Get("X-User-ID")
}

// handleConnect handles POST /api/v1/integrations.
func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		respondError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "User ID required", nil)
		return
	}

	var input service.ConnectInput
	if err := parseJSONBody(r, &input); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}
	input.UserID = uid

	integration, err := s.integrations.Connect(r.Context(), input)
	if err != nil {
		respondCategorized(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, integration)
}

// handleListIntegrations handles GET /api/v1/integrations.
func (s *Server) handleListIntegrations(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		respondError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "User ID required", nil)
		return
	}

	integrations, err := s.integrations.List(r.Context(), uid)
	if err != nil {
		respondCategorized(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"integrations": integrations,
	})
}

// handleSync handles POST /api/v1/integrations/{id}/sync.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		respondError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "User ID required", nil)
		return
	}

	integrationID := mux.Vars(r)["id"]
	report, err := s.integrations.Sync(r.Context(), uid, integrationID)
	if err != nil {
		respondCategorized(w, err)
		return
	}

	// Partial failures come back inside the report with a 200; the run
	// itself completed and the successful datasets advanced.
	respondJSON(w, http.StatusOK, report)
}

// handleReset handles POST /api/v1/integrations/{id}/reset.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		respondError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "User ID required", nil)
		return
	}

	integrationID := mux.Vars(r)["id"]
	if err := s.integrations.ResetCursors(r.Context(), uid, integrationID); err != nil {
		respondCategorized(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"integrationId": integrationID,
		"status":        "cursors_reset",
	})
}

// handleListTransactions handles GET /api/v1/transactions.
func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		respondError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "User ID required", nil)
		return
	}

	limit := queryInt(r, "limit", 100)
	offset := queryInt(r, "offset", 0)
	if limit < 0 || offset < 0 {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "limit and offset must be non-negative", nil)
		return
	}

	transactions, err := s.portfolio.ListTransactions(r.Context(), uid, limit, offset)
	if err != nil {
		respondCategorized(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": transactions,
		"limit":        limit,
		"offset":       offset,
	})
}

// handlePortfolioTokens handles GET /api/v1/portfolio/tokens.
func (s *Server) handlePortfolioTokens(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		respondError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "User ID required", nil)
		return
	}

	view, err := s.portfolio.Tokens(r.Context(), uid)
	if err != nil {
		respondCategorized(w, err)
		return
	}

	respondJSON(w, http.StatusOK, view)
}

// handlePortfolioSummary handles GET /api/v1/portfolio/summary.
func (s *Server) handlePortfolioSummary(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		respondError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "User ID required", nil)
		return
	}

	view, err := s.portfolio.Summary(r.Context(), uid)
	if err != nil {
		respondCategorized(w, err)
		return
	}

	respondJSON(w, http.StatusOK, view)
}

// handlePortfolioHistory handles GET /api/v1/portfolio/history.
func (s *Server) handlePortfolioHistory(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	if uid == "" {
		respondError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "User ID required", nil)
		return
	}

	view, err := s.portfolio.History(r.Context(), uid)
	if err != nil {
		respondCategorized(w, err)
		return
	}

	respondJSON(w, http.StatusOK, view)
}

func queryInt(r *http.Request, key string, defaultValue int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return -1
	}
	return value
}
