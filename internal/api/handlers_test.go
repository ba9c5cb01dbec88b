package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	apperrors "github.com/portfolio-tracker/internal/errors"
	"github.com/portfolio-tracker/internal/models"
	"github.com/portfolio-tracker/internal/service"
	syncengine "github.com/portfolio-tracker/internal/sync"
)

// stubIntegrationService is a canned-response IntegrationServiceInterface.
type stubIntegrationService struct {
	connectErr error
	syncErr    error
	resetErr   error
	report     *syncengine.Report
}

func (s *stubIntegrationService) Connect(_ context.Context, input service.ConnectInput) (*models.Integration, error) {
	if s.connectErr != nil {
		return nil, s.connectErr
	}
	return &models.Integration{
		ID:       "int-1",
		UserID:   input.UserID,
		Provider: models.Provider(input.Provider),
		Label:    input.Label,
	}, nil
}

func (s *stubIntegrationService) List(_ context.Context, userID string) ([]*models.Integration, error) {
	return []*models.Integration{{ID: "int-1", UserID: userID, Provider: models.ProviderBinance}}, nil
}

func (s *stubIntegrationService) Sync(_ context.Context, _, integrationID string) (*syncengine.Report, error) {
	if s.syncErr != nil {
		return nil, s.syncErr
	}
	if s.report != nil {
		return s.report, nil
	}
	return &syncengine.Report{IntegrationID: integrationID, Datasets: map[string]syncengine.DatasetReport{}}, nil
}

func (s *stubIntegrationService) ResetCursors(_ context.Context, _, _ string) error {
	return s.resetErr
}

// stubPortfolioService is a canned-response PortfolioServiceInterface.
type stubPortfolioService struct {
	transactions []service.Transaction
}

func (s *stubPortfolioService) ListTransactions(_ context.Context, _ string, limit, offset int) ([]service.Transaction, error) {
	feed := s.transactions
	if offset >= len(feed) {
		return []service.Transaction{}, nil
	}
	feed = feed[offset:]
	if limit > 0 && limit < len(feed) {
		feed = feed[:limit]
	}
	return feed, nil
}

func (s *stubPortfolioService) Tokens(_ context.Context, _ string) (*service.TokensView, error) {
	return &service.TokensView{GeneratedAt: time.Now().UTC()}, nil
}

func (s *stubPortfolioService) Summary(_ context.Context, _ string) (*service.SummaryView, error) {
	return &service.SummaryView{GeneratedAt: time.Now().UTC()}, nil
}

func (s *stubPortfolioService) History(_ context.Context, _ string) (*service.HistoryView, error) {
	return &service.HistoryView{GeneratedAt: time.Now().UTC()}, nil
}

func createTestServer(integrations *stubIntegrationService, portfolio *stubPortfolioService) *Server {
	if integrations == nil {
		integrations = &stubIntegrationService{}
	}
	if portfolio == nil {
		portfolio = &stubPortfolioService{}
	}
	return NewServer(&ServerConfig{
		Host:           "127.0.0.1",
		Port:           "0",
		RateLimitRPS:   1000,
		RateLimitBurst: 1000,
	}, integrations, portfolio, nil, nil)
}

// TestConnect_MissingUserID tests the identity requirement
func TestConnect_MissingUserID(t *testing.T) {
	server := createTestServer(nil, nil)

	body, _ := json.Marshal(map[string]interface{}{"provider": "binance", "apiKey": "k", "apiSecret": "s"})
	req := httptest.NewRequest("POST", "/api/v1/integrations", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected status 401, got %d", w.Code)
	}
}

// TestConnect_InvalidJSON tests handling of malformed JSON
func TestConnect_InvalidJSON(t *testing.T) {
	server := createTestServer(nil, nil)

	req := httptest.NewRequest("POST", "/api/v1/integrations", bytes.NewReader([]byte("invalid json")))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", "user-123")

	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", w.Code)
	}
}

// TestConnect_Success tests the created response
func TestConnect_Success(t *testing.T) {
	server := createTestServer(nil, nil)

	body, _ := json.Marshal(map[string]interface{}{"provider": "binance", "apiKey": "k", "apiSecret": "s", "label": "main"})
	req := httptest.NewRequest("POST", "/api/v1/integrations", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", "user-123")

	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", w.Code, w.Body.String())
	}

	var integration models.Integration
	if err := json.Unmarshal(w.Body.Bytes(), &integration); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if integration.UserID != "user-123" || integration.Label != "main" {
		t.Errorf("unexpected integration: %+v", integration)
	}
}

// TestConnect_UnsupportedProvider tests service error mapping
func TestConnect_UnsupportedProvider(t *testing.T) {
	server := createTestServer(&stubIntegrationService{
		connectErr: apperrors.NewUnsupportedProviderError("kraken"),
	}, nil)

	body, _ := json.Marshal(map[string]interface{}{"provider": "kraken", "apiKey": "k", "apiSecret": "s"})
	req := httptest.NewRequest("POST", "/api/v1/integrations", bytes.NewReader(body))
	req.Header.Set("X-User-ID", "user-123")

	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", w.Code)
	}

	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad error body: %v", err)
	}
	if resp.Error.Code != "UNSUPPORTED_PROVIDER" {
		t.Errorf("error code = %q", resp.Error.Code)
	}
}

// TestSync_Conflict tests the sync-in-progress mapping
func TestSync_Conflict(t *testing.T) {
	server := createTestServer(&stubIntegrationService{
		syncErr: apperrors.NewSyncInProgressError("int-1"),
	}, nil)

	req := httptest.NewRequest("POST", "/api/v1/integrations/int-1/sync", nil)
	req.Header.Set("X-User-ID", "user-123")

	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	if w.Code != http.StatusConflict {
		t.Errorf("expected status 409, got %d", w.Code)
	}
}

// TestSync_PartialFailureStill200 tests that dataset errors ride the report
func TestSync_PartialFailureStill200(t *testing.T) {
	server := createTestServer(&stubIntegrationService{
		report: &syncengine.Report{
			IntegrationID: "int-1",
			Datasets: map[string]syncengine.DatasetReport{
				"spot_trades:BTCUSDT": {Fetched: 10, Inserted: 10},
				"deposits":            {Error: "exchange returned status 503"},
			},
		},
	}, nil)

	req := httptest.NewRequest("POST", "/api/v1/integrations/int-1/sync", nil)
	req.Header.Set("X-User-ID", "user-123")

	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var report syncengine.Report
	if err := json.Unmarshal(w.Body.Bytes(), &report); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if !report.Failed() {
		t.Error("expected the report to carry the dataset failure")
	}
}

// TestSync_NotFound tests unknown integration mapping
func TestSync_NotFound(t *testing.T) {
	server := createTestServer(&stubIntegrationService{
		syncErr: apperrors.NewNotFoundError("integration", "nope"),
	}, nil)

	req := httptest.NewRequest("POST", "/api/v1/integrations/nope/sync", nil)
	req.Header.Set("X-User-ID", "user-123")

	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", w.Code)
	}
}

// TestListTransactions_Pagination tests limit/offset validation
func TestListTransactions_Pagination(t *testing.T) {
	portfolio := &stubPortfolioService{transactions: []service.Transaction{
		{ID: "t1"}, {ID: "t2"}, {ID: "t3"},
	}}
	server := createTestServer(nil, portfolio)

	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantCount  int
	}{
		{"defaults", "", http.StatusOK, 3},
		{"limit", "?limit=2", http.StatusOK, 2},
		{"offset", "?offset=2", http.StatusOK, 1},
		{"negative limit", "?limit=-1", http.StatusBadRequest, 0},
		{"non-numeric limit", "?limit=abc", http.StatusBadRequest, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/v1/transactions"+tt.query, nil)
			req.Header.Set("X-User-ID", "user-123")

			w := httptest.NewRecorder()
			server.router.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.wantStatus != http.StatusOK {
				return
			}

			var resp struct {
				Transactions []service.Transaction `json:"transactions"`
			}
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("bad response body: %v", err)
			}
			if len(resp.Transactions) != tt.wantCount {
				t.Errorf("got %d transactions, want %d", len(resp.Transactions), tt.wantCount)
			}
		})
	}
}

// TestPortfolioEndpoints_RequireUser tests the identity guard on reads
func TestPortfolioEndpoints_RequireUser(t *testing.T) {
	server := createTestServer(nil, nil)

	paths := []string{
		"/api/v1/transactions",
		"/api/v1/portfolio/tokens",
		"/api/v1/portfolio/summary",
		"/api/v1/portfolio/history",
	}

	for _, path := range paths {
		req := httptest.NewRequest("GET", path, nil)
		w := httptest.NewRecorder()
		server.router.ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("%s: expected status 401, got %d", path, w.Code)
		}
	}
}

// TestHealth tests the health endpoint without backing stores
func TestHealth(t *testing.T) {
	server := createTestServer(nil, nil)

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var status map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if status["status"] != "healthy" {
		t.Errorf("status = %q", status["status"])
	}
}

// TestCORSHeaders tests that responses carry the CORS headers
func TestCORSHeaders(t *testing.T) {
	server := createTestServer(nil, nil)

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS allow-origin header")
	}
}
