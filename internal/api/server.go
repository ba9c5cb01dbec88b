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
	syncengine "github.com/portfolio-tracker/internal/sync"
)

// Service interfaces for dependency injection and testing

// IntegrationServiceInterface defines the interface for integration operations.
type IntegrationServiceInterface interface {
	Connect(ctx context.Context, input service.ConnectInput) (*models.Integration, error)
	List(ctx context.Context, userID string) ([]*models.Integration, error)
	Sync(ctx context.Context, userID, integrationID string) (*syncengine.Report, error)
	ResetCursors(ctx context.Context, userID, integrationID string) error
}

// PortfolioServiceInterface defines the interface for portfolio reads.
type PortfolioServiceInterface interface {
	ListTransactions(ctx context.Context, userID string, limit, offset int) ([]service.Transaction, error)
	Tokens(ctx context.Context, userID string) (*service.TokensView, error)
	Summary(ctx context.Context, userID string) (*service.SummaryView, error)
	History(ctx context.Context, userID string) (*service.HistoryView, error)
}

// HealthChecker reports backing-store reachability for the health endpoint.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Server represents the HTTP API server.
type Server struct {
	router       *mux.Router
	httpServer   *http.Server
	integrations IntegrationServiceInterface
	portfolio    PortfolioServiceInterface
	database     HealthChecker
	cache        HealthChecker
	config       *ServerConfig
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	RateLimitRPS    int
	RateLimitBurst  int
}

// NewServer creates a new API server instance.
func NewServer(
	config *ServerConfig,
	integrations IntegrationServiceInterface,
	portfolio PortfolioServiceInterface,
	database HealthChecker,
	cache HealthChecker,
) *Server {
	s := &Server{
		router:       mux.NewRouter(),
		integrations: integrations,
		portfolio:    portfolio,
		database:     database,
		cache:        cache,
		config:       config,
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes.
func (s *Server) setupRouter() {
	rateLimiter := NewRateLimiter(s.config.RateLimitRPS, s.config.RateLimitBurst)

	// Middleware order matters: requests are logged before anything can
	// reject them, and recovery wraps everything downstream.
	s.router.Use(LoggingMiddleware)
	s.router.Use(RecoveryMiddleware)
	s.router.Use(CORSMiddleware)
	s.router.Use(RateLimitMiddleware(rateLimiter))

	s.setupRoutes()

	// Sync runs page through the exchange inside the request; the write
	// timeout must cover a full run, not a typical response.
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
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Integration endpoints
	api.HandleFunc("/integrations", s.handleConnect).Methods("POST")
	api.HandleFunc("/integrations", s.handleListIntegrations).Methods("GET")
	api.HandleFunc("/integrations/{id}/sync", s.handleSync).Methods("POST")
	api.HandleFunc("/integrations/{id}/reset", s.handleReset).Methods("POST")

	// Read endpoints
	api.HandleFunc("/transactions", s.handleListTransactions).Methods("GET")
	api.HandleFunc("/portfolio/tokens", s.handlePortfolioTokens).Methods("GET")
	api.HandleFunc("/portfolio/summary", s.handlePortfolioSummary).Methods("GET")
	api.HandleFunc("/portfolio/history", s.handlePortfolioHistory).Methods("GET")
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := map[string]string{
		"status":   "healthy",
		"service":  "portfolio-tracker",
		"database": "up",
		"cache":    "up",
	}
	code := http.StatusOK

	if s.database != nil {
		if err := s.database.Ping(ctx); err != nil {
			status["status"] = "degraded"
			status["database"] = "down"
			code = http.StatusServiceUnavailable
		}
	}
	if s.cache != nil {
		if err := s.cache.Ping(ctx); err != nil {
			status["status"] = "degraded"
			status["cache"] = "down"
			code = http.StatusServiceUnavailable
		}
	}

	respondJSON(w, code, status)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	logging.Global().WithField("addr", s.httpServer.Addr).Info("starting API server")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	logging.Global().Info("shutting down API server")
	return s.httpServer.Shutdown(ctx)
}
