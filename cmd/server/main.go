// Package main provides the API server entry point for the portfolio tracker.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/portfolio-tracker/internal/api"
	"github.com/portfolio-tracker/internal/config"
	"github.com/portfolio-tracker/internal/exchange"
	"github.com/portfolio-tracker/internal/logging"
	"github.com/portfolio-tracker/internal/service"
	"github.com/portfolio-tracker/internal/storage"
	syncengine "github.com/portfolio-tracker/internal/sync"
	"github.com/portfolio-tracker/internal/vault"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logging
	logging.Init(logging.ParseLevel(cfg.Logging.Level), logging.ParseFormat(cfg.Logging.Format))
	logger := logging.Global()
	logger.WithFields(map[string]interface{}{
		"level":  cfg.Logging.Level,
		"format": cfg.Logging.Format,
	}).Info("structured logging initialized")

	// Initialize database connections
	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		logger.WithError(err).Fatal("failed to connect to Postgres")
	}
	defer postgres.Close()

	redis, err := storage.NewRedisCache(&cfg.Database.Redis)
	if err != nil {
		logger.WithError(err).Fatal("failed to connect to Redis")
	}
	defer redis.Close()

	logger.Info("database connections established")

	// Credential vault
	credentialVault, err := vault.New(cfg.Vault.Secret)
	if err != nil {
		logger.WithError(err).Fatal("failed to initialize credential vault")
	}

	// Exchange client
	binance := exchange.NewClient(exchange.Config{
		BaseURL:           cfg.Exchange.BaseURL,
		RecvWindow:        cfg.Exchange.RecvWindow,
		RequestsPerSecond: cfg.Exchange.RequestsPerSecond,
	})

	// Repositories
	integrationRepo := storage.NewIntegrationRepository(postgres)
	tradeRepo := storage.NewTradeRepository(postgres)
	transferRepo := storage.NewTransferRepository(postgres)
	cursorRepo := storage.NewCursorRepository(postgres)

	// Sync engine
	synchronizer := syncengine.NewSynchronizer(&syncengine.SynchronizerConfig{
		Exchange:     binance,
		Trades:       tradeRepo,
		Transfers:    transferRepo,
		Cursors:      cursorRepo,
		MaxPageSize:  cfg.Exchange.MaxPageSize,
		MaxPageLoops: cfg.Sync.MaxPageLoops,
	})
	orchestrator := syncengine.NewOrchestrator(&syncengine.OrchestratorConfig{
		Exchange:     binance,
		Synchronizer: synchronizer,
		Cursors:      cursorRepo,
		Locks:        redis,
		LockTTL:      cfg.Sync.LockTTL,
	})

	// Services
	integrationService := service.NewIntegrationService(integrationRepo, credentialVault, orchestrator, cursorRepo, redis)
	portfolioService := service.NewPortfolioService(tradeRepo, transferRepo, redis)

	logger.Info("services initialized")

	// Optional background scheduler
	if cfg.Sync.Interval > 0 {
		scheduler, err := syncengine.NewScheduler(
			schedulerLister{repo: integrationRepo},
			integrationService.SyncByID,
			cfg.Sync.Interval,
			logger,
		)
		if err != nil {
			logger.WithError(err).Fatal("failed to create sync scheduler")
		}
		if err := scheduler.Start(context.Background()); err != nil {
			logger.WithError(err).Fatal("failed to start sync scheduler")
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := scheduler.Stop(ctx); err != nil {
				logger.WithError(err).Warn("sync scheduler did not stop cleanly")
			}
		}()
		logger.WithField("interval", cfg.Sync.Interval.String()).Info("background sync scheduler started")
	}

	// HTTP server
	serverConfig := &api.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    5 * time.Minute,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		RateLimitRPS:    cfg.RateLimit.RequestsPerSecond,
		RateLimitBurst:  cfg.RateLimit.Burst,
	}
	server := api.NewServer(serverConfig, integrationService, portfolioService, postgres, redis)

	go func() {
		if err := server.Start(); err != nil {
			logger.WithError(err).Fatal("server failed to start")
		}
	}()

	logger.WithFields(map[string]interface{}{
		"host": cfg.Server.Host,
		"port": cfg.Server.Port,
	}).Info("server started")

	// Wait for interrupt signal to gracefully shut down
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), serverConfig.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Fatal("server forced to shutdown")
	}

	logger.Info("server exited")
}

// schedulerLister adapts the integration repository to the scheduler.
type schedulerLister struct {
	repo *storage.IntegrationRepository
}

func (l schedulerLister) ListIntegrationIDs(ctx context.Context) ([]string, error) {
	return l.repo.ListIDs(ctx)
}
