package sync

import (
	"context"
	"time"

	apperrors "github.com/portfolio-tracker/internal/errors"
	"github.com/portfolio-tracker/internal/exchange"
	"github.com/portfolio-tracker/internal/logging"
	"github.com/portfolio-tracker/internal/models"
)

// DatasetReport is the outcome of one dataset/scope within a run.
type DatasetReport struct {
	Fetched  int    `json:"fetched"`
	Inserted int    `json:"inserted"`
	Error    string `json:"error,omitempty"`
}

// Report aggregates one sync run. Datasets are keyed "spot_trades:<symbol>",
// "deposits" and "withdrawals". A failed dataset is reported without rolling
// back the others.
type Report struct {
	IntegrationID string                   `json:"integrationId"`
	Symbols       []string                 `json:"symbols"`
	Datasets      map[string]DatasetReport `json:"datasets"`
	StartedAt     time.Time                `json:"startedAt"`
	FinishedAt    time.Time                `json:"finishedAt"`
}

// Failed reports whether any dataset ended in error.
func (r *Report) Failed() bool {
	for _, d := range r.Datasets {
		if d.Error != "" {
			return true
		}
	}
	return false
}

// Orchestrator runs a full sync for one integration: decrypted credentials
// in, per-dataset report out. Datasets are synchronized independently; a
// failure in one must not block or corrupt the others.
type Orchestrator struct {
	exchange ExchangeAPI
	synchro  *Synchronizer
	cursors  CursorStore
	locks    Locker
	lockTTL  time.Duration
	now      func() time.Time
}

// OrchestratorConfig wires an Orchestrator.
type OrchestratorConfig struct {
	Exchange     ExchangeAPI
	Synchronizer *Synchronizer
	Cursors      CursorStore
	Locks        Locker
	LockTTL      time.Duration
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(cfg *OrchestratorConfig) *Orchestrator {
	lockTTL := cfg.LockTTL
	if lockTTL == 0 {
		lockTTL = 10 * time.Minute
	}
	return &Orchestrator{
		exchange: cfg.Exchange,
		synchro:  cfg.Synchronizer,
		cursors:  cfg.Cursors,
		locks:    cfg.Locks,
		lockTTL:  lockTTL,
		now:      time.Now,
	}
}

const lockKeyPrefix = "sync:lock:"

// Run discovers symbols and synchronizes trades (per symbol), deposits and
// withdrawals. A second concurrent run for the same integration is rejected.
func (o *Orchestrator) Run(ctx context.Context, integration *models.Integration, creds exchange.Credentials) (*Report, error) {
	logger := logging.FromContext(ctx).WithField("integration", integration.ID)

	lockKey := lockKeyPrefix + integration.ID
	acquired, err := o.locks.Acquire(ctx, lockKey, o.lockTTL)
	if err != nil {
		return nil, apperrors.NewCacheError("acquire sync lock", err)
	}
	if !acquired {
		return nil, apperrors.NewSyncInProgressError(integration.ID)
	}
	defer func() {
		if err := o.locks.Release(context.WithoutCancel(ctx), lockKey); err != nil {
			logger.WithError(err).Warn("failed to release sync lock")
		}
	}()

	report := &Report{
		IntegrationID: integration.ID,
		Datasets:      make(map[string]DatasetReport),
		StartedAt:     o.now().UTC(),
	}

	// Discovery failures abort the run; without balances and the catalog
	// there is nothing sound to page.
	balances, err := o.exchange.AccountBalances(ctx, creds)
	if err != nil {
		return nil, err
	}
	catalog, err := o.exchange.ExchangeSymbols(ctx)
	if err != nil {
		return nil, err
	}
	tracked, err := o.cursors.Scopes(ctx, integration.ID, models.DatasetSpotTrades)
	if err != nil {
		return nil, err
	}

	symbols := DiscoverSymbols(balances, catalog, integration.Scopes, tracked)
	report.Symbols = symbols
	logger.WithFields(map[string]interface{}{
		"symbols": len(symbols),
	}).Info("starting sync run")

	for _, symbol := range symbols {
		res, err := o.synchro.SyncTrades(ctx, integration.ID, creds, symbol, nil)
		report.Datasets["spot_trades:"+symbol] = datasetReport(res, err)
		if err != nil {
			logger.WithError(err).WithField("symbol", symbol).Error("trade sync failed")
		}
	}

	res, err := o.synchro.SyncDeposits(ctx, integration.ID, creds)
	report.Datasets[string(models.DatasetDeposits)] = datasetReport(res, err)
	if err != nil {
		logger.WithError(err).Error("deposit sync failed")
	}

	res, err = o.synchro.SyncWithdrawals(ctx, integration.ID, creds)
	report.Datasets[string(models.DatasetWithdrawals)] = datasetReport(res, err)
	if err != nil {
		logger.WithError(err).Error("withdrawal sync failed")
	}

	report.FinishedAt = o.now().UTC()
	logger.WithFields(map[string]interface{}{
		"datasets": len(report.Datasets),
		"failed":   report.Failed(),
	}).Info("sync run finished")

	return report, nil
}

func datasetReport(res Result, err error) DatasetReport {
	dr := DatasetReport{Fetched: res.Fetched, Inserted: res.Inserted}
	if err != nil {
		dr.Error = err.Error()
	}
	return dr
}
