package sync

import (
	"context"
	"time"

	"github.com/portfolio-tracker/internal/exchange"
	"github.com/portfolio-tracker/internal/models"
)

// ExchangeAPI is the slice of the exchange client the engine consumes.
type ExchangeAPI interface {
	ExchangeSymbols(ctx context.Context) ([]exchange.SymbolInfo, error)
	AccountBalances(ctx context.Context, creds exchange.Credentials) ([]exchange.Balance, error)
	Trades(ctx context.Context, creds exchange.Credentials, symbol string, page exchange.TradePage) ([]exchange.Trade, error)
	Deposits(ctx context.Context, creds exchange.Credentials, startTime int64) ([]exchange.Deposit, error)
	Withdrawals(ctx context.Context, creds exchange.Credentials, startTime int64) ([]exchange.Withdrawal, error)
}

// TradeStore persists trades with a point-lookup on the dedup key.
type TradeStore interface {
	Exists(ctx context.Context, integrationID string, providerTradeID int64) (bool, error)
	Insert(ctx context.Context, trade *models.Trade) error
}

// TransferStore persists deposits and withdrawals with a point-lookup on the
// dedup key.
type TransferStore interface {
	Exists(ctx context.Context, integrationID string, direction models.TransferDirection, providerRef string) (bool, error)
	Insert(ctx context.Context, transfer *models.Transfer) error
}

// CursorStore persists resumption cursors per (integration, dataset, scope).
type CursorStore interface {
	// Get returns nil when no cursor exists yet.
	Get(ctx context.Context, integrationID string, dataset models.Dataset, scope string) (*models.SyncCursor, error)
	Put(ctx context.Context, cursor *models.SyncCursor) error
	// Scopes lists the scopes a dataset already has cursors for.
	Scopes(ctx context.Context, integrationID string, dataset models.Dataset) ([]string, error)
	// Reset wipes every cursor of an integration; the next sync re-imports
	// from the unbounded lower bound.
	Reset(ctx context.Context, integrationID string) error
}

// Locker serializes sync runs per integration. At most one in-flight
// synchronizer per cursor key at a time.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}
