package sync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/portfolio-tracker/internal/exchange"
	"github.com/portfolio-tracker/internal/models"
)

// fakeExchange serves fills from a fixed, id-ordered list, honoring fromId
// and startTime lower bounds the way the real endpoint does.
type fakeExchange struct {
	symbols  []exchange.SymbolInfo
	balances []exchange.Balance
	fills    map[string][]exchange.Trade // keyed by symbol, ascending by ID

	deposits    []exchange.Deposit
	withdrawals []exchange.Withdrawal

	tradesErr      error
	tradeCalls     []exchange.TradePage
	depositCalls   []int64
	balancesErr    error
	depositsErr    error
	withdrawalsErr error
}

func (f *fakeExchange) ExchangeSymbols(_ context.Context) ([]exchange.SymbolInfo, error) {
	return f.symbols, nil
}

func (f *fakeExchange) AccountBalances(_ context.Context, _ exchange.Credentials) ([]exchange.Balance, error) {
	if f.balancesErr != nil {
		return nil, f.balancesErr
	}
	return f.balances, nil
}

func (f *fakeExchange) Trades(_ context.Context, _ exchange.Credentials, symbol string, page exchange.TradePage) ([]exchange.Trade, error) {
	f.tradeCalls = append(f.tradeCalls, page)
	if f.tradesErr != nil {
		return nil, f.tradesErr
	}

	limit := page.Limit
	if limit <= 0 {
		limit = exchange.MaxPageSize
	}

	var out []exchange.Trade
	for _, fill := range f.fills[symbol] {
		if page.FromID != nil && fill.ID < *page.FromID {
			continue
		}
		if page.FromID == nil && page.StartTime != nil && fill.Time < *page.StartTime {
			continue
		}
		out = append(out, fill)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeExchange) Deposits(_ context.Context, _ exchange.Credentials, startTime int64) ([]exchange.Deposit, error) {
	f.depositCalls = append(f.depositCalls, startTime)
	if f.depositsErr != nil {
		return nil, f.depositsErr
	}
	var out []exchange.Deposit
	for _, d := range f.deposits {
		if d.InsertTime >= startTime {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeExchange) Withdrawals(_ context.Context, _ exchange.Credentials, startTime int64) ([]exchange.Withdrawal, error) {
	if f.withdrawalsErr != nil {
		return nil, f.withdrawalsErr
	}
	var out []exchange.Withdrawal
	for _, w := range f.withdrawals {
		if w.OccurredAt().UnixMilli() >= startTime {
			out = append(out, w)
		}
	}
	return out, nil
}

// memTradeStore is an in-memory TradeStore keyed by the dedup key.
type memTradeStore struct {
	records map[string]*models.Trade
}

func newMemTradeStore() *memTradeStore {
	return &memTradeStore{records: make(map[string]*models.Trade)}
}

func tradeKey(integrationID string, providerTradeID int64) string {
	return fmt.Sprintf("%s/%d", integrationID, providerTradeID)
}

func (m *memTradeStore) Exists(_ context.Context, integrationID string, providerTradeID int64) (bool, error) {
	_, ok := m.records[tradeKey(integrationID, providerTradeID)]
	return ok, nil
}

func (m *memTradeStore) Insert(_ context.Context, trade *models.Trade) error {
	key := tradeKey(trade.IntegrationID, trade.ProviderTradeID)
	if _, ok := m.records[key]; ok {
		return nil // mirror ON CONFLICT DO NOTHING
	}
	m.records[key] = trade
	return nil
}

// memTransferStore is an in-memory TransferStore keyed by the dedup key.
type memTransferStore struct {
	records map[string]*models.Transfer
}

func newMemTransferStore() *memTransferStore {
	return &memTransferStore{records: make(map[string]*models.Transfer)}
}

func transferKey(integrationID string, direction models.TransferDirection, ref string) string {
	return fmt.Sprintf("%s/%s/%s", integrationID, direction, ref)
}

func (m *memTransferStore) Exists(_ context.Context, integrationID string, direction models.TransferDirection, providerRef string) (bool, error) {
	_, ok := m.records[transferKey(integrationID, direction, providerRef)]
	return ok, nil
}

func (m *memTransferStore) Insert(_ context.Context, transfer *models.Transfer) error {
	key := transferKey(transfer.IntegrationID, transfer.Direction, transfer.ProviderRef)
	if _, ok := m.records[key]; ok {
		return nil
	}
	m.records[key] = transfer
	return nil
}

// memCursorStore is an in-memory CursorStore.
type memCursorStore struct {
	cursors map[string]*models.SyncCursor
	puts    int
}

func newMemCursorStore() *memCursorStore {
	return &memCursorStore{cursors: make(map[string]*models.SyncCursor)}
}

func cursorKey(integrationID string, dataset models.Dataset, scope string) string {
	return fmt.Sprintf("%s/%s/%s", integrationID, dataset, scope)
}

func (m *memCursorStore) Get(_ context.Context, integrationID string, dataset models.Dataset, scope string) (*models.SyncCursor, error) {
	cur, ok := m.cursors[cursorKey(integrationID, dataset, scope)]
	if !ok {
		return nil, nil
	}
	copied := *cur
	return &copied, nil
}

func (m *memCursorStore) Put(_ context.Context, cursor *models.SyncCursor) error {
	copied := *cursor
	m.cursors[cursorKey(cursor.IntegrationID, cursor.Dataset, cursor.Scope)] = &copied
	m.puts++
	return nil
}

func (m *memCursorStore) Scopes(_ context.Context, integrationID string, dataset models.Dataset) ([]string, error) {
	var scopes []string
	for _, cur := range m.cursors {
		if cur.IntegrationID == integrationID && cur.Dataset == dataset {
			scopes = append(scopes, cur.Scope)
		}
	}
	return scopes, nil
}

func (m *memCursorStore) Reset(_ context.Context, integrationID string) error {
	for key, cur := range m.cursors {
		if cur.IntegrationID == integrationID {
			delete(m.cursors, key)
		}
	}
	return nil
}

// memLocker is an in-memory Locker.
type memLocker struct {
	mu    sync.Mutex
	held  map[string]bool
	fails bool
}

func newMemLocker() *memLocker {
	return &memLocker{held: make(map[string]bool)}
}

func (l *memLocker) Acquire(_ context.Context, key string, _ time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fails {
		return false, fmt.Errorf("locker unavailable")
	}
	if l.held[key] {
		return false, nil
	}
	l.held[key] = true
	return true, nil
}

func (l *memLocker) Release(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, key)
	return nil
}

// fill builds one exchange fill with a millisecond timestamp.
func fill(id int64, symbol string, timeMs int64, isBuyer bool) exchange.Trade {
	return exchange.Trade{
		ID:      id,
		Symbol:  symbol,
		Time:    timeMs,
		IsBuyer: isBuyer,
	}
}

