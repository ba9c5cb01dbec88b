package sync

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/portfolio-tracker/internal/errors"
	"github.com/portfolio-tracker/internal/exchange"
	"github.com/portfolio-tracker/internal/logging"
	"github.com/portfolio-tracker/internal/models"
	"github.com/portfolio-tracker/internal/retry"
)

// defaultMaxPageLoops caps the page-fetch loop per run. Circuit breaker
// against API contract violations, not a performance knob.
const defaultMaxPageLoops = 500

// Result counts one synchronizer run. Fetched and Inserted diverge when a
// page overlaps already-known records; re-ingesting a seen page inserts
// nothing.
type Result struct {
	Fetched  int `json:"fetched"`
	Inserted int `json:"inserted"`
}

// Synchronizer runs the cursor-resumable page loop for each dataset. One
// synchronizer instance is safe for sequential use across datasets; the
// orchestrator's lock prevents concurrent runs on the same cursor keys.
type Synchronizer struct {
	exchange     ExchangeAPI
	trades       TradeStore
	transfers    TransferStore
	cursors      CursorStore
	maxPageSize  int
	maxPageLoops int
	retryCfg     *retry.Config
	now          func() time.Time
}

// SynchronizerConfig wires a Synchronizer.
type SynchronizerConfig struct {
	Exchange     ExchangeAPI
	Trades       TradeStore
	Transfers    TransferStore
	Cursors      CursorStore
	MaxPageSize  int
	MaxPageLoops int
	Retry        *retry.Config
}

// NewSynchronizer creates a synchronizer.
func NewSynchronizer(cfg *SynchronizerConfig) *Synchronizer {
	maxPageSize := cfg.MaxPageSize
	if maxPageSize <= 0 || maxPageSize > exchange.MaxPageSize {
		maxPageSize = exchange.MaxPageSize
	}
	maxPageLoops := cfg.MaxPageLoops
	if maxPageLoops <= 0 {
		maxPageLoops = defaultMaxPageLoops
	}
	return &Synchronizer{
		exchange:     cfg.Exchange,
		trades:       cfg.Trades,
		transfers:    cfg.Transfers,
		cursors:      cfg.Cursors,
		maxPageSize:  maxPageSize,
		maxPageLoops: maxPageLoops,
		retryCfg:     cfg.Retry,
		now:          time.Now,
	}
}

// SyncTrades pages through the fills of one symbol. Id-based paging is used
// once a trade id is known (exact ordering); time-based paging only before
// that, since time resolution can have duplicate timestamps. overrideStart
// extends history backward but never discards a cursor that is already
// further back.
func (s *Synchronizer) SyncTrades(ctx context.Context, integrationID string, creds exchange.Credentials, symbol string, overrideStart *time.Time) (Result, error) {
	var res Result

	cur, err := s.cursors.Get(ctx, integrationID, models.DatasetSpotTrades, symbol)
	if err != nil {
		return res, err
	}

	var lastID *int64
	var lastTime *time.Time
	if cur != nil {
		lastID = cur.LastID
		lastTime = cur.LastTime
	}

	var fromID, startTime *int64
	switch {
	case overrideStart != nil && (lastTime == nil || overrideStart.Before(*lastTime)):
		ms := overrideStart.UnixMilli()
		startTime = &ms
	case lastID != nil:
		next := *lastID + 1
		fromID = &next
	case lastTime != nil:
		ms := lastTime.UnixMilli()
		startTime = &ms
	}

	for i := 0; i < s.maxPageLoops; i++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		page, err := s.fetchTradesPage(ctx, creds, symbol, exchange.TradePage{
			FromID:    fromID,
			StartTime: startTime,
			Limit:     s.maxPageSize,
		})
		if err != nil {
			// The in-flight page is discarded; cursors committed for prior
			// pages keep their progress.
			return res, err
		}
		if len(page) == 0 {
			break
		}

		res.Fetched += len(page)
		for idx := range page {
			fill := &page[idx]
			exists, err := s.trades.Exists(ctx, integrationID, fill.ID)
			if err != nil {
				return res, err
			}
			if exists {
				continue
			}
			if err := s.trades.Insert(ctx, tradeFromFill(integrationID, symbol, fill)); err != nil {
				return res, err
			}
			res.Inserted++
		}

		// Advance from the last record even when every record was already
		// known; the page boundary may fall mid-duplicate-run.
		last := page[len(page)-1]
		id := last.ID
		ts := last.ExecutedAt()
		lastID = &id
		lastTime = &ts

		if err := s.putTradeCursor(ctx, integrationID, symbol, lastID, lastTime); err != nil {
			return res, err
		}

		if len(page) < s.maxPageSize {
			break
		}
		next := *lastID + 1
		fromID = &next
		startTime = nil
	}

	// Persist unconditionally so empty runs keep the last-checked time moving
	// forward. An empty first run starts future syncs from the present.
	if lastID == nil && lastTime == nil {
		ts := s.now().UTC()
		lastTime = &ts
	}
	if err := s.putTradeCursor(ctx, integrationID, symbol, lastID, lastTime); err != nil {
		return res, err
	}

	return res, nil
}

// SyncDeposits pages through deposit history with a time-based cursor.
func (s *Synchronizer) SyncDeposits(ctx context.Context, integrationID string, creds exchange.Credentials) (Result, error) {
	return s.syncTransfers(ctx, integrationID, models.DatasetDeposits, func(ctx context.Context, startTime int64) ([]*models.Transfer, error) {
		var page []*models.Transfer
		err := retry.Do(ctx, s.retryCfg, apperrors.IsRetryable, func(ctx context.Context, _ int) error {
			deposits, err := s.exchange.Deposits(ctx, creds, startTime)
			if err != nil {
				return err
			}
			page = page[:0]
			for _, d := range deposits {
				page = append(page, transferFromDeposit(integrationID, d))
			}
			return nil
		})
		return page, err
	})
}

// SyncWithdrawals pages through withdrawal history with a time-based cursor.
func (s *Synchronizer) SyncWithdrawals(ctx context.Context, integrationID string, creds exchange.Credentials) (Result, error) {
	return s.syncTransfers(ctx, integrationID, models.DatasetWithdrawals, func(ctx context.Context, startTime int64) ([]*models.Transfer, error) {
		var page []*models.Transfer
		err := retry.Do(ctx, s.retryCfg, apperrors.IsRetryable, func(ctx context.Context, _ int) error {
			withdrawals, err := s.exchange.Withdrawals(ctx, creds, startTime)
			if err != nil {
				return err
			}
			page = page[:0]
			for _, w := range withdrawals {
				page = append(page, transferFromWithdrawal(integrationID, w))
			}
			return nil
		})
		return page, err
	})
}

// syncTransfers is the shared deposit/withdrawal loop: exclusive time lower
// bound (lastTime+1) so the boundary record is never refetched.
func (s *Synchronizer) syncTransfers(ctx context.Context, integrationID string, dataset models.Dataset, fetch func(ctx context.Context, startTime int64) ([]*models.Transfer, error)) (Result, error) {
	var res Result

	cur, err := s.cursors.Get(ctx, integrationID, dataset, models.ScopeDefault)
	if err != nil {
		return res, err
	}

	var lastTime *time.Time
	if cur != nil {
		lastTime = cur.LastTime
	}

	for i := 0; i < s.maxPageLoops; i++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		var startTime int64
		if lastTime != nil {
			startTime = lastTime.UnixMilli() + 1
		}

		page, err := fetch(ctx, startTime)
		if err != nil {
			return res, err
		}
		if len(page) == 0 {
			break
		}

		res.Fetched += len(page)
		var maxTime time.Time
		for _, transfer := range page {
			if transfer.OccurredAt.After(maxTime) {
				maxTime = transfer.OccurredAt
			}
			exists, err := s.transfers.Exists(ctx, integrationID, transfer.Direction, transfer.ProviderRef)
			if err != nil {
				return res, err
			}
			if exists {
				continue
			}
			if err := s.transfers.Insert(ctx, transfer); err != nil {
				return res, err
			}
			res.Inserted++
		}

		if maxTime.IsZero() {
			// No usable timestamps; advancing would loop on the same page.
			break
		}
		lastTime = &maxTime

		if err := s.putTransferCursor(ctx, integrationID, dataset, lastTime); err != nil {
			return res, err
		}

		if len(page) < s.maxPageSize {
			break
		}
	}

	if err := s.putTransferCursor(ctx, integrationID, dataset, lastTime); err != nil {
		return res, err
	}

	return res, nil
}

func (s *Synchronizer) fetchTradesPage(ctx context.Context, creds exchange.Credentials, symbol string, page exchange.TradePage) ([]exchange.Trade, error) {
	var fills []exchange.Trade
	err := retry.Do(ctx, s.retryCfg, apperrors.IsRetryable, func(ctx context.Context, attempt int) error {
		var err error
		fills, err = s.exchange.Trades(ctx, creds, symbol, page)
		if err != nil && attempt > 1 {
			logging.FromContext(ctx).WithFields(map[string]interface{}{
				"symbol":  symbol,
				"attempt": attempt,
			}).Warn("trade page fetch still failing")
		}
		return err
	})
	return fills, err
}

func (s *Synchronizer) putTradeCursor(ctx context.Context, integrationID, symbol string, lastID *int64, lastTime *time.Time) error {
	return s.cursors.Put(ctx, &models.SyncCursor{
		IntegrationID: integrationID,
		Dataset:       models.DatasetSpotTrades,
		Scope:         symbol,
		LastID:        lastID,
		LastTime:      lastTime,
		UpdatedAt:     s.now().UTC(),
	})
}

func (s *Synchronizer) putTransferCursor(ctx context.Context, integrationID string, dataset models.Dataset, lastTime *time.Time) error {
	return s.cursors.Put(ctx, &models.SyncCursor{
		IntegrationID: integrationID,
		Dataset:       dataset,
		Scope:         models.ScopeDefault,
		LastTime:      lastTime,
		UpdatedAt:     s.now().UTC(),
	})
}

func tradeFromFill(integrationID, symbol string, fill *exchange.Trade) *models.Trade {
	side := models.SideSell
	if fill.IsBuyer {
		side = models.SideBuy
	}
	sym := fill.Symbol
	if sym == "" {
		sym = symbol
	}
	return &models.Trade{
		ID:              uuid.New().String(),
		IntegrationID:   integrationID,
		ProviderTradeID: fill.ID,
		Symbol:          sym,
		Side:            side,
		Quantity:        fill.Qty,
		Price:           fill.Price,
		QuoteQuantity:   fill.QuoteQty,
		Fee:             fill.Commission,
		FeeAsset:        fill.CommissionAsset,
		IsMaker:         fill.IsMaker,
		TradeType:       models.TradeTypeSpot,
		ExecutedAt:      fill.ExecutedAt(),
	}
}

func transferFromDeposit(integrationID string, d exchange.Deposit) *models.Transfer {
	return &models.Transfer{
		ID:            uuid.New().String(),
		IntegrationID: integrationID,
		ProviderRef:   d.ID,
		Direction:     models.DirectionDeposit,
		Coin:          d.Coin,
		Amount:        d.Amount,
		Network:       d.Network,
		Address:       d.Address,
		AddressTag:    d.AddressTag,
		TxID:          d.TxID,
		Status:        depositStatus(d.Status),
		OccurredAt:    d.OccurredAt(),
		Raw:           d.Raw,
	}
}

func transferFromWithdrawal(integrationID string, w exchange.Withdrawal) *models.Transfer {
	return &models.Transfer{
		ID:            uuid.New().String(),
		IntegrationID: integrationID,
		ProviderRef:   w.ID,
		Direction:     models.DirectionWithdrawal,
		Coin:          w.Coin,
		Amount:        w.Amount,
		Network:       w.Network,
		Address:       w.Address,
		AddressTag:    w.AddressTag,
		TxID:          w.TxID,
		Status:        withdrawalStatus(w.Status),
		Fee:           w.Fee,
		OccurredAt:    w.OccurredAt(),
		Raw:           w.Raw,
	}
}

func depositStatus(code int) string {
	switch code {
	case 0:
		return "pending"
	case 1:
		return "success"
	case 6:
		return "credited"
	default:
		return strconv.Itoa(code)
	}
}

func withdrawalStatus(code int) string {
	switch code {
	case 0:
		return "email_sent"
	case 1:
		return "cancelled"
	case 2:
		return "awaiting_approval"
	case 3:
		return "rejected"
	case 4:
		return "processing"
	case 5:
		return "failure"
	case 6:
		return "completed"
	default:
		return strconv.Itoa(code)
	}
}
