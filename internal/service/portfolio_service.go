package service

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	apperrors "github.com/portfolio-tracker/internal/errors"
	"github.com/portfolio-tracker/internal/ledger"
	"github.com/portfolio-tracker/internal/logging"
	"github.com/portfolio-tracker/internal/models"
)

// TradeReader lists stored trades across a user's integrations.
type TradeReader interface {
	ListByUser(ctx context.Context, userID string) ([]models.Trade, error)
}

// TransferReader lists stored transfers across a user's integrations.
type TransferReader interface {
	ListByUser(ctx context.Context, userID string) ([]models.Transfer, error)
}

// ReadCache caches derived read models.
type ReadCache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DelPattern(ctx context.Context, pattern string) error
}

const portfolioCacheTTL = 60 * time.Second

func portfolioCachePattern(userID string) string {
	return "portfolio:" + userID + ":*"
}

// PortfolioService derives portfolio views from stored trades and transfers.
// Every view is recomputed from raw records; Redis only shortens the window,
// it is never the source of truth.
type PortfolioService struct {
	trades    TradeReader
	transfers TransferReader
	cache     ReadCache
}

// NewPortfolioService creates a new portfolio service.
func NewPortfolioService(trades TradeReader, transfers TransferReader, cache ReadCache) *PortfolioService {
	return &PortfolioService{
		trades:    trades,
		transfers: transfers,
		cache:     cache,
	}
}

// Transaction is one row of the merged trade/transfer activity feed.
type Transaction struct {
	ID        string          `json:"id"`
	Kind      string          `json:"kind"` // trade | deposit | withdrawal
	Symbol    string          `json:"symbol,omitempty"`
	Asset     string          `json:"asset,omitempty"`
	Side      string          `json:"side,omitempty"`
	Quantity  decimal.Decimal `json:"quantity"`
	Price     decimal.Decimal `json:"price,omitempty"`
	ValueUSD  decimal.Decimal `json:"valueUsd,omitempty"`
	Fee       decimal.Decimal `json:"fee,omitempty"`
	FeeAsset  string          `json:"feeAsset,omitempty"`
	Status    string          `json:"status,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// ListTransactions merges trades and transfers into one feed, newest first.
func (s *PortfolioService) ListTransactions(ctx context.Context, userID string, limit, offset int) ([]Transaction, error) {
	if userID == "" {
		return nil, apperrors.NewValidationError("userId is required")
	}

	trades, transfers, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}

	feed := make([]Transaction, 0, len(trades)+len(transfers))
	for i := range trades {
		trade := &trades[i]
		feed = append(feed, Transaction{
			ID:        trade.ID,
			Kind:      "trade",
			Symbol:    trade.Symbol,
			Side:      string(trade.Side),
			Quantity:  trade.Quantity,
			Price:     trade.Price,
			ValueUSD:  trade.ValueUSD(),
			Fee:       trade.Fee,
			FeeAsset:  trade.FeeAsset,
			Timestamp: trade.ExecutedAt,
		})
	}
	for i := range transfers {
		transfer := &transfers[i]
		feed = append(feed, Transaction{
			ID:        transfer.ID,
			Kind:      string(transfer.Direction),
			Asset:     transfer.Coin,
			Quantity:  transfer.Amount,
			Fee:       transfer.Fee,
			Status:    transfer.Status,
			Timestamp: transfer.OccurredAt,
		})
	}

	sort.SliceStable(feed, func(i, j int) bool {
		return feed[i].Timestamp.After(feed[j].Timestamp)
	})

	if offset >= len(feed) {
		return []Transaction{}, nil
	}
	feed = feed[offset:]
	if limit > 0 && limit < len(feed) {
		feed = feed[:limit]
	}
	return feed, nil
}

// TokensView is the per-asset portfolio response.
type TokensView struct {
	Tokens      []*ledger.PortfolioToken `json:"tokens"`
	GeneratedAt time.Time                `json:"generatedAt"`
}

// Tokens returns the per-asset aggregates, sorted by asset.
func (s *PortfolioService) Tokens(ctx context.Context, userID string) (*TokensView, error) {
	if userID == "" {
		return nil, apperrors.NewValidationError("userId is required")
	}

	cacheKey := "portfolio:" + userID + ":tokens"
	var view TokensView
	if s.fromCache(ctx, cacheKey, &view) {
		return &view, nil
	}

	tokens, err := s.aggregate(ctx, userID)
	if err != nil {
		return nil, err
	}

	list := make([]*ledger.PortfolioToken, 0, len(tokens))
	for _, token := range tokens {
		list = append(list, token)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Asset < list[j].Asset })

	view = TokensView{Tokens: list, GeneratedAt: time.Now().UTC()}
	s.toCache(ctx, cacheKey, &view)
	return &view, nil
}

// SummaryView is the portfolio-level P&L response.
type SummaryView struct {
	ledger.ProfitSummary
	AssetCount  int       `json:"assetCount"`
	GeneratedAt time.Time `json:"generatedAt"`
}

// Summary returns the portfolio-level profit rollup.
func (s *PortfolioService) Summary(ctx context.Context, userID string) (*SummaryView, error) {
	if userID == "" {
		return nil, apperrors.NewValidationError("userId is required")
	}

	cacheKey := "portfolio:" + userID + ":summary"
	var view SummaryView
	if s.fromCache(ctx, cacheKey, &view) {
		return &view, nil
	}

	tokens, err := s.aggregate(ctx, userID)
	if err != nil {
		return nil, err
	}

	view = SummaryView{
		ProfitSummary: ledger.Summarize(tokens),
		AssetCount:    len(tokens),
		GeneratedAt:   time.Now().UTC(),
	}
	s.toCache(ctx, cacheKey, &view)
	return &view, nil
}

// HistoryView carries the day-bucketed profit and performance series.
type HistoryView struct {
	History     []ledger.HistoryPoint     `json:"history"`
	Performance []ledger.PerformancePoint `json:"performance"`
	GeneratedAt time.Time                 `json:"generatedAt"`
}

// History returns the cumulative profit series over UTC calendar days.
func (s *PortfolioService) History(ctx context.Context, userID string) (*HistoryView, error) {
	if userID == "" {
		return nil, apperrors.NewValidationError("userId is required")
	}

	cacheKey := "portfolio:" + userID + ":history"
	var view HistoryView
	if s.fromCache(ctx, cacheKey, &view) {
		return &view, nil
	}

	trades, err := s.trades.ListByUser(ctx, userID)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list trades", err)
	}

	history, performance := ledger.History(trades)
	view = HistoryView{History: history, Performance: performance, GeneratedAt: time.Now().UTC()}
	s.toCache(ctx, cacheKey, &view)
	return &view, nil
}

func (s *PortfolioService) load(ctx context.Context, userID string) ([]models.Trade, []models.Transfer, error) {
	trades, err := s.trades.ListByUser(ctx, userID)
	if err != nil {
		return nil, nil, apperrors.NewDatabaseError("list trades", err)
	}
	transfers, err := s.transfers.ListByUser(ctx, userID)
	if err != nil {
		return nil, nil, apperrors.NewDatabaseError("list transfers", err)
	}
	return trades, transfers, nil
}

func (s *PortfolioService) aggregate(ctx context.Context, userID string) (map[string]*ledger.PortfolioToken, error) {
	trades, transfers, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	return ledger.Aggregate(trades, transfers, nil), nil
}

// fromCache fills dst from the cache. Cache failures degrade to a recompute,
// never to an error.
func (s *PortfolioService) fromCache(ctx context.Context, key string, dst interface{}) bool {
	raw, found, err := s.cache.Get(ctx, key)
	if err != nil {
		logging.FromContext(ctx).WithError(err).WithField("key", key).Warn("cache read failed")
		return false
	}
	if !found {
		return false
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		logging.FromContext(ctx).WithError(err).WithField("key", key).Warn("cache entry unreadable")
		return false
	}
	return true
}

func (s *PortfolioService) toCache(ctx context.Context, key string, view interface{}) {
	raw, err := json.Marshal(view)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, string(raw), portfolioCacheTTL); err != nil {
		logging.FromContext(ctx).WithError(err).WithField("key", key).Warn("cache write failed")
	}
}
