// Package ledger folds stored trades, deposits and withdrawals into per-asset
// timelines and portfolio-level rollups. Everything here is recomputed from
// raw records on every read; there is no materialized derived state to drift.
package ledger

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/portfolio-tracker/internal/models"
)

// EntryType labels one posted ledger entry.
type EntryType string

const (
	EntryBuy        EntryType = "BUY"
	EntrySell       EntryType = "SELL"
	EntryDeposit    EntryType = "DEPOSIT"
	EntryWithdrawal EntryType = "WITHDRAWAL"
)

// Entry is one event in an asset's timeline.
type Entry struct {
	Type      EntryType       `json:"type"`
	Asset     string          `json:"asset"`
	Symbol    string          `json:"symbol,omitempty"`
	Quantity  decimal.Decimal `json:"quantity"`
	Price     decimal.Decimal `json:"price,omitempty"`
	ValueUSD  decimal.Decimal `json:"valueUsd,omitempty"`
	Fee       decimal.Decimal `json:"fee,omitempty"`
	FeeAsset  string          `json:"feeAsset,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// PortfolioToken is the derived per-asset aggregate.
type PortfolioToken struct {
	Asset            string           `json:"asset"`
	Quantity         decimal.Decimal  `json:"quantity"`
	BuyQuantity      decimal.Decimal  `json:"buyQuantity"`
	SellQuantity     decimal.Decimal  `json:"sellQuantity"`
	DepositQuantity  decimal.Decimal  `json:"depositQuantity"`
	WithdrawQuantity decimal.Decimal  `json:"withdrawQuantity"`
	BuyValueUSD      decimal.Decimal  `json:"buyValueUsd"`
	SellValueUSD     decimal.Decimal  `json:"sellValueUsd"`
	NetProfitUSD     decimal.Decimal  `json:"netProfitUsd"`
	AverageBuyPrice  *decimal.Decimal `json:"averageBuyPrice,omitempty"`
	AverageSellPrice *decimal.Decimal `json:"averageSellPrice,omitempty"`
	LastActivity     time.Time        `json:"lastActivity"`
	Timeline         []Entry          `json:"timeline"`
}

// hasTradingActivity reports whether the asset has any buy/sell history.
// Deposit/withdrawal-only assets carry no P&L basis.
func (t *PortfolioToken) hasTradingActivity() bool {
	return t.BuyQuantity.IsPositive() || t.SellQuantity.IsPositive()
}

// Aggregate folds raw records into per-asset tokens. catalog optionally maps
// symbol -> base asset (from the exchange catalog); when a symbol is absent
// the quote-suffix heuristic decides.
func Aggregate(trades []models.Trade, transfers []models.Transfer, catalog map[string]string) map[string]*PortfolioToken {
	tokens := make(map[string]*PortfolioToken)

	get := func(asset string) *PortfolioToken {
		token, ok := tokens[asset]
		if !ok {
			token = &PortfolioToken{Asset: asset}
			tokens[asset] = token
		}
		return token
	}

	for i := range trades {
		trade := &trades[i]
		if trade.IsConversion() {
			// A conversion is a synthetic SELL on the from-asset and a
			// synthetic BUY on the to-asset. Quantities move; the USD
			// accumulators do not, since neither leg carries a reliable
			// USD notional.
			from := get(trade.FromAsset)
			from.SellQuantity = from.SellQuantity.Add(trade.FromAmount)
			from.Quantity = from.Quantity.Sub(trade.FromAmount)
			from.post(Entry{
				Type:      EntrySell,
				Asset:     trade.FromAsset,
				Symbol:    trade.Symbol,
				Quantity:  trade.FromAmount,
				Price:     trade.Price,
				Fee:       trade.Fee,
				FeeAsset:  trade.FeeAsset,
				Timestamp: trade.ExecutedAt,
			})

			to := get(trade.ToAsset)
			to.BuyQuantity = to.BuyQuantity.Add(trade.ToAmount)
			to.Quantity = to.Quantity.Add(trade.ToAmount)
			to.post(Entry{
				Type:      EntryBuy,
				Asset:     trade.ToAsset,
				Symbol:    trade.Symbol,
				Quantity:  trade.ToAmount,
				Price:     trade.Price,
				Fee:       trade.Fee,
				FeeAsset:  trade.FeeAsset,
				Timestamp: trade.ExecutedAt,
			})
			continue
		}

		asset := catalog[trade.Symbol]
		if asset == "" {
			asset = ExtractBaseAsset(trade.Symbol)
		}

		token := get(asset)
		value := trade.ValueUSD()
		entryType := EntrySell
		if trade.Side == models.SideBuy {
			entryType = EntryBuy
			token.BuyQuantity = token.BuyQuantity.Add(trade.Quantity)
			token.BuyValueUSD = token.BuyValueUSD.Add(value)
			token.Quantity = token.Quantity.Add(trade.Quantity)
		} else {
			token.SellQuantity = token.SellQuantity.Add(trade.Quantity)
			token.SellValueUSD = token.SellValueUSD.Add(value)
			token.Quantity = token.Quantity.Sub(trade.Quantity)
		}
		token.post(Entry{
			Type:      entryType,
			Asset:     asset,
			Symbol:    trade.Symbol,
			Quantity:  trade.Quantity,
			Price:     trade.Price,
			ValueUSD:  value,
			Fee:       trade.Fee,
			FeeAsset:  trade.FeeAsset,
			Timestamp: trade.ExecutedAt,
		})
	}

	for i := range transfers {
		transfer := &transfers[i]
		token := get(transfer.Coin)
		if transfer.Direction == models.DirectionDeposit {
			token.DepositQuantity = token.DepositQuantity.Add(transfer.Amount)
			token.Quantity = token.Quantity.Add(transfer.Amount)
			token.post(Entry{
				Type:      EntryDeposit,
				Asset:     transfer.Coin,
				Quantity:  transfer.Amount,
				Timestamp: transfer.OccurredAt,
			})
		} else {
			token.WithdrawQuantity = token.WithdrawQuantity.Add(transfer.Amount)
			token.Quantity = token.Quantity.Sub(transfer.Amount)
			token.post(Entry{
				Type:      EntryWithdrawal,
				Asset:     transfer.Coin,
				Quantity:  transfer.Amount,
				Fee:       transfer.Fee,
				Timestamp: transfer.OccurredAt,
			})
		}
	}

	for _, token := range tokens {
		sort.SliceStable(token.Timeline, func(i, j int) bool {
			return token.Timeline[i].Timestamp.Before(token.Timeline[j].Timestamp)
		})
		token.NetProfitUSD = token.SellValueUSD.Sub(token.BuyValueUSD)
		if token.BuyQuantity.IsPositive() {
			avg := token.BuyValueUSD.Div(token.BuyQuantity)
			token.AverageBuyPrice = &avg
		}
		if token.SellQuantity.IsPositive() {
			avg := token.SellValueUSD.Div(token.SellQuantity)
			token.AverageSellPrice = &avg
		}
	}

	return tokens
}

func (t *PortfolioToken) post(e Entry) {
	t.Timeline = append(t.Timeline, e)
	if e.Timestamp.After(t.LastActivity) {
		t.LastActivity = e.Timestamp
	}
}

// TokenPerformance names one asset's realized P&L for the summary ranking.
type TokenPerformance struct {
	Asset        string          `json:"asset"`
	NetProfitUSD decimal.Decimal `json:"netProfitUsd"`
}

// ProfitSummary is the portfolio-level rollup.
type ProfitSummary struct {
	TotalBuyUSD    decimal.Decimal   `json:"totalBuyUsd"`
	TotalSellUSD   decimal.Decimal   `json:"totalSellUsd"`
	NetProfitUSD   decimal.Decimal   `json:"netProfitUsd"`
	CostBasisUSD   decimal.Decimal   `json:"costBasisUsd"`
	ProfitPercent  decimal.Decimal   `json:"profitPercent"`
	BestPerformer  *TokenPerformance `json:"bestPerformer,omitempty"`
	WorstPerformer *TokenPerformance `json:"worstPerformer,omitempty"`
}

// Summarize rolls the per-asset tokens up to portfolio level. Only assets
// with trading activity are ranked for best/worst performer.
func Summarize(tokens map[string]*PortfolioToken) ProfitSummary {
	var summary ProfitSummary

	var best, worst *PortfolioToken
	for _, token := range tokens {
		summary.TotalBuyUSD = summary.TotalBuyUSD.Add(token.BuyValueUSD)
		summary.TotalSellUSD = summary.TotalSellUSD.Add(token.SellValueUSD)
		if !token.hasTradingActivity() {
			continue
		}
		if best == nil || token.NetProfitUSD.GreaterThan(best.NetProfitUSD) {
			best = token
		}
		if worst == nil || token.NetProfitUSD.LessThan(worst.NetProfitUSD) {
			worst = token
		}
	}

	summary.NetProfitUSD = summary.TotalSellUSD.Sub(summary.TotalBuyUSD)
	costBasis := summary.TotalBuyUSD.Sub(summary.TotalSellUSD)
	if costBasis.IsNegative() {
		costBasis = decimal.Zero
	}
	summary.CostBasisUSD = costBasis
	if costBasis.IsPositive() {
		summary.ProfitPercent = summary.NetProfitUSD.Div(costBasis).Mul(decimal.NewFromInt(100))
	}

	if best != nil {
		summary.BestPerformer = &TokenPerformance{Asset: best.Asset, NetProfitUSD: best.NetProfitUSD}
	}
	if worst != nil {
		summary.WorstPerformer = &TokenPerformance{Asset: worst.Asset, NetProfitUSD: worst.NetProfitUSD}
	}

	return summary
}

// HistoryPoint is one UTC calendar day of cumulative portfolio state.
type HistoryPoint struct {
	Day                 time.Time       `json:"day"`
	CumulativeProfitUSD decimal.Decimal `json:"cumulativeProfitUsd"`
	NetInvestedUSD      decimal.Decimal `json:"netInvestedUsd"`
}

// PerformancePoint is cumulative profit normalized against the first day's
// net-invested magnitude.
type PerformancePoint struct {
	Day     time.Time       `json:"day"`
	Percent decimal.Decimal `json:"percent"`
}

// History builds day-bucketed cumulative profit and net-invested series from
// the trade list in one pass over execution order, plus the normalized
// performance-percent series. A zero first-day baseline yields a flat 0%
// series rather than dividing by zero.
func History(trades []models.Trade) ([]HistoryPoint, []PerformancePoint) {
	ordered := make([]models.Trade, len(trades))
	copy(ordered, trades)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].ExecutedAt.Before(ordered[j].ExecutedAt)
	})

	var history []HistoryPoint
	cumBuy, cumSell := decimal.Zero, decimal.Zero

	for i := range ordered {
		trade := &ordered[i]
		if trade.IsConversion() {
			continue
		}
		value := trade.ValueUSD()
		if trade.Side == models.SideBuy {
			cumBuy = cumBuy.Add(value)
		} else {
			cumSell = cumSell.Add(value)
		}

		day := trade.ExecutedAt.UTC().Truncate(24 * time.Hour)
		point := HistoryPoint{
			Day:                 day,
			CumulativeProfitUSD: cumSell.Sub(cumBuy),
			NetInvestedUSD:      cumBuy.Sub(cumSell),
		}
		if len(history) > 0 && history[len(history)-1].Day.Equal(day) {
			history[len(history)-1] = point
		} else {
			history = append(history, point)
		}
	}

	performance := make([]PerformancePoint, 0, len(history))
	var baseline decimal.Decimal
	if len(history) > 0 {
		baseline = history[0].NetInvestedUSD.Abs()
	}
	for _, point := range history {
		pp := PerformancePoint{Day: point.Day}
		if baseline.IsPositive() {
			pp.Percent = point.CumulativeProfitUSD.Div(baseline).Mul(decimal.NewFromInt(100))
		}
		performance = append(performance, pp)
	}

	return history, performance
}
