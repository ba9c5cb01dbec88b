package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeSide is the direction of a fill from the account's perspective.
type TradeSide string

const (
	SideBuy  TradeSide = "BUY"
	SideSell TradeSide = "SELL"
)

// TradeType distinguishes regular spot fills from conversions and fiat buys.
type TradeType string

const (
	TradeTypeSpot    TradeType = "SPOT"
	TradeTypeConvert TradeType = "CONVERT"
	TradeTypeFiat    TradeType = "FIAT"
)

// Trade is one executed fill pulled from the exchange. Trades are immutable
// once stored; (IntegrationID, ProviderTradeID) is the dedup key.
type Trade struct {
	ID              string          `json:"id"`
	IntegrationID   string          `json:"integrationId"`
	ProviderTradeID int64           `json:"providerTradeId"`
	Symbol          string          `json:"symbol"`
	Side            TradeSide       `json:"side"`
	Quantity        decimal.Decimal `json:"quantity"`
	Price           decimal.Decimal `json:"price"`
	QuoteQuantity   decimal.Decimal `json:"quoteQuantity"`
	Fee             decimal.Decimal `json:"fee"`
	FeeAsset        string          `json:"feeAsset"`
	IsMaker         bool            `json:"isMaker"`
	TradeType       TradeType       `json:"tradeType"`

	// Conversion legs, populated only for TradeTypeConvert.
	FromAsset  string          `json:"fromAsset,omitempty"`
	FromAmount decimal.Decimal `json:"fromAmount,omitempty"`
	ToAsset    string          `json:"toAsset,omitempty"`
	ToAmount   decimal.Decimal `json:"toAmount,omitempty"`

	ExecutedAt time.Time `json:"executedAt"`
}

// IsConversion reports whether the trade carries both conversion legs.
func (t *Trade) IsConversion() bool {
	return t.FromAsset != "" && t.ToAsset != ""
}

// ValueUSD returns the trade's notional in quote units, used as the USD proxy
// for P&L. Falls back to quantity*price when the exchange omitted quoteQty.
func (t *Trade) ValueUSD() decimal.Decimal {
	if !t.QuoteQuantity.IsZero() {
		return t.QuoteQuantity
	}
	return t.Quantity.Mul(t.Price)
}
