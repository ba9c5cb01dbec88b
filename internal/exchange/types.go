package exchange

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Credentials holds one integration's decrypted API key pair for the
// duration of a sync run. Never persisted.
type Credentials struct {
	Key    string
	Secret string
}

// SymbolInfo is one entry of the public tradable-pair catalog.
type SymbolInfo struct {
	Symbol     string `json:"symbol"`
	Status     string `json:"status"`
	BaseAsset  string `json:"baseAsset"`
	QuoteAsset string `json:"quoteAsset"`
}

// Balance is one asset's holdings snapshot.
type Balance struct {
	Asset  string          `json:"asset"`
	Free   decimal.Decimal `json:"free"`
	Locked decimal.Decimal `json:"locked"`
}

// Total returns free+locked.
func (b Balance) Total() decimal.Decimal {
	return b.Free.Add(b.Locked)
}

// Trade is one fill returned by the myTrades endpoint.
type Trade struct {
	ID              int64           `json:"id"`
	OrderID         int64           `json:"orderId"`
	Symbol          string          `json:"symbol"`
	Price           decimal.Decimal `json:"price"`
	Qty             decimal.Decimal `json:"qty"`
	QuoteQty        decimal.Decimal `json:"quoteQty"`
	Commission      decimal.Decimal `json:"commission"`
	CommissionAsset string          `json:"commissionAsset"`
	Time            int64           `json:"time"`
	IsBuyer         bool            `json:"isBuyer"`
	IsMaker         bool            `json:"isMaker"`
}

// ExecutedAt converts the millisecond timestamp.
func (t Trade) ExecutedAt() time.Time {
	return time.UnixMilli(t.Time).UTC()
}

// TradePage selects the lower bound for one myTrades page. FromID takes
// precedence over StartTime when both are set; id paging is exact while time
// resolution can have duplicate timestamps.
type TradePage struct {
	FromID    *int64
	StartTime *int64 // milliseconds, inclusive
	Limit     int
}

// Deposit is one record from the deposit history endpoint. Raw keeps the
// untyped provider payload.
type Deposit struct {
	ID         string          `json:"id"`
	TxID       string          `json:"txId"`
	Coin       string          `json:"coin"`
	Amount     decimal.Decimal `json:"amount"`
	Network    string          `json:"network"`
	Address    string          `json:"address"`
	AddressTag string          `json:"addressTag"`
	Status     int             `json:"status"`
	InsertTime int64           `json:"insertTime"`

	Raw json.RawMessage `json:"-"`
}

// OccurredAt converts the millisecond insert timestamp.
func (d Deposit) OccurredAt() time.Time {
	return time.UnixMilli(d.InsertTime).UTC()
}

// Withdrawal is one record from the withdrawal history endpoint. ApplyTime
// comes back as "2006-01-02 15:04:05" in UTC.
type Withdrawal struct {
	ID         string          `json:"id"`
	TxID       string          `json:"txId"`
	Coin       string          `json:"coin"`
	Amount     decimal.Decimal `json:"amount"`
	Network    string          `json:"network"`
	Address    string          `json:"address"`
	AddressTag string          `json:"addressTag"`
	Fee        decimal.Decimal `json:"transactionFee"`
	Status     int             `json:"status"`
	ApplyTime  string          `json:"applyTime"`

	Raw json.RawMessage `json:"-"`
}

const applyTimeLayout = "2006-01-02 15:04:05"

// OccurredAt parses the apply time. Falls back to the zero time when the
// provider sends an unexpected format.
func (w Withdrawal) OccurredAt() time.Time {
	ts, err := time.ParseInLocation(applyTimeLayout, w.ApplyTime, time.UTC)
	if err != nil {
		return time.Time{}
	}
	return ts
}
