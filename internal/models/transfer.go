package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// TransferDirection distinguishes deposits from withdrawals.
type TransferDirection string

const (
	DirectionDeposit    TransferDirection = "deposit"
	DirectionWithdrawal TransferDirection = "withdrawal"
)

// Transfer is one inbound or outbound asset movement. Transfers are immutable
// once stored; (IntegrationID, Direction, ProviderRef) is the dedup key.
// The raw provider payload is retained for forward compatibility.
type Transfer struct {
	ID            string            `json:"id"`
	IntegrationID string            `json:"integrationId"`
	ProviderRef   string            `json:"providerRef"`
	Direction     TransferDirection `json:"direction"`
	Coin          string            `json:"coin"`
	Amount        decimal.Decimal   `json:"amount"`
	Network       string            `json:"network,omitempty"`
	Address       string            `json:"address,omitempty"`
	AddressTag    string            `json:"addressTag,omitempty"`
	TxID          string            `json:"txId,omitempty"`
	Status        string            `json:"status"`
	Fee           decimal.Decimal   `json:"fee,omitempty"`
	OccurredAt    time.Time         `json:"occurredAt"`
	Raw           json.RawMessage   `json:"-"`
}
