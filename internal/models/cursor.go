package models

import "time"

// Dataset names the history streams a synchronizer can page through.
type Dataset string

const (
	DatasetSpotTrades  Dataset = "spot_trades"
	DatasetDeposits    Dataset = "deposits"
	DatasetWithdrawals Dataset = "withdrawals"
)

// ScopeDefault is the cursor scope for datasets without a per-symbol split.
const ScopeDefault = "default"

// SyncCursor is the resumption marker for one (integration, dataset, scope).
// LastID is set for id-paged datasets (spot trades), LastTime for time-paged
// ones. A cursor only moves forward except on explicit reset.
type SyncCursor struct {
	IntegrationID string     `json:"integrationId"`
	Dataset       Dataset    `json:"dataset"`
	Scope         string     `json:"scope"`
	LastID        *int64     `json:"lastId,omitempty"`
	LastTime      *time.Time `json:"lastTime,omitempty"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}
