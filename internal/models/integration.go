// Package models defines the persistent data model for the portfolio tracker.
package models

import "time"

// Provider identifies an exchange a user can connect.
type Provider string

const (
	ProviderBinance Provider = "binance"
)

// SupportedProviders lists the providers integrations can be created for.
var SupportedProviders = map[Provider]bool{
	ProviderBinance: true,
}

// Integration represents one user's connection to one exchange account.
// At most one integration exists per (user, provider) pair; reconnecting
// replaces the stored credentials in place.
type Integration struct {
	ID           string    `json:"id"`
	UserID       string    `json:"userId"`
	Provider     Provider  `json:"provider"`
	Label        string    `json:"label"`
	ReadOnly     bool      `json:"readOnly"`
	APIKeyEnc    string    `json:"-"`
	APISecretEnc string    `json:"-"`
	Scopes       []string  `json:"scopes"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}
