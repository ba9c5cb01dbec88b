// Package service implements the application layer between the HTTP API and
// the storage, vault, exchange and sync packages.
package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/portfolio-tracker/internal/errors"
	"github.com/portfolio-tracker/internal/exchange"
	"github.com/portfolio-tracker/internal/logging"
	"github.com/portfolio-tracker/internal/models"
	syncengine "github.com/portfolio-tracker/internal/sync"
	"github.com/portfolio-tracker/internal/vault"
)

// Repository interfaces for dependency injection

// IntegrationRepository persists exchange integrations.
type IntegrationRepository interface {
	Upsert(ctx context.Context, integration *models.Integration) error
	GetByID(ctx context.Context, id string) (*models.Integration, error)
	ListByUser(ctx context.Context, userID string) ([]*models.Integration, error)
}

// SyncOrchestrator runs one full sync for an integration.
type SyncOrchestrator interface {
	Run(ctx context.Context, integration *models.Integration, creds exchange.Credentials) (*syncengine.Report, error)
}

// CursorResetter wipes an integration's sync cursors.
type CursorResetter interface {
	Reset(ctx context.Context, integrationID string) error
}

// CacheInvalidator drops derived read-model cache entries.
type CacheInvalidator interface {
	DelPattern(ctx context.Context, pattern string) error
}

// IntegrationService handles connecting exchange accounts and triggering
// sync runs against them.
type IntegrationService struct {
	integrations IntegrationRepository
	vault        *vault.Vault
	orchestrator SyncOrchestrator
	cursors      CursorResetter
	cache        CacheInvalidator
}

// NewIntegrationService creates a new integration service.
func NewIntegrationService(
	integrations IntegrationRepository,
	v *vault.Vault,
	orchestrator SyncOrchestrator,
	cursors CursorResetter,
	cache CacheInvalidator,
) *IntegrationService {
	return &IntegrationService{
		integrations: integrations,
		vault:        v,
		orchestrator: orchestrator,
		cursors:      cursors,
		cache:        cache,
	}
}

// ConnectInput is the payload for connecting an exchange account.
type ConnectInput struct {
	UserID    string   `json:"userId"`
	Provider  string   `json:"provider"`
	Label     string   `json:"label"`
	APIKey    string   `json:"apiKey"`
	APISecret string   `json:"apiSecret"`
	ReadOnly  bool     `json:"readOnly"`
	Scopes    []string `json:"scopes"`
}

// Connect validates and stores an exchange connection. Credentials are
// encrypted before they touch the database; reconnecting an existing
// (user, provider) pair replaces the stored credentials in place.
func (s *IntegrationService) Connect(ctx context.Context, input ConnectInput) (*models.Integration, error) {
	provider := models.Provider(strings.ToLower(strings.TrimSpace(input.Provider)))
	if !models.SupportedProviders[provider] {
		return nil, apperrors.NewUnsupportedProviderError(input.Provider)
	}
	if input.UserID == "" {
		return nil, apperrors.NewValidationError("userId is required")
	}
	if input.APIKey == "" || input.APISecret == "" {
		return nil, apperrors.NewCredentialError("apiKey and apiSecret are required")
	}

	keyEnc, err := s.vault.Encrypt(input.APIKey)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to encrypt API key", err)
	}
	secretEnc, err := s.vault.Encrypt(input.APISecret)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to encrypt API secret", err)
	}

	now := time.Now().UTC()
	integration := &models.Integration{
		ID:           uuid.New().String(),
		UserID:       input.UserID,
		Provider:     provider,
		Label:        input.Label,
		ReadOnly:     input.ReadOnly,
		APIKeyEnc:    keyEnc,
		APISecretEnc: secretEnc,
		Scopes:       input.Scopes,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.integrations.Upsert(ctx, integration); err != nil {
		return nil, apperrors.NewDatabaseError("upsert integration", err)
	}

	logging.FromContext(ctx).WithFields(map[string]interface{}{
		"integration": integration.ID,
		"provider":    string(provider),
	}).Info("integration connected")

	return integration, nil
}

// List returns the user's integrations. Encrypted credentials never leave
// the model's json:"-" fields.
func (s *IntegrationService) List(ctx context.Context, userID string) ([]*models.Integration, error) {
	if userID == "" {
		return nil, apperrors.NewValidationError("userId is required")
	}
	integrations, err := s.integrations.ListByUser(ctx, userID)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list integrations", err)
	}
	return integrations, nil
}

// Sync decrypts the integration's credentials and runs a full incremental
// sync. On success the derived portfolio cache for the owning user is
// invalidated so the next read reflects the new records.
func (s *IntegrationService) Sync(ctx context.Context, userID, integrationID string) (*syncengine.Report, error) {
	integration, err := s.authorize(ctx, userID, integrationID)
	if err != nil {
		return nil, err
	}

	apiKey, err := s.vault.Decrypt(integration.APIKeyEnc)
	if err != nil {
		return nil, err
	}
	apiSecret, err := s.vault.Decrypt(integration.APISecretEnc)
	if err != nil {
		return nil, err
	}

	report, err := s.orchestrator.Run(ctx, integration, exchange.Credentials{Key: apiKey, Secret: apiSecret})
	if err != nil {
		return nil, err
	}

	if err := s.cache.DelPattern(ctx, portfolioCachePattern(userID)); err != nil {
		logging.FromContext(ctx).WithError(err).Warn("failed to invalidate portfolio cache")
	}

	return report, nil
}

// SyncByID runs a sync without an ownership check, for the background
// scheduler which iterates integrations directly.
func (s *IntegrationService) SyncByID(ctx context.Context, integrationID string) error {
	integration, err := s.integrations.GetByID(ctx, integrationID)
	if err != nil {
		return apperrors.NewDatabaseError("get integration", err)
	}
	if integration == nil {
		return apperrors.NewNotFoundError("integration", integrationID)
	}
	_, err = s.Sync(ctx, integration.UserID, integrationID)
	return err
}

// ResetCursors deletes all sync cursors of the integration so the next run
// re-imports history from the beginning. Stored records stay; dedup makes
// the re-import idempotent.
func (s *IntegrationService) ResetCursors(ctx context.Context, userID, integrationID string) error {
	if _, err := s.authorize(ctx, userID, integrationID); err != nil {
		return err
	}
	if err := s.cursors.Reset(ctx, integrationID); err != nil {
		return apperrors.NewDatabaseError("reset sync cursors", err)
	}
	logging.FromContext(ctx).WithField("integration", integrationID).Info("sync cursors reset")
	return nil
}

// authorize loads the integration and checks ownership. A foreign
// integration is indistinguishable from a missing one.
func (s *IntegrationService) authorize(ctx context.Context, userID, integrationID string) (*models.Integration, error) {
	if userID == "" {
		return nil, apperrors.NewValidationError("userId is required")
	}
	integration, err := s.integrations.GetByID(ctx, integrationID)
	if err != nil {
		return nil, apperrors.NewDatabaseError("get integration", err)
	}
	if integration == nil || integration.UserID != userID {
		return nil, apperrors.NewNotFoundError("integration", integrationID)
	}
	return integration, nil
}
