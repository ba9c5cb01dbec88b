package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/portfolio-tracker/internal/models"
)

// IntegrationRepository handles integration persistence.
type IntegrationRepository struct {
	db *PostgresDB
}

// NewIntegrationRepository creates a new integration repository.
func NewIntegrationRepository(db *PostgresDB) *IntegrationRepository {
	return &IntegrationRepository{db: db}
}

// Upsert creates an integration or replaces credentials in place on
// reconnect. At most one integration exists per (user, provider).
func (r *IntegrationRepository) Upsert(ctx context.Context, integration *models.Integration) error {
	if integration.ID == "" {
		integration.ID = uuid.New().String()
	}

	now := time.Now().UTC()
	integration.CreatedAt = now
	integration.UpdatedAt = now

	query := `
		INSERT INTO integrations (
			id, user_id, provider, label, read_only,
			api_key_enc, api_secret_enc, scopes, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (user_id, provider)
		DO UPDATE SET
			label = EXCLUDED.label,
			read_only = EXCLUDED.read_only,
			api_key_enc = EXCLUDED.api_key_enc,
			api_secret_enc = EXCLUDED.api_secret_enc,
			scopes = EXCLUDED.scopes,
			updated_at = EXCLUDED.updated_at
		RETURNING id, created_at
	`

	err := r.db.Pool().QueryRow(ctx, query,
		integration.ID,
		integration.UserID,
		string(integration.Provider),
		integration.Label,
		integration.ReadOnly,
		integration.APIKeyEnc,
		integration.APISecretEnc,
		integration.Scopes,
		integration.CreatedAt,
		integration.UpdatedAt,
	).Scan(&integration.ID, &integration.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert integration: %w", err)
	}

	return nil
}

// GetByID retrieves one integration.
func (r *IntegrationRepository) GetByID(ctx context.Context, id string) (*models.Integration, error) {
	query := `
		SELECT id, user_id, provider, label, read_only,
		       api_key_enc, api_secret_enc, scopes, created_at, updated_at
		FROM integrations
		WHERE id = $1
	`

	integration, err := scanIntegration(r.db.Pool().QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get integration: %w", err)
	}
	return integration, nil
}

// ListByUser retrieves all integrations of one user.
func (r *IntegrationRepository) ListByUser(ctx context.Context, userID string) ([]*models.Integration, error) {
	query := `
		SELECT id, user_id, provider, label, read_only,
		       api_key_enc, api_secret_enc, scopes, created_at, updated_at
		FROM integrations
		WHERE user_id = $1
		ORDER BY created_at
	`

	rows, err := r.db.Pool().Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list integrations: %w", err)
	}
	defer rows.Close()

	var integrations []*models.Integration
	for rows.Next() {
		integration, err := scanIntegration(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan integration: %w", err)
		}
		integrations = append(integrations, integration)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating integrations: %w", err)
	}

	return integrations, nil
}

// ListIDs returns every integration id, used by the background scheduler.
func (r *IntegrationRepository) ListIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.Pool().Query(ctx, `SELECT id FROM integrations ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list integration ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan integration id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating integration ids: %w", err)
	}

	return ids, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIntegration(row rowScanner) (*models.Integration, error) {
	var integration models.Integration
	var provider string
	err := row.Scan(
		&integration.ID,
		&integration.UserID,
		&provider,
		&integration.Label,
		&integration.ReadOnly,
		&integration.APIKeyEnc,
		&integration.APISecretEnc,
		&integration.Scopes,
		&integration.CreatedAt,
		&integration.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	integration.Provider = models.Provider(provider)
	return &integration, nil
}
