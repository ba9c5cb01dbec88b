package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/portfolio-tracker/internal/models"
)

// CursorRepository persists sync cursors per (integration, dataset, scope).
// Cursors only move forward in normal operation; Reset is the single
// user-visible full-reimport trigger.
type CursorRepository struct {
	db *PostgresDB
}

// NewCursorRepository creates a new cursor repository.
func NewCursorRepository(db *PostgresDB) *CursorRepository {
	return &CursorRepository{db: db}
}

// Get returns the cursor, or nil when none exists yet.
func (r *CursorRepository) Get(ctx context.Context, integrationID string, dataset models.Dataset, scope string) (*models.SyncCursor, error) {
	query := `
		SELECT integration_id, dataset, scope, last_id, last_time, updated_at
		FROM sync_cursors
		WHERE integration_id = $1 AND dataset = $2 AND scope = $3
	`

	var cursor models.SyncCursor
	var dsName string
	err := r.db.Pool().QueryRow(ctx, query, integrationID, string(dataset), scope).Scan(
		&cursor.IntegrationID,
		&dsName,
		&cursor.Scope,
		&cursor.LastID,
		&cursor.LastTime,
		&cursor.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get sync cursor: %w", err)
	}
	cursor.Dataset = models.Dataset(dsName)
	return &cursor, nil
}

// Put upserts a cursor.
func (r *CursorRepository) Put(ctx context.Context, cursor *models.SyncCursor) error {
	if cursor.UpdatedAt.IsZero() {
		cursor.UpdatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO sync_cursors (integration_id, dataset, scope, last_id, last_time, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (integration_id, dataset, scope)
		DO UPDATE SET
			last_id = EXCLUDED.last_id,
			last_time = EXCLUDED.last_time,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.Pool().Exec(ctx, query,
		cursor.IntegrationID,
		string(cursor.Dataset),
		cursor.Scope,
		cursor.LastID,
		cursor.LastTime,
		cursor.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to put sync cursor: %w", err)
	}

	return nil
}

// Scopes lists the scopes a dataset already tracks, used by discovery to
// keep syncing symbols that no longer show a balance.
func (r *CursorRepository) Scopes(ctx context.Context, integrationID string, dataset models.Dataset) ([]string, error) {
	query := `
		SELECT scope FROM sync_cursors
		WHERE integration_id = $1 AND dataset = $2
		ORDER BY scope
	`

	rows, err := r.db.Pool().Query(ctx, query, integrationID, string(dataset))
	if err != nil {
		return nil, fmt.Errorf("failed to list cursor scopes: %w", err)
	}
	defer rows.Close()

	var scopes []string
	for rows.Next() {
		var scope string
		if err := rows.Scan(&scope); err != nil {
			return nil, fmt.Errorf("failed to scan cursor scope: %w", err)
		}
		scopes = append(scopes, scope)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cursor scopes: %w", err)
	}

	return scopes, nil
}

// Reset wipes every cursor of an integration so the next sync re-imports
// from the unbounded lower bound.
func (r *CursorRepository) Reset(ctx context.Context, integrationID string) error {
	_, err := r.db.Pool().Exec(ctx, `DELETE FROM sync_cursors WHERE integration_id = $1`, integrationID)
	if err != nil {
		return fmt.Errorf("failed to reset sync cursors: %w", err)
	}
	return nil
}
