package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/portfolio-tracker/internal/models"
)

// TransferRepository handles deposit and withdrawal persistence with the
// same immutability and dedup contract as trades.
type TransferRepository struct {
	db *PostgresDB
}

// NewTransferRepository creates a new transfer repository.
func NewTransferRepository(db *PostgresDB) *TransferRepository {
	return &TransferRepository{db: db}
}

// Exists performs the dedup point lookup.
func (r *TransferRepository) Exists(ctx context.Context, integrationID string, direction models.TransferDirection, providerRef string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM transfers
			WHERE integration_id = $1 AND direction = $2 AND provider_ref = $3
		)
	`

	var exists bool
	if err := r.db.Pool().QueryRow(ctx, query, integrationID, string(direction), providerRef).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check transfer existence: %w", err)
	}
	return exists, nil
}

// Insert stores one transfer, first write wins on the dedup key.
func (r *TransferRepository) Insert(ctx context.Context, transfer *models.Transfer) error {
	if transfer.ID == "" {
		transfer.ID = uuid.New().String()
	}

	query := `
		INSERT INTO transfers (
			id, integration_id, provider_ref, direction, coin, amount,
			network, address, address_tag, tx_id, status, fee, occurred_at, raw
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (integration_id, direction, provider_ref) DO NOTHING
	`

	_, err := r.db.Pool().Exec(ctx, query,
		transfer.ID,
		transfer.IntegrationID,
		transfer.ProviderRef,
		string(transfer.Direction),
		transfer.Coin,
		transfer.Amount,
		transfer.Network,
		transfer.Address,
		transfer.AddressTag,
		transfer.TxID,
		transfer.Status,
		transfer.Fee,
		transfer.OccurredAt,
		[]byte(transfer.Raw),
	)
	if err != nil {
		return fmt.Errorf("failed to insert transfer: %w", err)
	}

	return nil
}

// ListByUser retrieves all transfers across a user's integrations in time
// order, for aggregation reads.
func (r *TransferRepository) ListByUser(ctx context.Context, userID string) ([]models.Transfer, error) {
	query := `
		SELECT t.id, t.integration_id, t.provider_ref, t.direction, t.coin, t.amount,
		       t.network, t.address, t.address_tag, t.tx_id, t.status, t.fee, t.occurred_at, t.raw
		FROM transfers t
		JOIN integrations i ON i.id = t.integration_id
		WHERE i.user_id = $1
		ORDER BY t.occurred_at
	`

	rows, err := r.db.Pool().Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list transfers: %w", err)
	}
	defer rows.Close()

	var transfers []models.Transfer
	for rows.Next() {
		var transfer models.Transfer
		var direction string
		var raw []byte
		err := rows.Scan(
			&transfer.ID,
			&transfer.IntegrationID,
			&transfer.ProviderRef,
			&direction,
			&transfer.Coin,
			&transfer.Amount,
			&transfer.Network,
			&transfer.Address,
			&transfer.AddressTag,
			&transfer.TxID,
			&transfer.Status,
			&transfer.Fee,
			&transfer.OccurredAt,
			&raw,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transfer: %w", err)
		}
		transfer.Direction = models.TransferDirection(direction)
		transfer.Raw = raw
		transfers = append(transfers, transfer)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transfers: %w", err)
	}

	return transfers, nil
}
