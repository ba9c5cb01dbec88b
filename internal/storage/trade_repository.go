package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/portfolio-tracker/internal/models"
)

// TradeRepository handles trade persistence. Trades are immutable; the
// unique constraint on (integration_id, provider_trade_id) backs the
// first-write-wins dedup contract beneath the synchronizer's
// read-check-insert discipline.
type TradeRepository struct {
	db *PostgresDB
}

// NewTradeRepository creates a new trade repository.
func NewTradeRepository(db *PostgresDB) *TradeRepository {
	return &TradeRepository{db: db}
}

// Exists performs the dedup point lookup.
func (r *TradeRepository) Exists(ctx context.Context, integrationID string, providerTradeID int64) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM trades WHERE integration_id = $1 AND provider_trade_id = $2)`

	var exists bool
	if err := r.db.Pool().QueryRow(ctx, query, integrationID, providerTradeID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check trade existence: %w", err)
	}
	return exists, nil
}

// Insert stores one trade. A concurrent duplicate hits the unique constraint
// and is silently skipped (first write wins).
func (r *TradeRepository) Insert(ctx context.Context, trade *models.Trade) error {
	if trade.ID == "" {
		trade.ID = uuid.New().String()
	}

	query := `
		INSERT INTO trades (
			id, integration_id, provider_trade_id, symbol, side,
			quantity, price, quote_quantity, fee, fee_asset, is_maker,
			trade_type, from_asset, from_amount, to_asset, to_amount, executed_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (integration_id, provider_trade_id) DO NOTHING
	`

	_, err := r.db.Pool().Exec(ctx, query,
		trade.ID,
		trade.IntegrationID,
		trade.ProviderTradeID,
		trade.Symbol,
		string(trade.Side),
		trade.Quantity,
		trade.Price,
		trade.QuoteQuantity,
		trade.Fee,
		trade.FeeAsset,
		trade.IsMaker,
		string(trade.TradeType),
		trade.FromAsset,
		trade.FromAmount,
		trade.ToAsset,
		trade.ToAmount,
		trade.ExecutedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert trade: %w", err)
	}

	return nil
}

// ListByUser retrieves all trades across a user's integrations in execution
// order, for aggregation reads.
func (r *TradeRepository) ListByUser(ctx context.Context, userID string) ([]models.Trade, error) {
	query := `
		SELECT t.id, t.integration_id, t.provider_trade_id, t.symbol, t.side,
		       t.quantity, t.price, t.quote_quantity, t.fee, t.fee_asset, t.is_maker,
		       t.trade_type, t.from_asset, t.from_amount, t.to_asset, t.to_amount, t.executed_at
		FROM trades t
		JOIN integrations i ON i.id = t.integration_id
		WHERE i.user_id = $1
		ORDER BY t.executed_at
	`

	rows, err := r.db.Pool().Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list trades: %w", err)
	}
	defer rows.Close()

	var trades []models.Trade
	for rows.Next() {
		var trade models.Trade
		var side, tradeType string
		err := rows.Scan(
			&trade.ID,
			&trade.IntegrationID,
			&trade.ProviderTradeID,
			&trade.Symbol,
			&side,
			&trade.Quantity,
			&trade.Price,
			&trade.QuoteQuantity,
			&trade.Fee,
			&trade.FeeAsset,
			&trade.IsMaker,
			&tradeType,
			&trade.FromAsset,
			&trade.FromAmount,
			&trade.ToAsset,
			&trade.ToAmount,
			&trade.ExecutedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		trade.Side = models.TradeSide(side)
		trade.TradeType = models.TradeType(tradeType)
		trades = append(trades, trade)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trades: %w", err)
	}

	return trades, nil
}
