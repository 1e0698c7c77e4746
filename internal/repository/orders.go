package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// OrderRepository creates and updates renewal orders.
type OrderRepository struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewOrderRepository creates an OrderRepository.
func NewOrderRepository(db *sqlx.DB, logger *slog.Logger) *OrderRepository {
	return &OrderRepository{
		db:     db,
		logger: logger,
	}
}

// CreateRenewal inserts a PENDING order for one subscription renewal and
// returns its id.
func (r *OrderRepository) CreateRenewal(ctx context.Context, sub *Subscription, amount float64) (string, error) {
	metadata, err := json.Marshal(map[string]interface{}{
		"subscription_id": sub.ID,
		"tier_name":       sub.TierName,
		"renewal":         true,
		"auto_renewal":    true,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal order metadata: %w", err)
	}

	orderID := uuid.New().String()

	query := `
		INSERT INTO orders (
			id, user_id, subscription_id, amount, currency,
			status, metadata, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, NOW(), NOW()
		)`

	_, err = r.db.ExecContext(ctx, query, orderID, sub.UserID, sub.ID, amount, sub.Currency, OrderPending, metadata)
	if err != nil {
		return "", fmt.Errorf("failed to create renewal order: %w", err)
	}

	r.logger.Info("Renewal order created",
		slog.String("order_id", orderID),
		slog.String("subscription_id", sub.ID),
	)

	return orderID, nil
}

// UpdateStatus moves an order to a new status, optionally attaching the
// gateway's own order id.
func (r *OrderRepository) UpdateStatus(ctx context.Context, orderID, status, gatewayOrderID string) error {
	query := `
		UPDATE orders
		SET status = $2,
		    netopia_order_id = NULLIF($3, ''),
		    updated_at = NOW()
		WHERE id = $1`

	if _, err := r.db.ExecContext(ctx, query, orderID, status, gatewayOrderID); err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}

	return nil
}
