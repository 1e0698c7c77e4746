package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
)

// PaymentLogRepository is the append-mostly payment event log consumed by the
// retry workflow and written by billing and trial processing.
type PaymentLogRepository struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewPaymentLogRepository creates a PaymentLogRepository.
func NewPaymentLogRepository(db *sqlx.DB, logger *slog.Logger) *PaymentLogRepository {
	return &PaymentLogRepository{
		db:     db,
		logger: logger,
	}
}

// FailedForRetry returns PAYMENT_FAILED events still under the retry limit
// and recent enough to bother with, oldest first. retry_count < maxRetries is
// strict: with a limit of 3 a row on its third recorded attempt is done.
func (r *PaymentLogRepository) FailedForRetry(ctx context.Context, maxRetries int, since time.Time) ([]PaymentLog, error) {
	query := `
		SELECT id, order_id, subscription_id, event_type, netopia_order_id,
		       amount, currency, status, raw_payload, retry_count,
		       error_message, created_at
		FROM payment_logs
		WHERE event_type = $1
		  AND retry_count < $2
		  AND created_at >= $3
		ORDER BY created_at ASC`

	var logs []PaymentLog
	if err := r.db.SelectContext(ctx, &logs, query, EventPaymentFailed, maxRetries, since); err != nil {
		return nil, fmt.Errorf("failed to select failed payments: %w", err)
	}

	return logs, nil
}

// AppendEvent writes one payment event row.
func (r *PaymentLogRepository) AppendEvent(ctx context.Context, event PaymentEvent) error {
	payload := event.RawPayload
	if payload == nil {
		payload = map[string]interface{}{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payment event payload: %w", err)
	}

	query := `
		INSERT INTO payment_logs (
			order_id, subscription_id, event_type, netopia_order_id,
			amount, currency, status, raw_payload, retry_count,
			error_message, created_at
		) VALUES (
			NULLIF($1, ''), NULLIF($2, ''), $3, NULLIF($4, ''),
			$5, NULLIF($6, ''), NULLIF($7, ''), $8, $9,
			NULLIF($10, ''), NOW()
		)`

	_, err = r.db.ExecContext(
		ctx,
		query,
		event.OrderID,
		event.SubscriptionID,
		event.EventType,
		event.GatewayOrderID,
		event.Amount,
		event.Currency,
		event.Status,
		raw,
		event.RetryCount,
		event.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("failed to append payment event: %w", err)
	}

	r.logger.Debug("Payment event appended",
		slog.String("event_type", event.EventType),
		slog.String("subscription_id", event.SubscriptionID),
	)

	return nil
}

// IncrementRetryCount advances the attempt counter on the original failed
// event so the row ages out of FailedForRetry's selection once the limit is
// reached.
func (r *PaymentLogRepository) IncrementRetryCount(ctx context.Context, id int64) error {
	query := `UPDATE payment_logs SET retry_count = retry_count + 1 WHERE id = $1`

	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to increment retry count: %w", err)
	}

	return nil
}

// PurgeOlderThan bulk-deletes payment log rows created before the cutoff and
// returns the deleted count.
func (r *PaymentLogRepository) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM payment_logs WHERE created_at < $1`

	result, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge payment logs: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get purged payment log count: %w", err)
	}

	return deleted, nil
}
