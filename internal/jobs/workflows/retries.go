package workflows

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/monitorul/subjobs/internal/billing"
	"github.com/monitorul/subjobs/internal/jobs/domain"
	"github.com/monitorul/subjobs/internal/repository"
)

// retryWindow bounds how far back the retry job looks for failed payments.
const retryWindow = 24 * time.Hour

// PaymentRetries re-attempts recent failed payments that are still under the
// retry limit, in the order they originally failed.
type PaymentRetries struct {
	ledger     PaymentLedger
	gateway    PaymentGateway
	logger     *slog.Logger
	maxRetries int
	dryRun     bool
	now        func() time.Time
}

// NewPaymentRetries creates the payment_retries workflow. maxRetries is the
// strict upper bound on attempts: a log row with retry_count equal to it is
// never selected again.
func NewPaymentRetries(ledger PaymentLedger, gateway PaymentGateway, maxRetries int, logger *slog.Logger, dryRun bool) *PaymentRetries {
	return &PaymentRetries{
		ledger:     ledger,
		gateway:    gateway,
		logger:     logger,
		maxRetries: maxRetries,
		dryRun:     dryRun,
		now:        time.Now,
	}
}

// Name implements domain.BatchWorkflow.
func (w *PaymentRetries) Name() string {
	return domain.JobPaymentRetries
}

// Execute retries each eligible failed payment, continuing past individual
// failures.
func (w *PaymentRetries) Execute(ctx context.Context) (*domain.BatchSummary, error) {
	since := w.now().Add(-retryWindow)

	failed, err := w.ledger.FailedForRetry(ctx, w.maxRetries, since)
	if err != nil {
		return nil, err
	}

	w.logger.Info("Processing payment retries",
		slog.Int("failed_payments", len(failed)),
	)

	summary := &domain.BatchSummary{}

	for i := range failed {
		entry := &failed[i]

		if err := w.retry(ctx, entry); err != nil {
			w.logger.Error("Payment retry failed",
				slog.String("order_id", entry.OrderID.String),
				slog.Any("error", err),
			)
			summary.RecordFailure(entry.OrderID.String, "retry", err)
			continue
		}

		summary.RecordSuccess()
	}

	return summary, nil
}

// retry records the attempt, advances the source row's counter, and, when
// the original event carries enough to charge with, re-drives the gateway.
// A dry run writes nothing at all; it only reports the candidate.
func (w *PaymentRetries) retry(ctx context.Context, entry *repository.PaymentLog) error {
	attempt := entry.RetryCount + 1

	w.logger.Info("Retrying payment",
		slog.String("order_id", entry.OrderID.String),
		slog.Int("attempt", attempt),
	)

	if w.dryRun {
		return nil
	}

	if err := w.ledger.AppendEvent(ctx, repository.PaymentEvent{
		OrderID:        entry.OrderID.String,
		SubscriptionID: entry.SubscriptionID.String,
		EventType:      repository.EventPaymentRetry,
		Amount:         entry.Amount.Float64,
		Currency:       entry.Currency.String,
		Status:         "RETRYING",
		RetryCount:     attempt,
		RawPayload: map[string]interface{}{
			"original_event_id": entry.ID,
		},
	}); err != nil {
		return fmt.Errorf("record retry attempt: %w", err)
	}

	// The counter must advance before the charge; otherwise the row stays
	// eligible on every tick and the gateway gets hit again and again.
	if err := w.ledger.IncrementRetryCount(ctx, entry.ID); err != nil {
		return fmt.Errorf("advance retry count: %w", err)
	}

	// Events without an amount or order reference were logged before the
	// charge existed; the attempt record is all that can be done for them.
	if !entry.OrderID.Valid || !entry.Amount.Valid {
		return nil
	}

	_, err := w.gateway.CreateRecurringPayment(ctx, billing.ChargeRequest{
		OrderID:        entry.OrderID.String,
		SubscriptionID: entry.SubscriptionID.String,
		Amount:         entry.Amount.Float64,
		Currency:       entry.Currency.String,
	})
	if err != nil {
		return fmt.Errorf("gateway charge: %w", err)
	}

	return nil
}
