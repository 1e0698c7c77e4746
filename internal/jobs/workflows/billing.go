package workflows

import (
	"context"
	"log/slog"
	"time"

	"github.com/monitorul/subjobs/internal/jobs/domain"
	"github.com/monitorul/subjobs/internal/repository"
)

// RecurringBilling renews every active auto-renewing subscription whose
// billing period has ended. One bad subscription never aborts the batch.
type RecurringBilling struct {
	renewer
}

// NewRecurringBilling creates the recurring_billing workflow.
func NewRecurringBilling(subs SubscriptionStore, orders OrderStore, ledger PaymentLedger, gateway PaymentGateway, logger *slog.Logger, dryRun bool) *RecurringBilling {
	return &RecurringBilling{
		renewer: renewer{
			subs:    subs,
			orders:  orders,
			ledger:  ledger,
			gateway: gateway,
			logger:  logger,
			dryRun:  dryRun,
			now:     time.Now,
		},
	}
}

// Name implements domain.BatchWorkflow.
func (w *RecurringBilling) Name() string {
	return domain.JobRecurringBilling
}

// Execute enumerates due subscriptions and attempts each renewal, isolating
// per-item failures into the summary.
func (w *RecurringBilling) Execute(ctx context.Context) (*domain.BatchSummary, error) {
	due, err := w.subs.DueForRenewal(ctx, w.now())
	if err != nil {
		return nil, err
	}

	w.logger.Info("Processing recurring billing",
		slog.Int("due_subscriptions", len(due)),
	)

	summary := &domain.BatchSummary{}

	for i := range due {
		sub := &due[i]

		if err := w.renew(ctx, sub); err != nil {
			w.logger.Error("Renewal failed",
				slog.String("subscription_id", sub.ID),
				slog.Any("error", err),
			)
			summary.RecordFailure(sub.ID, "renewal", err)

			// Best-effort failure record; the next retry pass reads these.
			if logErr := w.ledger.AppendEvent(ctx, repository.PaymentEvent{
				SubscriptionID: sub.ID,
				EventType:      repository.EventAutoRenewalFailed,
				Status:         "FAILED",
				ErrorMessage:   err.Error(),
				RawPayload: map[string]interface{}{
					"tier_name": sub.TierName,
				},
			}); logErr != nil {
				w.logger.Warn("Failed to record renewal failure",
					slog.String("subscription_id", sub.ID),
					slog.Any("error", logErr),
				)
			}
			continue
		}

		summary.RecordSuccess()
	}

	return summary, nil
}
