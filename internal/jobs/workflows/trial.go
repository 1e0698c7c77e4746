package workflows

import (
	"context"
	"log/slog"
	"time"

	"github.com/monitorul/subjobs/internal/jobs/domain"
	"github.com/monitorul/subjobs/internal/repository"
)

// TrialProcessing handles expired trials: a subscription without a stored
// payment method is canceled outright; one with a token gets a renewal
// charge and is canceled only when the charge fails.
//
// Cancellation is three independent best-effort steps (cancel row, downgrade
// profile, audit entry). A downgrade failure does not undo the cancel or
// suppress the audit entry; that non-atomicity is accepted.
type TrialProcessing struct {
	renewer
	profiles ProfileStore
}

// NewTrialProcessing creates the trial_processing workflow.
func NewTrialProcessing(subs SubscriptionStore, orders OrderStore, ledger PaymentLedger, profiles ProfileStore, gateway PaymentGateway, logger *slog.Logger, dryRun bool) *TrialProcessing {
	return &TrialProcessing{
		renewer: renewer{
			subs:    subs,
			orders:  orders,
			ledger:  ledger,
			gateway: gateway,
			logger:  logger,
			dryRun:  dryRun,
			now:     time.Now,
		},
		profiles: profiles,
	}
}

// Name implements domain.BatchWorkflow.
func (w *TrialProcessing) Name() string {
	return domain.JobTrialProcessing
}

// Execute processes each expired trial independently. A failing subscription
// gets a dedicated error audit entry and the batch moves on.
func (w *TrialProcessing) Execute(ctx context.Context) (*domain.BatchSummary, error) {
	trials, err := w.subs.ExpiredTrials(ctx, w.now())
	if err != nil {
		return nil, err
	}

	w.logger.Info("Processing trial expirations",
		slog.Int("expired_trials", len(trials)),
	)

	summary := &domain.BatchSummary{}

	for i := range trials {
		sub := &trials[i]

		if err := w.expire(ctx, sub); err != nil {
			w.logger.Error("Trial expiration failed",
				slog.String("subscription_id", sub.ID),
				slog.Any("error", err),
			)
			summary.RecordFailure(sub.ID, "expiration", err)

			if logErr := w.ledger.AppendEvent(ctx, repository.PaymentEvent{
				SubscriptionID: sub.ID,
				EventType:      repository.EventTrialProcessingError,
				Status:         "FAILED",
				ErrorMessage:   err.Error(),
			}); logErr != nil {
				w.logger.Warn("Failed to record trial processing error",
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

// expire decides one trial's fate.
func (w *TrialProcessing) expire(ctx context.Context, sub *repository.Subscription) error {
	if !sub.HasPaymentMethod() {
		return w.cancel(ctx, sub, "Trial expired - no payment method")
	}

	if err := w.renew(ctx, sub); err != nil {
		w.logger.Info("Trial charge failed, canceling subscription",
			slog.String("subscription_id", sub.ID),
			slog.Any("error", err),
		)
		return w.cancel(ctx, sub, "Trial expired - charge failed: "+err.Error())
	}

	return nil
}

// cancel runs the three cancellation steps in order, never letting an
// earlier failure block a later step. The first error is what the item
// reports.
func (w *TrialProcessing) cancel(ctx context.Context, sub *repository.Subscription, reason string) error {
	if w.dryRun {
		w.logger.Info("Dry run: skipping trial cancellation",
			slog.String("subscription_id", sub.ID),
			slog.String("reason", reason),
		)
		return nil
	}

	var firstErr error

	if err := w.subs.Cancel(ctx, sub.ID); err != nil {
		w.logger.Error("Failed to cancel subscription",
			slog.String("subscription_id", sub.ID),
			slog.Any("error", err),
		)
		firstErr = err
	}

	if err := w.profiles.DowngradeToFree(ctx, sub.ID); err != nil {
		w.logger.Error("Failed to downgrade profile",
			slog.String("subscription_id", sub.ID),
			slog.Any("error", err),
		)
		if firstErr == nil {
			firstErr = err
		}
	}

	if err := w.ledger.AppendEvent(ctx, repository.PaymentEvent{
		SubscriptionID: sub.ID,
		EventType:      repository.EventSubscriptionCanceled,
		Status:         repository.SubscriptionCanceled,
		RawPayload: map[string]interface{}{
			"reason":      reason,
			"auto_cancel": true,
		},
	}); err != nil {
		w.logger.Warn("Failed to record cancellation",
			slog.String("subscription_id", sub.ID),
			slog.Any("error", err),
		)
		if firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}
