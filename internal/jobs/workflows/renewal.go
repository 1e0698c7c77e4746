package workflows

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/monitorul/subjobs/internal/billing"
	"github.com/monitorul/subjobs/internal/repository"
)

// renewer is the shared renewal step used by recurring billing and trial
// processing: create an order, charge the gateway, roll the period, record
// the attempt.
type renewer struct {
	subs    SubscriptionStore
	orders  OrderStore
	ledger  PaymentLedger
	gateway PaymentGateway
	logger  *slog.Logger
	dryRun  bool
	now     func() time.Time
}

// renew charges one subscription renewal end to end. Any returned error
// means the renewal did not go through; partial side effects (the PENDING
// order, the attempt log) are left in place for the retry job to find.
func (r *renewer) renew(ctx context.Context, sub *repository.Subscription) error {
	if r.dryRun {
		r.logger.Info("Dry run: skipping renewal charge",
			slog.String("subscription_id", sub.ID),
		)
		return nil
	}

	orderID, err := r.orders.CreateRenewal(ctx, sub, sub.Price)
	if err != nil {
		return fmt.Errorf("create order: %w", err)
	}

	result, err := r.gateway.CreateRecurringPayment(ctx, billing.ChargeRequest{
		OrderID:        orderID,
		SubscriptionID: sub.ID,
		Amount:         sub.Price,
		Currency:       sub.Currency,
	})
	if err != nil {
		return fmt.Errorf("gateway charge: %w", err)
	}

	if err := r.orders.UpdateStatus(ctx, orderID, repository.OrderProcessing, result.GatewayOrderID); err != nil {
		return fmt.Errorf("update order: %w", err)
	}

	newPeriodEnd := nextPeriodEnd(sub.Interval, r.now())
	if err := r.subs.ExtendPeriod(ctx, sub.ID, newPeriodEnd); err != nil {
		return fmt.Errorf("extend period: %w", err)
	}

	if err := r.ledger.AppendEvent(ctx, repository.PaymentEvent{
		OrderID:        orderID,
		SubscriptionID: sub.ID,
		EventType:      repository.EventAutoRenewalAttempted,
		GatewayOrderID: result.GatewayOrderID,
		Amount:         sub.Price,
		Currency:       sub.Currency,
		Status:         "SUCCESS",
		RawPayload: map[string]interface{}{
			"gateway_status": result.Status,
		},
	}); err != nil {
		// The charge already went through; a missing attempt record is
		// not worth failing the item over.
		r.logger.Warn("Failed to record renewal attempt",
			slog.String("subscription_id", sub.ID),
			slog.Any("error", err),
		)
	}

	r.logger.Info("Subscription renewed",
		slog.String("subscription_id", sub.ID),
		slog.String("order_id", orderID),
		slog.Time("new_period_end", newPeriodEnd),
	)

	return nil
}

// nextPeriodEnd computes the period rollover for a billing interval.
func nextPeriodEnd(interval string, now time.Time) time.Time {
	switch interval {
	case repository.IntervalYearly:
		return now.AddDate(0, 0, 365)
	case repository.IntervalMonthly:
		return now.AddDate(0, 0, 30)
	default:
		return now.AddDate(0, 0, 30)
	}
}
