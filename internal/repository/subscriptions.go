package repository

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
)

const subscriptionColumns = `
	s.id, s.user_id, s.tier_id, s.status, s.auto_renew,
	s.current_period_start, s.current_period_end, s.trial_end, s.netopia_token,
	st.price, st.currency, st.interval, st.name AS tier_name`

// SubscriptionRepository reads and mutates subscription rows on behalf of
// the batch workflows.
type SubscriptionRepository struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewSubscriptionRepository creates a SubscriptionRepository.
func NewSubscriptionRepository(db *sqlx.DB, logger *slog.Logger) *SubscriptionRepository {
	return &SubscriptionRepository{
		db:     db,
		logger: logger,
	}
}

// DueForRenewal returns active auto-renewing subscriptions whose period has
// ended and that carry a gateway token, oldest period first. The comparison
// is inclusive so a period ending exactly at the tick is picked up.
func (r *SubscriptionRepository) DueForRenewal(ctx context.Context, now time.Time) ([]Subscription, error) {
	query := `
		SELECT ` + subscriptionColumns + `
		FROM subscriptions s
		JOIN subscription_tiers st ON s.tier_id = st.id
		WHERE s.status = $1
		  AND s.auto_renew = true
		  AND s.current_period_end <= $2
		  AND s.netopia_token IS NOT NULL
		ORDER BY s.current_period_end ASC`

	var subs []Subscription
	if err := r.db.SelectContext(ctx, &subs, query, SubscriptionActive, now); err != nil {
		return nil, fmt.Errorf("failed to select due subscriptions: %w", err)
	}

	return subs, nil
}

// ExpiredTrials returns trialing subscriptions whose trial window has closed,
// oldest first.
func (r *SubscriptionRepository) ExpiredTrials(ctx context.Context, now time.Time) ([]Subscription, error) {
	query := `
		SELECT ` + subscriptionColumns + `
		FROM subscriptions s
		JOIN subscription_tiers st ON s.tier_id = st.id
		WHERE s.status = $1
		  AND s.trial_end <= $2
		ORDER BY s.trial_end ASC`

	var subs []Subscription
	if err := r.db.SelectContext(ctx, &subs, query, SubscriptionTrialing, now); err != nil {
		return nil, fmt.Errorf("failed to select expired trials: %w", err)
	}

	return subs, nil
}

// ExtendPeriod rolls the subscription into its next billing period after a
// successful renewal charge.
func (r *SubscriptionRepository) ExtendPeriod(ctx context.Context, subscriptionID string, newPeriodEnd time.Time) error {
	query := `
		UPDATE subscriptions
		SET current_period_start = NOW(),
		    current_period_end = $2,
		    updated_at = NOW()
		WHERE id = $1`

	if _, err := r.db.ExecContext(ctx, query, subscriptionID, newPeriodEnd); err != nil {
		return fmt.Errorf("failed to extend subscription period: %w", err)
	}

	return nil
}

// Cancel marks the subscription CANCELED effective now.
func (r *SubscriptionRepository) Cancel(ctx context.Context, subscriptionID string) error {
	query := `
		UPDATE subscriptions
		SET status = $2,
		    cancel_effective_at = NOW(),
		    updated_at = NOW()
		WHERE id = $1`

	if _, err := r.db.ExecContext(ctx, query, subscriptionID, SubscriptionCanceled); err != nil {
		return fmt.Errorf("failed to cancel subscription: %w", err)
	}

	r.logger.Info("Subscription canceled",
		slog.String("subscription_id", subscriptionID),
	)

	return nil
}
