package workflows

import (
	"context"
	"time"

	"github.com/monitorul/subjobs/internal/billing"
	"github.com/monitorul/subjobs/internal/jobs/domain"
	"github.com/monitorul/subjobs/internal/repository"
)

// SubscriptionStore is the subscription access the workflows need.
type SubscriptionStore interface {
	DueForRenewal(ctx context.Context, now time.Time) ([]repository.Subscription, error)
	ExpiredTrials(ctx context.Context, now time.Time) ([]repository.Subscription, error)
	ExtendPeriod(ctx context.Context, subscriptionID string, newPeriodEnd time.Time) error
	Cancel(ctx context.Context, subscriptionID string) error
}

// OrderStore creates and updates renewal orders.
type OrderStore interface {
	CreateRenewal(ctx context.Context, sub *repository.Subscription, amount float64) (string, error)
	UpdateStatus(ctx context.Context, orderID, status, gatewayOrderID string) error
}

// PaymentLedger reads and appends payment events.
type PaymentLedger interface {
	FailedForRetry(ctx context.Context, maxRetries int, since time.Time) ([]repository.PaymentLog, error)
	AppendEvent(ctx context.Context, event repository.PaymentEvent) error
	IncrementRetryCount(ctx context.Context, id int64) error
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// ProfileStore downgrades user profiles.
type ProfileStore interface {
	DowngradeToFree(ctx context.Context, subscriptionID string) error
}

// PaymentGateway charges stored tokens.
type PaymentGateway interface {
	CreateRecurringPayment(ctx context.Context, req billing.ChargeRequest) (*billing.ChargeResult, error)
}

// JobStateReader reads every job's state row, for monitoring.
type JobStateReader interface {
	ListStatuses(ctx context.Context) ([]domain.CronJob, error)
}

// JobLogPurger deletes job log entries by filter, for cleanup.
type JobLogPurger interface {
	Purge(ctx context.Context, filter domain.LogFilter) (int64, error)
}

// AlertPublisher pushes monitoring alerts onto the message broker.
type AlertPublisher interface {
	Publish(ctx context.Context, body []byte, contentType string) error
}
