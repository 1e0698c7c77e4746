package repository

import (
	"database/sql"
	"time"
)

// Subscription status constants
const (
	SubscriptionActive   = "ACTIVE"
	SubscriptionTrialing = "TRIALING"
	SubscriptionCanceled = "CANCELED"
)

// Billing interval constants
const (
	IntervalMonthly = "MONTHLY"
	IntervalYearly  = "YEARLY"
)

// Payment event types recorded in payment_logs
const (
	EventPaymentFailed        = "PAYMENT_FAILED"
	EventPaymentRetry         = "PAYMENT_RETRY"
	EventAutoRenewalAttempted = "AUTO_RENEWAL_ATTEMPTED"
	EventAutoRenewalFailed    = "AUTO_RENEWAL_FAILED"
	EventSubscriptionCanceled = "SUBSCRIPTION_CANCELED"
	EventTrialProcessingError = "TRIAL_PROCESSING_ERROR"
)

// Order status constants
const (
	OrderPending    = "PENDING"
	OrderProcessing = "PROCESSING"
)

// FreeTier is the profile tier users fall back to when a subscription ends.
const FreeTier = "free"

// Subscription is a subscription row joined with its tier.
type Subscription struct {
	ID                 string         `db:"id"`
	UserID             string         `db:"user_id"`
	TierID             string         `db:"tier_id"`
	Status             string         `db:"status"`
	AutoRenew          bool           `db:"auto_renew"`
	CurrentPeriodStart sql.NullTime   `db:"current_period_start"`
	CurrentPeriodEnd   sql.NullTime   `db:"current_period_end"`
	TrialEnd           sql.NullTime   `db:"trial_end"`
	GatewayToken       sql.NullString `db:"netopia_token"`
	Price              float64        `db:"price"`
	Currency           string         `db:"currency"`
	Interval           string         `db:"interval"`
	TierName           string         `db:"tier_name"`
}

// HasPaymentMethod reports whether a stored gateway token exists to charge.
func (s *Subscription) HasPaymentMethod() bool {
	return s.GatewayToken.Valid && s.GatewayToken.String != ""
}

// PaymentLog is one payment event row.
type PaymentLog struct {
	ID             int64           `db:"id"`
	OrderID        sql.NullString  `db:"order_id"`
	SubscriptionID sql.NullString  `db:"subscription_id"`
	EventType      string          `db:"event_type"`
	GatewayOrderID sql.NullString  `db:"netopia_order_id"`
	Amount         sql.NullFloat64 `db:"amount"`
	Currency       sql.NullString  `db:"currency"`
	Status         sql.NullString  `db:"status"`
	RawPayload     []byte          `db:"raw_payload"`
	RetryCount     int             `db:"retry_count"`
	ErrorMessage   sql.NullString  `db:"error_message"`
	CreatedAt      time.Time       `db:"created_at"`
}

// PaymentEvent is the write shape for appending to payment_logs.
type PaymentEvent struct {
	OrderID        string
	SubscriptionID string
	EventType      string
	GatewayOrderID string
	Amount         float64
	Currency       string
	Status         string
	RawPayload     map[string]interface{}
	RetryCount     int
	ErrorMessage   string
}
