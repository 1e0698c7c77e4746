package repository

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	return sqlx.NewDb(mockDB, "sqlmock"), mock
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var subscriptionTestColumns = []string{
	"id", "user_id", "tier_id", "status", "auto_renew",
	"current_period_start", "current_period_end", "trial_end", "netopia_token",
	"price", "currency", "interval", "tier_name",
}

func subscriptionRow(id, status string, token interface{}) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(subscriptionTestColumns).AddRow(
		id, "user-1", "tier-1", status, true,
		now.AddDate(0, 0, -30), now, now, token,
		9.99, "RON", IntervalMonthly, "pro",
	)
}

func TestSubscriptionRepository_DueForRenewal(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSubscriptionRepository(db, testLogger())
	now := time.Now()

	mock.ExpectQuery(`SELECT (.+) FROM subscriptions s JOIN subscription_tiers st ON s.tier_id = st.id WHERE s.status = \$1 AND s.auto_renew = true AND s.current_period_end <= \$2 AND s.netopia_token IS NOT NULL ORDER BY s.current_period_end ASC`).
		WithArgs(SubscriptionActive, now).
		WillReturnRows(subscriptionRow("sub-1", SubscriptionActive, "tok-1"))

	subs, err := repo.DueForRenewal(context.Background(), now)
	require.NoError(t, err)
	require.Len(t, subs, 1)

	assert.Equal(t, "sub-1", subs[0].ID)
	assert.Equal(t, 9.99, subs[0].Price)
	assert.Equal(t, "pro", subs[0].TierName)
	assert.True(t, subs[0].HasPaymentMethod())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubscriptionRepository_ExpiredTrials(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSubscriptionRepository(db, testLogger())
	now := time.Now()

	mock.ExpectQuery(`SELECT (.+) FROM subscriptions s JOIN subscription_tiers st ON s.tier_id = st.id WHERE s.status = \$1 AND s.trial_end <= \$2 ORDER BY s.trial_end ASC`).
		WithArgs(SubscriptionTrialing, now).
		WillReturnRows(subscriptionRow("sub-2", SubscriptionTrialing, nil))

	subs, err := repo.ExpiredTrials(context.Background(), now)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.False(t, subs[0].HasPaymentMethod())
}

func TestSubscriptionRepository_ExtendPeriod(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSubscriptionRepository(db, testLogger())
	newEnd := time.Now().AddDate(0, 0, 30)

	mock.ExpectExec(`UPDATE subscriptions SET current_period_start = NOW\(\), current_period_end = \$2, updated_at = NOW\(\) WHERE id = \$1`).
		WithArgs("sub-1", newEnd).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.ExtendPeriod(context.Background(), "sub-1", newEnd))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubscriptionRepository_Cancel(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSubscriptionRepository(db, testLogger())

	mock.ExpectExec(`UPDATE subscriptions SET status = \$2, cancel_effective_at = NOW\(\), updated_at = NOW\(\) WHERE id = \$1`).
		WithArgs("sub-1", SubscriptionCanceled).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Cancel(context.Background(), "sub-1"))
}

func TestOrderRepository_CreateRenewal(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewOrderRepository(db, testLogger())

	sub := &Subscription{
		ID:       "sub-1",
		UserID:   "user-1",
		Currency: "RON",
		TierName: "pro",
	}

	mock.ExpectExec(`INSERT INTO orders`).
		WithArgs(sqlmock.AnyArg(), "user-1", "sub-1", 9.99, "RON", OrderPending, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	orderID, err := repo.CreateRenewal(context.Background(), sub, 9.99)
	require.NoError(t, err)
	assert.NotEmpty(t, orderID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepository_UpdateStatus(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewOrderRepository(db, testLogger())

	mock.ExpectExec(`UPDATE orders SET status = \$2, netopia_order_id = NULLIF\(\$3, ''\), updated_at = NOW\(\) WHERE id = \$1`).
		WithArgs("order-1", OrderProcessing, "ntp-777").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.UpdateStatus(context.Background(), "order-1", OrderProcessing, "ntp-777"))
}

var paymentLogTestColumns = []string{
	"id", "order_id", "subscription_id", "event_type", "netopia_order_id",
	"amount", "currency", "status", "raw_payload", "retry_count",
	"error_message", "created_at",
}

func TestPaymentLogRepository_FailedForRetry(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPaymentLogRepository(db, testLogger())
	since := time.Now().Add(-24 * time.Hour)

	rows := sqlmock.NewRows(paymentLogTestColumns).AddRow(
		int64(7), "order-1", "sub-1", EventPaymentFailed, nil,
		9.99, "RON", "FAILED", []byte(`{}`), 1,
		"card declined", time.Now(),
	)

	mock.ExpectQuery(`SELECT (.+) FROM payment_logs WHERE event_type = \$1 AND retry_count < \$2 AND created_at >= \$3 ORDER BY created_at ASC`).
		WithArgs(EventPaymentFailed, 3, since).
		WillReturnRows(rows)

	logs, err := repo.FailedForRetry(context.Background(), 3, since)
	require.NoError(t, err)
	require.Len(t, logs, 1)

	assert.Equal(t, int64(7), logs[0].ID)
	assert.Equal(t, "order-1", logs[0].OrderID.String)
	assert.Equal(t, 1, logs[0].RetryCount)
	assert.Equal(t, 9.99, logs[0].Amount.Float64)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentLogRepository_AppendEvent(t *testing.T) {
	t.Run("full event", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewPaymentLogRepository(db, testLogger())

		mock.ExpectExec(`INSERT INTO payment_logs`).
			WithArgs(
				"order-1", "sub-1", EventPaymentRetry, "ntp-777",
				9.99, "RON", "RETRYING", sqlmock.AnyArg(), 2,
				"", // NULLIF handles the empty error message server side
			).
			WillReturnResult(sqlmock.NewResult(1, 1))

		err := repo.AppendEvent(context.Background(), PaymentEvent{
			OrderID:        "order-1",
			SubscriptionID: "sub-1",
			EventType:      EventPaymentRetry,
			GatewayOrderID: "ntp-777",
			Amount:         9.99,
			Currency:       "RON",
			Status:         "RETRYING",
			RawPayload:     map[string]interface{}{"original_event_id": 7},
			RetryCount:     2,
		})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("nil payload becomes empty object", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewPaymentLogRepository(db, testLogger())

		mock.ExpectExec(`INSERT INTO payment_logs`).
			WithArgs(
				"", "sub-1", EventSubscriptionCanceled, "",
				0.0, "", SubscriptionCanceled, sqlmock.AnyArg(), 0, "",
			).
			WillReturnResult(sqlmock.NewResult(1, 1))

		err := repo.AppendEvent(context.Background(), PaymentEvent{
			SubscriptionID: "sub-1",
			EventType:      EventSubscriptionCanceled,
			Status:         SubscriptionCanceled,
		})
		require.NoError(t, err)
	})

	t.Run("insert failure", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewPaymentLogRepository(db, testLogger())

		mock.ExpectExec(`INSERT INTO payment_logs`).
			WillReturnError(errors.New("constraint violation"))

		err := repo.AppendEvent(context.Background(), PaymentEvent{EventType: EventPaymentFailed})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to append payment event")
	})
}

func TestPaymentLogRepository_IncrementRetryCount(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPaymentLogRepository(db, testLogger())

	mock.ExpectExec(`UPDATE payment_logs SET retry_count = retry_count \+ 1 WHERE id = \$1`).
		WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.IncrementRetryCount(context.Background(), 7))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentLogRepository_PurgeOlderThan(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPaymentLogRepository(db, testLogger())
	cutoff := time.Now().AddDate(0, 0, -30)

	mock.ExpectExec(`DELETE FROM payment_logs WHERE created_at < \$1`).
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 88))

	deleted, err := repo.PurgeOlderThan(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(88), deleted)
}

func TestProfileRepository_DowngradeToFree(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewProfileRepository(db, testLogger())

	mock.ExpectExec(`UPDATE profiles SET subscription_tier = \$2, updated_at = NOW\(\) WHERE id = \(SELECT user_id FROM subscriptions WHERE id = \$1\)`).
		WithArgs("sub-1", FreeTier).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.DowngradeToFree(context.Background(), "sub-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubscription_HasPaymentMethod(t *testing.T) {
	tests := []struct {
		name  string
		token sql.NullString
		want  bool
	}{
		{"valid token", sql.NullString{String: "tok", Valid: true}, true},
		{"empty but valid", sql.NullString{String: "", Valid: true}, false},
		{"null", sql.NullString{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := Subscription{GatewayToken: tt.token}
			assert.Equal(t, tt.want, sub.HasPaymentMethod())
		})
	}
}
