package workflows

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/monitorul/subjobs/internal/jobs/domain"
	"github.com/monitorul/subjobs/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func failedPayment(id int64, orderID string, retryCount int) repository.PaymentLog {
	return repository.PaymentLog{
		ID:             id,
		OrderID:        sql.NullString{String: orderID, Valid: true},
		SubscriptionID: sql.NullString{String: "sub-1", Valid: true},
		EventType:      repository.EventPaymentFailed,
		Amount:         sql.NullFloat64{Float64: 9.99, Valid: true},
		Currency:       sql.NullString{String: "RON", Valid: true},
		RetryCount:     retryCount,
	}
}

func newRetriesWorkflow(ledger *fakeLedger, gateway *fakeGateway, dryRun bool) *PaymentRetries {
	w := NewPaymentRetries(ledger, gateway, 3, discardLogger(), dryRun)
	w.now = fixedNow
	return w
}

func TestPaymentRetries_Name(t *testing.T) {
	w := newRetriesWorkflow(&fakeLedger{}, &fakeGateway{}, false)
	assert.Equal(t, domain.JobPaymentRetries, w.Name())
}

func TestPaymentRetries_Execute(t *testing.T) {
	t.Run("records the attempt and re-charges", func(t *testing.T) {
		ledger := &fakeLedger{failed: []repository.PaymentLog{failedPayment(7, "order-1", 1)}}
		gateway := &fakeGateway{}

		summary, err := newRetriesWorkflow(ledger, gateway, false).Execute(context.Background())
		require.NoError(t, err)

		assert.Equal(t, 1, summary.Succeeded)

		retries := ledger.eventsOfType(repository.EventPaymentRetry)
		require.Len(t, retries, 1)
		assert.Equal(t, "order-1", retries[0].OrderID)
		assert.Equal(t, 2, retries[0].RetryCount)
		assert.Equal(t, "RETRYING", retries[0].Status)
		assert.Equal(t, int64(7), retries[0].RawPayload["original_event_id"])

		require.Len(t, gateway.calls, 1)
		assert.Equal(t, "order-1", gateway.calls[0].OrderID)
		assert.Equal(t, 9.99, gateway.calls[0].Amount)

		// The source row's counter advanced so the next pass sees attempt 3.
		assert.Equal(t, []int64{7}, ledger.incremented)
	})

	t.Run("dry run counts the candidate without writing anything", func(t *testing.T) {
		ledger := &fakeLedger{failed: []repository.PaymentLog{failedPayment(7, "order-1", 0)}}
		gateway := &fakeGateway{}

		summary, err := newRetriesWorkflow(ledger, gateway, true).Execute(context.Background())
		require.NoError(t, err)

		assert.Equal(t, 1, summary.Succeeded)
		assert.Empty(t, ledger.events)
		assert.Empty(t, ledger.incremented)
		assert.Empty(t, gateway.calls)
	})

	t.Run("a candidate is never charged past the retry limit", func(t *testing.T) {
		ledger := &fakeLedger{failed: []repository.PaymentLog{failedPayment(7, "order-1", 0)}}
		gateway := &fakeGateway{}
		w := newRetriesWorkflow(ledger, gateway, false)

		for i := 0; i < 4; i++ {
			_, err := w.Execute(context.Background())
			require.NoError(t, err)
		}

		assert.Len(t, gateway.calls, 3)

		retries := ledger.eventsOfType(repository.EventPaymentRetry)
		require.Len(t, retries, 3)
		assert.Equal(t, 1, retries[0].RetryCount)
		assert.Equal(t, 3, retries[2].RetryCount)
	})

	t.Run("counter advance failure skips the charge", func(t *testing.T) {
		ledger := &fakeLedger{
			failed:       []repository.PaymentLog{failedPayment(1, "order-1", 0)},
			incrementErr: errors.New("update failed"),
		}
		gateway := &fakeGateway{}

		summary, err := newRetriesWorkflow(ledger, gateway, false).Execute(context.Background())
		require.NoError(t, err)

		assert.Equal(t, 1, summary.Failed)
		assert.Empty(t, gateway.calls)
	})

	t.Run("event without an order or amount is recorded but not charged", func(t *testing.T) {
		entry := failedPayment(7, "", 0)
		entry.OrderID = sql.NullString{}
		entry.Amount = sql.NullFloat64{}

		ledger := &fakeLedger{failed: []repository.PaymentLog{entry}}
		gateway := &fakeGateway{}

		summary, err := newRetriesWorkflow(ledger, gateway, false).Execute(context.Background())
		require.NoError(t, err)

		assert.Equal(t, 1, summary.Succeeded)
		assert.Len(t, ledger.eventsOfType(repository.EventPaymentRetry), 1)
		assert.Empty(t, gateway.calls)
	})

	t.Run("failed charge is an item failure", func(t *testing.T) {
		ledger := &fakeLedger{failed: []repository.PaymentLog{
			failedPayment(1, "order-1", 0),
			failedPayment(2, "order-2", 2),
		}}
		gateway := &fakeGateway{err: errors.New("gateway down")}

		summary, err := newRetriesWorkflow(ledger, gateway, false).Execute(context.Background())
		require.NoError(t, err)

		assert.Equal(t, 2, summary.Processed)
		assert.Equal(t, 2, summary.Failed)
		require.Len(t, summary.Errors, 2)
		assert.Equal(t, "order-1", summary.Errors[0].ItemID)
		assert.Contains(t, summary.Errors[0].Reason, "gateway down")
	})

	t.Run("attempt record failure skips the charge", func(t *testing.T) {
		ledger := &fakeLedger{
			failed:    []repository.PaymentLog{failedPayment(1, "order-1", 0)},
			appendErr: errors.New("insert failed"),
		}
		gateway := &fakeGateway{}

		summary, err := newRetriesWorkflow(ledger, gateway, false).Execute(context.Background())
		require.NoError(t, err)

		assert.Equal(t, 1, summary.Failed)
		assert.Empty(t, gateway.calls)
	})

	t.Run("candidate query failure fails the batch", func(t *testing.T) {
		ledger := &fakeLedger{failedErr: errors.New("db unreachable")}

		summary, err := newRetriesWorkflow(ledger, &fakeGateway{}, false).Execute(context.Background())
		require.Error(t, err)
		assert.Nil(t, summary)
	})
}
