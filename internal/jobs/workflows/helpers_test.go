package workflows

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"time"

	"github.com/monitorul/subjobs/internal/billing"
	"github.com/monitorul/subjobs/internal/jobs/domain"
	"github.com/monitorul/subjobs/internal/repository"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fixedNow() time.Time {
	return time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
}

func activeSub(id string) repository.Subscription {
	return repository.Subscription{
		ID:           id,
		UserID:       "user-" + id,
		Status:       repository.SubscriptionActive,
		AutoRenew:    true,
		GatewayToken: sql.NullString{String: "tok-" + id, Valid: true},
		Price:        9.99,
		Currency:     "RON",
		Interval:     repository.IntervalMonthly,
		TierName:     "pro",
	}
}

type fakeSubs struct {
	due       []repository.Subscription
	trials    []repository.Subscription
	dueErr    error
	trialsErr error

	extendErr  error
	cancelErr  error
	extended   map[string]time.Time
	cancelled  []string
}

func newFakeSubs() *fakeSubs {
	return &fakeSubs{extended: map[string]time.Time{}}
}

func (f *fakeSubs) DueForRenewal(ctx context.Context, now time.Time) ([]repository.Subscription, error) {
	return f.due, f.dueErr
}

func (f *fakeSubs) ExpiredTrials(ctx context.Context, now time.Time) ([]repository.Subscription, error) {
	return f.trials, f.trialsErr
}

func (f *fakeSubs) ExtendPeriod(ctx context.Context, subscriptionID string, newPeriodEnd time.Time) error {
	if f.extendErr != nil {
		return f.extendErr
	}
	f.extended[subscriptionID] = newPeriodEnd
	return nil
}

func (f *fakeSubs) Cancel(ctx context.Context, subscriptionID string) error {
	if f.cancelErr != nil {
		return f.cancelErr
	}
	f.cancelled = append(f.cancelled, subscriptionID)
	return nil
}

type orderUpdate struct {
	orderID, status, gatewayOrderID string
}

type fakeOrders struct {
	createErr error
	updateErr error
	created   []string
	updates   []orderUpdate
	seq       int
}

func (f *fakeOrders) CreateRenewal(ctx context.Context, sub *repository.Subscription, amount float64) (string, error) {
	if f.createErr != nil {
		return "", f.createErr
	}
	f.seq++
	id := "order-" + sub.ID
	f.created = append(f.created, id)
	return id, nil
}

func (f *fakeOrders) UpdateStatus(ctx context.Context, orderID, status, gatewayOrderID string) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updates = append(f.updates, orderUpdate{orderID, status, gatewayOrderID})
	return nil
}

type fakeLedger struct {
	failed       []repository.PaymentLog
	failedErr    error
	appendErr    error
	incrementErr error
	purgeErr     error
	purged       int64

	events      []repository.PaymentEvent
	incremented []int64
	purgeCutoff time.Time
}

func (f *fakeLedger) FailedForRetry(ctx context.Context, maxRetries int, since time.Time) ([]repository.PaymentLog, error) {
	if f.failedErr != nil {
		return nil, f.failedErr
	}
	var out []repository.PaymentLog
	for _, entry := range f.failed {
		if entry.RetryCount < maxRetries {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (f *fakeLedger) AppendEvent(ctx context.Context, event repository.PaymentEvent) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	f.events = append(f.events, event)
	return nil
}

func (f *fakeLedger) IncrementRetryCount(ctx context.Context, id int64) error {
	if f.incrementErr != nil {
		return f.incrementErr
	}
	f.incremented = append(f.incremented, id)
	for i := range f.failed {
		if f.failed[i].ID == id {
			f.failed[i].RetryCount++
		}
	}
	return nil
}

func (f *fakeLedger) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	f.purgeCutoff = cutoff
	return f.purged, f.purgeErr
}

func (f *fakeLedger) eventsOfType(eventType string) []repository.PaymentEvent {
	var out []repository.PaymentEvent
	for _, e := range f.events {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

type fakeProfiles struct {
	err        error
	downgraded []string
}

func (f *fakeProfiles) DowngradeToFree(ctx context.Context, subscriptionID string) error {
	if f.err != nil {
		return f.err
	}
	f.downgraded = append(f.downgraded, subscriptionID)
	return nil
}

type fakeGateway struct {
	err     error
	failFor map[string]error
	calls   []billing.ChargeRequest
}

func (f *fakeGateway) CreateRecurringPayment(ctx context.Context, req billing.ChargeRequest) (*billing.ChargeResult, error) {
	f.calls = append(f.calls, req)
	if f.err != nil {
		return nil, f.err
	}
	if err, ok := f.failFor[req.SubscriptionID]; ok {
		return nil, err
	}
	return &billing.ChargeResult{
		GatewayOrderID: "ntp-" + req.OrderID,
		Status:         "confirmed",
	}, nil
}

type fakeStateReader struct {
	jobs []domain.CronJob
	err  error
}

func (f *fakeStateReader) ListStatuses(ctx context.Context) ([]domain.CronJob, error) {
	return f.jobs, f.err
}

type fakePurger struct {
	err    error
	n      int64
	filter domain.LogFilter
}

func (f *fakePurger) Purge(ctx context.Context, filter domain.LogFilter) (int64, error) {
	f.filter = filter
	return f.n, f.err
}

type fakeAlerts struct {
	err       error
	published [][]byte
}

func (f *fakeAlerts) Publish(ctx context.Context, body []byte, contentType string) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, body)
	return nil
}
