package fulfillment

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/giftflow-backend/internal/guard"
	"github.com/angelmondragon/giftflow-backend/internal/orders"
	"github.com/angelmondragon/giftflow-backend/pkg/config"
	"github.com/angelmondragon/giftflow-backend/pkg/db"
	"github.com/angelmondragon/giftflow-backend/pkg/db/dbtest"
	"github.com/angelmondragon/giftflow-backend/pkg/db/models"
	"github.com/angelmondragon/giftflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/giftflow-backend/pkg/errors"
	"github.com/angelmondragon/giftflow-backend/pkg/logger"
	"github.com/angelmondragon/giftflow-backend/pkg/outbox"
	"github.com/angelmondragon/giftflow-backend/pkg/zinc"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
	}
}

type stubGuard struct {
	mu         sync.Mutex
	evaluateFn func(in guard.Input) guard.Result
	inputs     []guard.Input
	outcomes   []guard.Outcome
}

func (g *stubGuard) Evaluate(ctx context.Context, in guard.Input) guard.Result {
	g.mu.Lock()
	g.inputs = append(g.inputs, in)
	g.mu.Unlock()
	if g.evaluateFn != nil {
		return g.evaluateFn(in)
	}
	return guard.Result{Allowed: true}
}

func (g *stubGuard) RecordOutcome(ctx context.Context, outcome guard.Outcome) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.outcomes = append(g.outcomes, outcome)
	return nil
}

type stubResolver struct {
	resolveFn func(ctx context.Context, retailer string) (*Credentials, error)
}

func (r stubResolver) Resolve(ctx context.Context, retailer string) (*Credentials, error) {
	if r.resolveFn != nil {
		return r.resolveFn(ctx, retailer)
	}
	return requestCreds(), nil
}

type submitFixture struct {
	conn      *gorm.DB
	orders    orders.Repository
	guard     *stubGuard
	resolver  *stubResolver
	calls     int
	bodies    []map[string]any
	transport func(*http.Request) (*http.Response, error)
	params    ServiceParams
	submitter Submitter
}

func newSubmitFixture(t *testing.T) *submitFixture {
	t.Helper()
	conn := dbtest.Open(t)
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	f := &submitFixture{
		conn:     conn,
		orders:   orders.NewRepository(conn),
		guard:    &stubGuard{},
		resolver: &stubResolver{},
		transport: func(*http.Request) (*http.Response, error) {
			return jsonResponse(http.StatusOK, `{"request_id":"zx_1"}`), nil
		},
	}
	client := zinc.NewClient(
		zinc.WithBaseURL("http://zinc.test/v1"),
		zinc.WithHTTPClient(&http.Client{Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
			f.calls++
			var body map[string]any
			if err := json.NewDecoder(req.Body).Decode(&body); err == nil {
				f.bodies = append(f.bodies, body)
			}
			return f.transport(req)
		})}),
	)
	f.params = ServiceParams{
		Config:      config.ZincConfig{Retailer: "amazon", ClaimTTL: time.Minute},
		Orders:      f.orders,
		Guard:       f.guard,
		Credentials: f.resolver,
		Marketplace: client,
		Tx:          db.FromConn(conn),
		Outbox:      outbox.NewWriter(outbox.NewRepository(conn), logg),
		Logger:      logg,
	}
	svc, err := NewService(f.params)
	require.NoError(t, err)
	f.submitter = svc
	return f
}

type openCounters struct{}

func (openCounters) WindowAllow(context.Context, string, int64, time.Duration, time.Time) (bool, int64, error) {
	return true, 1, nil
}

// withRealGuard swaps the stub for the sqlite-backed guard.
func (f *submitFixture) withRealGuard(t *testing.T) {
	t.Helper()
	g, err := guard.NewService(guard.ServiceParams{
		Config: config.GuardConfig{
			HourlyOrderLimit:       5,
			DailyOrderLimit:        20,
			DailyCostCap:           decimal.NewFromInt(500),
			MonthlyCostCap:         decimal.NewFromInt(2000),
			CostWarnRatio:          decimal.RequireFromString("0.8"),
			MaxRetries:             3,
			MaxConsecutiveFailures: 5,
			FailureWarnThreshold:   3,
			DuplicateWindow:        24 * time.Hour,
			SuspiciousRepeats:      3,
			MaxItemQuantity:        25,
			BehaviorOrderLimit:     5,
			BehaviorSpendLimit:     decimal.NewFromInt(1000),
			BehaviorRapidInterval:  5 * time.Minute,
		},
		Repo:     guard.NewRepository(f.conn),
		Counters: openCounters{},
		Logger:   f.params.Logger,
	})
	require.NoError(t, err)
	f.params.Guard = g
	svc, err := NewService(f.params)
	require.NoError(t, err)
	f.submitter = svc
}

func (f *submitFixture) paidOrder(t *testing.T, opts ...dbtest.OrderOption) *models.Order {
	t.Helper()
	opts = append([]dbtest.OrderOption{dbtest.WithStatus(enums.OrderStatusProcessing, enums.PaymentStatusSucceeded)}, opts...)
	return dbtest.SeedOrder(t, f.conn, opts...)
}

func (f *submitFixture) reload(t *testing.T, order *models.Order) *models.Order {
	t.Helper()
	reloaded, err := f.orders.FindByID(context.Background(), order.ID)
	require.NoError(t, err)
	return reloaded
}

func (f *submitFixture) events(t *testing.T, eventType enums.OutboxEventType) int64 {
	t.Helper()
	var count int64
	require.NoError(t, f.conn.Model(&models.OutboxEvent{}).Where("event_type = ?", eventType).Count(&count).Error)
	return count
}

func (f *submitFixture) notes(t *testing.T, order *models.Order) []string {
	t.Helper()
	notes, err := f.orders.ListNotes(context.Background(), order.ID)
	require.NoError(t, err)
	bodies := make([]string, 0, len(notes))
	for _, note := range notes {
		bodies = append(bodies, note.Body)
	}
	return bodies
}

func TestSubmitPlacesOrder(t *testing.T) {
	f := newSubmitFixture(t)
	order := f.paidOrder(t)

	result, err := f.submitter.Submit(context.Background(), SubmitInput{OrderID: order.ID, TriggerSource: enums.TriggerCheckout})
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, "zx_1", result.MarketplaceOrderID)
	assert.Nil(t, result.DebugRequest)

	reloaded := f.reload(t, order)
	require.NotNil(t, reloaded.MarketplaceOrderID)
	assert.Equal(t, "zx_1", *reloaded.MarketplaceOrderID)
	assert.Equal(t, enums.OrderStatusProcessing, reloaded.Status)
	require.NotNil(t, reloaded.MarketplaceStatus)
	assert.Equal(t, MarketplaceStatusPlaced, *reloaded.MarketplaceStatus)
	assert.Nil(t, reloaded.SubmissionStartedAt)

	require.Len(t, f.bodies, 1)
	assert.Equal(t, order.ID.String(), f.bodies[0]["idempotency_key"])
	assert.Equal(t, "amazon", f.bodies[0]["retailer"])

	require.Len(t, f.notes(t, order), 1)
	assert.Contains(t, f.notes(t, order)[0], "zx_1")
	require.Len(t, f.guard.outcomes, 1)
	assert.True(t, f.guard.outcomes[0].Success)
	assert.True(t, f.guard.outcomes[0].Amount.Equal(order.TotalAmount))
	assert.EqualValues(t, 1, f.events(t, enums.EventOrderSubmitted))
}

func TestSubmitTwiceDoesNotResubmit(t *testing.T) {
	f := newSubmitFixture(t)
	order := f.paidOrder(t)

	_, err := f.submitter.Submit(context.Background(), SubmitInput{OrderID: order.ID, TriggerSource: enums.TriggerCheckout})
	require.NoError(t, err)
	second, err := f.submitter.Submit(context.Background(), SubmitInput{OrderID: order.ID, TriggerSource: enums.TriggerManualRecovery})
	require.NoError(t, err)

	assert.True(t, second.Success)
	assert.True(t, second.AlreadySubmitted)
	assert.Equal(t, "zx_1", second.MarketplaceOrderID)
	assert.Equal(t, 1, f.calls)
	assert.Len(t, f.guard.inputs, 1)
	assert.EqualValues(t, 1, f.events(t, enums.EventOrderSubmitted))
}

func TestSubmitRejectedMarksOrderFailed(t *testing.T) {
	f := newSubmitFixture(t)
	f.transport = func(*http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusBadRequest, `{"code":"invalid_product_id","message":"bad asin"}`), nil
	}
	order := f.paidOrder(t)

	result, err := f.submitter.Submit(context.Background(), SubmitInput{OrderID: order.ID, TriggerSource: enums.TriggerWebhook})
	require.Error(t, err)
	assert.Nil(t, result)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))

	reloaded := f.reload(t, order)
	assert.Equal(t, enums.OrderStatusFailed, reloaded.Status)
	assert.Nil(t, reloaded.MarketplaceOrderID)
	assert.Nil(t, reloaded.SubmissionStartedAt)

	notes := f.notes(t, order)
	require.Len(t, notes, 1)
	assert.Contains(t, notes[0], "HTTP 400")
	assert.Contains(t, notes[0], "invalid_product_id")

	require.Len(t, f.guard.outcomes, 1)
	assert.False(t, f.guard.outcomes[0].Success)
	assert.EqualValues(t, 1, f.events(t, enums.EventOrderSubmissionFailed))
}

func TestSubmitTransportFailureLeavesOrderForRecovery(t *testing.T) {
	f := newSubmitFixture(t)
	f.transport = func(*http.Request) (*http.Response, error) {
		return nil, errors.New("connection reset by peer")
	}
	order := f.paidOrder(t)

	_, err := f.submitter.Submit(context.Background(), SubmitInput{OrderID: order.ID, TriggerSource: enums.TriggerCheckout})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
	assert.True(t, zinc.IsOutcomeUnknown(err))

	reloaded := f.reload(t, order)
	assert.Equal(t, enums.OrderStatusProcessing, reloaded.Status)
	assert.Nil(t, reloaded.SubmissionStartedAt, "claim released")
	require.NotNil(t, reloaded.MarketplaceStatus)
	assert.Equal(t, MarketplaceStatusUnknown, *reloaded.MarketplaceStatus)
	assert.Contains(t, f.notes(t, order)[0], "outcome unknown")
	assert.Zero(t, f.events(t, enums.EventOrderSubmissionFailed))
}

func TestSubmitBlockedByGuard(t *testing.T) {
	f := newSubmitFixture(t)
	f.guard.evaluateFn = func(guard.Input) guard.Result {
		return guard.Result{Allowed: false, BlockedBy: []guard.Check{guard.CheckRate}, Errors: []string{"order limit reached"}}
	}
	order := f.paidOrder(t)

	result, err := f.submitter.Submit(context.Background(), SubmitInput{OrderID: order.ID, TriggerSource: enums.TriggerCheckout})
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.True(t, result.Blocked)
	assert.Equal(t, "order limit reached", result.Error)
	assert.Zero(t, f.calls)

	reloaded := f.reload(t, order)
	assert.Equal(t, enums.OrderStatusProcessing, reloaded.Status)
	assert.Nil(t, reloaded.MarketplaceOrderID)
	assert.Nil(t, reloaded.MarketplaceStatus)
	assert.EqualValues(t, 1, f.events(t, enums.EventOrderSubmissionFailed))
}

func TestSubmitRequiresPaidSubmittableOrder(t *testing.T) {
	f := newSubmitFixture(t)

	unpaid := dbtest.SeedOrder(t, f.conn)
	_, err := f.submitter.Submit(context.Background(), SubmitInput{OrderID: unpaid.ID})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	scheduled := f.paidOrder(t, dbtest.WithStatus(enums.OrderStatusScheduled, enums.PaymentStatusSucceeded), dbtest.WithDeliveryDate(time.Now().AddDate(0, 0, 10)))
	_, err = f.submitter.Submit(context.Background(), SubmitInput{OrderID: scheduled.ID})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	assert.Contains(t, err.Error(), "scheduled for delivery")

	_, err = f.submitter.Submit(context.Background(), SubmitInput{OrderID: scheduled.ID, TriggerSource: "carrier_pigeon"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	assert.Zero(t, f.calls)
	assert.Empty(t, f.guard.inputs)
}

func TestSubmitConcurrentClaimConflicts(t *testing.T) {
	f := newSubmitFixture(t)
	order := f.paidOrder(t)
	now := time.Now().UTC()
	claimed, err := f.orders.ClaimSubmission(context.Background(), order.ID, now, now.Add(-time.Minute))
	require.NoError(t, err)
	require.True(t, claimed)

	_, err = f.submitter.Submit(context.Background(), SubmitInput{OrderID: order.ID, TriggerSource: enums.TriggerWebhook})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
	assert.Zero(t, f.calls)
}

func TestSubmitRetryCountsTowardsGuard(t *testing.T) {
	f := newSubmitFixture(t)
	order := f.paidOrder(t, dbtest.WithStatus(enums.OrderStatusFailed, enums.PaymentStatusSucceeded))

	_, err := f.submitter.Submit(context.Background(), SubmitInput{OrderID: order.ID, TriggerSource: enums.TriggerManualRecovery, IsTestMode: true, DebugMode: true})
	require.NoError(t, err)

	require.Len(t, f.guard.inputs, 1)
	assert.True(t, f.guard.inputs[0].Retry)
	assert.Equal(t, 1, f.guard.inputs[0].RetryCount)
	assert.Equal(t, enums.TriggerManualRecovery, f.guard.inputs[0].Trigger)
	assert.Equal(t, 1, f.reload(t, order).RetryCount)
	require.Len(t, f.bodies, 1)
	assert.EqualValues(t, 0, f.bodies[0]["max_price"])
}

func TestSubmitFailedOrderIsARetryWhateverTheTrigger(t *testing.T) {
	f := newSubmitFixture(t)
	f.withRealGuard(t)
	order := f.paidOrder(t, dbtest.WithStatus(enums.OrderStatusFailed, enums.PaymentStatusSucceeded))
	require.NoError(t, f.conn.Model(&models.Order{}).Where("id = ?", order.ID).Update("retry_count", 10).Error)

	for _, trigger := range []enums.TriggerSource{enums.TriggerAPI, enums.TriggerCheckout, enums.TriggerManualRecovery} {
		result, err := f.submitter.Submit(context.Background(), SubmitInput{OrderID: order.ID, TriggerSource: trigger})
		require.NoError(t, err, trigger)
		assert.True(t, result.Blocked, trigger)
		assert.Contains(t, result.BlockedBy, guard.CheckRetry, trigger)
	}

	assert.Zero(t, f.calls)
	assert.Equal(t, 13, f.reload(t, order).RetryCount)
}

func TestSubmitFirstAttemptIsNotARetry(t *testing.T) {
	f := newSubmitFixture(t)
	order := f.paidOrder(t)

	_, err := f.submitter.Submit(context.Background(), SubmitInput{OrderID: order.ID, TriggerSource: enums.TriggerWebhookRecovery})
	require.NoError(t, err)

	require.Len(t, f.guard.inputs, 1)
	assert.False(t, f.guard.inputs[0].Retry)
	assert.Zero(t, f.guard.inputs[0].RetryCount)
	assert.Zero(t, f.reload(t, order).RetryCount)
}

func TestSubmitCredentialFailureNeverCallsMarketplace(t *testing.T) {
	f := newSubmitFixture(t)
	f.resolver.resolveFn = func(context.Context, string) (*Credentials, error) {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "no active amazon marketplace account")
	}
	order := f.paidOrder(t)

	_, err := f.submitter.Submit(context.Background(), SubmitInput{OrderID: order.ID, TriggerSource: enums.TriggerCheckout})
	require.Error(t, err)
	assert.Zero(t, f.calls)
	assert.Nil(t, f.reload(t, order).SubmissionStartedAt)
}

func TestSubmitDegradedPaymentMethodWarns(t *testing.T) {
	f := newSubmitFixture(t)
	f.resolver.resolveFn = func(context.Context, string) (*Credentials, error) {
		creds := requestCreds()
		creds.PaymentMethod = zinc.PaymentMethod{NameOnCard: "GiftFlow Inc"}
		creds.Degraded = true
		creds.DegradedReason = "no default payment method"
		return creds, nil
	}
	order := f.paidOrder(t)

	result, err := f.submitter.Submit(context.Background(), SubmitInput{OrderID: order.ID, TriggerSource: enums.TriggerCheckout, DebugMode: true})
	require.NoError(t, err)
	assert.True(t, result.Success)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "degraded")
	require.NotNil(t, result.DebugRequest)
	assert.Empty(t, result.DebugRequest.PaymentMethod.Number)
}

func TestSubmitUnknownOrder(t *testing.T) {
	f := newSubmitFixture(t)
	_, err := f.submitter.Submit(context.Background(), SubmitInput{OrderID: uuid.New()})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}
