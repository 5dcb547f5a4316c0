package recovery

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/giftflow-backend/internal/fulfillment"
	"github.com/angelmondragon/giftflow-backend/internal/guard"
	"github.com/angelmondragon/giftflow-backend/internal/orders"
	"github.com/angelmondragon/giftflow-backend/pkg/config"
	"github.com/angelmondragon/giftflow-backend/pkg/db/dbtest"
	"github.com/angelmondragon/giftflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/giftflow-backend/pkg/errors"
	"github.com/angelmondragon/giftflow-backend/pkg/logger"
	"github.com/angelmondragon/giftflow-backend/pkg/pagination"
	"github.com/angelmondragon/giftflow-backend/pkg/zinc"
)

type stubSubmitter struct {
	submitFn func(ctx context.Context, in fulfillment.SubmitInput) (*fulfillment.SubmitResult, error)
	inputs   []fulfillment.SubmitInput
}

func (s *stubSubmitter) Submit(ctx context.Context, in fulfillment.SubmitInput) (*fulfillment.SubmitResult, error) {
	s.inputs = append(s.inputs, in)
	if s.submitFn != nil {
		return s.submitFn(ctx, in)
	}
	return &fulfillment.SubmitResult{Success: true, MarketplaceOrderID: "zx_" + in.OrderID.String()[:4]}, nil
}

type fixture struct {
	conn      *gorm.DB
	orders    orders.Repository
	submitter *stubSubmitter
	svc       Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := dbtest.Open(t)
	f := &fixture{
		conn:      conn,
		orders:    orders.NewRepository(conn),
		submitter: &stubSubmitter{},
	}
	svc, err := NewService(ServiceParams{
		Config:    config.RecoveryConfig{Window: 7 * 24 * time.Hour, SweepMinAge: 15 * time.Minute, SweepBatch: 10},
		Orders:    f.orders,
		Submitter: f.submitter,
		Logger:    logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
	})
	require.NoError(t, err)
	f.svc = svc
	return f
}

func paid() dbtest.OrderOption {
	return dbtest.WithStatus(enums.OrderStatusProcessing, enums.PaymentStatusSucceeded)
}

func TestListReturnsOnlyStuckOrders(t *testing.T) {
	f := newFixture(t)
	now := time.Now().UTC()

	stuck := dbtest.SeedOrder(t, f.conn, paid(), dbtest.WithCreatedAt(now.Add(-2*time.Hour)))
	pending := dbtest.SeedOrder(t, f.conn, dbtest.WithStatus(enums.OrderStatusPending, enums.PaymentStatusSucceeded), dbtest.WithCreatedAt(now.Add(-time.Hour)))
	dbtest.SeedOrder(t, f.conn, paid(), dbtest.WithMarketplaceOrder("zx_done"))
	dbtest.SeedOrder(t, f.conn, paid(), dbtest.WithCreatedAt(now.Add(-8*24*time.Hour)))
	dbtest.SeedOrder(t, f.conn)
	dbtest.SeedOrder(t, f.conn, dbtest.WithStatus(enums.OrderStatusScheduled, enums.PaymentStatusSucceeded))
	dbtest.SeedOrder(t, f.conn, dbtest.WithStatus(enums.OrderStatusFailed, enums.PaymentStatusSucceeded))

	result, err := f.svc.List(context.Background(), ListParams{})
	require.NoError(t, err)
	require.Len(t, result.Orders, 2)
	assert.Equal(t, pending.ID, result.Orders[0].OrderID)
	assert.Equal(t, stuck.ID, result.Orders[1].OrderID)
	assert.Equal(t, stuck.OrderNumber, result.Orders[1].OrderNumber)
	assert.True(t, result.Orders[1].TotalAmount.Equal(stuck.TotalAmount))
	assert.Equal(t, "buyer@example.com", result.Orders[1].CustomerEmail)
	assert.InDelta(t, 120, result.Orders[1].AgeMinutes, 1)
	assert.Empty(t, result.NextCursor)
}

func TestListPaginates(t *testing.T) {
	f := newFixture(t)
	now := time.Now().UTC()
	for i := 1; i <= 3; i++ {
		dbtest.SeedOrder(t, f.conn, paid(), dbtest.WithCreatedAt(now.Add(-time.Duration(i)*time.Hour)))
	}

	first, err := f.svc.List(context.Background(), ListParams{Params: pagination.Params{Limit: 2}})
	require.NoError(t, err)
	require.Len(t, first.Orders, 2)
	require.NotEmpty(t, first.NextCursor)

	second, err := f.svc.List(context.Background(), ListParams{Params: pagination.Params{Limit: 2, Cursor: first.NextCursor}})
	require.NoError(t, err)
	require.Len(t, second.Orders, 1)
	assert.Empty(t, second.NextCursor)
	assert.True(t, second.Orders[0].CreatedAt.Before(first.Orders[1].CreatedAt))

	_, err = f.svc.List(context.Background(), ListParams{Params: pagination.Params{Cursor: "%%%"}})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestRetrySubmitsWithRecoveryTrigger(t *testing.T) {
	f := newFixture(t)
	order := dbtest.SeedOrder(t, f.conn, paid())

	result, err := f.svc.Retry(context.Background(), RetryInput{OrderID: order.ID})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.NotEmpty(t, result.MarketplaceOrderID)
	assert.False(t, result.Recovered)
	require.Len(t, f.submitter.inputs, 1)
	assert.Equal(t, enums.TriggerManualRecovery, f.submitter.inputs[0].TriggerSource)

	_, err = f.svc.Retry(context.Background(), RetryInput{OrderID: order.ID, TriggerSource: enums.TriggerCheckout})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	assert.Len(t, f.submitter.inputs, 1)
}

func TestRetryRereadsOrderAfterTransportFailure(t *testing.T) {
	f := newFixture(t)
	order := dbtest.SeedOrder(t, f.conn, paid())
	f.submitter.submitFn = func(ctx context.Context, in fulfillment.SubmitInput) (*fulfillment.SubmitResult, error) {
		// the first attempt landed; only the response was lost
		_, err := f.orders.RecordSubmissionSuccess(ctx, in.OrderID, "zx_late", fulfillment.MarketplaceStatusPlaced)
		require.NoError(t, err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("%w: read: connection reset", zinc.ErrOutcomeUnknown), "execute marketplace order request")
	}

	result, err := f.svc.Retry(context.Background(), RetryInput{OrderID: order.ID, TriggerSource: enums.TriggerWebhookRecovery})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.True(t, result.Recovered)
	assert.Equal(t, "zx_late", result.MarketplaceOrderID)
}

func TestRetryReportsFailureWhenOrderStillUnsubmitted(t *testing.T) {
	f := newFixture(t)
	order := dbtest.SeedOrder(t, f.conn, paid())
	f.submitter.submitFn = func(context.Context, fulfillment.SubmitInput) (*fulfillment.SubmitResult, error) {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "marketplace outcome unknown")
	}

	_, err := f.svc.Retry(context.Background(), RetryInput{OrderID: order.ID})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))

	f.submitter.submitFn = func(context.Context, fulfillment.SubmitInput) (*fulfillment.SubmitResult, error) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order payment is pending")
	}
	_, err = f.svc.Retry(context.Background(), RetryInput{OrderID: order.ID})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestRetrySurfacesGuardBlock(t *testing.T) {
	f := newFixture(t)
	order := dbtest.SeedOrder(t, f.conn, paid())
	f.submitter.submitFn = func(context.Context, fulfillment.SubmitInput) (*fulfillment.SubmitResult, error) {
		return &fulfillment.SubmitResult{Blocked: true, BlockedBy: []guard.Check{guard.CheckRetry}, Error: "retry limit reached"}, nil
	}

	result, err := f.svc.Retry(context.Background(), RetryInput{OrderID: order.ID})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.True(t, result.Blocked)
	assert.Equal(t, []guard.Check{guard.CheckRetry}, result.BlockedBy)
	assert.Equal(t, "retry limit reached", result.Error)
}

func TestSweepRetriesAgedCandidates(t *testing.T) {
	f := newFixture(t)
	now := time.Now().UTC()
	ok := dbtest.SeedOrder(t, f.conn, paid(), dbtest.WithCreatedAt(now.Add(-3*time.Hour)))
	failing := dbtest.SeedOrder(t, f.conn, paid(), dbtest.WithCreatedAt(now.Add(-2*time.Hour)))
	blocked := dbtest.SeedOrder(t, f.conn, paid(), dbtest.WithCreatedAt(now.Add(-time.Hour)))
	fresh := dbtest.SeedOrder(t, f.conn, paid())

	f.submitter.submitFn = func(ctx context.Context, in fulfillment.SubmitInput) (*fulfillment.SubmitResult, error) {
		assert.Equal(t, enums.TriggerWebhookRecovery, in.TriggerSource)
		switch in.OrderID {
		case failing.ID:
			return nil, pkgerrors.New(pkgerrors.CodeDependency, "marketplace rejected order")
		case blocked.ID:
			return &fulfillment.SubmitResult{Blocked: true, Error: "daily cap"}, nil
		default:
			return &fulfillment.SubmitResult{Success: true, MarketplaceOrderID: "zx_ok"}, nil
		}
	}

	report, err := f.svc.Sweep(context.Background(), 30*time.Minute)
	require.Error(t, err)
	assert.Contains(t, err.Error(), failing.OrderNumber)
	assert.Equal(t, &SweepReport{Candidates: 3, Submitted: 1, Blocked: 1, Failed: 1}, report)

	seen := map[string]bool{}
	for _, in := range f.submitter.inputs {
		seen[in.OrderID.String()] = true
	}
	assert.True(t, seen[ok.ID.String()])
	assert.False(t, seen[fresh.ID.String()])
}

func TestSweepWithNothingToDo(t *testing.T) {
	f := newFixture(t)
	report, err := f.svc.Sweep(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, &SweepReport{}, report)
}
