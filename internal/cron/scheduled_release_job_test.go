package cron

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/giftflow-backend/internal/fulfillment"
	"github.com/angelmondragon/giftflow-backend/internal/orders"
	"github.com/angelmondragon/giftflow-backend/internal/scheduling"
	"github.com/angelmondragon/giftflow-backend/pkg/db"
	"github.com/angelmondragon/giftflow-backend/pkg/db/dbtest"
	"github.com/angelmondragon/giftflow-backend/pkg/db/models"
	"github.com/angelmondragon/giftflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/giftflow-backend/pkg/errors"
	"github.com/angelmondragon/giftflow-backend/pkg/outbox"
	"github.com/angelmondragon/giftflow-backend/pkg/types"
)

type recordingSubmitter struct {
	inputs   []fulfillment.SubmitInput
	submitFn func(in fulfillment.SubmitInput) (*fulfillment.SubmitResult, error)
}

func (r *recordingSubmitter) Submit(ctx context.Context, in fulfillment.SubmitInput) (*fulfillment.SubmitResult, error) {
	r.inputs = append(r.inputs, in)
	if r.submitFn != nil {
		return r.submitFn(in)
	}
	return &fulfillment.SubmitResult{Success: true, MarketplaceOrderID: "zx_1"}, nil
}

func TestScheduledReleaseJobReleasesDueOrders(t *testing.T) {
	conn := dbtest.Open(t)
	repo := orders.NewRepository(conn)
	submitter := &recordingSubmitter{}
	now := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	day := func(offset int) time.Time { return now.AddDate(0, 0, offset) }

	scheduled := dbtest.WithStatus(enums.OrderStatusScheduled, enums.PaymentStatusSucceeded)
	due := dbtest.SeedOrder(t, conn, scheduled, dbtest.WithDeliveryDate(day(3)))
	notYet := dbtest.SeedOrder(t, conn, scheduled, dbtest.WithDeliveryDate(day(9)))
	split := dbtest.SeedOrder(t, conn, scheduled, dbtest.WithDeliveryDate(day(2)), dbtest.WithDeliveryGroups(types.DeliveryGroups{
		"pkg_a": {ScheduledDeliveryDate: day(2).Format(types.DateLayout)},
		"pkg_b": {ScheduledDeliveryDate: day(6).Format(types.DateLayout)},
	}))

	jobIface, err := NewScheduledReleaseJob(ScheduledReleaseJobParams{
		Logger:    testLogger(),
		DB:        db.FromConn(conn),
		Orders:    repo,
		Outbox:    outbox.NewWriter(outbox.NewRepository(conn), nil),
		Submitter: submitter,
		Policy:    scheduling.Policy{ThresholdDays: 4},
	})
	require.NoError(t, err)
	job := jobIface.(*scheduledReleaseJob)
	job.now = func() time.Time { return now }

	require.NoError(t, job.Run(context.Background()))

	require.Len(t, submitter.inputs, 1)
	assert.Equal(t, due.ID, submitter.inputs[0].OrderID)
	assert.Equal(t, enums.TriggerScheduledRelease, submitter.inputs[0].TriggerSource)

	reloaded, err := repo.FindByID(context.Background(), due.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusProcessing, reloaded.Status)
	for _, held := range []*models.Order{notYet, split} {
		reloaded, err := repo.FindByID(context.Background(), held.ID)
		require.NoError(t, err)
		assert.Equal(t, enums.OrderStatusScheduled, reloaded.Status, held.OrderNumber)
	}

	var events []models.OutboxEvent
	require.NoError(t, conn.Where("event_type = ?", enums.EventOrderReleased).Find(&events).Error)
	require.Len(t, events, 1)
	assert.Equal(t, due.ID, events[0].AggregateID)

	// a second pass finds nothing left to release
	require.NoError(t, job.Run(context.Background()))
	assert.Len(t, submitter.inputs, 1)
}

func TestScheduledReleaseJobCollectsSubmitFailures(t *testing.T) {
	conn := dbtest.Open(t)
	repo := orders.NewRepository(conn)
	submitter := &recordingSubmitter{submitFn: func(fulfillment.SubmitInput) (*fulfillment.SubmitResult, error) {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "marketplace unavailable")
	}}
	scheduled := dbtest.WithStatus(enums.OrderStatusScheduled, enums.PaymentStatusSucceeded)
	first := dbtest.SeedOrder(t, conn, scheduled, dbtest.WithDeliveryDate(time.Now()))
	second := dbtest.SeedOrder(t, conn, scheduled, dbtest.WithDeliveryDate(time.Now()))

	job, err := NewScheduledReleaseJob(ScheduledReleaseJobParams{
		Logger:    testLogger(),
		DB:        db.FromConn(conn),
		Orders:    repo,
		Outbox:    outbox.NewWriter(outbox.NewRepository(conn), nil),
		Submitter: submitter,
	})
	require.NoError(t, err)

	err = job.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), first.OrderNumber)
	assert.Contains(t, err.Error(), second.OrderNumber)
	assert.Len(t, submitter.inputs, 2)
}
