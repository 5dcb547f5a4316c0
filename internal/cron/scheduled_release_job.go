package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/giftflow-backend/internal/fulfillment"
	"github.com/angelmondragon/giftflow-backend/internal/orders"
	"github.com/angelmondragon/giftflow-backend/internal/scheduling"
	"github.com/angelmondragon/giftflow-backend/pkg/db/models"
	"github.com/angelmondragon/giftflow-backend/pkg/enums"
	"github.com/angelmondragon/giftflow-backend/pkg/logger"
	"github.com/angelmondragon/giftflow-backend/pkg/outbox"
	"github.com/angelmondragon/giftflow-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/giftflow-backend/pkg/types"
)

const defaultReleaseBatch = 50

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// ScheduledReleaseJobParams configure the scheduled-order release job.
type ScheduledReleaseJobParams struct {
	Logger    *logger.Logger
	DB        txRunner
	Orders    orders.Repository
	Outbox    outboxEmitter
	Submitter fulfillment.Submitter
	Policy    scheduling.Policy
	BatchSize int
}

// NewScheduledReleaseJob builds the job that moves scheduled orders back into fulfillment once
// every requested delivery date is within the threshold.
func NewScheduledReleaseJob(params ScheduledReleaseJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	if params.Submitter == nil {
		return nil, fmt.Errorf("fulfillment submitter required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultReleaseBatch
	}
	return &scheduledReleaseJob{
		logg:      params.Logger,
		db:        params.DB,
		orders:    params.Orders,
		outbox:    params.Outbox,
		submitter: params.Submitter,
		policy:    params.Policy,
		batch:     batch,
		now:       time.Now,
	}, nil
}

type scheduledReleaseJob struct {
	logg      *logger.Logger
	db        txRunner
	orders    orders.Repository
	outbox    outboxEmitter
	submitter fulfillment.Submitter
	policy    scheduling.Policy
	batch     int
	now       func() time.Time
}

func (j *scheduledReleaseJob) Name() string { return "scheduled-order-release" }

func (j *scheduledReleaseJob) Run(ctx context.Context) error {
	rows, err := j.orders.ListScheduled(ctx, j.batch)
	if err != nil {
		return fmt.Errorf("list scheduled orders: %w", err)
	}

	now := j.now().UTC()
	var (
		errs      error
		waiting   int
		released  int
		submitted int
	)
	for i := range rows {
		order := &rows[i]
		orderCtx := j.logg.WithOrderID(ctx, order.ID.String())

		decision := j.policy.Decide(now, scheduling.Sources{
			OrderGroups: order.DeliveryGroups,
			OrderDate:   order.ScheduledDeliveryDate,
		})
		if decision.Defer {
			waiting++
			continue
		}

		won, err := j.release(ctx, order, now)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("release order %s: %w", order.OrderNumber, err))
			continue
		}
		if !won {
			continue
		}
		released++

		res, err := j.submitter.Submit(orderCtx, fulfillment.SubmitInput{
			OrderID:       order.ID,
			TriggerSource: enums.TriggerScheduledRelease,
		})
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("submit order %s: %w", order.OrderNumber, err))
			continue
		}
		if res.Blocked {
			j.logg.Warn(j.logg.WithField(orderCtx, "blocked_by", res.BlockedBy), "released order blocked by guard: "+res.Error)
			continue
		}
		submitted++
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"scanned":   len(rows),
		"waiting":   waiting,
		"released":  released,
		"submitted": submitted,
	})
	j.logg.Info(logCtx, "scheduled order release complete")
	return errs
}

func (j *scheduledReleaseJob) release(ctx context.Context, order *models.Order, now time.Time) (bool, error) {
	won := false
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		won, err = j.orders.WithTx(tx).ReleaseScheduled(ctx, order.ID)
		if err != nil || !won {
			return err
		}
		event := payloads.OrderReleasedEvent{
			OrderRef:   orders.EventRef(order),
			ReleasedAt: now,
		}
		if order.ScheduledDeliveryDate != nil {
			event.ScheduledDeliveryDate = order.ScheduledDeliveryDate.Format(types.DateLayout)
		}
		return j.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderReleased,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{UserID: order.UserID, Trigger: enums.TriggerScheduledRelease},
			Data:          event,
		})
	})
	return won, err
}
