package scheduling

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/giftflow-backend/internal/orders"
	"github.com/angelmondragon/giftflow-backend/pkg/db/models"
	"github.com/angelmondragon/giftflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/giftflow-backend/pkg/errors"
	"github.com/angelmondragon/giftflow-backend/pkg/logger"
	"github.com/angelmondragon/giftflow-backend/pkg/outbox"
	"github.com/angelmondragon/giftflow-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/giftflow-backend/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Scheduler decides whether a paid order is submitted now or deferred, and persists deferrals.
type Scheduler interface {
	Evaluate(order *models.Order, metadata map[string]string) (Decision, error)
	Apply(ctx context.Context, order *models.Order, decision Decision) (bool, error)
}

// ServiceParams wires scheduler dependencies.
type ServiceParams struct {
	Policy Policy
	Orders orders.Repository
	Tx     txRunner
	Outbox outboxEmitter
	Logger *logger.Logger
	Now    func() time.Time
}

type service struct {
	policy Policy
	orders orders.Repository
	tx     txRunner
	outbox outboxEmitter
	logg   *logger.Logger
	now    func() time.Time
}

// NewService builds the delivery scheduler.
func NewService(params ServiceParams) (Scheduler, error) {
	if params.Orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "orders repository required")
	}
	if params.Tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction runner required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "outbox emitter required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		policy: params.Policy,
		orders: params.Orders,
		tx:     params.Tx,
		outbox: params.Outbox,
		logg:   params.Logger,
		now:    now,
	}, nil
}

func (s *service) Evaluate(order *models.Order, metadata map[string]string) (Decision, error) {
	src, err := SourcesFor(order, metadata)
	if err != nil {
		return Decision{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read delivery schedule")
	}
	return s.policy.Decide(s.now(), src), nil
}

// Apply persists a deferral. It returns false without error when the decision does not
// defer or when the order already left processing.
func (s *service) Apply(ctx context.Context, order *models.Order, decision Decision) (bool, error) {
	if order == nil {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "order required")
	}
	if !decision.Defer {
		return false, nil
	}

	won := false
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var txErr error
		won, txErr = s.orders.WithTx(tx).MarkScheduled(ctx, order.ID, decision.Earliest, decision.Groups)
		if txErr != nil || !won {
			return txErr
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderScheduled,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{UserID: order.UserID, Trigger: enums.TriggerCheckout},
			Data: payloads.OrderScheduledEvent{
				OrderRef:              orders.EventRef(order),
				ScheduledDeliveryDate: decision.Earliest.Format(types.DateLayout),
				ProcessingDate:        decision.ProcessingDate.Format(types.DateLayout),
				DaysUntilDelivery:     decision.DaysUntil,
			},
		})
	})
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "schedule order")
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(s.logg.WithOrderID(ctx, order.ID.String()), map[string]any{
			"scheduled_delivery_date": decision.Earliest.Format(types.DateLayout),
			"processing_date":         decision.ProcessingDate.Format(types.DateLayout),
			"date_source":             decision.Source,
			"applied":                 won,
		})
		if won {
			s.logg.Info(logCtx, fmt.Sprintf("order deferred %d days", decision.DaysUntil))
		} else {
			s.logg.Warn(logCtx, "order left processing before it could be scheduled")
		}
	}
	return won, nil
}
