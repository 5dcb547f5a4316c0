package stripewebhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/angelmondragon/giftflow-backend/internal/checkout"
	"github.com/angelmondragon/giftflow-backend/internal/orders"
	"github.com/angelmondragon/giftflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/giftflow-backend/pkg/errors"
	"github.com/angelmondragon/giftflow-backend/pkg/logger"
	"github.com/angelmondragon/giftflow-backend/pkg/outbox"
	"github.com/angelmondragon/giftflow-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type ServiceParams struct {
	Checkout          checkout.Service
	Orders            orders.Repository
	Outbox            outboxEmitter
	TransactionRunner txRunner
	Logger            *logger.Logger
}

type Service struct {
	checkout checkout.Service
	orders   orders.Repository
	outbox   outboxEmitter
	txRunner txRunner
	logg     *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Checkout == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "checkout service required")
	}
	if params.Orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "orders repo required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox emitter required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Service{
		checkout: params.Checkout,
		orders:   params.Orders,
		outbox:   params.Outbox,
		txRunner: params.TransactionRunner,
		logg:     params.Logger,
	}, nil
}

// HandleEvent routes checkout session events. Unrelated event types are accepted and ignored.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted,
		stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded:
		cs, err := decodeSession(event)
		if err != nil {
			return err
		}
		result, err := s.checkout.VerifySession(ctx, cs.ID, enums.TriggerWebhook)
		if err != nil {
			return err
		}
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"checkout_session_id": cs.ID,
			"event_type":          string(event.Type),
			"payment_status":      result.PaymentStatus,
		})
		if result.OrderID != "" {
			logCtx = s.logg.WithOrderID(logCtx, result.OrderID)
		}
		s.logg.Info(logCtx, "checkout session verified from webhook")
		return nil
	case stripe.EventTypeCheckoutSessionAsyncPaymentFailed:
		cs, err := decodeSession(event)
		if err != nil {
			return err
		}
		return s.markPaymentFailed(ctx, cs)
	default:
		return nil
	}
}

func (s *Service) markPaymentFailed(ctx context.Context, cs *stripe.CheckoutSession) error {
	order, err := s.orders.FindByCheckoutSessionID(ctx, cs.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.logg.Warn(s.logg.WithField(ctx, "checkout_session_id", cs.ID), "async payment failure for unknown session")
			return nil
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order by session")
	}
	ctx = s.logg.WithOrderID(ctx, order.ID.String())

	won := false
	err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		var txErr error
		won, txErr = s.orders.WithTx(tx).MarkPaymentFailed(ctx, order.ID)
		if txErr != nil || !won {
			return txErr
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderPaymentFailed,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{UserID: order.UserID, Trigger: enums.TriggerWebhook},
			Data: payloads.OrderPaymentFailedEvent{
				OrderRef:          orders.EventRef(order),
				CheckoutSessionID: cs.ID,
				PaymentStatus:     string(cs.PaymentStatus),
				Reason:            "async payment failed",
			},
		})
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark payment failed")
	}
	if !won {
		s.logg.Info(ctx, fmt.Sprintf("order already %s, payment failure ignored", order.Status))
		return nil
	}
	s.logg.Warn(ctx, "order payment failed")
	return nil
}

func decodeSession(event *stripe.Event) (*stripe.CheckoutSession, error) {
	var cs stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &cs); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode checkout session event")
	}
	if strings.TrimSpace(cs.ID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "checkout session id missing")
	}
	return &cs, nil
}
