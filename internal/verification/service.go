package verification

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/giftflow-backend/internal/orders"
	"github.com/angelmondragon/giftflow-backend/pkg/db/models"
	"github.com/angelmondragon/giftflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/giftflow-backend/pkg/errors"
	"github.com/angelmondragon/giftflow-backend/pkg/logger"
	"github.com/angelmondragon/giftflow-backend/pkg/metrics"
	"github.com/angelmondragon/giftflow-backend/pkg/outbox"
	"github.com/angelmondragon/giftflow-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Verifier confirms checkout sessions and reconciles them to orders.
type Verifier interface {
	Verify(ctx context.Context, sessionID string) (*Result, error)
}

// Result is the outcome of a verification. An unpaid session is a normal result, not an error.
type Result struct {
	Paid             bool
	PaymentStatus    string
	AlreadyProcessed bool
	Method           enums.VerificationMethod
	Order            *models.Order
	Session          *Session
}

// ServiceParams wires verifier dependencies.
type ServiceParams struct {
	Sessions SessionLookup
	Orders   orders.Repository
	Audits   AuditRepository
	Tx       txRunner
	Outbox   outboxEmitter
	Metrics  *metrics.FulfillmentMetrics
	Logger   *logger.Logger
}

type service struct {
	sessions SessionLookup
	orders   orders.Repository
	audits   AuditRepository
	tx       txRunner
	outbox   outboxEmitter
	metrics  *metrics.FulfillmentMetrics
	logg     *logger.Logger
}

// NewService builds the payment verifier.
func NewService(params ServiceParams) (Verifier, error) {
	if params.Sessions == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "checkout session lookup required")
	}
	if params.Orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "orders repository required")
	}
	if params.Audits == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "verification audit repository required")
	}
	if params.Tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction runner required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "outbox emitter required")
	}
	return &service{
		sessions: params.Sessions,
		orders:   params.Orders,
		audits:   params.Audits,
		tx:       params.Tx,
		outbox:   params.Outbox,
		metrics:  params.Metrics,
		logg:     params.Logger,
	}, nil
}

func (s *service) Verify(ctx context.Context, sessionID string) (*Result, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session_id is required")
	}

	sess, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		s.metrics.IncVerification(metrics.VerificationError)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "retrieve checkout session")
	}
	if sess == nil {
		s.metrics.IncVerification(metrics.VerificationError)
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "checkout session missing from provider response")
	}

	audit, err := s.openAudit(ctx, sess)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record verification attempt")
	}

	if !sess.Paid() {
		s.finalize(ctx, audit, AuditFinalization{
			Status:   enums.VerificationStatusFailed,
			Method:   enums.VerificationMethodNone,
			Metadata: map[string]any{"reason": "payment_not_completed", "payment_status": sess.PaymentStatus},
		})
		s.metrics.IncVerification(metrics.VerificationUnpaid)
		return &Result{Paid: false, PaymentStatus: sess.PaymentStatus, Session: sess}, nil
	}

	order, method, err := s.match(ctx, sess)
	if err != nil {
		s.finalize(ctx, audit, AuditFinalization{
			Status:   enums.VerificationStatusFailed,
			Method:   enums.VerificationMethodNone,
			Metadata: map[string]any{"reason": "order_lookup_failed", "error": err.Error()},
		})
		s.metrics.IncVerification(metrics.VerificationError)
		if pkgerrors.IsCode(err, pkgerrors.CodeDataIntegrity) && s.logg != nil {
			logCtx := s.logg.WithFields(ctx, map[string]any{
				"checkout_session_id": sess.ID,
				"payment_intent_id":   sess.PaymentIntentID,
			})
			s.logg.Error(logCtx, "paid checkout session has no matching order", err)
		}
		return nil, err
	}

	ctx = s.withOrder(ctx, order)
	result := &Result{
		Paid:          true,
		PaymentStatus: sess.PaymentStatus,
		Method:        method,
		Session:       sess,
		Order:         order,
	}

	if order.Status != enums.OrderStatusPending {
		result.AlreadyProcessed = true
		s.finalize(ctx, audit, AuditFinalization{
			Status:   enums.VerificationStatusSuccess,
			Method:   method,
			OrderID:  &order.ID,
			Metadata: map[string]any{"already_processed": true, "order_status": order.Status},
		})
		s.metrics.IncVerification(metrics.VerificationAlreadyProcessed)
		return result, nil
	}

	var intentID *string
	if sess.PaymentIntentID != "" {
		intentID = &sess.PaymentIntentID
	}

	won := false
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var txErr error
		won, txErr = s.orders.WithTx(tx).MarkPaid(ctx, order.ID, sess.ID, intentID)
		if txErr != nil || !won {
			return txErr
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderPaid,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{UserID: order.UserID, Trigger: enums.TriggerCheckout},
			Data: payloads.OrderPaidEvent{
				OrderRef:           orders.EventRef(order),
				CheckoutSessionID:  sess.ID,
				PaymentIntentID:    sess.PaymentIntentID,
				VerificationMethod: method,
			},
		})
	})
	if err != nil {
		s.finalize(ctx, audit, AuditFinalization{
			Status:   enums.VerificationStatusFailed,
			Method:   method,
			OrderID:  &order.ID,
			Metadata: map[string]any{"reason": "order_update_failed", "error": err.Error()},
		})
		s.metrics.IncVerification(metrics.VerificationError)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order paid")
	}

	reloaded, err := s.orders.FindByID(ctx, order.ID)
	if err != nil {
		// the payment is already committed; only the read back failed
		s.finalize(ctx, audit, AuditFinalization{
			Status:   enums.VerificationStatusSuccess,
			Method:   method,
			OrderID:  &order.ID,
			Metadata: map[string]any{"already_processed": !won, "reload_error": err.Error()},
		})
		s.metrics.IncVerification(metrics.VerificationError)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload order")
	}
	result.Order = reloaded
	result.AlreadyProcessed = !won

	s.finalize(ctx, audit, AuditFinalization{
		Status:   enums.VerificationStatusSuccess,
		Method:   method,
		OrderID:  &order.ID,
		Metadata: map[string]any{"already_processed": !won},
	})
	if won {
		s.metrics.IncVerification(metrics.VerificationVerified)
		if s.logg != nil {
			s.logg.Info(ctx, fmt.Sprintf("order marked paid via %s", method))
		}
	} else {
		s.metrics.IncVerification(metrics.VerificationAlreadyProcessed)
	}
	return result, nil
}

// match finds the order by session id, then by payment intent id.
func (s *service) match(ctx context.Context, sess *Session) (*models.Order, enums.VerificationMethod, error) {
	order, err := s.orders.FindByCheckoutSessionID(ctx, sess.ID)
	if err == nil {
		return order, enums.VerificationMethodSessionID, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, enums.VerificationMethodNone, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find order by session")
	}

	if sess.PaymentIntentID != "" {
		order, err = s.orders.FindByPaymentIntentID(ctx, sess.PaymentIntentID)
		if err == nil {
			return order, enums.VerificationMethodPaymentIntentID, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, enums.VerificationMethodNone, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find order by payment intent")
		}
	}

	return nil, enums.VerificationMethodNone, pkgerrors.New(pkgerrors.CodeDataIntegrity,
		fmt.Sprintf("no order matches checkout session %s or payment intent %q", sess.ID, sess.PaymentIntentID))
}

func (s *service) openAudit(ctx context.Context, sess *Session) (*models.VerificationAudit, error) {
	prior, err := s.audits.CountForSession(ctx, sess.ID)
	if err != nil {
		return nil, err
	}
	entry := &models.VerificationAudit{
		ID:                uuid.New(),
		CheckoutSessionID: sess.ID,
		Method:            enums.VerificationMethodNone,
		Status:            enums.VerificationStatusAttempting,
		AttemptCount:      int(prior) + 1,
	}
	if sess.PaymentIntentID != "" {
		entry.PaymentIntentID = &sess.PaymentIntentID
	}
	if err := s.audits.Create(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// finalize never fails the verification; a lost audit write is logged instead.
func (s *service) finalize(ctx context.Context, audit *models.VerificationAudit, update AuditFinalization) {
	if audit == nil {
		return
	}
	if err := s.audits.Finalize(ctx, audit.ID, update); err != nil && s.logg != nil {
		s.logg.Error(ctx, "failed to finalize verification audit", err)
	}
}

func (s *service) withOrder(ctx context.Context, order *models.Order) context.Context {
	if s.logg == nil || order == nil {
		return ctx
	}
	return s.logg.WithOrderID(ctx, order.ID.String())
}
