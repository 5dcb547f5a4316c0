package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/giftflow-backend/internal/guard"
	"github.com/angelmondragon/giftflow-backend/internal/orders"
	"github.com/angelmondragon/giftflow-backend/pkg/config"
	"github.com/angelmondragon/giftflow-backend/pkg/db/models"
	"github.com/angelmondragon/giftflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/giftflow-backend/pkg/errors"
	"github.com/angelmondragon/giftflow-backend/pkg/logger"
	"github.com/angelmondragon/giftflow-backend/pkg/metrics"
	"github.com/angelmondragon/giftflow-backend/pkg/outbox"
	"github.com/angelmondragon/giftflow-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/giftflow-backend/pkg/zinc"
)

// Marketplace status values written alongside the order status.
const (
	MarketplaceStatusPlaced  = "request_placed"
	MarketplaceStatusFailed  = "request_failed"
	MarketplaceStatusUnknown = "unknown"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type orderPlacer interface {
	PlaceOrder(ctx context.Context, clientToken string, req zinc.OrderRequest) (*zinc.PlaceOrderResult, error)
}

// SubmitInput identifies the order to submit and how the submission was triggered.
type SubmitInput struct {
	OrderID       uuid.UUID
	TriggerSource enums.TriggerSource
	IsTestMode    bool
	DebugMode     bool
}

// SubmitResult describes a submission that reached a decision. Marketplace and
// transport failures are returned as errors instead.
type SubmitResult struct {
	Success            bool
	MarketplaceOrderID string
	AlreadySubmitted   bool
	Blocked            bool
	BlockedBy          []guard.Check
	Error              string
	Warnings           []string
	Order              *models.Order
	// DebugRequest is the redacted marketplace request, set only in debug mode.
	DebugRequest *zinc.OrderRequest
}

// Submitter places paid orders with the marketplace.
type Submitter interface {
	Submit(ctx context.Context, in SubmitInput) (*SubmitResult, error)
}

// ServiceParams wires submitter dependencies.
type ServiceParams struct {
	Config      config.ZincConfig
	Orders      orders.Repository
	Guard       guard.Guard
	Credentials CredentialResolver
	Marketplace orderPlacer
	Tx          txRunner
	Outbox      outboxEmitter
	Metrics     *metrics.FulfillmentMetrics
	Logger      *logger.Logger
	Now         func() time.Time
}

type service struct {
	cfg         config.ZincConfig
	orders      orders.Repository
	guard       guard.Guard
	credentials CredentialResolver
	marketplace orderPlacer
	tx          txRunner
	outbox      outboxEmitter
	metrics     *metrics.FulfillmentMetrics
	logg        *logger.Logger
	now         func() time.Time
}

// NewService builds the fulfillment submitter.
func NewService(params ServiceParams) (Submitter, error) {
	switch {
	case params.Orders == nil:
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "orders repository required")
	case params.Guard == nil:
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "guard required")
	case params.Credentials == nil:
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "credential resolver required")
	case params.Marketplace == nil:
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "marketplace client required")
	case params.Tx == nil:
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction runner required")
	case params.Outbox == nil:
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "outbox emitter required")
	case params.Logger == nil:
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		cfg:         params.Config,
		orders:      params.Orders,
		guard:       params.Guard,
		credentials: params.Credentials,
		marketplace: params.Marketplace,
		tx:          params.Tx,
		outbox:      params.Outbox,
		metrics:     params.Metrics,
		logg:        params.Logger,
		now:         now,
	}, nil
}

func (s *service) Submit(ctx context.Context, in SubmitInput) (*SubmitResult, error) {
	if in.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	trigger := in.TriggerSource
	if trigger == "" {
		trigger = enums.TriggerAPI
	}
	if !trigger.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown trigger source %q", trigger))
	}
	ctx = s.logg.WithTriggerSource(s.logg.WithOrderID(ctx, in.OrderID.String()), trigger.String())

	order, err := s.orders.FindByID(ctx, in.OrderID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}

	if order.HasMarketplaceOrder() {
		s.metrics.IncSubmission(metrics.OutcomeAlreadySubmitted, trigger.String())
		s.logg.Info(ctx, "order already submitted, skipping")
		return &SubmitResult{
			Success:            true,
			AlreadySubmitted:   true,
			MarketplaceOrderID: *order.MarketplaceOrderID,
			Order:              order,
		}, nil
	}
	if err := checkSubmittable(order); err != nil {
		return nil, err
	}

	retry := order.PriorAttempt()
	retryCount := order.RetryCount
	if retry {
		retryCount, err = s.orders.IncrementRetryCount(ctx, order.ID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count retry")
		}
	}

	verdict := s.guard.Evaluate(ctx, guardInput(order, trigger, retry, retryCount))
	if !verdict.Allowed {
		return s.blocked(ctx, order, trigger, verdict), nil
	}

	now := s.now().UTC()
	claimed, err := s.orders.ClaimSubmission(ctx, order.ID, now, now.Add(-s.claimTTL()))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim submission")
	}
	if !claimed {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "order submission already in progress")
	}

	creds, err := s.credentials.Resolve(ctx, s.cfg.Retailer)
	if err != nil {
		s.release(ctx, order.ID, "")
		return nil, err
	}
	if creds.Degraded {
		verdict.Warnings = append(verdict.Warnings, "payment method degraded: "+creds.DegradedReason)
		s.logg.Warn(s.logg.WithField(ctx, "reason", creds.DegradedReason), "submitting with cardholder name only")
	}

	req, err := BuildRequest(order, creds, RequestOptions{
		Retailer:       s.cfg.Retailer,
		MaxPriceBuffer: s.cfg.MaxPriceBuffer,
		WebhookURL:     s.cfg.WebhookURL,
		TestMode:       in.IsTestMode,
		Trigger:        trigger,
	})
	if err != nil {
		s.recordFailure(ctx, order, trigger, "Could not build marketplace request: "+err.Error())
		return nil, err
	}

	result := &SubmitResult{Warnings: verdict.Warnings}
	if in.DebugMode {
		redacted := Redacted(req)
		result.DebugRequest = &redacted
		s.logg.Info(s.logg.WithField(ctx, "request", redacted), "marketplace request built")
	}

	started := time.Now()
	placed, err := s.marketplace.PlaceOrder(ctx, creds.ClientToken, req)
	s.metrics.ObserveSubmitDuration(time.Since(started))
	if err != nil {
		return s.placementFailed(ctx, order, trigger, err)
	}

	won, err := s.orders.RecordSubmissionSuccess(ctx, order.ID, placed.RequestID, MarketplaceStatusPlaced)
	if err != nil {
		// the marketplace holds the order now; recovery reconciles the id
		s.logg.Error(s.logg.WithField(ctx, "marketplace_order_id", placed.RequestID), "failed to persist marketplace order id", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist marketplace order id")
	}
	if !won {
		s.logg.Warn(s.logg.WithField(ctx, "marketplace_order_id", placed.RequestID), "order already carried a marketplace id")
	}

	note := fmt.Sprintf("Submitted to marketplace as %s (trigger %s)", placed.RequestID, trigger)
	if in.IsTestMode {
		note += " in test mode"
	}
	s.note(ctx, order.ID, note)
	s.recordOutcome(ctx, guard.Outcome{UserID: order.UserID, OrderID: order.ID, Amount: order.TotalAmount, Success: true})
	s.emit(ctx, order, trigger, enums.EventOrderSubmitted, payloads.OrderSubmittedEvent{
		OrderRef:           orders.EventRef(order),
		MarketplaceOrderID: placed.RequestID,
		Trigger:            trigger,
		TestMode:           in.IsTestMode,
	})
	s.metrics.IncSubmission(metrics.OutcomeSubmitted, trigger.String())
	s.logg.Info(s.logg.WithField(ctx, "marketplace_order_id", placed.RequestID), "order submitted to marketplace")

	reloaded, err := s.orders.FindByID(ctx, order.ID)
	if err != nil {
		reloaded = order
	}
	result.Success = true
	result.MarketplaceOrderID = placed.RequestID
	result.Order = reloaded
	return result, nil
}

func checkSubmittable(order *models.Order) error {
	if order.PaymentStatus != enums.PaymentStatusSucceeded {
		return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("order payment is %s", order.PaymentStatus)).
			WithDetails(map[string]any{"payment_status": order.PaymentStatus})
	}
	if order.Status.Submittable() {
		return nil
	}
	switch order.Status {
	case enums.OrderStatusScheduled:
		msg := "order is scheduled for later submission"
		if order.ScheduledDeliveryDate != nil {
			msg = fmt.Sprintf("order is scheduled for delivery on %s", order.ScheduledDeliveryDate.UTC().Format("2006-01-02"))
		}
		return pkgerrors.New(pkgerrors.CodeStateConflict, msg).WithDetails(map[string]any{"status": order.Status})
	default:
		return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("order in status %s cannot be submitted", order.Status)).
			WithDetails(map[string]any{"status": order.Status})
	}
}

func guardInput(order *models.Order, trigger enums.TriggerSource, retry bool, retryCount int) guard.Input {
	items := make([]guard.Item, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, guard.Item{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	return guard.Input{
		UserID:          order.UserID,
		OrderID:         order.ID,
		Amount:          order.TotalAmount,
		Items:           items,
		ShippingAddress: order.ShippingAddress,
		Trigger:         trigger,
		Retry:           retry,
		RetryCount:      retryCount,
	}
}

// blocked leaves the order untouched apart from a note and an event.
func (s *service) blocked(ctx context.Context, order *models.Order, trigger enums.TriggerSource, verdict guard.Result) *SubmitResult {
	reason := verdict.Reason()
	blockedBy := ""
	if len(verdict.BlockedBy) > 0 {
		blockedBy = string(verdict.BlockedBy[0])
	}
	s.note(ctx, order.ID, "Submission blocked by guard: "+reason)
	s.emit(ctx, order, trigger, enums.EventOrderSubmissionFailed, payloads.OrderSubmissionFailedEvent{
		OrderRef:  orders.EventRef(order),
		Trigger:   trigger,
		Reason:    reason,
		Blocked:   true,
		BlockedBy: blockedBy,
	})
	s.metrics.IncSubmission(metrics.OutcomeBlocked, trigger.String())
	return &SubmitResult{
		Success:   false,
		Blocked:   true,
		BlockedBy: verdict.BlockedBy,
		Error:     reason,
		Warnings:  verdict.Warnings,
		Order:     order,
	}
}

// placementFailed sorts a marketplace error into a rejection, which fails the order, or an
// unknown outcome, which releases the claim and leaves the order for recovery.
func (s *service) placementFailed(ctx context.Context, order *models.Order, trigger enums.TriggerSource, err error) (*SubmitResult, error) {
	statusErr, rejected := zinc.AsStatusError(err)
	if rejected && statusErr.StatusCode >= 200 && statusErr.StatusCode < 300 {
		// accepted but unreadable; the order may exist upstream
		rejected = false
	}

	switch {
	case rejected:
		reason := fmt.Sprintf("Marketplace rejected order: HTTP %d: %s", statusErr.StatusCode, statusErr.Body)
		s.recordFailure(ctx, order, trigger, reason)
		s.logg.Error(s.logg.WithField(ctx, "status", statusErr.StatusCode), "marketplace rejected order", err)
		return nil, err
	case zinc.IsOutcomeUnknown(err) || statusErr != nil:
		s.release(ctx, order.ID, MarketplaceStatusUnknown)
		s.note(ctx, order.ID, "Marketplace outcome unknown, left for recovery: "+err.Error())
		s.recordOutcome(ctx, guard.Outcome{UserID: order.UserID, OrderID: order.ID, Success: false, Reason: "outcome unknown"})
		s.metrics.IncSubmission(metrics.OutcomeUnknown, trigger.String())
		s.logg.Error(ctx, "marketplace outcome unknown", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "marketplace outcome unknown")
	default:
		s.release(ctx, order.ID, "")
		return nil, err
	}
}

// recordFailure marks the order failed and records the failure everywhere it is tracked.
func (s *service) recordFailure(ctx context.Context, order *models.Order, trigger enums.TriggerSource, reason string) {
	if _, err := s.orders.RecordSubmissionFailure(ctx, order.ID, MarketplaceStatusFailed); err != nil {
		s.logg.Error(ctx, "failed to mark order failed", err)
	}
	s.note(ctx, order.ID, reason)
	s.recordOutcome(ctx, guard.Outcome{UserID: order.UserID, OrderID: order.ID, Success: false, Reason: reason})
	s.emit(ctx, order, trigger, enums.EventOrderSubmissionFailed, payloads.OrderSubmissionFailedEvent{
		OrderRef: orders.EventRef(order),
		Trigger:  trigger,
		Reason:   reason,
	})
	s.metrics.IncSubmission(metrics.OutcomeFailed, trigger.String())
}

func (s *service) release(ctx context.Context, orderID uuid.UUID, marketplaceStatus string) {
	if err := s.orders.ReleaseSubmissionClaim(ctx, orderID, marketplaceStatus); err != nil {
		s.logg.Error(ctx, "failed to release submission claim", err)
	}
}

func (s *service) note(ctx context.Context, orderID uuid.UUID, body string) {
	if err := s.orders.AppendNote(ctx, orderID, body); err != nil {
		s.logg.Error(ctx, "failed to append order note", err)
	}
}

func (s *service) recordOutcome(ctx context.Context, outcome guard.Outcome) {
	if err := s.guard.RecordOutcome(ctx, outcome); err != nil {
		s.logg.Error(ctx, "failed to record guard outcome", err)
	}
}

// emit writes the event after the state change has committed; losing it only loses the notification.
func (s *service) emit(ctx context.Context, order *models.Order, trigger enums.TriggerSource, eventType enums.OutboxEventType, data any) {
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     eventType,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{UserID: order.UserID, Trigger: trigger},
			Data:          data,
		})
	})
	if err != nil {
		s.logg.Error(s.logg.WithField(ctx, "event_type", eventType), "failed to emit order event", err)
	}
}

func (s *service) claimTTL() time.Duration {
	if s.cfg.ClaimTTL <= 0 {
		return 2 * time.Minute
	}
	return s.cfg.ClaimTTL
}
