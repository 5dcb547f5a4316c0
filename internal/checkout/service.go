package checkout

import (
	"context"
	"fmt"

	"github.com/angelmondragon/giftflow-backend/internal/fulfillment"
	"github.com/angelmondragon/giftflow-backend/internal/scheduling"
	"github.com/angelmondragon/giftflow-backend/internal/verification"
	"github.com/angelmondragon/giftflow-backend/pkg/db/models"
	"github.com/angelmondragon/giftflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/giftflow-backend/pkg/errors"
	"github.com/angelmondragon/giftflow-backend/pkg/logger"
	"github.com/angelmondragon/giftflow-backend/pkg/types"
)

// Service runs the post-payment flow for a checkout session.
type Service interface {
	VerifySession(ctx context.Context, sessionID string, trigger enums.TriggerSource) (*VerifySessionResult, error)
}

// VerifySessionResult is the verify-session response body.
type VerifySessionResult struct {
	Success               bool   `json:"success"`
	OrderID               string `json:"order_id,omitempty"`
	OrderNumber           string `json:"order_number,omitempty"`
	PaymentStatus         string `json:"payment_status"`
	AlreadyProcessed      bool   `json:"already_processed,omitempty"`
	Scheduled             bool   `json:"scheduled,omitempty"`
	ScheduledDeliveryDate string `json:"scheduled_delivery_date,omitempty"`
	ProcessingDate        string `json:"processing_date,omitempty"`
	MarketplaceOrderID    string `json:"zinc_order_id,omitempty"`
	Error                 string `json:"error,omitempty"`
}

// ServiceParams wires the checkout flow.
type ServiceParams struct {
	Verifier  verification.Verifier
	Scheduler scheduling.Scheduler
	Submitter fulfillment.Submitter
	Logger    *logger.Logger
}

type service struct {
	verifier  verification.Verifier
	scheduler scheduling.Scheduler
	submitter fulfillment.Submitter
	logg      *logger.Logger
}

// NewService builds the checkout flow.
func NewService(params ServiceParams) (Service, error) {
	if params.Verifier == nil {
		return nil, fmt.Errorf("payment verifier required")
	}
	if params.Scheduler == nil {
		return nil, fmt.Errorf("delivery scheduler required")
	}
	if params.Submitter == nil {
		return nil, fmt.Errorf("fulfillment submitter required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		verifier:  params.Verifier,
		scheduler: params.Scheduler,
		submitter: params.Submitter,
		logg:      params.Logger,
	}, nil
}

func (s *service) VerifySession(ctx context.Context, sessionID string, trigger enums.TriggerSource) (*VerifySessionResult, error) {
	if trigger == "" {
		trigger = enums.TriggerCheckout
	}
	ctx = s.logg.WithTriggerSource(ctx, trigger.String())

	verified, err := s.verifier.Verify(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !verified.Paid {
		return &VerifySessionResult{
			Success:       false,
			PaymentStatus: verified.PaymentStatus,
			Error:         "payment not completed",
		}, nil
	}

	order := verified.Order
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "verified session returned no order")
	}
	ctx = s.logg.WithOrderID(ctx, order.ID.String())
	result := &VerifySessionResult{
		Success:          true,
		OrderID:          order.ID.String(),
		OrderNumber:      order.OrderNumber,
		PaymentStatus:    string(order.PaymentStatus),
		AlreadyProcessed: verified.AlreadyProcessed,
	}

	if verified.AlreadyProcessed {
		if order.Status == enums.OrderStatusScheduled {
			s.describeSchedule(result, s.evaluate(ctx, order, nil))
		}
		if order.HasMarketplaceOrder() {
			result.MarketplaceOrderID = *order.MarketplaceOrderID
		}
		s.logg.Info(ctx, fmt.Sprintf("session already processed, order is %s", order.Status))
		return result, nil
	}

	var metadata map[string]string
	if verified.Session != nil {
		metadata = verified.Session.Metadata
	}
	decision := s.evaluate(ctx, order, metadata)
	if decision.Defer {
		applied, err := s.scheduler.Apply(ctx, order, decision)
		if err != nil {
			return nil, err
		}
		// not applied: the order moved on concurrently and whoever moved it owns fulfillment
		if applied {
			s.describeSchedule(result, decision)
		}
		return result, nil
	}

	submitted, err := s.submitter.Submit(ctx, fulfillment.SubmitInput{OrderID: order.ID, TriggerSource: trigger})
	switch {
	case err != nil:
		s.logg.Error(ctx, "fulfillment after verification failed, left for recovery", err)
	case submitted.Blocked:
		s.logg.Warn(s.logg.WithField(ctx, "blocked_by", submitted.BlockedBy), "fulfillment blocked: "+submitted.Error)
	case submitted.Success:
		result.MarketplaceOrderID = submitted.MarketplaceOrderID
	}
	return result, nil
}

// evaluate falls back to the order's stored dates when the session metadata is unreadable.
func (s *service) evaluate(ctx context.Context, order *models.Order, metadata map[string]string) scheduling.Decision {
	decision, err := s.scheduler.Evaluate(order, metadata)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "ignoring unreadable session delivery metadata")
		decision, err = s.scheduler.Evaluate(order, nil)
		if err != nil {
			s.logg.Error(ctx, "stored delivery schedule unreadable", err)
			return scheduling.Decision{}
		}
	}
	if len(decision.Skipped) > 0 {
		s.logg.Warn(s.logg.WithField(ctx, "skipped_dates", decision.Skipped), "ignored unparseable delivery dates")
	}
	return decision
}

func (s *service) describeSchedule(result *VerifySessionResult, decision scheduling.Decision) {
	result.Scheduled = true
	if decision.Earliest.IsZero() {
		return
	}
	result.ScheduledDeliveryDate = decision.Earliest.Format(types.DateLayout)
	result.ProcessingDate = decision.ProcessingDate.Format(types.DateLayout)
}
