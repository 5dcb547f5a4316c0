package recovery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"

	"github.com/angelmondragon/giftflow-backend/internal/fulfillment"
	"github.com/angelmondragon/giftflow-backend/internal/guard"
	"github.com/angelmondragon/giftflow-backend/internal/orders"
	"github.com/angelmondragon/giftflow-backend/pkg/config"
	"github.com/angelmondragon/giftflow-backend/pkg/db/models"
	"github.com/angelmondragon/giftflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/giftflow-backend/pkg/errors"
	"github.com/angelmondragon/giftflow-backend/pkg/logger"
	"github.com/angelmondragon/giftflow-backend/pkg/pagination"
	"github.com/angelmondragon/giftflow-backend/pkg/zinc"
)

// Service lists paid orders that never reached the marketplace and re-enters fulfillment for them.
type Service interface {
	List(ctx context.Context, params ListParams) (*ListResult, error)
	Retry(ctx context.Context, input RetryInput) (*RetryResult, error)
	Sweep(ctx context.Context, minAge time.Duration) (*SweepReport, error)
}

// ListParams pages through stuck orders, newest first.
type ListParams struct {
	pagination.Params
}

// StuckOrder is one recovery candidate.
type StuckOrder struct {
	OrderID           uuid.UUID           `json:"order_id"`
	OrderNumber       string              `json:"order_number"`
	Status            enums.OrderStatus   `json:"status"`
	PaymentStatus     enums.PaymentStatus `json:"payment_status"`
	TotalAmount       decimal.Decimal     `json:"total_amount"`
	Currency          string              `json:"currency"`
	UserID            uuid.UUID           `json:"user_id"`
	CustomerEmail     string              `json:"customer_email,omitempty"`
	CustomerName      *string             `json:"customer_name,omitempty"`
	MarketplaceStatus *string             `json:"marketplace_status,omitempty"`
	RetryCount        int                 `json:"retry_count"`
	CreatedAt         time.Time           `json:"created_at"`
	AgeMinutes        int64               `json:"age_minutes"`
}

// ListResult is a page of stuck orders.
type ListResult struct {
	Orders     []StuckOrder `json:"orders"`
	NextCursor string       `json:"next_cursor,omitempty"`
}

// RetryInput re-enters fulfillment for one order.
type RetryInput struct {
	OrderID       uuid.UUID
	TriggerSource enums.TriggerSource
	IsTestMode    bool
}

// RetryResult reports a recovery attempt. Recovered means the submission errored but the order
// turned out to carry a marketplace id when re-read.
type RetryResult struct {
	Success            bool          `json:"success"`
	MarketplaceOrderID string        `json:"zincOrderId,omitempty"`
	AlreadySubmitted   bool          `json:"alreadySubmitted,omitempty"`
	Recovered          bool          `json:"recovered,omitempty"`
	Blocked            bool          `json:"blocked,omitempty"`
	BlockedBy          []guard.Check `json:"blockedBy,omitempty"`
	Error              string        `json:"error,omitempty"`
	Warnings           []string      `json:"warnings,omitempty"`
}

// SweepReport summarizes one automatic recovery pass.
type SweepReport struct {
	Candidates int
	Submitted  int
	Recovered  int
	Blocked    int
	Failed     int
}

// ServiceParams wires the recovery service.
type ServiceParams struct {
	Config    config.RecoveryConfig
	Orders    orders.Repository
	Submitter fulfillment.Submitter
	Logger    *logger.Logger
	Now       func() time.Time
}

type service struct {
	cfg       config.RecoveryConfig
	orders    orders.Repository
	submitter fulfillment.Submitter
	logg      *logger.Logger
	now       func() time.Time
}

const defaultWindow = 7 * 24 * time.Hour

// NewService builds the recovery service.
func NewService(params ServiceParams) (Service, error) {
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Submitter == nil {
		return nil, fmt.Errorf("fulfillment submitter required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		cfg:       params.Config,
		orders:    params.Orders,
		submitter: params.Submitter,
		logg:      params.Logger,
		now:       now,
	}, nil
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	cursor, err := pagination.Decode(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	now := s.now().UTC()
	rows, next, err := s.orders.ListStuck(ctx, orders.StuckQuery{
		CreatedAfter: now.Add(-s.window()),
		Limit:        params.Limit,
		Cursor:       cursor,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list stuck orders")
	}

	result := &ListResult{Orders: make([]StuckOrder, 0, len(rows))}
	for i := range rows {
		result.Orders = append(result.Orders, toStuckOrder(&rows[i], now))
	}
	if next != nil {
		result.NextCursor = next.String()
	}
	return result, nil
}

func toStuckOrder(order *models.Order, now time.Time) StuckOrder {
	return StuckOrder{
		OrderID:           order.ID,
		OrderNumber:       order.OrderNumber,
		Status:            order.Status,
		PaymentStatus:     order.PaymentStatus,
		TotalAmount:       order.TotalAmount,
		Currency:          order.Currency,
		UserID:            order.UserID,
		CustomerEmail:     order.CustomerEmail,
		CustomerName:      order.CustomerName,
		MarketplaceStatus: order.MarketplaceStatus,
		RetryCount:        order.RetryCount,
		CreatedAt:         order.CreatedAt,
		AgeMinutes:        int64(now.Sub(order.CreatedAt) / time.Minute),
	}
}

func (s *service) Retry(ctx context.Context, input RetryInput) (*RetryResult, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	trigger := input.TriggerSource
	if trigger == "" {
		trigger = enums.TriggerManualRecovery
	}
	if !trigger.IsRecovery() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("trigger source %q is not a recovery trigger", trigger))
	}
	ctx = s.logg.WithTriggerSource(s.logg.WithOrderID(ctx, input.OrderID.String()), trigger.String())

	submitted, err := s.submitter.Submit(ctx, fulfillment.SubmitInput{
		OrderID:       input.OrderID,
		TriggerSource: trigger,
		IsTestMode:    input.IsTestMode,
	})
	if err != nil {
		if !transportClass(err) {
			return nil, err
		}
		// the submission may have landed even though the call failed
		order, loadErr := s.orders.FindByID(ctx, input.OrderID)
		if loadErr != nil {
			s.logg.Error(ctx, "failed to re-read order after recovery failure", loadErr)
			return nil, err
		}
		if !order.HasMarketplaceOrder() {
			return nil, err
		}
		s.logg.Warn(s.logg.WithField(ctx, "marketplace_order_id", *order.MarketplaceOrderID), "recovery call failed but order reached the marketplace")
		return &RetryResult{Success: true, Recovered: true, MarketplaceOrderID: *order.MarketplaceOrderID}, nil
	}

	return &RetryResult{
		Success:            submitted.Success,
		MarketplaceOrderID: submitted.MarketplaceOrderID,
		AlreadySubmitted:   submitted.AlreadySubmitted,
		Blocked:            submitted.Blocked,
		BlockedBy:          submitted.BlockedBy,
		Error:              submitted.Error,
		Warnings:           submitted.Warnings,
	}, nil
}

// transportClass reports errors where the order state may differ from what the call returned.
func transportClass(err error) bool {
	if zinc.IsOutcomeUnknown(err) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return pkgerrors.IsCode(err, pkgerrors.CodeDependency) || pkgerrors.IsCode(err, pkgerrors.CodeConflict)
}

func (s *service) Sweep(ctx context.Context, minAge time.Duration) (*SweepReport, error) {
	if minAge <= 0 {
		minAge = s.cfg.SweepMinAge
	}
	now := s.now().UTC()
	createdBefore := now.Add(-minAge)
	rows, _, err := s.orders.ListStuck(ctx, orders.StuckQuery{
		CreatedAfter:  now.Add(-s.window()),
		CreatedBefore: &createdBefore,
		Limit:         s.cfg.SweepBatch,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list stuck orders")
	}

	report := &SweepReport{Candidates: len(rows)}
	var errs error
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return report, multierr.Append(errs, err)
		}
		res, err := s.Retry(ctx, RetryInput{OrderID: row.ID, TriggerSource: enums.TriggerWebhookRecovery})
		switch {
		case err != nil:
			report.Failed++
			errs = multierr.Append(errs, fmt.Errorf("order %s: %w", row.OrderNumber, err))
		case res.Blocked:
			report.Blocked++
		case res.Recovered:
			report.Recovered++
		case res.Success:
			report.Submitted++
		}
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"candidates": report.Candidates,
		"submitted":  report.Submitted,
		"recovered":  report.Recovered,
		"blocked":    report.Blocked,
		"failed":     report.Failed,
	})
	if errs != nil {
		s.logg.Warn(logCtx, "recovery sweep finished with failures")
	} else {
		s.logg.Info(logCtx, "recovery sweep finished")
	}
	return report, errs
}

func (s *service) window() time.Duration {
	if s.cfg.Window <= 0 {
		return defaultWindow
	}
	return s.cfg.Window
}
