package orders

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/giftflow-backend/api/middleware"
	"github.com/angelmondragon/giftflow-backend/api/responses"
	"github.com/angelmondragon/giftflow-backend/api/validators"
	"github.com/angelmondragon/giftflow-backend/internal/fulfillment"
	"github.com/angelmondragon/giftflow-backend/internal/guard"
	"github.com/angelmondragon/giftflow-backend/pkg/db/models"
	"github.com/angelmondragon/giftflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/giftflow-backend/pkg/errors"
	"github.com/angelmondragon/giftflow-backend/pkg/logger"
	"github.com/angelmondragon/giftflow-backend/pkg/zinc"
)

type orderLookup interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
}

type submitRequest struct {
	OrderID       string `json:"orderId" validate:"required,uuid"`
	IsTestMode    bool   `json:"isTestMode"`
	DebugMode     bool   `json:"debugMode"`
	TriggerSource string `json:"triggerSource" validate:"omitempty,trigger_source"`
}

type submitResponse struct {
	Success            bool               `json:"success"`
	MarketplaceOrderID string             `json:"zincOrderId,omitempty"`
	AlreadySubmitted   bool               `json:"alreadySubmitted,omitempty"`
	Error              string             `json:"error,omitempty"`
	Warnings           []string           `json:"warnings,omitempty"`
	DebugRequest       *zinc.OrderRequest `json:"debugRequest,omitempty"`
}

// Submit places a paid order with the marketplace. Customers may only submit their own orders.
func Submit(submitter fulfillment.Submitter, lookup orderLookup, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if submitter == nil || lookup == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "fulfillment unavailable"))
			return
		}

		req, err := validators.Decode[submitRequest](r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		orderID, err := uuid.Parse(req.OrderID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid order id"))
			return
		}

		trigger := enums.TriggerAPI
		if req.TriggerSource != "" {
			trigger, err = enums.ParseTriggerSource(req.TriggerSource)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid trigger source"))
				return
			}
		}

		order, err := lookup.FindByID(ctx, orderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "order not found"))
				return
			}
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order"))
			return
		}
		caller, _ := middleware.CallerFrom(ctx)
		if !caller.IsAdmin() && caller.UserID != order.UserID {
			// other users' orders are reported as missing
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "order not found"))
			return
		}
		if !caller.IsAdmin() && trigger.OperatorOnly() {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeForbidden, fmt.Sprintf("trigger source %s is reserved for operators", trigger)))
			return
		}
		result, err := submitter.Submit(ctx, fulfillment.SubmitInput{
			OrderID:       orderID,
			TriggerSource: trigger,
			IsTestMode:    req.IsTestMode,
			DebugMode:     req.DebugMode && caller.IsAdmin(),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if result.Blocked {
			responses.WriteError(ctx, logg, w, blockedError(result.Error, result.BlockedBy, result.Warnings))
			return
		}

		responses.WriteSuccess(w, submitResponse{
			Success:            result.Success,
			MarketplaceOrderID: result.MarketplaceOrderID,
			AlreadySubmitted:   result.AlreadySubmitted,
			Error:              result.Error,
			Warnings:           result.Warnings,
			DebugRequest:       result.DebugRequest,
		})
	}
}

func blockedError(reason string, blockedBy []guard.Check, warnings []string) error {
	if reason == "" {
		reason = "order blocked by fulfillment guard"
	}
	return pkgerrors.New(pkgerrors.CodeOrderBlocked, reason).WithDetails(map[string]any{
		"blockedBy": blockedBy,
		"warnings":  warnings,
	})
}
