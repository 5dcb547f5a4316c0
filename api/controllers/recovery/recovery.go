package recovery

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/giftflow-backend/api/responses"
	"github.com/angelmondragon/giftflow-backend/api/validators"
	internalrecovery "github.com/angelmondragon/giftflow-backend/internal/recovery"
	"github.com/angelmondragon/giftflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/giftflow-backend/pkg/errors"
	"github.com/angelmondragon/giftflow-backend/pkg/logger"
	"github.com/angelmondragon/giftflow-backend/pkg/pagination"
)

type retryRequest struct {
	TriggerSource string `json:"triggerSource" validate:"omitempty,trigger_source"`
	IsTestMode    bool   `json:"isTestMode"`
}

// List returns paid orders that never reached the marketplace.
func List(svc internalrecovery.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "recovery service unavailable"))
			return
		}

		limit, err := validators.IntParam(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.List(r.Context(), internalrecovery.ListParams{
			Params: pagination.Params{
				Limit:  limit,
				Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
			},
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// Retry re-enters fulfillment for one order on behalf of an operator.
func Retry(svc internalrecovery.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "recovery service unavailable"))
			return
		}

		orderID, err := uuid.Parse(strings.TrimSpace(chi.URLParam(r, "orderId")))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid order id"))
			return
		}

		var req retryRequest
		if r.ContentLength != 0 {
			if req, err = validators.Decode[retryRequest](r); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		var trigger enums.TriggerSource
		if req.TriggerSource != "" {
			trigger, err = enums.ParseTriggerSource(req.TriggerSource)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid trigger source"))
				return
			}
		}

		result, err := svc.Retry(r.Context(), internalrecovery.RetryInput{
			OrderID:       orderID,
			TriggerSource: trigger,
			IsTestMode:    req.IsTestMode,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
