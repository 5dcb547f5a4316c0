package controllers

import (
	"net/http"

	"github.com/angelmondragon/giftflow-backend/api/responses"
	"github.com/angelmondragon/giftflow-backend/api/validators"
	checkoutsvc "github.com/angelmondragon/giftflow-backend/internal/checkout"
	"github.com/angelmondragon/giftflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/giftflow-backend/pkg/errors"
	"github.com/angelmondragon/giftflow-backend/pkg/logger"
)

type verifySessionRequest struct {
	SessionID string `json:"session_id" validate:"required,startswith=cs_,max=255"`
}

// CheckoutVerifySession is hit by the success page after the Stripe redirect.
// It confirms payment and either schedules or submits the order.
func CheckoutVerifySession(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		fail := func(err error) { responses.WriteError(ctx, logg, w, err) }

		if svc == nil {
			fail(pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}
		in, err := validators.Decode[verifySessionRequest](r)
		if err != nil {
			fail(err)
			return
		}
		if logg != nil {
			ctx = logg.WithField(ctx, "checkout_session_id", in.SessionID)
		}

		out, err := svc.VerifySession(ctx, in.SessionID, enums.TriggerCheckout)
		if err != nil {
			fail(err)
			return
		}
		responses.WriteSuccess(w, out)
	}
}
