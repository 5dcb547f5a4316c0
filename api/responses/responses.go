// Package responses writes the JSON envelopes every API handler returns:
// {"data": ...} on success and {"error": {...}} otherwise.
package responses

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	zlog "github.com/rs/zerolog/log"

	pkgerrors "github.com/angelmondragon/giftflow-backend/pkg/errors"
	"github.com/angelmondragon/giftflow-backend/pkg/logger"
)

// Problem is the public shape of a failed request.
type Problem struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Envelope is the top-level response body. Exactly one field is set.
type Envelope struct {
	Data  any      `json:"data,omitempty"`
	Error *Problem `json:"error,omitempty"`
}

func WriteSuccess(w http.ResponseWriter, data any) {
	write(w, http.StatusOK, Envelope{Data: data})
}

// WriteError maps err onto its code's status and public message. Untyped
// errors become INTERNAL_ERROR and never leak their text.
func WriteError(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}
	typed := pkgerrors.As(err)
	if typed == nil {
		typed = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unexpected error")
	}
	policy := typed.Code().Policy()

	problem := &Problem{Code: string(typed.Code()), Message: policy.Fallback}
	if policy.Public && typed.Message() != "" {
		problem.Message = typed.Message()
	}
	if policy.Details {
		problem.Details = typed.Details()
	}

	if logg != nil {
		ctx = logg.WithFields(ctx, pkgerrors.Dump(err).Fields())
		if policy.Status >= http.StatusInternalServerError {
			logg.Error(ctx, "request failed", err)
		} else {
			logg.Warn(ctx, "request rejected")
		}
	}
	write(w, policy.Status, Envelope{Error: problem})
}

func write(w http.ResponseWriter, status int, body Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		zlog.Error().Err(err).Int("status", status).Msg("encode response")
	}
}
