package responses

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/giftflow-backend/pkg/errors"
	"github.com/angelmondragon/giftflow-backend/pkg/logger"
)

func decode(t *testing.T, rec *httptest.ResponseRecorder) Envelope {
	t.Helper()
	var env Envelope
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	return env
}

func TestWriteSuccessWrapsData(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteSuccess(rec, map[string]string{"status": "scheduled"})

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	env := decode(t, rec)
	require.Nil(t, env.Error)
	require.Equal(t, "scheduled", env.Data.(map[string]any)["status"])
}

func TestWriteError(t *testing.T) {
	cases := []struct {
		name        string
		err         error
		status      int
		code        pkgerrors.Code
		message     string
		wantDetails bool
	}{
		{
			name:        "validation exposes details",
			err:         pkgerrors.New(pkgerrors.CodeValidation, "bad input").WithDetails(map[string]string{"field": "orderId"}),
			status:      http.StatusBadRequest,
			code:        pkgerrors.CodeValidation,
			message:     "bad input",
			wantDetails: true,
		},
		{
			name:        "blocked order keeps guard details",
			err:         pkgerrors.New(pkgerrors.CodeOrderBlocked, "order blocked by cost limit").WithDetails(map[string]any{"blocked_by": []string{"cost"}}),
			status:      http.StatusUnprocessableEntity,
			code:        pkgerrors.CodeOrderBlocked,
			message:     "order blocked by cost limit",
			wantDetails: true,
		},
		{
			name:   "untyped error is hidden",
			err:    errors.New("pq: connection refused"),
			status: http.StatusInternalServerError,
			code:   pkgerrors.CodeInternal,
		},
		{
			name:   "nil error",
			status: http.StatusInternalServerError,
			code:   pkgerrors.CodeInternal,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			WriteError(context.Background(), nil, rec, tc.err)

			require.Equal(t, tc.status, rec.Code)
			env := decode(t, rec)
			require.NotNil(t, env.Error)
			require.Equal(t, string(tc.code), env.Error.Code)
			if tc.message != "" {
				require.Equal(t, tc.message, env.Error.Message)
			}
			require.NotContains(t, env.Error.Message, "pq:")
			require.Equal(t, tc.wantDetails, env.Error.Details != nil)
		})
	}
}

func TestWriteErrorLogsServerFailuresAtErrorLevel(t *testing.T) {
	var buf bytes.Buffer
	logg := logger.New(logger.Options{ServiceName: "responses-test", Output: &buf})

	WriteError(context.Background(), logg, httptest.NewRecorder(), pkgerrors.New(pkgerrors.CodeNotFound, "order not found"))
	require.Contains(t, buf.String(), `"level":"warn"`)

	buf.Reset()
	WriteError(context.Background(), logg, httptest.NewRecorder(), errors.New("boom"))
	require.Contains(t, buf.String(), `"level":"error"`)
}
