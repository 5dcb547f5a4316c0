package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/giftflow-backend/pkg/errors"
)

const submitPath = "/api/v1/orders/submit"

type replayStore map[string]string

func (s replayStore) Get(_ context.Context, key string) (string, error) {
	v, ok := s[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (s replayStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := s[key]; ok {
		return false, nil
	}
	s[key], _ = value.(string)
	return true, nil
}

func (s replayStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(s, key)
	}
	return nil
}

func (s replayStore) IdempotencyKey(scope, id string) string {
	return "test:" + scope + ":" + id
}

// send routes one request through the middleware with a chi route context set.
func send(t *testing.T, h http.Handler, path, key, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	rctx := chi.NewRouteContext()
	rctx.RoutePatterns = []string{path}
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouteTTL(t *testing.T) {
	cases := map[string]struct {
		method string
		path   string
		ttl    time.Duration
	}{
		"submit":              {http.MethodPost, submitPath, submitIdempotencyTTL},
		"retry pattern":       {http.MethodPost, "/api/admin/v1/recovery/orders/{orderId}/retry", retryIdempotencyTTL},
		"retry concrete":      {http.MethodPost, "/api/admin/v1/recovery/orders/7d0c/retry", retryIdempotencyTTL},
		"retry without id":    {http.MethodPost, "/api/admin/v1/recovery/orders//retry", 0},
		"recovery list":       {http.MethodGet, "/api/admin/v1/recovery/orders", 0},
		"verify session":      {http.MethodPost, "/api/v1/checkout/verify-session", 0},
		"submit wrong method": {http.MethodGet, submitPath, 0},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			ttl, ok := routeTTL(tc.method, tc.path)
			require.Equal(t, tc.ttl != 0, ok)
			require.Equal(t, tc.ttl, ttl)
		})
	}
}

func TestIdempotencyRejectsMissingKey(t *testing.T) {
	ran := false
	h := Idempotency(replayStore{}, nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { ran = true }))

	rec := send(t, h, submitPath, "", `{"orderId":"o1"}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.False(t, ran)
}

func TestIdempotencyReplaysFirstResponse(t *testing.T) {
	calls := 0
	h := Idempotency(replayStore{}, nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"submitted":true}`))
	}))

	first := send(t, h, submitPath, "k-1", `{"orderId":"o1"}`)
	again := send(t, h, submitPath, "k-1", `{"orderId":"o1"}`)

	require.Equal(t, 1, calls)
	require.Equal(t, http.StatusAccepted, first.Code)
	require.Empty(t, first.Header().Get("Idempotent-Replayed"))
	require.Equal(t, http.StatusAccepted, again.Code)
	require.Equal(t, "true", again.Header().Get("Idempotent-Replayed"))
	require.Equal(t, "application/json", again.Header().Get("Content-Type"))
	require.JSONEq(t, `{"submitted":true}`, again.Body.String())
}

func TestIdempotencyConflictsOnDifferentBody(t *testing.T) {
	h := Idempotency(replayStore{}, nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	send(t, h, submitPath, "k-2", `{"orderId":"o1"}`)
	rec := send(t, h, submitPath, "k-2", `{"orderId":"o2"}`)

	require.Equal(t, http.StatusConflict, rec.Code)
	var env struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.Equal(t, string(pkgerrors.CodeConflict), env.Error.Code)
}

func TestIdempotencySkipsServerErrors(t *testing.T) {
	store := replayStore{}
	statuses := []int{http.StatusServiceUnavailable, http.StatusOK}
	calls := 0
	h := Idempotency(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(statuses[calls])
		calls++
	}))

	require.Equal(t, http.StatusServiceUnavailable, send(t, h, submitPath, "k-3", `{}`).Code)
	require.Empty(t, store)
	require.Equal(t, http.StatusOK, send(t, h, submitPath, "k-3", `{}`).Code)
	require.Equal(t, 2, calls)
	require.Len(t, store, 1)
}

func TestIdempotencySkipsInFlightConflicts(t *testing.T) {
	store := replayStore{}
	statuses := []int{http.StatusConflict, http.StatusOK}
	calls := 0
	h := Idempotency(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(statuses[calls])
		calls++
	}))

	require.Equal(t, http.StatusConflict, send(t, h, submitPath, "k-4", `{}`).Code)
	require.Empty(t, store)
	final := send(t, h, submitPath, "k-4", `{}`)
	require.Equal(t, http.StatusOK, final.Code)
	require.Empty(t, final.Header().Get("Idempotent-Replayed"))
	require.Equal(t, 2, calls)
}

func TestIdempotencyKeysAreScopedToRoute(t *testing.T) {
	store := replayStore{}
	h := Idempotency(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	send(t, h, submitPath, "shared", `{}`)
	send(t, h, "/api/admin/v1/recovery/orders/o9/retry", "shared", `{}`)

	require.Len(t, store, 2)
}

func TestIdempotencyPassesThroughOtherRoutes(t *testing.T) {
	ran := false
	h := Idempotency(replayStore{}, nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { ran = true }))

	rec := send(t, h, "/api/v1/checkout/verify-session", "", `{}`)

	require.True(t, ran)
	require.Equal(t, http.StatusOK, rec.Code)
}
