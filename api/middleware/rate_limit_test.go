package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/require"
)

type windowCounts struct {
	hits map[string]int64
	err  error
}

func (c *windowCounts) WindowAllow(_ context.Context, scope string, limit int64, _ time.Duration, _ time.Time) (bool, int64, error) {
	if c.err != nil {
		return false, 0, c.err
	}
	c.hits[scope]++
	return c.hits[scope] <= limit, c.hits[scope], nil
}

func limited(counter WindowCounter, limit int, window time.Duration) http.Handler {
	return chimw.RealIP(PerIP("verify-session", limit, window, counter, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})))
}

func TestPerIPBlocksAfterLimit(t *testing.T) {
	counts := &windowCounts{hits: map[string]int64{}}
	h := limited(counts, 2, time.Minute)

	codes := make([]int, 0, 3)
	for range 3 {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.RemoteAddr = "1.2.3.4:5678"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
		if rec.Code == http.StatusTooManyRequests {
			require.NotEmpty(t, rec.Header().Get("Retry-After"))
		}
	}
	require.Equal(t, []int{200, 200, 429}, codes)
}

func TestPerIPKeysOnForwardedClient(t *testing.T) {
	counts := &windowCounts{hits: map[string]int64{}}
	h := limited(counts, 5, time.Minute)

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("X-Forwarded-For", "5.6.7.8, 10.0.0.1")
	h.ServeHTTP(httptest.NewRecorder(), req)

	require.Equal(t, int64(1), counts.hits["ip:verify-session:5.6.7.8"])
}

func TestPerIPDisabledAndFailing(t *testing.T) {
	counts := &windowCounts{hits: map[string]int64{}}
	rec := httptest.NewRecorder()
	limited(counts, 0, 0).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, counts.hits)

	rec = httptest.NewRecorder()
	limited(&windowCounts{err: errors.New("redis down")}, 1, time.Minute).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
