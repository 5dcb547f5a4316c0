package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/angelmondragon/giftflow-backend/api/responses"
	pkgerrors "github.com/angelmondragon/giftflow-backend/pkg/errors"
	"github.com/angelmondragon/giftflow-backend/pkg/logger"
)

// Trace tags the request with its id, writes one access log line when the
// handler returns and turns panics into a 500 envelope. Mount it after chi's RequestID.
func Trace(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			started := time.Now()
			ctx := r.Context()
			reqID := chimw.GetReqID(ctx)
			if reqID != "" {
				w.Header().Set(chimw.RequestIDHeader, reqID)
			}
			if logg != nil {
				ctx = logg.WithRequestID(ctx, reqID)
				ctx = logg.WithFields(ctx, map[string]any{"method": r.Method, "path": r.URL.Path})
			}
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					err := fmt.Errorf("panic: %v", rec)
					if logg != nil {
						logg.Error(logg.WithField(ctx, "stack", string(debug.Stack())), "handler panicked", err)
					}
					if ww.Status() == 0 {
						responses.WriteError(ctx, nil, ww, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "panic"))
					}
				}
				if logg == nil {
					return
				}
				status := ww.Status()
				if status == 0 {
					status = http.StatusOK
				}
				logg.Info(logg.WithFields(ctx, map[string]any{
					"status":      status,
					"bytes":       ww.BytesWritten(),
					"duration_ms": time.Since(started).Milliseconds(),
				}), "request complete")
			}()

			next.ServeHTTP(ww, r.WithContext(ctx))
		})
	}
}
