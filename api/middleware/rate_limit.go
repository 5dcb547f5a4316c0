package middleware

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/angelmondragon/giftflow-backend/api/responses"
	pkgerrors "github.com/angelmondragon/giftflow-backend/pkg/errors"
	"github.com/angelmondragon/giftflow-backend/pkg/logger"
)

// WindowCounter counts hits in fixed, aligned windows.
type WindowCounter interface {
	WindowAllow(ctx context.Context, scope string, limit int64, window time.Duration, now time.Time) (bool, int64, error)
}

// PerIP limits each client address to limit requests per window. Mount chi's
// RealIP first when running behind a proxy. A zero limit or window disables it.
func PerIP(name string, limit int, window time.Duration, counter WindowCounter, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limit <= 0 || window <= 0 || counter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			ip := remoteHost(r.RemoteAddr)
			now := time.Now()

			allowed, count, err := counter.WindowAllow(ctx, "ip:"+name+":"+ip, int64(limit), window, now)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiting"))
				return
			}
			if !allowed {
				retry := now.Truncate(window).Add(window).Sub(now)
				w.Header().Set("Retry-After", strconv.Itoa(int(retry.Seconds())+1))
				if logg != nil {
					logg.Warn(logg.WithFields(ctx, map[string]any{
						"limiter": name,
						"ip":      ip,
						"count":   count,
						"limit":   limit,
					}), "rate limited")
				}
				responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "rate limit exceeded"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func remoteHost(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
