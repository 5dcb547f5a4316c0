package middleware

import (
	"context"

	"github.com/angelmondragon/giftflow-backend/pkg/auth"
)

type callerKey struct{}

// WithCaller stores the authenticated identity on ctx.
func WithCaller(ctx context.Context, id auth.Identity) context.Context {
	return context.WithValue(ctx, callerKey{}, id)
}

// CallerFrom returns the identity set by Authenticate, if any.
func CallerFrom(ctx context.Context) (auth.Identity, bool) {
	id, ok := ctx.Value(callerKey{}).(auth.Identity)
	return id, ok
}

func callerID(ctx context.Context) string {
	if id, ok := CallerFrom(ctx); ok {
		return id.UserID.String()
	}
	return ""
}
