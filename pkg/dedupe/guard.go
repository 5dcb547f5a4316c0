// Package dedupe suppresses repeated handling of externally delivered events
// such as Stripe webhooks and Pub/Sub redeliveries.
package dedupe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/giftflow-backend/pkg/redis"
)

// Guard claims ids under gf:idempotency:<scope>:<id>. A claim lasts for ttl,
// or forever when ttl is zero.
type Guard struct {
	store redis.IdempotencyStore
	scope string
	ttl   time.Duration
	now   func() time.Time
}

func New(store redis.IdempotencyStore, scope string, ttl time.Duration) (*Guard, error) {
	scope = strings.TrimSpace(scope)
	switch {
	case store == nil:
		return nil, errors.New("idempotency store is required")
	case scope == "":
		return nil, errors.New("dedupe scope is required")
	case ttl < 0:
		return nil, errors.New("ttl must be non-negative")
	}
	return &Guard{store: store, scope: scope, ttl: ttl, now: time.Now}, nil
}

// ConsumerScope names the scope for a Pub/Sub consumer.
func ConsumerScope(consumer string) string {
	return "evt:processed:" + consumer
}

// Claim reports true when this caller is the first to see id. The stored value
// is the claim time, which helps when inspecting keys by hand.
func (g *Guard) Claim(ctx context.Context, id string) (bool, error) {
	key, err := g.key(id)
	if err != nil {
		return false, err
	}
	first, err := g.store.SetNX(ctx, key, g.now().UTC().Format(time.RFC3339), g.ttl)
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", key, err)
	}
	return first, nil
}

// Release drops a claim so a failed attempt can be redelivered.
func (g *Guard) Release(ctx context.Context, id string) error {
	key, err := g.key(id)
	if err != nil {
		return err
	}
	return g.store.Del(ctx, key)
}

func (g *Guard) key(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", errors.New("event id is required")
	}
	return g.store.IdempotencyKey(g.scope, id), nil
}
