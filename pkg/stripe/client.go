package stripe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/checkout/session"

	"github.com/angelmondragon/giftflow-backend/pkg/config"
	"github.com/angelmondragon/giftflow-backend/pkg/logger"
)

const defaultTimeout = 20 * time.Second

// keyPrefixes lists the secret and restricted key prefixes accepted per environment.
var keyPrefixes = map[string][]string{
	"test": {"sk_test", "rk_test"},
	"live": {"sk_live", "rk_live"},
}

// Client retrieves checkout sessions and verifies webhook deliveries for one
// Stripe account. The session lookups go through the package-level backend,
// so NewClient also sets stripe.Key.
type Client struct {
	*Verifier
	environment string
}

func NewClient(ctx context.Context, cfg config.StripeConfig, logg *logger.Logger) (*Client, error) {
	env := cfg.Environment()
	prefixes, ok := keyPrefixes[env]
	if !ok {
		return nil, fmt.Errorf("stripe environment must be test or live, got %q", env)
	}

	apiKey := strings.TrimSpace(cfg.APIKey)
	switch {
	case apiKey == "":
		return nil, errors.New("stripe api key is required")
	case !hasAnyPrefix(apiKey, prefixes):
		return nil, fmt.Errorf("stripe %s environment requires a %s key", env, strings.Join(prefixes, "/"))
	}

	verifier, err := NewVerifier(cfg.Secret, cfg.WebhookTolerance)
	if err != nil {
		return nil, err
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	stripe.SetHTTPClient(&http.Client{Timeout: timeout})
	stripe.Key = apiKey

	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"stripe_env": env,
			"timeout":    timeout.String(),
		}), "stripe client initialized")
	}
	return &Client{Verifier: verifier, environment: env}, nil
}

// Environment reports "test" or "live".
func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.environment
}

// CheckoutSession fetches a session with its payment intent expanded.
func (c *Client) CheckoutSession(ctx context.Context, sessionID string) (*stripe.CheckoutSession, error) {
	if c == nil {
		return nil, errors.New("stripe client not configured")
	}
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	params.AddExpand("payment_intent")
	return session.Get(sessionID, params)
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
