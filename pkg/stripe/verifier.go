package stripe

import (
	"errors"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"
)

// Verifier checks Stripe-Signature headers against the endpoint secret.
type Verifier struct {
	secret    string
	tolerance time.Duration
}

// NewVerifier builds a verifier. A non-positive tolerance uses the library default.
func NewVerifier(secret string, tolerance time.Duration) (*Verifier, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("stripe webhook secret is required")
	}
	if tolerance <= 0 {
		tolerance = webhook.DefaultTolerance
	}
	return &Verifier{secret: secret, tolerance: tolerance}, nil
}

// VerifyEvent authenticates the raw payload and decodes the event. Events
// pinned to a different API version are accepted; only the checkout session
// fields the service reads are decoded from them.
func (v *Verifier) VerifyEvent(payload []byte, header string) (stripe.Event, error) {
	if v == nil {
		return stripe.Event{}, errors.New("stripe verifier not configured")
	}
	return webhook.ConstructEventWithOptions(payload, header, v.secret, webhook.ConstructEventOptions{
		Tolerance:                v.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
}
