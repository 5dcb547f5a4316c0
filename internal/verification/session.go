package verification

import (
	"context"
	"strings"

	pkgstripe "github.com/angelmondragon/giftflow-backend/pkg/stripe"
	"github.com/stripe/stripe-go/v84"
)

// Session is the provider-neutral view of a checkout session.
type Session struct {
	ID              string
	Status          string
	PaymentStatus   string
	PaymentIntentID string
	AmountTotal     int64
	Currency        string
	CustomerEmail   string
	Metadata        map[string]string
}

// Paid reports whether the provider considers the session settled.
func (s Session) Paid() bool {
	switch stripe.CheckoutSessionPaymentStatus(s.PaymentStatus) {
	case stripe.CheckoutSessionPaymentStatusPaid, stripe.CheckoutSessionPaymentStatusNoPaymentRequired:
		return true
	default:
		return false
	}
}

// SessionLookup retrieves checkout sessions from the payment provider.
type SessionLookup interface {
	GetSession(ctx context.Context, sessionID string) (*Session, error)
}

type stripeSessionLookup struct {
	api *pkgstripe.Client
}

// NewStripeSessionLookup adapts the configured Stripe client. A nil client yields a nil lookup.
func NewStripeSessionLookup(api *pkgstripe.Client) SessionLookup {
	if api == nil {
		return nil
	}
	return &stripeSessionLookup{api: api}
}

func (l *stripeSessionLookup) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	cs, err := l.api.CheckoutSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return FromStripe(cs), nil
}

// FromStripe converts a Stripe checkout session.
func FromStripe(cs *stripe.CheckoutSession) *Session {
	if cs == nil {
		return nil
	}
	out := &Session{
		ID:            cs.ID,
		Status:        string(cs.Status),
		PaymentStatus: string(cs.PaymentStatus),
		AmountTotal:   cs.AmountTotal,
		Currency:      string(cs.Currency),
		CustomerEmail: strings.TrimSpace(cs.CustomerEmail),
		Metadata:      cs.Metadata,
	}
	if cs.PaymentIntent != nil {
		out.PaymentIntentID = cs.PaymentIntent.ID
	}
	if out.CustomerEmail == "" && cs.CustomerDetails != nil {
		out.CustomerEmail = strings.TrimSpace(cs.CustomerDetails.Email)
	}
	return out
}
