package fulfillment

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/giftflow-backend/pkg/db/models"
	"github.com/angelmondragon/giftflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/giftflow-backend/pkg/errors"
	"github.com/angelmondragon/giftflow-backend/pkg/types"
	"github.com/angelmondragon/giftflow-backend/pkg/zinc"
)

const (
	shippingOrderBy = "price"
	shippingMaxDays = 5
)

// RequestOptions are the per-call inputs to BuildRequest.
type RequestOptions struct {
	Retailer       string
	MaxPriceBuffer decimal.Decimal
	WebhookURL     string
	TestMode       bool
	Trigger        enums.TriggerSource
}

// BuildRequest maps an order and resolved credentials onto a marketplace order request.
// It returns an error instead of a partially filled request.
func BuildRequest(order *models.Order, creds *Credentials, opts RequestOptions) (zinc.OrderRequest, error) {
	if order == nil || creds == nil {
		return zinc.OrderRequest{}, pkgerrors.New(pkgerrors.CodeInternal, "order and credentials are required")
	}
	if len(order.Items) == 0 {
		return zinc.OrderRequest{}, pkgerrors.New(pkgerrors.CodeValidation, "order has no line items")
	}
	if err := order.ShippingAddress.Validate(); err != nil {
		return zinc.OrderRequest{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "shipping address incomplete")
	}

	products := make([]zinc.Product, 0, len(order.Items))
	for _, item := range order.Items {
		productID := strings.TrimSpace(item.ProductID)
		if productID == "" || item.Quantity <= 0 {
			return zinc.OrderRequest{}, pkgerrors.New(pkgerrors.CodeValidation,
				fmt.Sprintf("line item %d is missing a product id or quantity", item.Position))
		}
		products = append(products, zinc.Product{ProductID: productID, Quantity: item.Quantity})
	}

	billing := order.ShippingAddress
	switch {
	case creds.BillingAddress != nil && !creds.BillingAddress.IsZero():
		billing = *creds.BillingAddress
	case order.BillingAddress != nil && !order.BillingAddress.IsZero():
		billing = *order.BillingAddress
	}

	req := zinc.OrderRequest{
		Retailer:        opts.Retailer,
		Products:        products,
		MaxPrice:        maxPriceCents(order, opts),
		ShippingAddress: toZincAddress(order.ShippingAddress),
		BillingAddress:  toZincAddress(billing),
		IsGift:          order.IsGift || order.IsSurpriseGift,
		Shipping: &zinc.ShippingPreference{
			OrderBy:  shippingOrderBy,
			MaxDays:  shippingMaxDays,
			MaxPrice: toCents(withBuffer(order.ShippingCost, opts.MaxPriceBuffer)),
		},
		PaymentMethod:  creds.PaymentMethod,
		IdempotencyKey: order.ID.String(),
		ClientNotes: map[string]string{
			"order_id":     order.ID.String(),
			"order_number": order.OrderNumber,
			"trigger":      string(opts.Trigger),
		},
	}
	if creds.Retailer.Email != "" {
		retailer := creds.Retailer
		req.RetailerCredentials = &retailer
	}
	if req.IsGift && order.GiftMessage != nil {
		req.GiftMessage = strings.TrimSpace(*order.GiftMessage)
	}
	if opts.WebhookURL != "" {
		req.Webhooks = &zinc.Webhooks{
			RequestSucceeded: opts.WebhookURL,
			RequestFailed:    opts.WebhookURL,
			TrackingObtained: opts.WebhookURL,
		}
	}
	return req, nil
}

// maxPriceCents caps what the marketplace may charge. Zero asks the marketplace to
// validate the order without placing it.
func maxPriceCents(order *models.Order, opts RequestOptions) int64 {
	if opts.TestMode {
		return 0
	}
	base := order.Subtotal.Add(order.ShippingCost).Add(order.TaxAmount)
	return toCents(withBuffer(base, opts.MaxPriceBuffer))
}

func withBuffer(amount, buffer decimal.Decimal) decimal.Decimal {
	if !buffer.IsPositive() {
		return amount
	}
	return amount.Mul(decimal.NewFromInt(1).Add(buffer))
}

func toCents(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Ceil().IntPart()
}

func toZincAddress(addr types.ShippingAddress) zinc.Address {
	first, last := addr.SplitName()
	return zinc.Address{
		FirstName:    first,
		LastName:     last,
		AddressLine1: strings.TrimSpace(addr.Line1),
		AddressLine2: strings.TrimSpace(addr.Line2),
		ZipCode:      strings.TrimSpace(addr.PostalCode),
		City:         strings.TrimSpace(addr.City),
		State:        strings.TrimSpace(addr.State),
		Country:      addr.CountryOrDefault(),
		PhoneNumber:  strings.TrimSpace(addr.Phone),
	}
}

// Redacted returns a copy of req that is safe to log.
func Redacted(req zinc.OrderRequest) zinc.OrderRequest {
	out := req
	if out.PaymentMethod.Number != "" {
		n := out.PaymentMethod.Number
		if len(n) > 4 {
			n = n[len(n)-4:]
		}
		out.PaymentMethod.Number = "****" + n
	}
	if out.PaymentMethod.SecurityCode != "" {
		out.PaymentMethod.SecurityCode = "***"
	}
	if out.RetailerCredentials != nil {
		creds := *out.RetailerCredentials
		creds.Password = "***"
		if creds.TOTP2FAKey != "" {
			creds.TOTP2FAKey = "***"
		}
		out.RetailerCredentials = &creds
	}
	return out
}
