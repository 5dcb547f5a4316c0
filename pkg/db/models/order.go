package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/giftflow-backend/pkg/enums"
	"github.com/angelmondragon/giftflow-backend/pkg/types"
)

// Order is the canonical gift order reconciled from checkout through fulfillment.
type Order struct {
	ID                    uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderNumber           string                 `gorm:"column:order_number;not null;uniqueIndex"`
	UserID                uuid.UUID              `gorm:"column:user_id;type:uuid;not null"`
	CustomerEmail         string                 `gorm:"column:customer_email;not null"`
	CustomerName          *string                `gorm:"column:customer_name"`
	Currency              string                 `gorm:"column:currency;not null;default:'usd'"`
	Subtotal              decimal.Decimal        `gorm:"column:subtotal;type:numeric(12,2);not null"`
	ShippingCost          decimal.Decimal        `gorm:"column:shipping_cost;type:numeric(12,2);not null"`
	TaxAmount             decimal.Decimal        `gorm:"column:tax_amount;type:numeric(12,2);not null"`
	GiftingFee            decimal.Decimal        `gorm:"column:gifting_fee;type:numeric(12,2);not null"`
	TotalAmount           decimal.Decimal        `gorm:"column:total_amount;type:numeric(12,2);not null"`
	CheckoutSessionID     *string                `gorm:"column:checkout_session_id;uniqueIndex"`
	PaymentIntentID       *string                `gorm:"column:payment_intent_id"`
	PaymentStatus         enums.PaymentStatus    `gorm:"column:payment_status;type:payment_status;not null;default:'pending'"`
	Status                enums.OrderStatus      `gorm:"column:status;type:order_status;not null;default:'pending'"`
	MarketplaceOrderID    *string                `gorm:"column:marketplace_order_id"`
	MarketplaceStatus     *string                `gorm:"column:marketplace_status"`
	SubmissionStartedAt   *time.Time             `gorm:"column:submission_started_at"`
	ShippingAddress       types.ShippingAddress  `gorm:"column:shipping_address;type:jsonb;not null"`
	BillingAddress        *types.ShippingAddress `gorm:"column:billing_address;type:jsonb"`
	ScheduledDeliveryDate *time.Time             `gorm:"column:scheduled_delivery_date;type:date"`
	DeliveryGroups        types.DeliveryGroups   `gorm:"column:delivery_groups;type:jsonb"`
	IsGift                bool                   `gorm:"column:is_gift;not null;default:false"`
	GiftMessage           *string                `gorm:"column:gift_message"`
	IsSurpriseGift        bool                   `gorm:"column:is_surprise_gift;not null;default:false"`
	RetryCount            int                    `gorm:"column:retry_count;not null;default:0"`
	Items                 []OrderItem            `gorm:"foreignKey:OrderID"`
	CreatedAt             time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}

// ComponentsTotal sums the priced components that make up TotalAmount.
func (o Order) ComponentsTotal() decimal.Decimal {
	return o.Subtotal.Add(o.ShippingCost).Add(o.TaxAmount).Add(o.GiftingFee)
}

// TotalsBalanced reports whether TotalAmount matches its components at cent precision.
func (o Order) TotalsBalanced() bool {
	return o.ComponentsTotal().Round(2).Equal(o.TotalAmount.Round(2))
}

// PriorAttempt reports whether a submission was already tried for the order. A retry is
// recognised from this state, whatever trigger tag the caller sends.
func (o Order) PriorAttempt() bool {
	if o.Status == enums.OrderStatusFailed || o.RetryCount > 0 {
		return true
	}
	return o.MarketplaceStatus != nil && *o.MarketplaceStatus != ""
}

// HasMarketplaceOrder reports whether the order was already accepted upstream.
func (o Order) HasMarketplaceOrder() bool {
	return o.MarketplaceOrderID != nil && *o.MarketplaceOrderID != ""
}
