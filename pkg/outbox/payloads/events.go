package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/giftflow-backend/pkg/enums"
)

// OrderRef carries the identifying fields shared by every order event.
type OrderRef struct {
	OrderID       uuid.UUID       `json:"order_id"`
	OrderNumber   string          `json:"order_number"`
	UserID        uuid.UUID       `json:"user_id"`
	CustomerEmail string          `json:"customer_email"`
	CustomerName  string          `json:"customer_name,omitempty"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	Currency      string          `json:"currency"`
}

// OrderPaidEvent is emitted once a checkout session is verified as paid.
type OrderPaidEvent struct {
	OrderRef
	CheckoutSessionID  string                   `json:"checkout_session_id"`
	PaymentIntentID    string                   `json:"payment_intent_id,omitempty"`
	VerificationMethod enums.VerificationMethod `json:"verification_method"`
}

// OrderScheduledEvent is emitted when submission is deferred until closer to delivery.
type OrderScheduledEvent struct {
	OrderRef
	ScheduledDeliveryDate string `json:"scheduled_delivery_date"`
	ProcessingDate        string `json:"processing_date"`
	DaysUntilDelivery     int    `json:"days_until_delivery"`
}

// OrderReleasedEvent is emitted when a scheduled order enters its processing window.
type OrderReleasedEvent struct {
	OrderRef
	ScheduledDeliveryDate string    `json:"scheduled_delivery_date,omitempty"`
	ReleasedAt            time.Time `json:"released_at"`
}

// OrderSubmittedEvent is emitted after the marketplace accepts the order.
type OrderSubmittedEvent struct {
	OrderRef
	MarketplaceOrderID string              `json:"marketplace_order_id"`
	Trigger            enums.TriggerSource `json:"trigger"`
	TestMode           bool                `json:"test_mode"`
}

// OrderSubmissionFailedEvent covers guard blocks and marketplace rejections.
type OrderSubmissionFailedEvent struct {
	OrderRef
	Trigger   enums.TriggerSource `json:"trigger"`
	Reason    string              `json:"reason"`
	Blocked   bool                `json:"blocked"`
	BlockedBy string              `json:"blocked_by,omitempty"`
}

// OrderPaymentFailedEvent is emitted when verification finds the session unpaid.
type OrderPaymentFailedEvent struct {
	OrderRef
	CheckoutSessionID string `json:"checkout_session_id"`
	PaymentStatus     string `json:"payment_status"`
	Reason            string `json:"reason"`
}
