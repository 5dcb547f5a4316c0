package enums

// OrderStatus is the fulfillment lifecycle of an order.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusScheduled  OrderStatus = "scheduled"
	OrderStatusSubmitted  OrderStatus = "submitted"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusFailed     OrderStatus = "failed"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

var orderStatuses = newSet("order status",
	OrderStatusPending, OrderStatusProcessing, OrderStatusScheduled, OrderStatusSubmitted,
	OrderStatusShipped, OrderStatusDelivered, OrderStatusFailed, OrderStatusCancelled,
)

func (s OrderStatus) String() string { return string(s) }
func (s OrderStatus) IsValid() bool  { return orderStatuses.has(s) }

// Submittable reports whether an order in this status may be sent to the marketplace.
func (s OrderStatus) Submittable() bool {
	return s == OrderStatusPending || s == OrderStatusProcessing || s == OrderStatusFailed
}

// PaymentStatus is the provider-confirmed state of an order's payment.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusSucceeded PaymentStatus = "succeeded"
	PaymentStatusFailed    PaymentStatus = "failed"
)

var paymentStatuses = newSet("payment status", PaymentStatusPending, PaymentStatusSucceeded, PaymentStatusFailed)

func (p PaymentStatus) String() string { return string(p) }
func (p PaymentStatus) IsValid() bool  { return paymentStatuses.has(p) }

// TriggerSource tags what initiated a fulfillment submission. It is recorded for
// audit and only distinguishes retries for the guard layer.
type TriggerSource string

const (
	TriggerCheckout         TriggerSource = "checkout"
	TriggerWebhook          TriggerSource = "webhook"
	TriggerScheduledRelease TriggerSource = "scheduled_release"
	TriggerManualRecovery   TriggerSource = "manual_recovery"
	TriggerWebhookRecovery  TriggerSource = "webhook_recovery"
	TriggerAPI              TriggerSource = "api"
)

var triggerSources = newSet("trigger source",
	TriggerCheckout, TriggerWebhook, TriggerScheduledRelease,
	TriggerManualRecovery, TriggerWebhookRecovery, TriggerAPI,
)

func (t TriggerSource) String() string { return string(t) }
func (t TriggerSource) IsValid() bool  { return triggerSources.has(t) }

// IsRecovery reports whether the tag names a recovery re-entry. Tags are audit labels only.
func (t TriggerSource) IsRecovery() bool {
	return t == TriggerManualRecovery || t == TriggerWebhookRecovery
}

// OperatorOnly reports whether only operators and internal workers may use the tag.
func (t TriggerSource) OperatorOnly() bool {
	return t.IsRecovery() || t == TriggerScheduledRelease
}

func ParseTriggerSource(raw string) (TriggerSource, error) { return triggerSources.parse(raw) }
