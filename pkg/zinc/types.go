package zinc

// OrderRequest is the body of POST /orders.
type OrderRequest struct {
	Retailer            string               `json:"retailer"`
	Products            []Product            `json:"products"`
	MaxPrice            int64                `json:"max_price"`
	ShippingAddress     Address              `json:"shipping_address"`
	BillingAddress      Address              `json:"billing_address"`
	IsGift              bool                 `json:"is_gift"`
	GiftMessage         string               `json:"gift_message,omitempty"`
	Shipping            *ShippingPreference  `json:"shipping,omitempty"`
	PaymentMethod       PaymentMethod        `json:"payment_method"`
	RetailerCredentials *RetailerCredentials `json:"retailer_credentials,omitempty"`
	Webhooks            *Webhooks            `json:"webhooks,omitempty"`
	ClientNotes         map[string]string    `json:"client_notes,omitempty"`
	IdempotencyKey      string               `json:"idempotency_key,omitempty"`
}

// Product is a single marketplace listing and quantity.
type Product struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// Address is the marketplace's address shape with the recipient name split.
type Address struct {
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	AddressLine1 string `json:"address_line1"`
	AddressLine2 string `json:"address_line2,omitempty"`
	ZipCode      string `json:"zip_code"`
	City         string `json:"city"`
	State        string `json:"state"`
	Country      string `json:"country"`
	PhoneNumber  string `json:"phone_number,omitempty"`
}

// ShippingPreference selects among the retailer's shipping options.
type ShippingPreference struct {
	OrderBy  string `json:"order_by"`
	MaxDays  int    `json:"max_days,omitempty"`
	MaxPrice int64  `json:"max_price"`
}

// PaymentMethod carries the card used for the purchase. Only NameOnCard is set
// when the card could not be resolved and the account's stored card is used.
type PaymentMethod struct {
	NameOnCard      string `json:"name_on_card"`
	Number          string `json:"number,omitempty"`
	SecurityCode    string `json:"security_code,omitempty"`
	ExpirationMonth int    `json:"expiration_month,omitempty"`
	ExpirationYear  int    `json:"expiration_year,omitempty"`
	UseGift         bool   `json:"use_gift"`
}

// HasCard reports whether full card details are present.
func (p PaymentMethod) HasCard() bool {
	return p.Number != "" && p.SecurityCode != "" && p.ExpirationMonth > 0 && p.ExpirationYear > 0
}

// RetailerCredentials authenticate the retailer account placing the order.
type RetailerCredentials struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	TOTP2FAKey string `json:"totp_2fa_key,omitempty"`
}

// Webhooks receive asynchronous order updates.
type Webhooks struct {
	RequestSucceeded string `json:"request_succeeded,omitempty"`
	RequestFailed    string `json:"request_failed,omitempty"`
	TrackingObtained string `json:"tracking_obtained,omitempty"`
}

// PlaceOrderResult is the accepted request returned by the marketplace.
type PlaceOrderResult struct {
	RequestID string
}
