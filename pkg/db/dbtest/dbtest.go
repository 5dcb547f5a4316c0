// Package dbtest provides an in-memory sqlite schema mirroring the goose migrations for repository tests.
package dbtest

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/angelmondragon/giftflow-backend/pkg/db/models"
	"github.com/angelmondragon/giftflow-backend/pkg/enums"
	"github.com/angelmondragon/giftflow-backend/pkg/types"
)

var schema = []string{
	`CREATE TABLE orders (
  id TEXT PRIMARY KEY,
  order_number TEXT NOT NULL UNIQUE,
  user_id TEXT NOT NULL,
  customer_email TEXT NOT NULL,
  customer_name TEXT,
  currency TEXT NOT NULL DEFAULT 'usd',
  subtotal TEXT NOT NULL,
  shipping_cost TEXT NOT NULL,
  tax_amount TEXT NOT NULL,
  gifting_fee TEXT NOT NULL,
  total_amount TEXT NOT NULL,
  checkout_session_id TEXT UNIQUE,
  payment_intent_id TEXT,
  payment_status TEXT NOT NULL DEFAULT 'pending',
  status TEXT NOT NULL DEFAULT 'pending',
  marketplace_order_id TEXT UNIQUE,
  marketplace_status TEXT,
  submission_started_at DATETIME,
  shipping_address TEXT NOT NULL,
  billing_address TEXT,
  scheduled_delivery_date DATETIME,
  delivery_groups TEXT,
  is_gift INTEGER NOT NULL DEFAULT 0,
  gift_message TEXT,
  is_surprise_gift INTEGER NOT NULL DEFAULT 0,
  retry_count INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
)`,
	`CREATE TABLE order_items (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  position INTEGER NOT NULL,
  product_id TEXT NOT NULL,
  product_name TEXT NOT NULL,
  quantity INTEGER NOT NULL,
  unit_price TEXT NOT NULL,
  created_at DATETIME
)`,
	`CREATE TABLE order_notes (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  author TEXT NOT NULL DEFAULT 'system',
  body TEXT NOT NULL,
  created_at DATETIME
)`,
	`CREATE TABLE verification_audits (
  id TEXT PRIMARY KEY,
  order_id TEXT,
  checkout_session_id TEXT NOT NULL,
  payment_intent_id TEXT,
  method TEXT NOT NULL,
  status TEXT NOT NULL,
  attempt_count INTEGER NOT NULL DEFAULT 1,
  metadata BLOB,
  created_at DATETIME,
  finalized_at DATETIME
)`,
	`CREATE TABLE user_order_trackings (
  user_id TEXT PRIMARY KEY,
  orders_this_hour INTEGER NOT NULL DEFAULT 0,
  hour_window_start DATETIME NOT NULL,
  orders_today INTEGER NOT NULL DEFAULT 0,
  day_window_start DATETIME NOT NULL,
  daily_spend TEXT NOT NULL DEFAULT '0',
  monthly_spend TEXT NOT NULL DEFAULT '0',
  month_window_start DATETIME NOT NULL,
  consecutive_failures INTEGER NOT NULL DEFAULT 0,
  last_order_at DATETIME,
  updated_at DATETIME
)`,
	`CREATE TABLE security_events (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  order_id TEXT,
  event_type TEXT NOT NULL,
  severity TEXT NOT NULL,
  details BLOB,
  created_at DATETIME
)`,
	`CREATE TABLE order_fingerprints (
  order_id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  fingerprint TEXT NOT NULL,
  created_at DATETIME
)`,
	`CREATE TABLE marketplace_accounts (
  id TEXT PRIMARY KEY,
  retailer TEXT NOT NULL,
  account_email TEXT NOT NULL,
  sealed_client_token TEXT NOT NULL,
  sealed_retailer_secrets TEXT NOT NULL,
  is_active INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME
)`,
	`CREATE TABLE business_payment_methods (
  id TEXT PRIMARY KEY,
  cardholder_name TEXT NOT NULL,
  sealed_card TEXT NOT NULL,
  exp_month INTEGER NOT NULL,
  exp_year INTEGER NOT NULL,
  billing_address TEXT,
  is_default INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
)`,
	`CREATE TABLE outbox_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload BLOB NOT NULL,
  created_at DATETIME,
  published_at DATETIME,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT
)`,
	`CREATE TABLE outbox_dlq (
  id TEXT PRIMARY KEY,
  event_id TEXT NOT NULL UNIQUE,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload_json BLOB NOT NULL,
  error_reason TEXT NOT NULL,
  error_message TEXT,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  failed_at DATETIME,
  created_at DATETIME
)`,
}

// Open returns a fresh in-memory database with every table created.
func Open(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:giftflow_%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	for _, stmt := range schema {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	// shared-cache memory databases vanish once the last connection closes
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return conn
}

// OrderOption customises a seeded order.
type OrderOption func(*models.Order)

// WithStatus sets the order and payment status.
func WithStatus(status enums.OrderStatus, payment enums.PaymentStatus) OrderOption {
	return func(o *models.Order) {
		o.Status = status
		o.PaymentStatus = payment
	}
}

// WithSession sets the checkout session id.
func WithSession(sessionID string) OrderOption {
	return func(o *models.Order) {
		o.CheckoutSessionID = &sessionID
	}
}

// WithPaymentIntent sets the payment intent id.
func WithPaymentIntent(intentID string) OrderOption {
	return func(o *models.Order) {
		o.PaymentIntentID = &intentID
	}
}

// WithUser sets the owning user.
func WithUser(userID uuid.UUID) OrderOption {
	return func(o *models.Order) {
		o.UserID = userID
	}
}

// WithTotals sets subtotal and total with no shipping, tax or fee.
func WithTotals(amount string) OrderOption {
	return func(o *models.Order) {
		o.Subtotal = decimal.RequireFromString(amount)
		o.ShippingCost = decimal.Zero
		o.TaxAmount = decimal.Zero
		o.GiftingFee = decimal.Zero
		o.TotalAmount = o.Subtotal
		if len(o.Items) == 1 {
			o.Items[0].UnitPrice = o.Subtotal
		}
	}
}

// WithCreatedAt backdates the order.
func WithCreatedAt(at time.Time) OrderOption {
	return func(o *models.Order) {
		o.CreatedAt = at.UTC()
		o.UpdatedAt = at.UTC()
	}
}

// WithDeliveryDate sets the order-level requested delivery date.
func WithDeliveryDate(date time.Time) OrderOption {
	return func(o *models.Order) {
		d := types.TruncateDay(date)
		o.ScheduledDeliveryDate = &d
	}
}

// WithDeliveryGroups sets per-package delivery metadata.
func WithDeliveryGroups(groups types.DeliveryGroups) OrderOption {
	return func(o *models.Order) {
		o.DeliveryGroups = groups
	}
}

// WithMarketplaceOrder marks the order as already accepted upstream.
func WithMarketplaceOrder(id string) OrderOption {
	return func(o *models.Order) {
		o.MarketplaceOrderID = &id
	}
}

// SeedOrder inserts a balanced single-item order.
func SeedOrder(t testing.TB, conn *gorm.DB, opts ...OrderOption) *models.Order {
	t.Helper()
	id := uuid.New()
	order := &models.Order{
		ID:            id,
		OrderNumber:   "GF-" + id.String()[:8],
		UserID:        uuid.New(),
		CustomerEmail: "buyer@example.com",
		Currency:      "usd",
		Subtotal:      decimal.RequireFromString("40.00"),
		ShippingCost:  decimal.RequireFromString("5.00"),
		TaxAmount:     decimal.RequireFromString("3.00"),
		GiftingFee:    decimal.RequireFromString("2.00"),
		TotalAmount:   decimal.RequireFromString("50.00"),
		PaymentStatus: enums.PaymentStatusPending,
		Status:        enums.OrderStatusPending,
		ShippingAddress: types.ShippingAddress{
			Name:       "Ada Lovelace",
			Line1:      "1 Analytical Way",
			City:       "Austin",
			State:      "TX",
			PostalCode: "78701",
			Country:    "US",
		},
		IsGift: true,
		Items: []models.OrderItem{{
			ID:          uuid.New(),
			OrderID:     id,
			Position:    0,
			ProductID:   "B00TEST123",
			ProductName: "Gift Mug",
			Quantity:    1,
			UnitPrice:   decimal.RequireFromString("40.00"),
		}},
	}
	for _, opt := range opts {
		opt(order)
	}
	if err := conn.Create(order).Error; err != nil {
		t.Fatalf("seed order: %v", err)
	}
	return order
}
