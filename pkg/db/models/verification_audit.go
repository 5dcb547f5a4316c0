package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/giftflow-backend/pkg/enums"
)

// VerificationAudit records one attempt to reconcile a checkout session to an order.
type VerificationAudit struct {
	ID                uuid.UUID                `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID           *uuid.UUID               `gorm:"column:order_id;type:uuid"`
	CheckoutSessionID string                   `gorm:"column:checkout_session_id;not null"`
	PaymentIntentID   *string                  `gorm:"column:payment_intent_id"`
	Method            enums.VerificationMethod `gorm:"column:method;type:verification_method;not null"`
	Status            enums.VerificationStatus `gorm:"column:status;type:verification_status;not null"`
	AttemptCount      int                      `gorm:"column:attempt_count;not null;default:1"`
	Metadata          json.RawMessage          `gorm:"column:metadata;type:jsonb"`
	CreatedAt         time.Time                `gorm:"column:created_at;autoCreateTime"`
	FinalizedAt       *time.Time               `gorm:"column:finalized_at"`
}
