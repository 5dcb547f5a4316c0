package models

import (
	"time"

	"github.com/google/uuid"
)

// OrderFingerprint stores the duplicate-detection hash computed for an order.
type OrderFingerprint struct {
	OrderID     uuid.UUID `gorm:"column:order_id;type:uuid;primaryKey"`
	UserID      uuid.UUID `gorm:"column:user_id;type:uuid;not null"`
	Fingerprint string    `gorm:"column:fingerprint;not null"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
}
