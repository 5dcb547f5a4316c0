package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/giftflow-backend/pkg/enums"
)

// SecurityEvent is an append-only guard finding.
type SecurityEvent struct {
	ID        uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID    uuid.UUID               `gorm:"column:user_id;type:uuid;not null"`
	OrderID   *uuid.UUID              `gorm:"column:order_id;type:uuid"`
	EventType enums.SecurityEventType `gorm:"column:event_type;type:security_event_type;not null"`
	Severity  enums.Severity          `gorm:"column:severity;type:security_severity;not null"`
	Details   json.RawMessage         `gorm:"column:details;type:jsonb"`
	CreatedAt time.Time               `gorm:"column:created_at;autoCreateTime"`
}
