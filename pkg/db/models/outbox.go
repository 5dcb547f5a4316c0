package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/giftflow-backend/pkg/enums"
)

// OutboxEvent is a pending order event written in the same transaction as the
// state change it describes. The relay sets PublishedAt once Pub/Sub accepts it.
type OutboxEvent struct {
	ID            uuid.UUID                 `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	EventType     enums.OutboxEventType     `gorm:"type:event_type_enum;not null"`
	AggregateType enums.OutboxAggregateType `gorm:"type:aggregate_type_enum;not null"`
	AggregateID   uuid.UUID                 `gorm:"type:uuid;not null;index:idx_outbox_events_event_aggregate"`
	Payload       json.RawMessage           `gorm:"type:jsonb;not null"`
	AttemptCount  int                       `gorm:"not null;default:0"`
	LastError     *string
	CreatedAt     time.Time `gorm:"autoCreateTime"`
	PublishedAt   *time.Time
}

func (OutboxEvent) TableName() string { return "outbox_events" }

// OutboxDLQ keeps a copy of an event the relay gave up on, for the recovery panel.
type OutboxDLQ struct {
	ID            uuid.UUID                  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	EventID       uuid.UUID                  `gorm:"type:uuid;not null;uniqueIndex:ux_outbox_dlq_event_id"`
	EventType     enums.OutboxEventType      `gorm:"type:event_type_enum;not null"`
	AggregateType enums.OutboxAggregateType  `gorm:"type:aggregate_type_enum;not null"`
	AggregateID   uuid.UUID                  `gorm:"type:uuid;not null"`
	Topic         string                     `gorm:"not null;default:''"`
	Payload       json.RawMessage            `gorm:"column:payload_json;type:jsonb;not null"`
	ErrorReason   enums.OutboxDLQErrorReason `gorm:"type:outbox_dlq_error_reason_enum;not null"`
	ErrorMessage  *string
	AttemptCount  int       `gorm:"not null;default:0"`
	FailedAt      time.Time `gorm:"autoCreateTime"`
	CreatedAt     time.Time `gorm:"autoCreateTime"`
}

func (OutboxDLQ) TableName() string { return "outbox_dlq" }
