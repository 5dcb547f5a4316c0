package analytics

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"time"

	cbigquery "cloud.google.com/go/bigquery"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/giftflow-backend/pkg/enums"
	"github.com/angelmondragon/giftflow-backend/pkg/outbox"
)

// OrderEventRow is one row of the order events table.
type OrderEventRow struct {
	EventID       string               `bigquery:"event_id"`
	EventType     string               `bigquery:"event_type"`
	OrderID       string               `bigquery:"order_id"`
	OrderNumber   cbigquery.NullString `bigquery:"order_number"`
	UserID        cbigquery.NullString `bigquery:"user_id"`
	Amount        *big.Rat             `bigquery:"amount"`
	Currency      cbigquery.NullString `bigquery:"currency"`
	TriggerSource cbigquery.NullString `bigquery:"trigger_source"`
	OccurredAt    time.Time            `bigquery:"occurred_at"`
	Payload       cbigquery.NullJSON   `bigquery:"payload"`
}

// InsertID keys streaming inserts by event id.
func (r *OrderEventRow) InsertID() string {
	return r.EventID
}

// rowFields is the subset of every order payload the row promotes to columns.
type rowFields struct {
	OrderID     string              `json:"order_id"`
	OrderNumber string              `json:"order_number"`
	UserID      string              `json:"user_id"`
	TotalAmount *decimal.Decimal    `json:"total_amount"`
	Currency    string              `json:"currency"`
	Trigger     enums.TriggerSource `json:"trigger"`
}

// BuildRow flattens an order event envelope. aggregateID backs up a payload without order_id.
func BuildRow(eventType enums.OutboxEventType, aggregateID string, envelope outbox.PayloadEnvelope) (*OrderEventRow, error) {
	var fields rowFields
	if len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, &fields); err != nil {
			return nil, fmt.Errorf("decode payload: %w", err)
		}
	}

	orderID := strings.TrimSpace(fields.OrderID)
	if orderID == "" {
		orderID = strings.TrimSpace(aggregateID)
	}
	if orderID == "" {
		return nil, fmt.Errorf("order id missing")
	}

	trigger := fields.Trigger
	if trigger == "" && envelope.Actor != nil {
		trigger = envelope.Actor.Trigger
	}

	row := &OrderEventRow{
		EventID:       envelope.EventID,
		EventType:     string(eventType),
		OrderID:       orderID,
		OrderNumber:   nullString(fields.OrderNumber),
		UserID:        nullString(fields.UserID),
		Currency:      nullString(fields.Currency),
		TriggerSource: nullString(string(trigger)),
		OccurredAt:    envelope.OccurredAt.UTC(),
	}
	if fields.TotalAmount != nil {
		row.Amount = fields.TotalAmount.Rat()
	}
	if len(envelope.Data) > 0 {
		row.Payload = cbigquery.NullJSON{JSONVal: string(envelope.Data), Valid: true}
	}
	return row, nil
}

func nullString(value string) cbigquery.NullString {
	trimmed := strings.TrimSpace(value)
	return cbigquery.NullString{StringVal: trimmed, Valid: trimmed != ""}
}
