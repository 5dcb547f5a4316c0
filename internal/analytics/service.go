package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/giftflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/giftflow-backend/pkg/errors"
	"github.com/angelmondragon/giftflow-backend/pkg/logger"
	"github.com/angelmondragon/giftflow-backend/pkg/outbox"
)

// ConsumerName scopes this consumer's dedupe keys.
const ConsumerName = "analytics"

type tableInserter interface {
	InsertRows(ctx context.Context, table string, rows []any) error
}

type claimer interface {
	Claim(ctx context.Context, id string) (bool, error)
	Release(ctx context.Context, id string) error
}

type Params struct {
	Subscription *gcppubsub.Subscriber
	Warehouse    tableInserter
	Table        string
	Claims       claimer
	Logger       *logger.Logger
}

// Service mirrors every order lifecycle event into one BigQuery row.
type Service struct {
	sub       *gcppubsub.Subscriber
	warehouse tableInserter
	table     string
	claims    claimer
	logg      *logger.Logger
}

func NewService(p Params) (*Service, error) {
	table := strings.TrimSpace(p.Table)
	var missing []string
	if p.Subscription == nil {
		missing = append(missing, "subscription")
	}
	if p.Warehouse == nil {
		missing = append(missing, "warehouse")
	}
	if table == "" {
		missing = append(missing, "table")
	}
	if p.Claims == nil {
		missing = append(missing, "claims")
	}
	if p.Logger == nil {
		missing = append(missing, "logger")
	}
	if len(missing) > 0 {
		return nil, errors.New("analytics: missing " + strings.Join(missing, ", "))
	}
	return &Service{sub: p.Subscription, warehouse: p.Warehouse, table: table, claims: p.Claims, logg: p.Logger}, nil
}

func (s *Service) Run(ctx context.Context) error {
	return s.sub.Receive(ctx, func(ctx context.Context, msg *gcppubsub.Message) {
		if s.ingest(ctx, msg) {
			msg.Ack()
			return
		}
		msg.Nack()
	})
}

// ingest reports whether msg is finished with. Bad input is acked and logged
// since redelivery would only fail again.
func (s *Service) ingest(ctx context.Context, msg *gcppubsub.Message) bool {
	eventType := enums.OutboxEventType(strings.TrimSpace(msg.Attributes["event_type"]))
	aggregateID := strings.TrimSpace(msg.Attributes["aggregate_id"])
	ctx = s.logg.WithFields(ctx, map[string]any{
		"message_id":   msg.ID,
		"event_type":   eventType,
		"aggregate_id": aggregateID,
	})

	row, eventID, err := decode(eventType, aggregateID, msg.Data)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "order event skipped")
		return true
	}
	ctx = s.logg.WithField(ctx, "event_id", eventID)

	first, err := s.claims.Claim(ctx, eventID)
	switch {
	case err != nil:
		s.logg.Error(ctx, "claim order event", err)
		return false
	case !first:
		s.logg.Debug(ctx, "order event already ingested")
		return true
	}

	err = s.warehouse.InsertRows(ctx, s.table, []any{row})
	switch {
	case err == nil:
		s.logg.Info(ctx, "order event ingested")
		return true
	case pkgerrors.IsPermanent(err):
		s.logg.Error(s.logg.WithField(ctx, "table", s.table), "order event row rejected", err)
		return true
	}

	s.logg.Error(s.logg.WithField(ctx, "table", s.table), "order event insert failed", err)
	if relErr := s.claims.Release(ctx, eventID); relErr != nil {
		s.logg.Warn(s.logg.WithField(ctx, "release_error", relErr.Error()), "claim release failed")
	}
	return false
}

func decode(eventType enums.OutboxEventType, aggregateID string, data []byte) (*OrderEventRow, string, error) {
	if !eventType.IsValid() {
		return nil, "", errors.New("event type not tracked")
	}
	var env outbox.PayloadEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, "", err
	}
	id, err := uuid.Parse(strings.TrimSpace(env.EventID))
	if err != nil {
		return nil, "", err
	}
	row, err := BuildRow(eventType, aggregateID, env)
	if err != nil {
		return nil, "", err
	}
	return row, id.String(), nil
}
