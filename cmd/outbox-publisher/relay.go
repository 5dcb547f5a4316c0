package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"gorm.io/gorm"

	"github.com/angelmondragon/giftflow-backend/pkg/db/models"
	"github.com/angelmondragon/giftflow-backend/pkg/enums"
	"github.com/angelmondragon/giftflow-backend/pkg/metrics"
	"github.com/angelmondragon/giftflow-backend/pkg/outbox/registry"
)

// delivery is the result of pushing one outbox row.
type delivery struct {
	event    models.OutboxEvent
	resolved *registry.ResolvedEvent
	err      error
	reason   enums.OutboxDLQErrorReason
}

func (d delivery) topic() string {
	if d.resolved == nil {
		return ""
	}
	return d.resolved.Descriptor.Topic
}

// processBatch claims one batch of unpublished rows, publishes them in order and
// records each outcome inside the claiming transaction.
func (s *Service) processBatch(ctx context.Context) (bool, error) {
	var claimed bool
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := s.repo.FetchUnpublishedForPublish(tx, s.batchSize, s.maxAttempts)
		if err != nil {
			return err
		}
		claimed = len(events) > 0
		for _, event := range events {
			if err := s.settle(ctx, tx, s.deliver(ctx, event)); err != nil {
				return err
			}
		}
		return nil
	})
	return claimed, err
}

func (s *Service) deliver(ctx context.Context, event models.OutboxEvent) delivery {
	d := delivery{event: event}
	d.resolved, d.err = s.registry.Resolve(event)
	if d.err != nil {
		d.reason = enums.OutboxDLQReasonNonRetryable
		return d
	}

	d.err = s.publishResolved(ctx, event, d.resolved)
	switch {
	case d.err == nil:
	case errors.Is(d.err, registry.ErrPermanent):
		d.reason = enums.OutboxDLQReasonNonRetryable
	case event.AttemptCount+1 >= s.maxAttempts:
		d.reason = enums.OutboxDLQReasonMaxAttempts
		d.err = fmt.Errorf("max publish attempts reached: %w", d.err)
	}
	return d
}

func (s *Service) settle(ctx context.Context, tx *gorm.DB, d delivery) error {
	eventType := string(d.event.EventType)
	logCtx := s.logg.WithFields(ctx, s.logFields(d))

	switch {
	case d.err == nil:
		if err := s.repo.MarkPublishedTx(tx, d.event.ID); err != nil {
			return fmt.Errorf("mark published %s: %w", d.event.ID, err)
		}
		s.metrics.Inc(metrics.OutboxPublished, eventType)
		s.logg.Info(logCtx, "outbox event published")

	case d.reason != "":
		s.logg.Warn(s.logg.WithField(logCtx, "error", d.err.Error()), "outbox event will not be retried")
		if err := s.dlq.InsertTx(tx, s.deadLetter(d)); err != nil {
			return fmt.Errorf("insert dlq %s: %w", d.event.ID, err)
		}
		if err := s.repo.MarkTerminalTx(tx, d.event.ID, d.err); err != nil {
			return fmt.Errorf("mark terminal %s: %w", d.event.ID, err)
		}
		s.metrics.Inc(metrics.OutboxDeadLettered, eventType)

	default:
		s.logg.Warn(s.logg.WithField(logCtx, "error", d.err.Error()), "outbox publish failed")
		if err := s.repo.MarkFailedTx(tx, d.event.ID, d.err); err != nil {
			return fmt.Errorf("mark failure %s: %w", d.event.ID, err)
		}
		s.metrics.Inc(metrics.OutboxRetried, eventType)
	}
	return nil
}

func (s *Service) deadLetter(d delivery) models.OutboxDLQ {
	msg := d.err.Error()
	return models.OutboxDLQ{
		EventID:       d.event.ID,
		EventType:     d.event.EventType,
		AggregateType: d.event.AggregateType,
		AggregateID:   d.event.AggregateID,
		Topic:         d.topic(),
		Payload:       d.event.Payload,
		ErrorReason:   d.reason,
		ErrorMessage:  &msg,
		AttemptCount:  d.event.AttemptCount,
		FailedAt:      s.now().UTC(),
	}
}

// publishResolved sends the stored payload unchanged. Messages share the
// aggregate id as ordering key so consumers see one order's events in sequence.
func (s *Service) publishResolved(ctx context.Context, event models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	topic := resolved.Descriptor.Topic
	pub := s.publishers(topic)
	if pub == nil {
		return registry.Permanent(fmt.Errorf("publisher not configured for topic %s", topic))
	}

	publishCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	result := pub.Publish(publishCtx, &gcppubsub.Message{
		Data:        event.Payload,
		OrderingKey: event.AggregateID.String(),
		Attributes:  messageAttributes(event, resolved),
	})
	if result == nil {
		return registry.Permanent(fmt.Errorf("publisher returned nil for topic %s", topic))
	}
	_, err := result.Get(publishCtx)
	return err
}

func messageAttributes(event models.OutboxEvent, resolved *registry.ResolvedEvent) map[string]string {
	return map[string]string{
		"event_id":       resolved.Envelope.EventID,
		"event_type":     string(event.EventType),
		"aggregate_type": string(event.AggregateType),
		"aggregate_id":   event.AggregateID.String(),
		"schema_version": strconv.Itoa(resolved.Envelope.Version),
		"created_at":     event.CreatedAt.Format(time.RFC3339Nano),
	}
}

func (s *Service) logFields(d delivery) map[string]any {
	fields := map[string]any{
		"outbox_id":      d.event.ID.String(),
		"event_type":     d.event.EventType,
		"aggregate_type": d.event.AggregateType,
		"aggregate_id":   d.event.AggregateID.String(),
		"attempt_count":  d.event.AttemptCount,
	}
	if topic := d.topic(); topic != "" {
		fields["topic"] = topic
	}
	if d.resolved != nil && d.resolved.Envelope.EventID != "" {
		fields["event_id"] = d.resolved.Envelope.EventID
	}
	if d.reason != "" {
		fields["error_reason"] = d.reason
	}
	if d.event.LastError != nil {
		fields["last_error"] = *d.event.LastError
	}
	return fields
}
