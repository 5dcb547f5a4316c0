package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/giftflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/giftflow-backend/pkg/errors"
	"github.com/angelmondragon/giftflow-backend/pkg/logger"
	"github.com/angelmondragon/giftflow-backend/pkg/mailer"
	"github.com/angelmondragon/giftflow-backend/pkg/outbox"
	"github.com/angelmondragon/giftflow-backend/pkg/outbox/payloads"
)

// ConsumerName scopes this consumer's dedupe keys.
const ConsumerName = "order-emails"

type sender interface {
	Send(ctx context.Context, msg mailer.Message) error
}

type claimer interface {
	Claim(ctx context.Context, id string) (bool, error)
	Release(ctx context.Context, id string) error
}

// verdict is what happens to a delivered message.
type verdict int

const (
	ack verdict = iota
	nack
)

// Consumer emails customers about submitted and scheduled orders. It only
// reads events; order state belongs to the fulfillment pipeline.
type Consumer struct {
	mailer sender
	sub    *pubsub.Subscriber
	claims claimer
	logg   *logger.Logger
}

func NewConsumer(mail sender, sub *pubsub.Subscriber, claims claimer, logg *logger.Logger) (*Consumer, error) {
	switch {
	case mail == nil:
		return nil, errors.New("notifications: mailer required")
	case sub == nil:
		return nil, errors.New("notifications: subscription required")
	case claims == nil:
		return nil, errors.New("notifications: dedupe claims required")
	case logg == nil:
		return nil, errors.New("notifications: logger required")
	}
	return &Consumer{mailer: mail, sub: sub, claims: claims, logg: logg}, nil
}

// Run receives until ctx ends.
func (c *Consumer) Run(ctx context.Context) error {
	return c.sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if c.handle(ctx, msg) == nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

func (c *Consumer) handle(ctx context.Context, msg *pubsub.Message) verdict {
	eventType := enums.OutboxEventType(msg.Attributes["event_type"])
	ctx = c.logg.WithFields(ctx, map[string]any{"message_id": msg.ID, "event_type": eventType})

	if !emailed(eventType) {
		return ack
	}

	var env outbox.PayloadEnvelope
	if err := json.Unmarshal(msg.Data, &env); err != nil {
		c.logg.Error(ctx, "undecodable order event dropped", err)
		return ack
	}
	eventID, err := uuid.Parse(env.EventID)
	if err != nil {
		c.logg.Error(ctx, "order event without valid id dropped", err)
		return ack
	}
	ctx = c.logg.WithField(ctx, "event_id", eventID.String())

	// payload problems do not heal on redelivery, so check before claiming
	mails, err := compose(eventType, env.Data)
	if err != nil {
		c.logg.Error(ctx, "order event payload unusable", err)
		return ack
	}

	first, err := c.claims.Claim(ctx, eventID.String())
	if err != nil {
		c.logg.Error(ctx, "claim order event", err)
		return nack
	}
	if !first {
		c.logg.Info(ctx, "order event already handled")
		return ack
	}

	for _, m := range mails {
		err := c.mailer.Send(ctx, m)
		if err == nil {
			continue
		}
		failCtx := c.logg.WithField(ctx, "subject", m.Subject)
		if pkgerrors.IsPermanent(err) {
			c.logg.Error(failCtx, "order email rejected, not retrying", err)
			return ack
		}
		c.logg.Error(failCtx, "order email failed", err)
		if relErr := c.claims.Release(ctx, eventID.String()); relErr != nil {
			c.logg.Warn(c.logg.WithField(failCtx, "release_error", relErr.Error()), "claim release failed; redelivery will be skipped until it expires")
		}
		return nack
	}
	c.logg.Info(c.logg.WithField(ctx, "emails", len(mails)), "order emails sent")
	return ack
}

func emailed(t enums.OutboxEventType) bool {
	return t == enums.EventOrderSubmitted || t == enums.EventOrderScheduled
}

func compose(eventType enums.OutboxEventType, data json.RawMessage) ([]mailer.Message, error) {
	switch eventType {
	case enums.EventOrderSubmitted:
		var ev payloads.OrderSubmittedEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, err
		}
		if err := addressable(ev.OrderRef); err != nil {
			return nil, err
		}
		return []mailer.Message{orderConfirmation(ev.OrderRef), orderReceipt(ev.OrderRef)}, nil
	case enums.EventOrderScheduled:
		var ev payloads.OrderScheduledEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, err
		}
		if err := addressable(ev.OrderRef); err != nil {
			return nil, err
		}
		return []mailer.Message{scheduledNotice(ev)}, nil
	}
	return nil, nil
}

func addressable(ref payloads.OrderRef) error {
	if ref.CustomerEmail == "" {
		return fmt.Errorf("order %s has no customer email", ref.OrderNumber)
	}
	return nil
}
