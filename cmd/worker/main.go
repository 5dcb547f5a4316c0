package main

import (
	"errors"

	"github.com/angelmondragon/giftflow-backend/internal/notifications"
	"github.com/angelmondragon/giftflow-backend/pkg/boot"
	"github.com/angelmondragon/giftflow-backend/pkg/dedupe"
	"github.com/angelmondragon/giftflow-backend/pkg/mailer"
)

func main() {
	p := boot.Start("worker")
	cfg := p.Config

	redisClient := p.Redis()
	pubsubClient := p.PubSub()

	subscription := pubsubClient.NotificationSubscription()
	if subscription == nil {
		p.Must("notification subscription", errors.New("GIFTFLOW_PUBSUB_NOTIFICATION_SUBSCRIPTION is not set"))
	}

	mail, err := mailer.NewClient(cfg.Sendgrid)
	p.Must("mailer", err)

	claims, err := dedupe.New(redisClient, dedupe.ConsumerScope(notifications.ConsumerName), cfg.Eventing.OutboxIdempotencyTTL)
	p.Must("dedupe guard", err)

	consumer, err := notifications.NewConsumer(mail, subscription, claims, p.Log)
	p.Must("notification consumer", err)

	ctx, stop := p.Context()
	defer stop()
	p.Run(ctx, boot.Supervisor{
		Log: p.Log,
		Checks: []boot.Check{
			{Name: "redis", Ping: redisClient.Ping},
			{Name: "pubsub", Ping: pubsubClient.Ping},
		},
		Tasks: []boot.Task{{Name: notifications.ConsumerName, Run: consumer.Run}},
	}.Run)
}
