package main

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/giftflow-backend/pkg/boot"
	"github.com/angelmondragon/giftflow-backend/pkg/metrics"
	"github.com/angelmondragon/giftflow-backend/pkg/outbox"
	"github.com/angelmondragon/giftflow-backend/pkg/outbox/registry"
)

func main() {
	p := boot.Start("outbox-publisher")

	dbClient := p.Database()
	pubsubClient := p.PubSub()

	events, err := registry.NewEventRegistry(p.Config.PubSub)
	p.Must("event registry", err)

	relay, err := NewService(ServiceParams{
		Config:     p.Config.Outbox,
		Logger:     p.Log,
		DB:         dbClient,
		Repository: outbox.NewRepository(dbClient.DB()),
		DLQ:        outbox.NewDLQRepository(dbClient.DB()),
		Registry:   events,
		Publishers: orderedPublishers(pubsubClient),
		Metrics:    metrics.NewOutboxMetrics(prometheus.DefaultRegisterer),
	})
	p.Must("outbox publisher", err)

	ctx, stop := p.Context()
	defer stop()
	p.Run(ctx, boot.Supervisor{
		Log: p.Log,
		Checks: []boot.Check{
			{Name: "database", Ping: dbClient.Ping},
			{Name: "pubsub", Ping: pubsubClient.Ping},
		},
		Tasks: []boot.Task{{Name: "outbox-relay", Run: relay.Run}},
	}.Run)
}
