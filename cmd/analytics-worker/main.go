package main

import (
	"context"
	"errors"

	"github.com/angelmondragon/giftflow-backend/internal/analytics"
	"github.com/angelmondragon/giftflow-backend/pkg/bigquery"
	"github.com/angelmondragon/giftflow-backend/pkg/boot"
	"github.com/angelmondragon/giftflow-backend/pkg/dedupe"
)

func main() {
	p := boot.Start("analytics-worker")
	cfg := p.Config

	redisClient := p.Redis()
	pubsubClient := p.PubSub()

	bq, err := bigquery.NewClient(context.Background(), cfg.GCP, cfg.BigQuery, p.Log)
	p.Must("bigquery", err)
	p.OnClose("bigquery", bq.Close)

	subscription := pubsubClient.AnalyticsSubscription()
	if subscription == nil {
		p.Must("analytics subscription", errors.New("GIFTFLOW_PUBSUB_ANALYTICS_SUBSCRIPTION is not set"))
	}

	claims, err := dedupe.New(redisClient, dedupe.ConsumerScope(analytics.ConsumerName), cfg.Eventing.OutboxIdempotencyTTL)
	p.Must("dedupe guard", err)

	ingest, err := analytics.NewService(analytics.Params{
		Subscription: subscription,
		Warehouse:    bq,
		Table:        bq.OrderEventsTable(),
		Claims:       claims,
		Logger:       p.Log,
	})
	p.Must("analytics service", err)

	ctx, stop := p.Context()
	defer stop()
	p.Run(ctx, boot.Supervisor{
		Log: p.Log,
		Checks: []boot.Check{
			{Name: "redis", Ping: redisClient.Ping},
			{Name: "bigquery", Ping: bq.Ping},
		},
		Tasks: []boot.Task{{Name: analytics.ConsumerName, Run: ingest.Run}},
	}.Run)
}
