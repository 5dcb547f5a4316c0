package main

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/giftflow-backend/internal/bootstrap"
	"github.com/angelmondragon/giftflow-backend/internal/cron"
	"github.com/angelmondragon/giftflow-backend/pkg/boot"
	"github.com/angelmondragon/giftflow-backend/pkg/metrics"
	"github.com/angelmondragon/giftflow-backend/pkg/outbox"
)

const lockKeyFormat = "gf:cron-worker:lock:%s"

func main() {
	p := boot.Start("cron-worker")
	cfg := p.Config

	dbClient := p.Database()
	redisClient := p.Redis()

	lock, err := cron.NewRedisLock(redisClient, lockKey(cfg.App.Env), cfg.Cron.LockTTL)
	p.Must("cron lock", err)

	services, err := bootstrap.NewFulfillment(bootstrap.Params{
		Config:     cfg,
		Logger:     p.Log,
		DB:         dbClient,
		Redis:      redisClient,
		Registerer: prometheus.DefaultRegisterer,
	})
	p.Must("fulfillment services", err)

	release, err := cron.NewScheduledReleaseJob(cron.ScheduledReleaseJobParams{
		Logger:    p.Log,
		DB:        dbClient,
		Orders:    services.Orders,
		Outbox:    services.Outbox,
		Submitter: services.Submitter,
		Policy:    services.Policy,
		BatchSize: cfg.Recovery.ReleaseBatch,
	})
	p.Must("scheduled release job", err)

	sweep, err := cron.NewStuckOrderRecoveryJob(cron.StuckOrderRecoveryJobParams{
		Logger:   p.Log,
		Recovery: services.Recovery,
		MinAge:   cfg.Recovery.SweepMinAge,
	})
	p.Must("stuck order recovery job", err)

	retention, err := cron.NewOutboxPruneJob(cron.OutboxPruneJobParams{
		Logger:    p.Log,
		Outbox:    outbox.NewRepository(dbClient.DB()),
		Retention: cfg.Outbox.Retention,
	})
	p.Must("outbox prune job", err)

	scheduler, err := cron.NewService(cron.ServiceParams{
		Logger:   p.Log,
		Jobs:     []cron.Job{release, sweep, retention},
		Lock:     lock,
		Metrics:  metrics.NewJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cron.Interval,
	})
	p.Must("cron service", err)

	ctx, stop := p.Context()
	defer stop()
	p.Run(ctx, scheduler.Run)
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}
