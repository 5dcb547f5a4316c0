package main

import (
	"context"
	"errors"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"gorm.io/gorm"

	"github.com/angelmondragon/giftflow-backend/pkg/config"
	"github.com/angelmondragon/giftflow-backend/pkg/db/models"
	"github.com/angelmondragon/giftflow-backend/pkg/logger"
	"github.com/angelmondragon/giftflow-backend/pkg/metrics"
	"github.com/angelmondragon/giftflow-backend/pkg/outbox/registry"
)

const (
	publishTimeout = 15 * time.Second
	backoffCeiling = 10 * time.Second
	jitterPercent  = 20
)

type txRunner interface {
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type outboxRepository interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error) error
}

type dlqRepository interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type registryResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

type publisherFactory func(topic string) publisher

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

type ServiceParams struct {
	Config     config.OutboxConfig
	Logger     *logger.Logger
	DB         txRunner
	Repository outboxRepository
	DLQ        dlqRepository
	Registry   registryResolver
	Publishers publisherFactory
	Metrics    *metrics.OutboxMetrics
}

// Service relays committed order events from outbox_events to Pub/Sub.
type Service struct {
	logg        *logger.Logger
	db          txRunner
	repo        outboxRepository
	dlq         dlqRepository
	registry    registryResolver
	publishers  publisherFactory
	metrics     *metrics.OutboxMetrics
	batchSize   int
	maxAttempts int
	poll        time.Duration
	now         func() time.Time
}

func NewService(p ServiceParams) (*Service, error) {
	if p.Logger == nil || p.DB == nil || p.Repository == nil || p.DLQ == nil || p.Registry == nil || p.Publishers == nil {
		return nil, errors.New("outbox publisher: logger, db, repositories, registry and publishers are required")
	}
	return &Service{
		logg:        p.Logger,
		db:          p.DB,
		repo:        p.Repository,
		dlq:         p.DLQ,
		registry:    p.Registry,
		publishers:  p.Publishers,
		metrics:     p.Metrics,
		batchSize:   max(p.Config.BatchSize, 1),
		maxAttempts: max(p.Config.MaxAttempts, 1),
		poll:        max(time.Duration(p.Config.PollIntervalMS)*time.Millisecond, 50*time.Millisecond),
		now:         time.Now,
	}, nil
}

// Run drains the outbox until ctx ends. A claimed batch is followed straight
// away by the next. An empty poll waits about one interval and a failed batch
// waits exponentially longer, capped near backoffCeiling.
func (s *Service) Run(ctx context.Context) error {
	failures := s.failureBackoff()
	for {
		busy, err := s.processBatch(ctx)
		var wait time.Duration
		switch {
		case err != nil:
			s.logg.Error(ctx, "outbox batch failed", err)
			wait, _ = failures.Next()
		case busy:
			failures = s.failureBackoff()
			continue
		default:
			failures = s.failureBackoff()
			wait, _ = retry.WithJitterPercent(jitterPercent, retry.NewConstant(s.poll)).Next()
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (s *Service) failureBackoff() retry.Backoff {
	b := retry.NewExponential(s.poll)
	b = retry.WithCappedDuration(backoffCeiling, b)
	return retry.WithJitterPercent(jitterPercent, b)
}
