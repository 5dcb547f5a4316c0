package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/giftflow-backend/pkg/logger"
)

const (
	defaultOutboxRetention = 30 * 24 * time.Hour
	pruneSpacing           = 6 * time.Hour
	pruneBatch             = 500
)

type publishedPruner interface {
	DeletePublishedBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error)
}

type OutboxPruneJobParams struct {
	Logger    *logger.Logger
	Outbox    publishedPruner
	Retention time.Duration
}

// outboxPruneJob trims relayed outbox rows older than the retention window,
// pruneBatch rows per statement so the delete never holds long locks.
type outboxPruneJob struct {
	logg      *logger.Logger
	outbox    publishedPruner
	retention time.Duration
	batch     int
	now       func() time.Time
}

func NewOutboxPruneJob(p OutboxPruneJobParams) (Job, error) {
	if p.Logger == nil || p.Outbox == nil {
		return nil, errors.New("outbox prune job: logger and outbox repository are required")
	}
	retention := p.Retention
	if retention <= 0 {
		retention = defaultOutboxRetention
	}
	return &outboxPruneJob{
		logg:      p.Logger,
		outbox:    p.Outbox,
		retention: retention,
		batch:     pruneBatch,
		now:       time.Now,
	}, nil
}

func (j *outboxPruneJob) Name() string { return "outbox-prune" }

func (j *outboxPruneJob) Every() time.Duration { return pruneSpacing }

func (j *outboxPruneJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)
	var total int64
	for {
		n, err := j.outbox.DeletePublishedBefore(ctx, cutoff, j.batch)
		total += n
		if err != nil {
			return fmt.Errorf("prune outbox before %s after %d rows: %w", cutoff.Format(time.RFC3339), total, err)
		}
		if n < int64(j.batch) {
			break
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":  cutoff,
		"deleted": total,
	}), "outbox pruned")
	return nil
}
