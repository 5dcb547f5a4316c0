package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/giftflow-backend/pkg/logger"
	"github.com/angelmondragon/giftflow-backend/pkg/metrics"
)

const defaultInterval = 15 * time.Minute

type ServiceParams struct {
	Logger   *logger.Logger
	Jobs     []Job
	Lock     Lock
	Metrics  *metrics.JobMetrics
	Interval time.Duration
}

// Service wakes every interval, takes the shared lock and runs each job that is due.
// One failing job does not stop the rest of the cycle.
type Service struct {
	logg     *logger.Logger
	slots    []*slot
	lock     Lock
	metrics  *metrics.JobMetrics
	interval time.Duration
	now      func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger required")
	case params.Lock == nil:
		return nil, errors.New("lock required")
	}

	seen := make(map[string]bool, len(params.Jobs))
	slots := make([]*slot, 0, len(params.Jobs))
	for _, job := range params.Jobs {
		if job == nil {
			continue
		}
		if seen[job.Name()] {
			return nil, fmt.Errorf("duplicate cron job %q", job.Name())
		}
		seen[job.Name()] = true
		slots = append(slots, slotFor(job))
	}

	interval := params.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Service{
		logg:     params.Logger,
		slots:    slots,
		lock:     params.Lock,
		metrics:  params.Metrics,
		interval: interval,
		now:      time.Now,
	}, nil
}

// Run executes a cycle immediately, then once per interval until ctx ends.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.RunOnce(ctx); err != nil {
			s.logg.Error(ctx, "cron cycle failed", err)
		}
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "cron service context canceled")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce runs the due jobs and returns how many ran. Nothing runs while
// another replica holds the lock.
func (s *Service) RunOnce(ctx context.Context) (int, error) {
	locked, err := s.lock.Acquire(ctx)
	if err != nil {
		return 0, err
	}
	if !locked {
		s.logg.Info(ctx, "cron lock held elsewhere, skipping cycle")
		return 0, nil
	}
	defer func() {
		if err := s.lock.Release(context.WithoutCancel(ctx)); err != nil {
			s.logg.Error(ctx, "cron lock release failed", err)
		}
	}()

	ran := 0
	for _, sl := range s.slots {
		if err := ctx.Err(); err != nil {
			return ran, err
		}
		started := s.now()
		if !sl.due(started) {
			continue
		}
		s.run(ctx, sl.job, started)
		sl.ran(started)
		ran++
	}
	s.logg.Info(s.logg.WithField(ctx, "jobs_run", ran), "cron cycle complete")
	return ran, nil
}

func (s *Service) run(ctx context.Context, job Job, started time.Time) {
	ctx = s.logg.WithField(ctx, "job", job.Name())
	err := job.Run(ctx)
	took := s.now().Sub(started)
	s.metrics.Observe(job.Name(), started, took, err)

	ctx = s.logg.WithField(ctx, "duration_ms", took.Milliseconds())
	if err != nil {
		s.logg.Error(ctx, "cron job failed", err)
		return
	}
	s.logg.Info(ctx, "cron job finished")
}
