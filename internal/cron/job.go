package cron

import (
	"context"
	"time"
)

// Job is one unit of periodic work run by the cron worker.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Spaced is implemented by jobs that should run less often than every cycle.
type Spaced interface {
	Every() time.Duration
}

type slot struct {
	job   Job
	every time.Duration
	next  time.Time
}

func (s *slot) due(now time.Time) bool {
	return !now.Before(s.next)
}

func (s *slot) ran(started time.Time) {
	s.next = started.Add(s.every)
}

func slotFor(job Job) *slot {
	s := &slot{job: job}
	if spaced, ok := job.(Spaced); ok && spaced.Every() > 0 {
		s.every = spaced.Every()
	}
	return s
}
