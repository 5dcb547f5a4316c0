package boot

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/giftflow-backend/pkg/logger"
)

// Check is a named dependency health check.
type Check struct {
	Name string
	Ping func(context.Context) error
}

// Task is a named long-running loop, such as a Pub/Sub receive.
type Task struct {
	Name string
	Run  func(context.Context) error
}

// Supervisor checks dependencies once, then runs tasks until one of them
// returns or ctx ends. The first task to stop cancels the others.
type Supervisor struct {
	Log       *logger.Logger
	Checks    []Check
	Tasks     []Task
	Heartbeat time.Duration
}

func (s Supervisor) Run(ctx context.Context) error {
	if len(s.Tasks) == 0 {
		return errors.New("nothing to supervise")
	}
	for _, c := range s.Checks {
		if err := c.Ping(ctx); err != nil {
			s.Log.Error(s.Log.WithField(ctx, "dependency", c.Name), "dependency not ready", err)
			return fmt.Errorf("%s not ready: %w", c.Name, err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, task := range s.Tasks {
		g.Go(func() error {
			err := task.Run(gctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("%s: %w", task.Name, err)
			}
			return fmt.Errorf("%s: %w", task.Name, errStopped)
		})
	}
	g.Go(func() error {
		s.beat(gctx)
		return nil
	})

	err := g.Wait()
	if errors.Is(err, errStopped) && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

var errStopped = errors.New("task stopped")

func (s Supervisor) beat(ctx context.Context) {
	every := s.Heartbeat
	if every <= 0 {
		every = time.Minute
	}
	names := make([]string, 0, len(s.Tasks))
	for _, t := range s.Tasks {
		names = append(names, t.Name)
	}
	sort.Strings(names)

	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Log.Debug(s.Log.WithField(ctx, "tasks", names), "heartbeat")
		}
	}
}
