// Package boot holds the startup and shutdown sequence shared by the binaries under cmd/.
package boot

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"

	"github.com/angelmondragon/giftflow-backend/pkg/config"
	"github.com/angelmondragon/giftflow-backend/pkg/db"
	"github.com/angelmondragon/giftflow-backend/pkg/logger"
	"github.com/angelmondragon/giftflow-backend/pkg/migrate"
	"github.com/angelmondragon/giftflow-backend/pkg/pubsub"
	"github.com/angelmondragon/giftflow-backend/pkg/redis"
)

type closer struct {
	name  string
	close func() error
}

// Process is one running binary: its config, its logger and the resources to
// close on the way out.
type Process struct {
	Kind   string
	Config *config.Config
	Log    *logger.Logger

	closers []closer
	exit    func(code int)
}

// Start loads .env when present, reads the environment and rebuilds the logger
// at the configured level. Config errors end the process.
func Start(kind string) *Process {
	p := &Process{
		Kind: kind,
		Log:  logger.New(logger.Options{ServiceName: kind}),
		exit: os.Exit,
	}
	if err := godotenv.Load(); err != nil {
		p.Log.Debug(context.Background(), ".env not loaded, using process environment")
	}

	cfg, err := config.Load()
	p.Must("config", err)
	cfg.Service.Kind = kind
	p.Config = cfg
	p.Log = logger.New(logger.Options{
		ServiceName: kind,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	return p
}

// Must stops the process, after closing what was opened so far, when err is set.
func (p *Process) Must(what string, err error) {
	if err == nil {
		return
	}
	ctx := p.Log.WithField(context.Background(), "resource", what)
	p.Log.Error(ctx, "startup failed", err)
	p.Close()
	p.exit(1)
}

// OnClose registers fn to run during Close. Closers run in reverse order.
func (p *Process) OnClose(name string, fn func() error) {
	p.closers = append(p.closers, closer{name: name, close: fn})
}

// Close releases registered resources and logs, rather than returns, failures.
func (p *Process) Close() {
	var errs error
	for i := len(p.closers) - 1; i >= 0; i-- {
		c := p.closers[i]
		if err := c.close(); err != nil {
			errs = multierr.Append(errs, err)
			p.Log.Error(p.Log.WithField(context.Background(), "resource", c.name), "close failed", err)
		}
	}
	p.closers = nil
	if errs != nil {
		p.Log.Warn(p.Log.WithField(context.Background(), "failures", len(multierr.Errors(errs))), "shutdown finished with errors")
	}
}

// Context is cancelled by SIGINT or SIGTERM and carries the process log fields.
func (p *Process) Context() (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	return p.Log.WithFields(ctx, map[string]any{
		"env":         p.Config.App.Env,
		"serviceKind": p.Kind,
		"instance":    InstanceID(p.Kind + "-0"),
	}), stop
}

// Run blocks on fn, then closes resources. Cancellation is a clean exit;
// any other error exits with status 1.
func (p *Process) Run(ctx context.Context, fn func(context.Context) error) {
	p.Log.Info(ctx, p.Kind+" starting")
	err := fn(ctx)
	p.Close()
	if err != nil && !errors.Is(err, context.Canceled) {
		p.Log.Error(ctx, p.Kind+" stopped unexpectedly", err)
		p.exit(1)
		return
	}
	p.Log.Info(ctx, p.Kind+" stopped")
}

// Database opens Postgres and applies dev migrations when enabled.
func (p *Process) Database() *db.Client {
	client, err := db.New(context.Background(), p.Config.DB, p.Log)
	p.Must("database", err)
	p.OnClose("database", client.Close)
	p.Must("dev migrations", migrate.MaybeRunDev(context.Background(), p.Config, p.Log, client))
	return client
}

func (p *Process) Redis() *redis.Client {
	client, err := redis.New(context.Background(), p.Config.Redis, p.Log)
	p.Must("redis", err)
	p.OnClose("redis", client.Close)
	return client
}

func (p *Process) PubSub() *pubsub.Client {
	client, err := pubsub.NewClient(context.Background(), p.Config.GCP, p.Config.PubSub, p.Log)
	p.Must("pubsub", err)
	p.OnClose("pubsub", client.Close)
	return client
}

// InstanceID names this replica in logs. WORKER_ID wins over the platform DYNO name.
func InstanceID(fallback string) string {
	for _, key := range []string{"WORKER_ID", "DYNO"} {
		if id := os.Getenv(key); id != "" {
			return id
		}
	}
	return fallback
}
