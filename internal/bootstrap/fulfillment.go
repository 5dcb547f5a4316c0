// Package bootstrap assembles the payment-to-fulfillment service graph shared by the api and
// cron-worker binaries.
package bootstrap

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/giftflow-backend/internal/checkout"
	"github.com/angelmondragon/giftflow-backend/internal/fulfillment"
	"github.com/angelmondragon/giftflow-backend/internal/guard"
	"github.com/angelmondragon/giftflow-backend/internal/orders"
	"github.com/angelmondragon/giftflow-backend/internal/recovery"
	"github.com/angelmondragon/giftflow-backend/internal/scheduling"
	"github.com/angelmondragon/giftflow-backend/internal/verification"
	"github.com/angelmondragon/giftflow-backend/pkg/config"
	"github.com/angelmondragon/giftflow-backend/pkg/db"
	"github.com/angelmondragon/giftflow-backend/pkg/logger"
	"github.com/angelmondragon/giftflow-backend/pkg/metrics"
	"github.com/angelmondragon/giftflow-backend/pkg/outbox"
	"github.com/angelmondragon/giftflow-backend/pkg/redis"
	"github.com/angelmondragon/giftflow-backend/pkg/security"
	pkgstripe "github.com/angelmondragon/giftflow-backend/pkg/stripe"
	"github.com/angelmondragon/giftflow-backend/pkg/zinc"
)

// Fulfillment holds the wired domain services.
type Fulfillment struct {
	Orders    orders.Repository
	Outbox    *outbox.Writer
	Policy    scheduling.Policy
	Submitter fulfillment.Submitter
	Checkout  checkout.Service
	Recovery  recovery.Service
	Metrics   *metrics.FulfillmentMetrics
}

// Params carries the infrastructure clients the graph is built on.
type Params struct {
	Config     *config.Config
	Logger     *logger.Logger
	DB         *db.Client
	Redis      *redis.Client
	Stripe     *pkgstripe.Client
	Registerer prometheus.Registerer
	Now        func() time.Time
}

// NewFulfillment wires verification, scheduling, guard, submission and recovery.
func NewFulfillment(p Params) (*Fulfillment, error) {
	if p.Config == nil || p.Logger == nil || p.DB == nil || p.Redis == nil {
		return nil, fmt.Errorf("config, logger, db and redis are required")
	}
	cfg := p.Config
	now := p.Now
	if now == nil {
		now = time.Now
	}
	registerer := p.Registerer
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	fulfillmentMetrics := metrics.NewFulfillmentMetrics(registerer)
	ordersRepo := orders.NewRepository(p.DB.DB())
	events := outbox.NewWriter(outbox.NewRepository(p.DB.DB()), p.Logger)
	policy := scheduling.Policy{ThresholdDays: cfg.Scheduling.ThresholdDays}

	sealer, err := security.NewSealer(cfg.Security)
	if err != nil {
		return nil, fmt.Errorf("credentials sealer: %w", err)
	}

	guardSvc, err := guard.NewService(guard.ServiceParams{
		Config:    cfg.Guard,
		Repo:      guard.NewRepository(p.DB.DB()),
		Counters:  p.Redis,
		Suspicion: guard.DefaultSuspicionPolicy(cfg.Guard.SuspiciousRepeats, cfg.Guard.MaxItemQuantity),
		Metrics:   fulfillmentMetrics,
		Logger:    p.Logger,
		Now:       now,
	})
	if err != nil {
		return nil, fmt.Errorf("guard: %w", err)
	}

	submitter, err := fulfillment.NewService(fulfillment.ServiceParams{
		Config: cfg.Zinc,
		Orders: ordersRepo,
		Guard:  guardSvc,
		Credentials: fulfillment.NewCredentialResolver(
			fulfillment.NewCredentialStore(p.DB.DB()),
			sealer,
			cfg.Zinc.DefaultCardholderName,
		),
		Marketplace: zinc.NewClient(zinc.WithBaseURL(cfg.Zinc.BaseURL), zinc.WithTimeout(cfg.Zinc.Timeout)),
		Tx:          p.DB,
		Outbox:      events,
		Metrics:     fulfillmentMetrics,
		Logger:      p.Logger,
		Now:         now,
	})
	if err != nil {
		return nil, fmt.Errorf("fulfillment: %w", err)
	}

	recoverySvc, err := recovery.NewService(recovery.ServiceParams{
		Config:    cfg.Recovery,
		Orders:    ordersRepo,
		Submitter: submitter,
		Logger:    p.Logger,
		Now:       now,
	})
	if err != nil {
		return nil, fmt.Errorf("recovery: %w", err)
	}

	out := &Fulfillment{
		Orders:    ordersRepo,
		Outbox:    events,
		Policy:    policy,
		Submitter: submitter,
		Recovery:  recoverySvc,
		Metrics:   fulfillmentMetrics,
	}

	// the cron worker runs without Stripe credentials
	if p.Stripe == nil {
		return out, nil
	}

	verifier, err := verification.NewService(verification.ServiceParams{
		Sessions: verification.NewStripeSessionLookup(p.Stripe),
		Orders:   ordersRepo,
		Audits:   verification.NewAuditRepository(p.DB.DB()),
		Tx:       p.DB,
		Outbox:   events,
		Metrics:  fulfillmentMetrics,
		Logger:   p.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("verification: %w", err)
	}

	scheduler, err := scheduling.NewService(scheduling.ServiceParams{
		Policy: policy,
		Orders: ordersRepo,
		Tx:     p.DB,
		Outbox: events,
		Logger: p.Logger,
		Now:    now,
	})
	if err != nil {
		return nil, fmt.Errorf("scheduling: %w", err)
	}

	out.Checkout, err = checkout.NewService(checkout.ServiceParams{
		Verifier:  verifier,
		Scheduler: scheduler,
		Submitter: submitter,
		Logger:    p.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("checkout: %w", err)
	}
	return out, nil
}
