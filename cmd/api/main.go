package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/giftflow-backend/api/routes"
	"github.com/angelmondragon/giftflow-backend/internal/bootstrap"
	stripewebhook "github.com/angelmondragon/giftflow-backend/internal/webhooks/stripe"
	"github.com/angelmondragon/giftflow-backend/pkg/auth"
	"github.com/angelmondragon/giftflow-backend/pkg/boot"
	"github.com/angelmondragon/giftflow-backend/pkg/dedupe"
	"github.com/angelmondragon/giftflow-backend/pkg/metrics"
	pkgstripe "github.com/angelmondragon/giftflow-backend/pkg/stripe"
)

const (
	webhookIdempotencyScope = "stripe-webhook"
	shutdownGrace           = 20 * time.Second
)

func main() {
	p := boot.Start("api")
	cfg := p.Config

	dbClient := p.Database()
	redisClient := p.Redis()

	stripeClient, err := pkgstripe.NewClient(context.Background(), cfg.Stripe, p.Log)
	p.Must("stripe", err)

	services, err := bootstrap.NewFulfillment(bootstrap.Params{
		Config:     cfg,
		Logger:     p.Log,
		DB:         dbClient,
		Redis:      redisClient,
		Stripe:     stripeClient,
		Registerer: prometheus.DefaultRegisterer,
	})
	p.Must("fulfillment services", err)

	webhookService, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		Checkout:          services.Checkout,
		Orders:            services.Orders,
		Outbox:            services.Outbox,
		TransactionRunner: dbClient,
		Logger:            p.Log,
	})
	p.Must("stripe webhook service", err)

	webhookClaims, err := dedupe.New(redisClient, webhookIdempotencyScope, cfg.Eventing.WebhookIdempotencyTTL)
	p.Must("stripe webhook dedupe", err)

	tokens, err := auth.NewTokens(cfg.JWT)
	p.Must("jwt", err)

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	server := &http.Server{
		Addr:              ":" + port,
		ReadHeaderTimeout: 10 * time.Second,
		Handler: routes.NewRouter(cfg, p.Log, dbClient, redisClient, metrics.Handler(prometheus.DefaultGatherer), routes.Services{
			Checkout:      services.Checkout,
			Submitter:     services.Submitter,
			Orders:        services.Orders,
			Recovery:      services.Recovery,
			StripeEvents:  stripeClient,
			StripeWebhook: webhookService,
			WebhookGuard:  webhookClaims,
			Tokens:        tokens,
		}),
	}

	ctx, stop := p.Context()
	defer stop()
	p.Run(p.Log.WithField(ctx, "addr", server.Addr), func(ctx context.Context) error {
		return serve(ctx, server)
	})
}

// serve runs until ctx ends, then drains in-flight requests.
func serve(ctx context.Context, server *http.Server) error {
	failed := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			failed <- err
		}
		close(failed)
	}()

	select {
	case err := <-failed:
		return err
	case <-ctx.Done():
	}

	drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownGrace)
	defer cancel()
	if err := server.Shutdown(drainCtx); err != nil {
		return err
	}
	return ctx.Err()
}
