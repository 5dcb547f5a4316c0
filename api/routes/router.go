package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/giftflow-backend/api/controllers"
	ordercontrollers "github.com/angelmondragon/giftflow-backend/api/controllers/orders"
	recoverycontrollers "github.com/angelmondragon/giftflow-backend/api/controllers/recovery"
	webhookcontrollers "github.com/angelmondragon/giftflow-backend/api/controllers/webhooks"
	"github.com/angelmondragon/giftflow-backend/api/middleware"
	checkoutsvc "github.com/angelmondragon/giftflow-backend/internal/checkout"
	"github.com/angelmondragon/giftflow-backend/internal/fulfillment"
	"github.com/angelmondragon/giftflow-backend/internal/orders"
	"github.com/angelmondragon/giftflow-backend/internal/recovery"
	"github.com/angelmondragon/giftflow-backend/pkg/config"
	"github.com/angelmondragon/giftflow-backend/pkg/db"
	"github.com/angelmondragon/giftflow-backend/pkg/logger"
	"github.com/angelmondragon/giftflow-backend/pkg/redis"
)

// redisStore is the slice of the Redis client the HTTP layer needs.
type redisStore interface {
	redis.IdempotencyStore
	redis.Pinger
	middleware.WindowCounter
}

// Services bundles the domain services mounted on the router.
type Services struct {
	Checkout      checkoutsvc.Service
	Submitter     fulfillment.Submitter
	Orders        orders.Repository
	Recovery      recovery.Service
	StripeEvents  interface {
		VerifyEvent(payload []byte, header string) (stripe.Event, error)
	}
	StripeWebhook webhookcontrollers.StripeWebhookService
	WebhookGuard  webhookcontrollers.EventClaims
	Tokens        middleware.TokenVerifier
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient redisStore,
	metricsHandler http.Handler,
	svc Services,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		chimw.RealIP,
		chimw.RequestID,
		middleware.Trace(logg),
		middleware.CORS(cfg.CORS.AllowedOrigins),
	)
	authenticated := middleware.Authenticate(svc.Tokens, logg)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisClient))
	})
	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(svc.StripeWebhook, svc.StripeEvents, svc.WebhookGuard, logg))
	})

	r.Route("/api/v1/checkout", func(r chi.Router) {
		r.With(middleware.PerIP("verify-session", cfg.RateLimit.VerifySessionLimit, cfg.RateLimit.VerifySessionWindow, redisClient, logg)).Post("/verify-session", controllers.CheckoutVerifySession(svc.Checkout, logg))
	})

	r.Route("/api/v1/orders", func(r chi.Router) {
		r.Use(authenticated, middleware.Idempotency(redisClient, logg))
		r.Post("/submit", ordercontrollers.Submit(svc.Submitter, svc.Orders, logg))
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(authenticated, middleware.RequireAdmin(logg), middleware.Idempotency(redisClient, logg))
		r.Route("/recovery/orders", func(r chi.Router) {
			r.Get("/", recoverycontrollers.List(svc.Recovery, logg))
			r.Post("/{orderId}/retry", recoverycontrollers.Retry(svc.Recovery, logg))
		})
	})

	return r
}
