package routes

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/giftflow-backend/internal/checkout"
	"github.com/angelmondragon/giftflow-backend/internal/fulfillment"
	"github.com/angelmondragon/giftflow-backend/internal/orders"
	"github.com/angelmondragon/giftflow-backend/internal/recovery"
	pkgAuth "github.com/angelmondragon/giftflow-backend/pkg/auth"
	"github.com/angelmondragon/giftflow-backend/pkg/config"
	"github.com/angelmondragon/giftflow-backend/pkg/db/dbtest"
	"github.com/angelmondragon/giftflow-backend/pkg/db/models"
	"github.com/angelmondragon/giftflow-backend/pkg/enums"
	"github.com/angelmondragon/giftflow-backend/pkg/logger"
	"github.com/angelmondragon/giftflow-backend/pkg/metrics"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error {
	return nil
}

type fakeRedis struct {
	mu     sync.Mutex
	data   map[string]string
	counts map[string]int64
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: map[string]string{}, counts: map[string]int64{}}
}

func (f *fakeRedis) Ping(context.Context) error { return nil }

func (f *fakeRedis) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.data[key], nil
}

func (f *fakeRedis) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.data[key]; ok {
		return false, nil
	}
	f.data[key] = fmt.Sprintf("%v", value)
	return true, nil
}

func (f *fakeRedis) IdempotencyKey(scope, id string) string {
	return "gf:idempotency:" + scope + ":" + id
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, key := range keys {
		delete(f.data, key)
	}
	return nil
}

func (f *fakeRedis) WindowAllow(_ context.Context, scope string, limit int64, _ time.Duration, _ time.Time) (bool, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[scope]++
	return f.counts[scope] <= limit, f.counts[scope], nil
}

type stubCheckoutService struct{}

func (stubCheckoutService) VerifySession(ctx context.Context, sessionID string, trigger enums.TriggerSource) (*checkout.VerifySessionResult, error) {
	return &checkout.VerifySessionResult{Success: true, PaymentStatus: "paid"}, nil
}

type stubSubmitter struct {
	calls int
}

func (s *stubSubmitter) Submit(ctx context.Context, in fulfillment.SubmitInput) (*fulfillment.SubmitResult, error) {
	s.calls++
	return &fulfillment.SubmitResult{Success: true, MarketplaceOrderID: "zx_router"}, nil
}

type stubRecoveryService struct{}

func (stubRecoveryService) List(ctx context.Context, params recovery.ListParams) (*recovery.ListResult, error) {
	return &recovery.ListResult{Orders: []recovery.StuckOrder{}}, nil
}

func (stubRecoveryService) Retry(ctx context.Context, input recovery.RetryInput) (*recovery.RetryResult, error) {
	return &recovery.RetryResult{Success: true}, nil
}

func (stubRecoveryService) Sweep(ctx context.Context, minAge time.Duration) (*recovery.SweepReport, error) {
	return &recovery.SweepReport{}, nil
}

type stubWebhookService struct{}

func (stubWebhookService) HandleEvent(ctx context.Context, event *stripe.Event) error {
	return nil
}

type stubVerifier struct{}

func (stubVerifier) VerifyEvent(payload []byte, header string) (stripe.Event, error) {
	return stripe.Event{}, errors.New("no signature")
}

type stubGuard struct{}

func (stubGuard) Claim(ctx context.Context, id string) (bool, error) { return true, nil }

func (stubGuard) Release(ctx context.Context, id string) error { return nil }

type routerFixture struct {
	handler   http.Handler
	order     *models.Order
	submitter *stubSubmitter
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "test", Port: "0"},
		JWT: config.JWTConfig{
			Secret:            "secret",
			Issuer:            "issuer",
			ExpirationMinutes: 60,
		},
		RateLimit: config.RateLimitConfig{
			VerifySessionWindow: time.Minute,
			VerifySessionLimit:  2,
		},
	}
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()
	conn := dbtest.Open(t)
	order := dbtest.SeedOrder(t, conn)
	submitter := &stubSubmitter{}
	logg := logger.New(logger.Options{ServiceName: "test-routing", Output: io.Discard})

	registry := prometheus.NewRegistry()
	metrics.NewFulfillmentMetrics(registry).IncSubmission(metrics.OutcomeSubmitted, "checkout")

	tokens, err := pkgAuth.NewTokens(testConfig().JWT)
	if err != nil {
		t.Fatalf("tokens: %v", err)
	}

	handler := NewRouter(testConfig(), logg, stubPinger{}, newFakeRedis(), metrics.Handler(registry), Services{
		Checkout:      stubCheckoutService{},
		Submitter:     submitter,
		Orders:        orders.NewRepository(conn),
		Recovery:      stubRecoveryService{},
		StripeEvents:  stubVerifier{},
		StripeWebhook: stubWebhookService{},
		WebhookGuard:  stubGuard{},
		Tokens:        tokens,
	})
	return &routerFixture{handler: handler, order: order, submitter: submitter}
}

func (f *routerFixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func buildToken(t *testing.T, cfg *config.Config, role enums.UserRole, userID uuid.UUID) string {
	t.Helper()
	tokens, err := pkgAuth.NewTokens(cfg.JWT)
	if err != nil {
		t.Fatalf("tokens: %v", err)
	}
	token, err := tokens.Issue(pkgAuth.Identity{UserID: userID, Role: role})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

func TestHealthAndMetrics(t *testing.T) {
	f := newRouterFixture(t)

	if rec := f.do(httptest.NewRequest(http.MethodGet, "/health/live", nil)); rec.Code != http.StatusOK {
		t.Fatalf("expected live 200 got %d", rec.Code)
	}
	if rec := f.do(httptest.NewRequest(http.MethodGet, "/health/ready", nil)); rec.Code != http.StatusOK {
		t.Fatalf("expected ready 200 got %d", rec.Code)
	}

	rec := f.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected metrics 200 got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "giftflow_fulfillment_submissions_total") {
		t.Fatalf("expected fulfillment counter in exposition")
	}
}

func TestVerifySessionIsRateLimitedPerIP(t *testing.T) {
	f := newRouterFixture(t)

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout/verify-session", strings.NewReader(`{"session_id":"cs_test_1"}`))
		req.RemoteAddr = "9.9.9.9:1000"
		rec := f.do(req)
		want := http.StatusOK
		if i == 2 {
			want = http.StatusTooManyRequests
		}
		if rec.Code != want {
			t.Fatalf("request %d: expected %d got %d", i, want, rec.Code)
		}
	}
}

func TestOrderSubmitRequiresAuthAndIdempotencyKey(t *testing.T) {
	f := newRouterFixture(t)
	cfg := testConfig()
	body := `{"orderId":"` + f.order.ID.String() + `"}`

	rec := f.do(httptest.NewRequest(http.MethodPost, "/api/v1/orders/submit", strings.NewReader(body)))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token got %d", rec.Code)
	}

	token := buildToken(t, cfg, enums.UserRoleCustomer, f.order.UserID)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/submit", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	if rec := f.do(req); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without idempotency key got %d", rec.Code)
	}

	for i := 0; i < 2; i++ {
		req = httptest.NewRequest(http.MethodPost, "/api/v1/orders/submit", strings.NewReader(body))
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Idempotency-Key", "submit-1")
		rec = f.do(req)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200 got %d (%s)", rec.Code, rec.Body.String())
		}
		if !strings.Contains(rec.Body.String(), `"zincOrderId":"zx_router"`) {
			t.Fatalf("unexpected body %s", rec.Body.String())
		}
	}
	if f.submitter.calls != 1 {
		t.Fatalf("expected replayed response, submitter ran %d times", f.submitter.calls)
	}
}

func TestRecoveryRoutesRequireAdmin(t *testing.T) {
	f := newRouterFixture(t)
	cfg := testConfig()

	req := httptest.NewRequest(http.MethodGet, "/api/admin/v1/recovery/orders", nil)
	req.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.UserRoleCustomer, uuid.New()))
	if rec := f.do(req); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for customer got %d", rec.Code)
	}

	adminToken := buildToken(t, cfg, enums.UserRoleAdmin, uuid.New())
	req = httptest.NewRequest(http.MethodGet, "/api/admin/v1/recovery/orders", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	if rec := f.do(req); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin list got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/admin/v1/recovery/orders/"+f.order.ID.String()+"/retry", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	req.Header.Set("Idempotency-Key", "retry-1")
	if rec := f.do(req); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin retry got %d (%s)", rec.Code, rec.Body.String())
	}
}

func TestStripeWebhookRouteChecksSignature(t *testing.T) {
	f := newRouterFixture(t)
	rec := f.do(httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", strings.NewReader(`{}`)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without signature got %d", rec.Code)
	}
}
