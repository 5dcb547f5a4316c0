package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	BigQuery     BigQueryConfig
	Stripe       StripeConfig
	Sendgrid     SendgridConfig
	Outbox       OutboxConfig
	Zinc         ZincConfig
	Guard        GuardConfig
	Scheduling   SchedulingConfig
	Recovery     RecoveryConfig
	Security     SecurityConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Guard.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"GIFTFLOW_APP_ENV" required:"true"`
	Port         string `envconfig:"GIFTFLOW_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"GIFTFLOW_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"GIFTFLOW_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"GIFTFLOW_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"GIFTFLOW_DB_DSN"`
	Driver string `envconfig:"GIFTFLOW_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"GIFTFLOW_DB_HOST"`
	LegacyPort     int    `envconfig:"GIFTFLOW_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"GIFTFLOW_DB_USER"`
	LegacyPassword string `envconfig:"GIFTFLOW_DB_PASSWORD"`
	LegacyName     string `envconfig:"GIFTFLOW_DB_NAME"`
	LegacySSLMode  string `envconfig:"GIFTFLOW_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"GIFTFLOW_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"GIFTFLOW_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"GIFTFLOW_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"GIFTFLOW_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"GIFTFLOW_DB_SLOW_QUERY" default:"500ms"`
}

// IsSQLite reports whether the configured driver targets sqlite.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(strings.TrimSpace(db.Driver), DBDriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"GIFTFLOW_REDIS_URL" required:"true"`
	Address      string        `envconfig:"GIFTFLOW_REDIS_ADDR"`
	Password     string        `envconfig:"GIFTFLOW_REDIS_PASSWORD"`
	DB           int           `envconfig:"GIFTFLOW_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"GIFTFLOW_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"GIFTFLOW_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"GIFTFLOW_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"GIFTFLOW_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"GIFTFLOW_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"GIFTFLOW_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"GIFTFLOW_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"GIFTFLOW_JWT_EXPIRATION_MINUTES" default:"60"`
}

// RateLimitConfig bounds unauthenticated endpoints per client IP.
type RateLimitConfig struct {
	VerifySessionWindow time.Duration `envconfig:"GIFTFLOW_RATE_LIMIT_VERIFY_WINDOW" default:"1m"`
	VerifySessionLimit  int           `envconfig:"GIFTFLOW_RATE_LIMIT_VERIFY_LIMIT" default:"30"`
}

// CORSConfig lists browser origins allowed to call the API. Empty keeps the built-in defaults.
type CORSConfig struct {
	AllowedOrigins []string `envconfig:"GIFTFLOW_CORS_ALLOWED_ORIGINS"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"GIFTFLOW_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"GIFTFLOW_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL  time.Duration `envconfig:"GIFTFLOW_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
	WebhookIdempotencyTTL time.Duration `envconfig:"GIFTFLOW_WEBHOOK_IDEMPOTENCY_TTL" default:"72h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"GIFTFLOW_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"GIFTFLOW_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"GIFTFLOW_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	OrdersTopic              string `envconfig:"GIFTFLOW_PUBSUB_ORDERS_TOPIC" required:"true"`
	NotificationSubscription string `envconfig:"GIFTFLOW_PUBSUB_NOTIFICATION_SUBSCRIPTION" required:"true"`
	AnalyticsSubscription    string `envconfig:"GIFTFLOW_PUBSUB_ANALYTICS_SUBSCRIPTION" required:"true"`
}

type BigQueryConfig struct {
	Dataset          string `envconfig:"GIFTFLOW_BIGQUERY_DATASET" default:"giftflow"`
	OrderEventsTable string `envconfig:"GIFTFLOW_BIGQUERY_ORDER_EVENTS_TABLE" default:"order_events"`
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"GIFTFLOW_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int           `envconfig:"GIFTFLOW_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int           `envconfig:"GIFTFLOW_OUTBOX_MAX_ATTEMPTS" default:"10"`
	Retention      time.Duration `envconfig:"GIFTFLOW_OUTBOX_RETENTION" default:"720h"`
}

type StripeConfig struct {
	APIKey           string        `envconfig:"GIFTFLOW_STRIPE_API_KEY"`
	Secret           string        `envconfig:"GIFTFLOW_STRIPE_SECRET"`
	Env              string        `envconfig:"GIFTFLOW_STRIPE_ENV" default:"test"`
	Timeout          time.Duration `envconfig:"GIFTFLOW_STRIPE_TIMEOUT" default:"20s"`
	WebhookTolerance time.Duration `envconfig:"GIFTFLOW_STRIPE_WEBHOOK_TOLERANCE" default:"5m"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type SendgridConfig struct {
	APIKey      string `envconfig:"GIFTFLOW_SENDGRID_API_KEY"`
	DefaultFrom string `envconfig:"GIFTFLOW_SENDGRID_FROM_EMAIL" default:"orders@giftflow.app"`
	BaseURL     string `envconfig:"GIFTFLOW_SENDGRID_BASE_URL" default:"https://api.sendgrid.com"`
}

// ZincConfig configures the upstream marketplace order API.
type ZincConfig struct {
	BaseURL string        `envconfig:"GIFTFLOW_ZINC_BASE_URL" default:"https://api.zinc.io/v1"`
	Timeout time.Duration `envconfig:"GIFTFLOW_ZINC_TIMEOUT" default:"30s"`
	// Retailer selects the marketplace account row used for submissions.
	Retailer              string          `envconfig:"GIFTFLOW_ZINC_RETAILER" default:"amazon"`
	MaxPriceBuffer        decimal.Decimal `envconfig:"GIFTFLOW_ZINC_MAX_PRICE_BUFFER" default:"0.15"`
	DefaultCardholderName string          `envconfig:"GIFTFLOW_ZINC_DEFAULT_CARDHOLDER" default:"GiftFlow Fulfillment"`
	WebhookURL            string          `envconfig:"GIFTFLOW_ZINC_WEBHOOK_URL"`
	ClaimTTL              time.Duration   `envconfig:"GIFTFLOW_ZINC_CLAIM_TTL" default:"2m"`
}

// GuardConfig holds every gating threshold applied before a marketplace submission.
type GuardConfig struct {
	HourlyOrderLimit       int             `envconfig:"GIFTFLOW_GUARD_HOURLY_ORDER_LIMIT" default:"5"`
	DailyOrderLimit        int             `envconfig:"GIFTFLOW_GUARD_DAILY_ORDER_LIMIT" default:"20"`
	DailyCostCap           decimal.Decimal `envconfig:"GIFTFLOW_GUARD_DAILY_COST_CAP" default:"500"`
	MonthlyCostCap         decimal.Decimal `envconfig:"GIFTFLOW_GUARD_MONTHLY_COST_CAP" default:"2000"`
	CostWarnRatio          decimal.Decimal `envconfig:"GIFTFLOW_GUARD_COST_WARN_RATIO" default:"0.8"`
	MaxRetries             int             `envconfig:"GIFTFLOW_GUARD_MAX_RETRIES" default:"3"`
	MaxConsecutiveFailures int             `envconfig:"GIFTFLOW_GUARD_MAX_CONSECUTIVE_FAILURES" default:"5"`
	FailureWarnThreshold   int             `envconfig:"GIFTFLOW_GUARD_FAILURE_WARN_THRESHOLD" default:"3"`
	DuplicateWindow        time.Duration   `envconfig:"GIFTFLOW_GUARD_DUPLICATE_WINDOW" default:"24h"`
	SuspiciousRepeats      int             `envconfig:"GIFTFLOW_GUARD_SUSPICIOUS_REPEATS" default:"3"`
	MaxItemQuantity        int             `envconfig:"GIFTFLOW_GUARD_MAX_ITEM_QUANTITY" default:"25"`
	BehaviorOrderLimit     int             `envconfig:"GIFTFLOW_GUARD_BEHAVIOR_ORDER_LIMIT" default:"5"`
	BehaviorSpendLimit     decimal.Decimal `envconfig:"GIFTFLOW_GUARD_BEHAVIOR_SPEND_LIMIT" default:"1000"`
	BehaviorRapidInterval  time.Duration   `envconfig:"GIFTFLOW_GUARD_BEHAVIOR_RAPID_INTERVAL" default:"5m"`
}

func (g GuardConfig) validate() error {
	if g.HourlyOrderLimit <= 0 || g.DailyOrderLimit <= 0 {
		return fmt.Errorf("guard order limits must be positive")
	}
	if !g.DailyCostCap.IsPositive() || !g.MonthlyCostCap.IsPositive() {
		return fmt.Errorf("guard cost caps must be positive")
	}
	if !g.CostWarnRatio.IsPositive() || g.CostWarnRatio.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("guard cost warn ratio must be within (0, 1]")
	}
	return nil
}

type SchedulingConfig struct {
	ThresholdDays int `envconfig:"GIFTFLOW_SCHEDULING_THRESHOLD_DAYS" default:"4"`
}

type RecoveryConfig struct {
	Window       time.Duration `envconfig:"GIFTFLOW_RECOVERY_WINDOW" default:"168h"`
	SweepMinAge  time.Duration `envconfig:"GIFTFLOW_RECOVERY_SWEEP_MIN_AGE" default:"15m"`
	SweepBatch   int           `envconfig:"GIFTFLOW_RECOVERY_SWEEP_BATCH" default:"25"`
	ReleaseBatch int           `envconfig:"GIFTFLOW_RECOVERY_RELEASE_BATCH" default:"50"`
}

type SecurityConfig struct {
	// CredentialsKey is either a hex encoded 32 byte key or a passphrase that is
	// stretched with argon2id using CredentialsSalt.
	CredentialsKey  string `envconfig:"GIFTFLOW_CREDENTIALS_KEY"`
	CredentialsSalt string `envconfig:"GIFTFLOW_CREDENTIALS_SALT" default:"giftflow-credentials"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"GIFTFLOW_CRON_INTERVAL" default:"15m"`
	LockTTL  time.Duration `envconfig:"GIFTFLOW_CRON_LOCK_TTL" default:"10m"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
