package config

const (
	EnvPrefix = "GIFTFLOW"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"
)

const (
	EnvAppEnv   = "GIFTFLOW_APP_ENV"
	EnvPort     = "GIFTFLOW_APP_PORT"
	EnvLogLevel = "GIFTFLOW_LOG_LEVEL"

	EnvDBDSN      = "GIFTFLOW_DB_DSN"
	EnvDBDriver   = "GIFTFLOW_DB_DRIVER"
	EnvDBHost     = "GIFTFLOW_DB_HOST"
	EnvDBPort     = "GIFTFLOW_DB_PORT"
	EnvDBUser     = "GIFTFLOW_DB_USER"
	EnvDBPassword = "GIFTFLOW_DB_PASSWORD"
	EnvDBName     = "GIFTFLOW_DB_NAME"
	EnvDBSSLMode  = "GIFTFLOW_DB_SSLMODE"

	EnvRedisURL = "GIFTFLOW_REDIS_URL"

	EnvJWTSecret  = "GIFTFLOW_JWT_SECRET"
	EnvJWTIssuer  = "GIFTFLOW_JWT_ISSUER"
	EnvJWTExpMins = "GIFTFLOW_JWT_EXPIRATION_MINUTES"

	EnvGCPProjectID = "GIFTFLOW_GCP_PROJECT_ID"

	EnvPubSubOrdersTopic     = "GIFTFLOW_PUBSUB_ORDERS_TOPIC"
	EnvPubSubNotificationSub = "GIFTFLOW_PUBSUB_NOTIFICATION_SUBSCRIPTION"
	EnvPubSubAnalyticsSub    = "GIFTFLOW_PUBSUB_ANALYTICS_SUBSCRIPTION"

	EnvZincTimeout = "GIFTFLOW_ZINC_TIMEOUT"

	EnvGuardHourlyLimit  = "GIFTFLOW_GUARD_HOURLY_ORDER_LIMIT"
	EnvGuardDailyCostCap = "GIFTFLOW_GUARD_DAILY_COST_CAP"
	EnvGuardWarnRatio    = "GIFTFLOW_GUARD_COST_WARN_RATIO"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
