package config

const (
	EnvPrefix = "REPLYRISER"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv   = "REPLYRISER_APP_ENV"
	EnvPort     = "REPLYRISER_APP_PORT"
	EnvLogLevel = "REPLYRISER_LOG_LEVEL"

	EnvDBDSN    = "REPLYRISER_DB_DSN"
	EnvDBDriver = "REPLYRISER_DB_DRIVER"
	EnvDBHost   = "REPLYRISER_DB_HOST"
	EnvDBUser   = "REPLYRISER_DB_USER"
	EnvDBName   = "REPLYRISER_DB_NAME"

	EnvRedisURL = "REPLYRISER_REDIS_URL"

	EnvJWTSecret  = "REPLYRISER_JWT_SECRET"
	EnvJWTIssuer  = "REPLYRISER_JWT_ISSUER"
	EnvJWTExpMins = "REPLYRISER_JWT_EXPIRATION_MINUTES"

	EnvQuotaEnforcement = "REPLYRISER_QUOTA_ENFORCEMENT"

	EnvOpenAIAPIKey      = "REPLYRISER_OPENAI_API_KEY"
	EnvOpenAIModel       = "REPLYRISER_OPENAI_MODEL"
	EnvOpenAIMaxAttempts = "REPLYRISER_OPENAI_MAX_ATTEMPTS"
	EnvOpenAIRetryDelay  = "REPLYRISER_OPENAI_RETRY_BASE_DELAY"

	EnvStripeAPIKey = "REPLYRISER_STRIPE_API_KEY"
	EnvStripeSecret = "REPLYRISER_STRIPE_SECRET"
)

const (
	DBDriverPostgres = "postgres"
	DBDriverMySQL    = "mysql"
	DBDriverSQLite   = "sqlite"
)

const (
	QuotaEnforcementStrict      = "strict"
	QuotaEnforcementApproximate = "approximate"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
