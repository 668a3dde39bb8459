package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App           AppConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Password      PasswordConfig
	AuthRateLimit AuthRateLimitConfig
	FeatureFlags  FeatureFlagsConfig
	Eventing      EventingConfig
	Quota         QuotaConfig
	OpenAI        OpenAIConfig
	Stripe        StripeConfig
	Cron          CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Quota.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"REPLYRISER_APP_ENV" required:"true"`
	Port         string `envconfig:"REPLYRISER_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"REPLYRISER_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"REPLYRISER_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"REPLYRISER_DB_DSN"`
	Driver string `envconfig:"REPLYRISER_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"REPLYRISER_DB_HOST"`
	LegacyPort     int    `envconfig:"REPLYRISER_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"REPLYRISER_DB_USER"`
	LegacyPassword string `envconfig:"REPLYRISER_DB_PASSWORD"`
	LegacyName     string `envconfig:"REPLYRISER_DB_NAME"`
	LegacySSLMode  string `envconfig:"REPLYRISER_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"REPLYRISER_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"REPLYRISER_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"REPLYRISER_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"REPLYRISER_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

// NormalizedDriver lowercases the driver name and falls back to postgres.
func (db DBConfig) NormalizedDriver() string {
	driver := strings.ToLower(strings.TrimSpace(db.Driver))
	if driver == "" {
		return DBDriverPostgres
	}
	return driver
}

type RedisConfig struct {
	URL          string        `envconfig:"REPLYRISER_REDIS_URL" required:"true"`
	Address      string        `envconfig:"REPLYRISER_REDIS_ADDR"`
	Password     string        `envconfig:"REPLYRISER_REDIS_PASSWORD"`
	DB           int           `envconfig:"REPLYRISER_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"REPLYRISER_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"REPLYRISER_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"REPLYRISER_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"REPLYRISER_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"REPLYRISER_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret string `envconfig:"REPLYRISER_JWT_SECRET" required:"true"`
	Issuer string `envconfig:"REPLYRISER_JWT_ISSUER" default:"replyriser"`
	// 60 days, matching the token lifetime the extension was shipped with.
	ExpirationMinutes int `envconfig:"REPLYRISER_JWT_EXPIRATION_MINUTES" default:"86400"`
}

// AccessTokenTTL returns the configured access token lifetime.
func (j JWTConfig) AccessTokenTTL() time.Duration {
	if j.ExpirationMinutes <= 0 {
		return 0
	}
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"REPLYRISER_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"REPLYRISER_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"REPLYRISER_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"REPLYRISER_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"REPLYRISER_ARGON_KEY_LEN" default:"32"`
}

type AuthRateLimitConfig struct {
	LoginWindow      time.Duration `envconfig:"REPLYRISER_AUTH_RATE_LIMIT_LOGIN_WINDOW" default:"1m"`
	LoginEmailLimit  int           `envconfig:"REPLYRISER_AUTH_RATE_LIMIT_LOGIN_EMAIL_LIMIT" default:"5"`
	LoginIPLimit     int           `envconfig:"REPLYRISER_AUTH_RATE_LIMIT_LOGIN_IP_LIMIT" default:"20"`
	SignupWindow     time.Duration `envconfig:"REPLYRISER_AUTH_RATE_LIMIT_SIGNUP_WINDOW" default:"5m"`
	SignupEmailLimit int           `envconfig:"REPLYRISER_AUTH_RATE_LIMIT_SIGNUP_EMAIL_LIMIT" default:"3"`
	SignupIPLimit    int           `envconfig:"REPLYRISER_AUTH_RATE_LIMIT_SIGNUP_IP_LIMIT" default:"20"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"REPLYRISER_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"REPLYRISER_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	WebhookIdempotencyTTL time.Duration `envconfig:"REPLYRISER_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

// QuotaConfig controls how the request gate serializes the
// count-evaluate-call-append sequence for a single user.
type QuotaConfig struct {
	Enforcement string        `envconfig:"REPLYRISER_QUOTA_ENFORCEMENT" default:"strict"`
	LockTTL     time.Duration `envconfig:"REPLYRISER_QUOTA_LOCK_TTL" default:"90s"`
	LockWait    time.Duration `envconfig:"REPLYRISER_QUOTA_LOCK_WAIT" default:"30s"`
	LockPoll    time.Duration `envconfig:"REPLYRISER_QUOTA_LOCK_POLL" default:"100ms"`
}

func (q QuotaConfig) Strict() bool {
	return !strings.EqualFold(strings.TrimSpace(q.Enforcement), QuotaEnforcementApproximate)
}

func (q QuotaConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(q.Enforcement)) {
	case "", QuotaEnforcementStrict, QuotaEnforcementApproximate:
		return nil
	default:
		return fmt.Errorf("%s must be %q or %q", EnvQuotaEnforcement, QuotaEnforcementStrict, QuotaEnforcementApproximate)
	}
}

// CronConfig drives the maintenance worker.
type CronConfig struct {
	Interval            time.Duration `envconfig:"REPLYRISER_CRON_INTERVAL" default:"1h"`
	UnverifiedRetention time.Duration `envconfig:"REPLYRISER_CRON_UNVERIFIED_RETENTION" default:"168h"`
}

type OpenAIConfig struct {
	APIKey         string        `envconfig:"REPLYRISER_OPENAI_API_KEY" required:"true"`
	BaseURL        string        `envconfig:"REPLYRISER_OPENAI_BASE_URL"`
	Model          string        `envconfig:"REPLYRISER_OPENAI_MODEL" default:"gpt-4o-mini"`
	SystemPrompt   string        `envconfig:"REPLYRISER_OPENAI_SYSTEM_PROMPT"`
	MaxAttempts    int           `envconfig:"REPLYRISER_OPENAI_MAX_ATTEMPTS" default:"3"`
	RetryBaseDelay time.Duration `envconfig:"REPLYRISER_OPENAI_RETRY_BASE_DELAY" default:"2s"`
	RequestTimeout time.Duration `envconfig:"REPLYRISER_OPENAI_REQUEST_TIMEOUT" default:"60s"`
}

type StripeConfig struct {
	APIKey string `envconfig:"REPLYRISER_STRIPE_API_KEY"`
	Secret string `envconfig:"REPLYRISER_STRIPE_SECRET"`
	Env    string `envconfig:"REPLYRISER_STRIPE_ENV" default:"test"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
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

	if db.NormalizedDriver() == DBDriverMySQL {
		db.DSN = mysqlDSN(db)
		return nil
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

// mysqlDSN renders the go-sql-driver form user:pass@tcp(host:port)/name.
func mysqlDSN(db *DBConfig) string {
	port := db.LegacyPort
	if port == 0 || port == 5432 {
		port = 3306
	}
	creds := db.LegacyUser
	if db.LegacyPassword != "" {
		creds += ":" + db.LegacyPassword
	}
	return fmt.Sprintf("%s@tcp(%s:%d)/%s?parseTime=true&loc=UTC", creds, db.LegacyHost, port, db.LegacyName)
}
