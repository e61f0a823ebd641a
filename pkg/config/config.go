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
	FeatureFlags FeatureFlagsConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Settlement   SettlementConfig
	Orders       OrdersConfig
	Idempotency  IdempotencyConfig
	Cron         CronConfig
	RateLimit    RateLimitConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Settlement.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string   `envconfig:"STOREFRONT_APP_ENV" required:"true"`
	Port         string   `envconfig:"STOREFRONT_APP_PORT" required:"true"`
	LogLevel     string   `envconfig:"STOREFRONT_LOG_LEVEL" default:"info"`
	LogWarnStack bool     `envconfig:"STOREFRONT_LOG_WARN_STACK" default:"false"`
	LogFormat    string   `envconfig:"STOREFRONT_LOG_FORMAT"`
	CORSOrigins  []string `envconfig:"STOREFRONT_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd) || strings.EqualFold(a.Env, "production")
}

type ServiceConfig struct {
	Kind string `envconfig:"STOREFRONT_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"STOREFRONT_DB_DSN"`
	Driver string `envconfig:"STOREFRONT_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"STOREFRONT_DB_HOST"`
	LegacyPort     int    `envconfig:"STOREFRONT_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"STOREFRONT_DB_USER"`
	LegacyPassword string `envconfig:"STOREFRONT_DB_PASSWORD"`
	LegacyName     string `envconfig:"STOREFRONT_DB_NAME"`
	LegacySSLMode  string `envconfig:"STOREFRONT_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"STOREFRONT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"STOREFRONT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"STOREFRONT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"STOREFRONT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"STOREFRONT_DB_SLOW_QUERY" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"STOREFRONT_REDIS_URL" required:"true"`
	Address      string        `envconfig:"STOREFRONT_REDIS_ADDR"`
	Password     string        `envconfig:"STOREFRONT_REDIS_PASSWORD"`
	DB           int           `envconfig:"STOREFRONT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"STOREFRONT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"STOREFRONT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"STOREFRONT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig holds the verification settings for tokens minted by the identity service.
type JWTConfig struct {
	Secret         string        `envconfig:"STOREFRONT_JWT_SECRET" required:"true"`
	Issuer         string        `envconfig:"STOREFRONT_JWT_ISSUER" required:"true"`
	AccessTokenTTL time.Duration `envconfig:"STOREFRONT_JWT_ACCESS_TTL" default:"15m"`
	CartTokenTTL   time.Duration `envconfig:"STOREFRONT_CART_TOKEN_TTL" default:"720h"`
}

type FeatureFlagsConfig struct {
	AutoMigrate   bool `envconfig:"STOREFRONT_AUTO_MIGRATE" default:"false"`
	AllowAnonCart bool `envconfig:"STOREFRONT_FEATURE_ALLOW_ANON_CART" default:"true"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"STOREFRONT_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"STOREFRONT_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"STOREFRONT_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	NotificationTopic string `envconfig:"STOREFRONT_PUBSUB_NOTIFICATION_TOPIC" default:"storefront-notification-events"`
	AuditTopic        string `envconfig:"STOREFRONT_PUBSUB_AUDIT_TOPIC" default:"storefront-audit-events"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"STOREFRONT_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"STOREFRONT_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"STOREFRONT_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

// SettlementConfig carries the pricing and retry knobs for checkout.
type SettlementConfig struct {
	TaxRate               decimal.Decimal `envconfig:"STOREFRONT_SETTLEMENT_TAX_RATE" default:"0.08"`
	ShippingFee           decimal.Decimal `envconfig:"STOREFRONT_SETTLEMENT_SHIPPING_FEE" default:"9.99"`
	FreeShippingThreshold decimal.Decimal `envconfig:"STOREFRONT_SETTLEMENT_FREE_SHIPPING_THRESHOLD" default:"100.00"`
	PointsPerCurrencyUnit int64           `envconfig:"STOREFRONT_SETTLEMENT_POINTS_PER_UNIT" default:"100"`
	EarnPerCurrencyUnit   int64           `envconfig:"STOREFRONT_SETTLEMENT_EARN_PER_UNIT" default:"1"`
	MaxAttempts           int             `envconfig:"STOREFRONT_SETTLEMENT_MAX_ATTEMPTS" default:"3"`
	BaseBackoff           time.Duration   `envconfig:"STOREFRONT_SETTLEMENT_BASE_BACKOFF" default:"10ms"`
}

func (s SettlementConfig) validate() error {
	if s.TaxRate.IsNegative() {
		return fmt.Errorf("%s must not be negative", EnvSettlementTaxRate)
	}
	if s.ShippingFee.IsNegative() {
		return fmt.Errorf("%s must not be negative", EnvSettlementShippingFee)
	}
	if s.PointsPerCurrencyUnit <= 0 {
		return fmt.Errorf("%s must be positive", EnvSettlementPointsPerUnit)
	}
	if s.MaxAttempts <= 0 {
		return fmt.Errorf("%s must be positive", EnvSettlementMaxAttempts)
	}
	return nil
}

type OrdersConfig struct {
	PendingTTL time.Duration `envconfig:"STOREFRONT_ORDERS_PENDING_TTL" default:"30m"`
}

// IdempotencyConfig controls how long HTTP responses are kept for Idempotency-Key replay.
type IdempotencyConfig struct {
	DefaultTTL  time.Duration `envconfig:"STOREFRONT_IDEMPOTENCY_TTL" default:"24h"`
	CriticalTTL time.Duration `envconfig:"STOREFRONT_IDEMPOTENCY_CRITICAL_TTL" default:"168h"`
	InFlightTTL time.Duration `envconfig:"STOREFRONT_IDEMPOTENCY_INFLIGHT_TTL" default:"30s"`
}

// CronConfig schedules the maintenance worker.
type CronConfig struct {
	Interval     time.Duration `envconfig:"STOREFRONT_CRON_INTERVAL" default:"1m"`
	LockTTL      time.Duration `envconfig:"STOREFRONT_CRON_LOCK_TTL" default:"5m"`
	ExpiryBatch  int           `envconfig:"STOREFRONT_CRON_EXPIRY_BATCH" default:"100"`
	OutboxMaxAge time.Duration `envconfig:"STOREFRONT_CRON_OUTBOX_RETENTION" default:"720h"`
	DisabledJobs []string      `envconfig:"STOREFRONT_CRON_DISABLED_JOBS"`
}

// RateLimitConfig throttles the money-moving endpoints. A zero window disables a policy.
type RateLimitConfig struct {
	Window        time.Duration `envconfig:"STOREFRONT_RATE_LIMIT_WINDOW" default:"1m"`
	IPLimit       int           `envconfig:"STOREFRONT_RATE_LIMIT_IP" default:"60"`
	CallerLimit   int           `envconfig:"STOREFRONT_RATE_LIMIT_CALLER" default:"20"`
	ConfirmWindow time.Duration `envconfig:"STOREFRONT_RATE_LIMIT_CONFIRM_WINDOW" default:"10m"`
	ConfirmLimit  int           `envconfig:"STOREFRONT_RATE_LIMIT_CONFIRM_CALLER" default:"5"`
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
