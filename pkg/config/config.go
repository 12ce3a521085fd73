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
	Stripe       StripeConfig
	Checkout     CheckoutConfig
	Pricing      PricingConfig
	Mail         MailConfig
	Cron         CronConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if _, err := cfg.Pricing.FreeDeliveryThreshold(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string   `envconfig:"STOREFRONT_APP_ENV" required:"true"`
	Port         string   `envconfig:"STOREFRONT_APP_PORT" required:"true"`
	LogLevel     string   `envconfig:"STOREFRONT_LOG_LEVEL" default:"info"`
	LogWarnStack bool     `envconfig:"STOREFRONT_LOG_WARN_STACK" default:"false"`
	SiteURL      string   `envconfig:"STOREFRONT_SITE_URL" default:"http://localhost:8080"`
	StoreName    string   `envconfig:"STOREFRONT_STORE_NAME" default:"Ember & Wick"`
	CORSOrigins  []string `envconfig:"STOREFRONT_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"STOREFRONT_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN string `envconfig:"STOREFRONT_DB_DSN"`

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
	URL          string        `envconfig:"STOREFRONT_REDIS_URL"`
	Address      string        `envconfig:"STOREFRONT_REDIS_ADDR"`
	Password     string        `envconfig:"STOREFRONT_REDIS_PASSWORD"`
	DB           int           `envconfig:"STOREFRONT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"STOREFRONT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"STOREFRONT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"STOREFRONT_REDIS_WRITE_TIMEOUT" default:"5s"`
	KeyPrefix    string        `envconfig:"STOREFRONT_REDIS_KEY_PREFIX" default:"sf"`
}

// JWTConfig governs operator tokens for the admin API.
type JWTConfig struct {
	Secret            string `envconfig:"STOREFRONT_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"STOREFRONT_JWT_ISSUER" default:"storefront"`
	ExpirationMinutes int    `envconfig:"STOREFRONT_JWT_EXPIRATION_MINUTES" default:"480"`
}

type StripeConfig struct {
	SecretKey      string `envconfig:"STOREFRONT_STRIPE_SECRET_KEY"`
	PublishableKey string `envconfig:"STOREFRONT_STRIPE_PUBLISHABLE_KEY"`
	WebhookSecret  string `envconfig:"STOREFRONT_STRIPE_WEBHOOK_SECRET"`
	Env            string `envconfig:"STOREFRONT_STRIPE_ENV" default:"test"`
	Currency       string `envconfig:"STOREFRONT_STRIPE_CURRENCY" default:"gbp"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type CheckoutConfig struct {
	SuccessPath           string        `envconfig:"STOREFRONT_CHECKOUT_SUCCESS_PATH" default:"/checkout/success"`
	CancelPath            string        `envconfig:"STOREFRONT_CHECKOUT_CANCEL_PATH" default:"/basket"`
	BasketTTL             time.Duration `envconfig:"STOREFRONT_BASKET_TTL" default:"336h"`
	WebhookIdempotencyTTL time.Duration `envconfig:"STOREFRONT_WEBHOOK_IDEMPOTENCY_TTL" default:"72h"`
	IdempotencyTTL        time.Duration `envconfig:"STOREFRONT_IDEMPOTENCY_TTL" default:"24h"`
	PendingOrderTTL       time.Duration `envconfig:"STOREFRONT_PENDING_ORDER_TTL" default:"24h"`
	EmailRetryDelay       time.Duration `envconfig:"STOREFRONT_EMAIL_RETRY_DELAY" default:"5m"`
}

// PricingConfig is the fallback used when no store pricing settings row exists.
type PricingConfig struct {
	DeliveryFee      decimal.Decimal `envconfig:"STOREFRONT_PRICING_DELIVERY_FEE" default:"3.95"`
	FreeDeliveryOver string          `envconfig:"STOREFRONT_PRICING_FREE_DELIVERY_OVER"`
}

// FreeDeliveryThreshold parses the optional free delivery threshold.
func (p PricingConfig) FreeDeliveryThreshold() (*decimal.Decimal, error) {
	raw := strings.TrimSpace(p.FreeDeliveryOver)
	if raw == "" {
		return nil, nil
	}
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", EnvFreeDeliveryOver, err)
	}
	return &value, nil
}

type MailConfig struct {
	Host            string   `envconfig:"STOREFRONT_MAIL_HOST"`
	Port            int      `envconfig:"STOREFRONT_MAIL_PORT" default:"587"`
	Username        string   `envconfig:"STOREFRONT_MAIL_USERNAME"`
	Password        string   `envconfig:"STOREFRONT_MAIL_PASSWORD"`
	ImplicitTLS     bool     `envconfig:"STOREFRONT_MAIL_IMPLICIT_TLS" default:"false"`
	FromEmail       string   `envconfig:"STOREFRONT_MAIL_FROM_EMAIL" default:"orders@localhost"`
	FromName        string   `envconfig:"STOREFRONT_MAIL_FROM_NAME"`
	AdminRecipients []string `envconfig:"STOREFRONT_MAIL_ADMIN_RECIPIENTS"`
}

// Enabled reports whether an SMTP host is configured.
func (m MailConfig) Enabled() bool {
	return strings.TrimSpace(m.Host) != ""
}

type CronConfig struct {
	Interval    time.Duration `envconfig:"STOREFRONT_CRON_INTERVAL" default:"15m"`
	JobTimeout  time.Duration `envconfig:"STOREFRONT_CRON_JOB_TIMEOUT" default:"5m"`
	MetricsAddr string        `envconfig:"STOREFRONT_CRON_METRICS_ADDR" default:":9091"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"STOREFRONT_AUTO_MIGRATE" default:"false"`
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
