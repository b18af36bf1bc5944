// AngelaMos | 2026
// config.go

package config

import (
	"fmt"
	"sync"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	App       AppConfig       `koanf:"app"`
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Redis     RedisConfig     `koanf:"redis"`
	Auth      AuthConfig      `koanf:"auth"`
	Stripe    StripeConfig    `koanf:"stripe"`
	Billing   BillingConfig   `koanf:"billing"`
	Interpret InterpretConfig `koanf:"interpret"`
	RateLimit RateLimitConfig `koanf:"rate_limit"`
	CORS      CORSConfig      `koanf:"cors"`
	Log       LogConfig       `koanf:"log"`
	Otel      OtelConfig      `koanf:"otel"`
	Metrics   MetricsConfig   `koanf:"metrics"`
}

type AppConfig struct {
	Name        string `koanf:"name"`
	Version     string `koanf:"version"`
	Environment string `koanf:"environment"`
}

type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	DrainDelay      time.Duration `koanf:"drain_delay"`
}

type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `koanf:"conn_max_idle_time"`
}

type RedisConfig struct {
	URL          string `koanf:"url"`
	PoolSize     int    `koanf:"pool_size"`
	MinIdleConns int    `koanf:"min_idle_conns"`
}

// AuthConfig describes the bearer tokens minted by the managed auth
// platform. PrivateKeyPath is optional and only used for local tokens.
type AuthConfig struct {
	PublicKeyPath     string        `koanf:"public_key_path"`
	PrivateKeyPath    string        `koanf:"private_key_path"`
	Issuer            string        `koanf:"issuer"`
	Audience          string        `koanf:"audience"`
	AccessTokenExpire time.Duration `koanf:"access_token_expire"`
	AdminRole         string        `koanf:"admin_role"`
}

type StripeConfig struct {
	SecretKey       string `koanf:"secret_key"`
	WebhookSecret   string `koanf:"webhook_secret"`
	SuccessURL      string `koanf:"success_url"`
	CancelURL       string `koanf:"cancel_url"`
	PortalReturnURL string `koanf:"portal_return_url"`
}

func (s StripeConfig) Enabled() bool {
	return s.SecretKey != ""
}

type BillingConfig struct {
	DefaultFeature       string                `koanf:"default_feature"`
	Trial                TrialConfig           `koanf:"trial"`
	PaymentFailurePolicy string                `koanf:"payment_failure_policy"`
	RefetchSubscriptions bool                  `koanf:"refetch_subscriptions"`
	Plans                map[string]PlanConfig `koanf:"plans"`
}

type TrialConfig struct {
	Limit       int      `koanf:"limit"`
	ConsumeMode string   `koanf:"consume_mode"`
	Features    []string `koanf:"features"`
}

type PlanConfig struct {
	PriceID string `koanf:"price_id"`
	Mode    string `koanf:"mode"`
	Feature string `koanf:"feature"`
}

type InterpretConfig struct {
	Endpoint string        `koanf:"endpoint"`
	APIKey   string        `koanf:"api_key"`
	Model    string        `koanf:"model"`
	Timeout  time.Duration `koanf:"timeout"`
}

type RateLimitConfig struct {
	Requests int           `koanf:"requests"`
	Window   time.Duration `koanf:"window"`
	Burst    int           `koanf:"burst"`
}

type CORSConfig struct {
	AllowedOrigins   []string `koanf:"allowed_origins"`
	AllowedMethods   []string `koanf:"allowed_methods"`
	AllowedHeaders   []string `koanf:"allowed_headers"`
	AllowCredentials bool     `koanf:"allow_credentials"`
	MaxAge           int      `koanf:"max_age"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

type OtelConfig struct {
	Endpoint    string  `koanf:"endpoint"`
	ServiceName string  `koanf:"service_name"`
	Enabled     bool    `koanf:"enabled"`
	Insecure    bool    `koanf:"insecure"`
	SampleRate  float64 `koanf:"sample_rate"`
}

type MetricsConfig struct {
	Enabled bool   `koanf:"enabled"`
	Path    string `koanf:"path"`
}

const (
	ConsumeConditionalUpdate = "conditional_update"
	ConsumeSerializable      = "serializable"

	PaymentFailureGrace      = "grace"
	PaymentFailureDeactivate = "deactivate"

	PlanModePayment      = "payment"
	PlanModeSubscription = "subscription"
)

var (
	cfg  *Config
	once sync.Once
)

func Load(configPath string) (*Config, error) {
	var loadErr error

	once.Do(func() {
		cfg, loadErr = LoadFrom(configPath)
	})

	if loadErr != nil {
		return nil, loadErr
	}

	return cfg, nil
}

// LoadFrom builds a fresh Config without touching the process-wide one.
func LoadFrom(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := loadDefaults(k); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	if err := k.Load(env.Provider("", ".", envKeyReplacer), nil); err != nil {
		return nil, fmt.Errorf("load env vars: %w", err)
	}

	c := &Config{}
	if err := k.Unmarshal("", c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validate(c); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return c, nil
}

func loadDefaults(k *koanf.Koanf) error {
	defaults := map[string]any{
		"app.name":        "Dream Diary API",
		"app.version":     "1.0.0",
		"app.environment": "development",

		"server.host":             "0.0.0.0",
		"server.port":             8080,
		"server.read_timeout":     "30s",
		"server.write_timeout":    "60s",
		"server.idle_timeout":     "120s",
		"server.shutdown_timeout": "15s",
		"server.drain_delay":      "5s",

		"database.max_open_conns":     25,
		"database.max_idle_conns":     5,
		"database.conn_max_lifetime":  "1h",
		"database.conn_max_idle_time": "30m",

		"redis.pool_size":      10,
		"redis.min_idle_conns": 5,

		"auth.access_token_expire": "15m",
		"auth.issuer":              "dreamdiary-auth",
		"auth.audience":            "dreamdiary-api",
		"auth.public_key_path":     "keys/public.pem",
		"auth.admin_role":          "admin",

		"billing.default_feature":        "ai_interpretation",
		"billing.trial.limit":            3,
		"billing.trial.consume_mode":     ConsumeConditionalUpdate,
		"billing.trial.features":         []string{"ai_interpretation"},
		"billing.payment_failure_policy": PaymentFailureGrace,
		"billing.refetch_subscriptions":  false,

		"interpret.timeout": "45s",
		"interpret.model":   "dream-interpreter-v1",

		"rate_limit.requests": 100,
		"rate_limit.window":   "1m",
		"rate_limit.burst":    20,

		"cors.allowed_origins": []string{"http://localhost:3000"},
		"cors.allowed_methods": []string{
			"GET",
			"POST",
			"PUT",
			"PATCH",
			"DELETE",
			"OPTIONS",
		},
		"cors.allowed_headers": []string{
			"Accept",
			"Authorization",
			"Content-Type",
			"X-Request-ID",
		},
		"cors.allow_credentials": true,
		"cors.max_age":           300,

		"log.level":  "info",
		"log.format": "json",

		"otel.enabled":      false,
		"otel.insecure":     true,
		"otel.sample_rate":  0.1,
		"otel.service_name": "dreamdiary-api",

		"metrics.enabled": true,
		"metrics.path":    "/metrics",
	}

	for key, value := range defaults {
		if err := k.Set(key, value); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}

	return nil
}

var envKeyMap = map[string]string{
	"DATABASE_URL":                   "database.url",
	"REDIS_URL":                      "redis.url",
	"ENVIRONMENT":                    "app.environment",
	"HOST":                           "server.host",
	"PORT":                           "server.port",
	"LOG_LEVEL":                      "log.level",
	"LOG_FORMAT":                     "log.format",
	"AUTH_PUBLIC_KEY_PATH":           "auth.public_key_path",
	"AUTH_PRIVATE_KEY_PATH":          "auth.private_key_path",
	"AUTH_ACCESS_TOKEN_EXPIRE":       "auth.access_token_expire",
	"AUTH_ISSUER":                    "auth.issuer",
	"AUTH_AUDIENCE":                  "auth.audience",
	"STRIPE_SECRET_KEY":              "stripe.secret_key",
	"STRIPE_WEBHOOK_SECRET":          "stripe.webhook_secret",
	"STRIPE_SUCCESS_URL":             "stripe.success_url",
	"STRIPE_CANCEL_URL":              "stripe.cancel_url",
	"STRIPE_PORTAL_RETURN_URL":       "stripe.portal_return_url",
	"BILLING_DEFAULT_FEATURE":        "billing.default_feature",
	"BILLING_TRIAL_LIMIT":            "billing.trial.limit",
	"BILLING_TRIAL_CONSUME_MODE":     "billing.trial.consume_mode",
	"BILLING_PAYMENT_FAILURE_POLICY": "billing.payment_failure_policy",
	"BILLING_REFETCH_SUBSCRIPTIONS":  "billing.refetch_subscriptions",
	"INTERPRET_ENDPOINT":             "interpret.endpoint",
	"INTERPRET_API_KEY":              "interpret.api_key",
	"INTERPRET_MODEL":                "interpret.model",
	"INTERPRET_TIMEOUT":              "interpret.timeout",
	"RATE_LIMIT_REQUESTS":            "rate_limit.requests",
	"RATE_LIMIT_WINDOW":              "rate_limit.window",
	"RATE_LIMIT_BURST":               "rate_limit.burst",
	"OTEL_ENDPOINT":                  "otel.endpoint",
	"OTEL_EXPORTER_OTLP_ENDPOINT":    "otel.endpoint",
	"OTEL_SERVICE_NAME":              "otel.service_name",
	"OTEL_ENABLED":                   "otel.enabled",
	"OTEL_INSECURE":                  "otel.insecure",
	"OTEL_SAMPLE_RATE":               "otel.sample_rate",
	"METRICS_ENABLED":                "metrics.enabled",
}

func envKeyReplacer(s string) string {
	if mapped, ok := envKeyMap[s]; ok {
		return mapped
	}
	return ""
}

func validate(c *Config) error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.Stripe.WebhookSecret == "" {
		return fmt.Errorf("STRIPE_WEBHOOK_SECRET is required")
	}

	if c.Auth.PublicKeyPath == "" {
		return fmt.Errorf("AUTH_PUBLIC_KEY_PATH is required")
	}

	if err := validateBilling(&c.Billing); err != nil {
		return err
	}

	if c.CORS.AllowCredentials {
		for _, origin := range c.CORS.AllowedOrigins {
			if origin == "*" {
				return fmt.Errorf(
					"CORS wildcard '*' cannot be used with AllowCredentials",
				)
			}
		}
	}

	if c.App.Environment == "production" {
		if c.Otel.Enabled && c.Otel.Insecure {
			return fmt.Errorf("OTEL_INSECURE must be false in production")
		}
	}

	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server.read_timeout must be positive")
	}

	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server.write_timeout must be positive")
	}

	return nil
}

func validateBilling(b *BillingConfig) error {
	if b.Trial.Limit < 0 {
		return fmt.Errorf("billing.trial.limit must not be negative")
	}

	switch b.Trial.ConsumeMode {
	case ConsumeConditionalUpdate, ConsumeSerializable:
	default:
		return fmt.Errorf(
			"billing.trial.consume_mode %q is not supported",
			b.Trial.ConsumeMode,
		)
	}

	switch b.PaymentFailurePolicy {
	case PaymentFailureGrace, PaymentFailureDeactivate:
	default:
		return fmt.Errorf(
			"billing.payment_failure_policy %q is not supported",
			b.PaymentFailurePolicy,
		)
	}

	for key, plan := range b.Plans {
		if plan.PriceID == "" {
			return fmt.Errorf("billing.plans.%s.price_id is required", key)
		}
		switch plan.Mode {
		case PlanModePayment, PlanModeSubscription:
		default:
			return fmt.Errorf(
				"billing.plans.%s.mode %q is not supported",
				key,
				plan.Mode,
			)
		}
	}

	return nil
}

func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
