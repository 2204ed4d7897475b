package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/veya/storefront/internal/money"
	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration to support string based YAML decoding.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses duration values expressed as Go-style strings or numbers interpreted as seconds.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("unsupported duration node kind: %v", value.Kind)
	}
	raw := strings.TrimSpace(value.Value)
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err == nil {
		d.Duration = parsed
		return nil
	}
	if secs, convErr := time.ParseDuration(raw + "s"); convErr == nil {
		d.Duration = secs
		return nil
	}
	return fmt.Errorf("invalid duration value %q: %w", raw, err)
}

// MarshalYAML renders the duration as a string to keep config edits human-friendly.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// Amount is a rupee amount written in major units in YAML ("999", "199.00").
type Amount struct {
	money.Money
}

// UnmarshalYAML parses a major-unit decimal amount.
func (a *Amount) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("unsupported amount node kind: %v", value.Kind)
	}
	m, err := money.FromMajor(strings.TrimSpace(value.Value))
	if err != nil {
		return fmt.Errorf("invalid amount %q: %w", value.Value, err)
	}
	a.Money = m
	return nil
}

// MarshalYAML renders the amount in major units.
func (a Amount) MarshalYAML() (interface{}, error) {
	return a.Money.Major(), nil
}

// Config holds application level configuration aggregated from file and environment variables.
type Config struct {
	Server         ServerConfig         `yaml:"server"`
	Logging        LoggingConfig        `yaml:"logging"`
	Backend        BackendConfig        `yaml:"backend"`
	Pricing        PricingConfig        `yaml:"pricing"`
	OTP            OTPConfig            `yaml:"otp"`
	Notifications  NotificationConfig   `yaml:"notifications"`
	Session        SessionConfig        `yaml:"session"`
	Checkout       CheckoutConfig       `yaml:"checkout"`
	Catalog        CatalogConfig        `yaml:"catalog"`
	Marketing      MarketingConfig      `yaml:"marketing"`
	Gateway        GatewayConfig        `yaml:"gateway"`
	Storage        StorageConfig        `yaml:"storage"`
	RateLimit      RateLimitConfig      `yaml:"rate_limit"`
	Idempotency    IdempotencyConfig    `yaml:"idempotency"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Address            string   `yaml:"address"`
	ReadTimeout        Duration `yaml:"read_timeout"`
	WriteTimeout       Duration `yaml:"write_timeout"`
	IdleTimeout        Duration `yaml:"idle_timeout"`
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
	RoutePrefix        string   `yaml:"route_prefix"`          // Optional prefix for all routes (e.g., "/bff")
	AdminMetricsAPIKey string   `yaml:"admin_metrics_api_key"` // Protects /metrics when set
}

// LoggingConfig holds structured logging configuration.
type LoggingConfig struct {
	Level       string `yaml:"level"`       // debug, info, warn, error (default: info)
	Format      string `yaml:"format"`      // json, console (default: json)
	Environment string `yaml:"environment"` // production, staging, development
}

// BackendConfig describes the remote storefront REST API.
type BackendConfig struct {
	BaseURL        string      `yaml:"base_url"`         // e.g. https://api.example.in/api
	Timeout        Duration    `yaml:"timeout"`          // Per-request timeout (default: 10s)
	CSRFCookieName string      `yaml:"csrf_cookie_name"` // default: csrftoken
	CSRFHeaderName string      `yaml:"csrf_header_name"` // default: X-CSRFToken
	Retry          RetryConfig `yaml:"retry"`            // Applied to idempotent reads only
}

// RetryConfig holds exponential backoff settings for backend reads.
type RetryConfig struct {
	MaxAttempts     int      `yaml:"max_attempts"`     // default: 3
	InitialInterval Duration `yaml:"initial_interval"` // default: 100ms
	MaxInterval     Duration `yaml:"max_interval"`     // default: 2s
	Multiplier      float64  `yaml:"multiplier"`       // default: 2.0
}

// PricingConfig holds the rupee pricing rules.
type PricingConfig struct {
	FreeShippingThreshold Amount `yaml:"free_shipping_threshold"` // default: 999.00
	ShippingFee           Amount `yaml:"shipping_fee"`            // default: 199.00
	Currency              string `yaml:"currency"`                // default: INR
	ClampFinalTotal       bool   `yaml:"clamp_final_total"`       // default: true
}

// OTPConfig holds one-time-code flow settings.
type OTPConfig struct {
	ResendCooldown  Duration `yaml:"resend_cooldown"`   // default: 30s
	MaxAttempts     int      `yaml:"max_attempts"`      // Failed verifications before lockout (default: 5)
	PopupDelay      Duration `yaml:"popup_delay"`       // Marketing popup delay (default: 10s)
	CodeLength      int      `yaml:"code_length"`       // Promotional flows (default: 4)
	ResetCodeLength int      `yaml:"reset_code_length"` // Password reset (default: 6)
}

// NotificationConfig holds toast settings.
type NotificationConfig struct {
	Duration  Duration `yaml:"duration"`   // Auto-dismiss after (default: 3s)
	QueueSize int      `yaml:"queue_size"` // Max active toasts per session (default: 20)
}

// SessionConfig holds visitor session settings.
type SessionConfig struct {
	CookieName      string   `yaml:"cookie_name"`      // default: sf_session
	IdleTTL         Duration `yaml:"idle_ttl"`         // default: 30m
	CleanupInterval Duration `yaml:"cleanup_interval"` // default: 1m
	SecureCookie    bool     `yaml:"secure_cookie"`
}

// CheckoutConfig holds checkout flow settings.
type CheckoutConfig struct {
	StrictDelivery  bool     `yaml:"strict_delivery"`  // Also require email, city, state, pincode
	CallbackTimeout Duration `yaml:"callback_timeout"` // How long the flow waits for the widget callback (default: 15m)
	AllowCOD        bool     `yaml:"allow_cod"`        // default: true
}

// CatalogConfig holds product read cache settings.
type CatalogConfig struct {
	CacheTTL Duration `yaml:"cache_ttl"` // 0 disables caching (default: 1m)
}

// MarketingConfig holds newsletter behaviour.
type MarketingConfig struct {
	MaskNewsletterErrors bool `yaml:"mask_newsletter_errors"` // default: false
}

// GatewayConfig selects and configures the payment widget adapter.
type GatewayConfig struct {
	Provider string       `yaml:"provider"` // razorpay | stripe | none (default: razorpay)
	Stripe   StripeConfig `yaml:"stripe"`
}

// StripeConfig holds Stripe hosted checkout configuration.
type StripeConfig struct {
	SecretKey  string `yaml:"secret_key"`
	SuccessURL string `yaml:"success_url"`
	CancelURL  string `yaml:"cancel_url"`
}

// PostgresPoolConfig holds PostgreSQL connection pool settings.
type PostgresPoolConfig struct {
	MaxOpenConns    int      `yaml:"max_open_conns"`    // default: 10
	MaxIdleConns    int      `yaml:"max_idle_conns"`    // default: 2
	ConnMaxLifetime Duration `yaml:"conn_max_lifetime"` // default: 5m
}

// StorageConfig holds the checkout-attempt ledger backend configuration.
type StorageConfig struct {
	Backend         string             `yaml:"backend"` // memory | postgres | mongodb
	PostgresURL     string             `yaml:"postgres_url"`
	MongoDBURL      string             `yaml:"mongodb_url"`
	MongoDBDatabase string             `yaml:"mongodb_database"`
	TableName       string             `yaml:"table_name"` // Table or collection (default: checkout_attempts)
	PostgresPool    PostgresPoolConfig `yaml:"postgres_pool"`
}

// RateLimitConfig holds per-IP rate limiting configuration.
type RateLimitConfig struct {
	GlobalEnabled bool     `yaml:"global_enabled"`
	GlobalLimit   int      `yaml:"global_limit"`
	GlobalWindow  Duration `yaml:"global_window"`

	PerIPEnabled bool     `yaml:"per_ip_enabled"`
	PerIPLimit   int      `yaml:"per_ip_limit"`
	PerIPWindow  Duration `yaml:"per_ip_window"`

	// OTP send/verify are far more sensitive than reads.
	OTPEnabled bool     `yaml:"otp_enabled"`
	OTPLimit   int      `yaml:"otp_limit"`
	OTPWindow  Duration `yaml:"otp_window"`
}

// IdempotencyConfig holds Idempotency-Key cache settings for checkout.
type IdempotencyConfig struct {
	TTL      Duration `yaml:"ttl"`      // default: 24h
	Capacity int      `yaml:"capacity"` // LRU entries (default: 10000)
}

// CircuitBreakerConfig holds circuit breaker configuration for external services.
type CircuitBreakerConfig struct {
	Enabled    bool                 `yaml:"enabled"`     // default: true
	BackendAPI BreakerServiceConfig `yaml:"backend_api"` // Storefront REST API
	StripeAPI  BreakerServiceConfig `yaml:"stripe_api"`  // Stripe checkout sessions
}

// BreakerServiceConfig configures a circuit breaker for a specific external service.
type BreakerServiceConfig struct {
	MaxRequests         uint32   `yaml:"max_requests"`         // Max requests in half-open state (default: 3)
	Interval            Duration `yaml:"interval"`             // Stats reset interval in closed state (default: 60s)
	Timeout             Duration `yaml:"timeout"`              // Open state timeout before half-open (default: 30s)
	ConsecutiveFailures uint32   `yaml:"consecutive_failures"` // Consecutive failures to trip (default: 5)
	FailureRatio        float64  `yaml:"failure_ratio"`        // Failure ratio to trip 0.0-1.0 (default: 0.5)
	MinRequests         uint32   `yaml:"min_requests"`         // Minimum requests before checking ratio (default: 10)
}
