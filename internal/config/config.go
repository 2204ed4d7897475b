package config

import (
	"fmt"
	"os"
	"time"

	"github.com/veya/storefront/internal/money"
	"gopkg.in/yaml.v3"
)

// Load reads configuration from a YAML file and applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		if err := cfg.parseFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.finalize(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func defaultConfig() *Config {
	breaker := BreakerServiceConfig{
		MaxRequests:         3,
		Interval:            Duration{Duration: 60 * time.Second},
		Timeout:             Duration{Duration: 30 * time.Second},
		ConsecutiveFailures: 5,
		FailureRatio:        0.5,
		MinRequests:         10,
	}

	return &Config{
		Server: ServerConfig{
			Address:      ":8080",
			ReadTimeout:  Duration{Duration: 15 * time.Second},
			WriteTimeout: Duration{Duration: 30 * time.Second},
			IdleTimeout:  Duration{Duration: 60 * time.Second},
		},
		Backend: BackendConfig{
			BaseURL:        "http://localhost:8000/api",
			Timeout:        Duration{Duration: 10 * time.Second},
			CSRFCookieName: "csrftoken",
			CSRFHeaderName: "X-CSRFToken",
			Retry: RetryConfig{
				MaxAttempts:     3,
				InitialInterval: Duration{Duration: 100 * time.Millisecond},
				MaxInterval:     Duration{Duration: 2 * time.Second},
				Multiplier:      2.0,
			},
		},
		Pricing: PricingConfig{
			FreeShippingThreshold: Amount{Money: money.Rupees(999)},
			ShippingFee:           Amount{Money: money.Rupees(199)},
			Currency:              "INR",
			ClampFinalTotal:       true,
		},
		OTP: OTPConfig{
			ResendCooldown:  Duration{Duration: 30 * time.Second},
			MaxAttempts:     5,
			PopupDelay:      Duration{Duration: 10 * time.Second},
			CodeLength:      4,
			ResetCodeLength: 6,
		},
		Notifications: NotificationConfig{
			Duration:  Duration{Duration: 3 * time.Second},
			QueueSize: 20,
		},
		Session: SessionConfig{
			CookieName:      "sf_session",
			IdleTTL:         Duration{Duration: 30 * time.Minute},
			CleanupInterval: Duration{Duration: time.Minute},
		},
		Checkout: CheckoutConfig{
			CallbackTimeout: Duration{Duration: 15 * time.Minute},
			AllowCOD:        true,
		},
		Catalog: CatalogConfig{
			CacheTTL: Duration{Duration: time.Minute},
		},
		Gateway: GatewayConfig{
			Provider: "razorpay",
			Stripe: StripeConfig{
				SuccessURL: "http://localhost:3000/order-success?session_id={CHECKOUT_SESSION_ID}",
				CancelURL:  "http://localhost:3000/checkout",
			},
		},
		Storage: StorageConfig{
			Backend:         "memory",
			MongoDBDatabase: "storefront",
			TableName:       "checkout_attempts",
		},
		RateLimit: RateLimitConfig{
			GlobalEnabled: true,
			GlobalLimit:   1000,
			GlobalWindow:  Duration{Duration: time.Minute},
			PerIPEnabled:  true,
			PerIPLimit:    120,
			PerIPWindow:   Duration{Duration: time.Minute},
			OTPEnabled:    true,
			OTPLimit:      10,
			OTPWindow:     Duration{Duration: 10 * time.Minute},
		},
		Idempotency: IdempotencyConfig{
			TTL:      Duration{Duration: 24 * time.Hour},
			Capacity: 10000,
		},
		CircuitBreaker: CircuitBreakerConfig{
			Enabled:    true,
			BackendAPI: breaker,
			StripeAPI:  breaker,
		},
	}
}

// parseFile reads and unmarshals a YAML configuration file.
func (c *Config) parseFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config yaml: %w", err)
	}
	return nil
}
