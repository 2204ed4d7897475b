package config

import (
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// finalize applies defaults and validates the configuration.
func (c *Config) finalize() error {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.Environment == "" {
		c.Logging.Environment = "production"
	}
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}

	c.Backend.BaseURL = strings.TrimSuffix(strings.TrimSpace(c.Backend.BaseURL), "/")
	if c.Backend.Timeout.Duration <= 0 {
		c.Backend.Timeout = Duration{Duration: 10 * time.Second}
	}
	if c.Backend.CSRFCookieName == "" {
		c.Backend.CSRFCookieName = "csrftoken"
	}
	if c.Backend.CSRFHeaderName == "" {
		c.Backend.CSRFHeaderName = "X-CSRFToken"
	}
	if c.Backend.Retry.MaxAttempts <= 0 {
		c.Backend.Retry.MaxAttempts = 1
	}
	if c.Backend.Retry.Multiplier < 1 {
		c.Backend.Retry.Multiplier = 2.0
	}

	if c.Pricing.Currency == "" {
		c.Pricing.Currency = "INR"
	}
	c.Pricing.Currency = strings.ToUpper(c.Pricing.Currency)

	if c.OTP.CodeLength <= 0 {
		c.OTP.CodeLength = 4
	}
	if c.OTP.ResetCodeLength <= 0 {
		c.OTP.ResetCodeLength = 6
	}
	if c.Notifications.Duration.Duration <= 0 {
		c.Notifications.Duration = Duration{Duration: 3 * time.Second}
	}
	if c.Notifications.QueueSize <= 0 {
		c.Notifications.QueueSize = 20
	}
	if c.Session.CookieName == "" {
		c.Session.CookieName = "sf_session"
	}
	if c.Session.CleanupInterval.Duration <= 0 {
		c.Session.CleanupInterval = Duration{Duration: time.Minute}
	}

	c.Gateway.Provider = strings.ToLower(strings.TrimSpace(c.Gateway.Provider))
	if c.Gateway.Provider == "" {
		c.Gateway.Provider = "razorpay"
	}
	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	if c.Storage.Backend == "" {
		c.Storage.Backend = "memory"
	}
	if c.Storage.TableName == "" {
		c.Storage.TableName = "checkout_attempts"
	}

	return c.validate()
}

// validate checks that required configuration fields are set correctly.
func (c *Config) validate() error {
	var errs []string

	if c.Backend.BaseURL == "" {
		errs = append(errs, "backend.base_url is required")
	} else if u, err := url.Parse(c.Backend.BaseURL); err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		errs = append(errs, fmt.Sprintf("backend.base_url %q must be an absolute http(s) URL", c.Backend.BaseURL))
	}

	if c.Pricing.FreeShippingThreshold.Money < 0 {
		errs = append(errs, "pricing.free_shipping_threshold must not be negative")
	}
	if c.Pricing.ShippingFee.Money < 0 {
		errs = append(errs, "pricing.shipping_fee must not be negative")
	}

	if c.OTP.ResendCooldown.Duration < 0 {
		errs = append(errs, "otp.resend_cooldown must not be negative")
	}
	if c.OTP.MaxAttempts < 0 {
		errs = append(errs, "otp.max_attempts must not be negative (0 disables lockout)")
	}

	if c.Session.IdleTTL.Duration <= 0 {
		errs = append(errs, "session.idle_ttl must be positive")
	}

	switch c.Gateway.Provider {
	case "razorpay", "none":
	case "stripe":
		if c.Gateway.Stripe.SecretKey == "" {
			errs = append(errs, "gateway.stripe.secret_key is required when provider is 'stripe'")
		}
		if !strings.Contains(c.Gateway.Stripe.SuccessURL, "{CHECKOUT_SESSION_ID}") {
			errs = append(errs, "gateway.stripe.success_url must contain {CHECKOUT_SESSION_ID}")
		}
	default:
		errs = append(errs, fmt.Sprintf("gateway.provider %q must be one of razorpay, stripe, none", c.Gateway.Provider))
	}

	switch c.Storage.Backend {
	case "memory":
	case "postgres":
		if c.Storage.PostgresURL == "" {
			errs = append(errs, "storage.postgres_url is required when backend is 'postgres'")
		}
	case "mongodb":
		if c.Storage.MongoDBURL == "" {
			errs = append(errs, "storage.mongodb_url is required when backend is 'mongodb'")
		}
		if c.Storage.MongoDBDatabase == "" {
			errs = append(errs, "storage.mongodb_database is required when backend is 'mongodb'")
		}
	default:
		errs = append(errs, fmt.Sprintf("storage.backend %q must be one of memory, postgres, mongodb", c.Storage.Backend))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// ApplyPostgresPoolSettings applies connection pool settings to a database connection.
func ApplyPostgresPoolSettings(db *sql.DB, pool PostgresPoolConfig) {
	maxOpen := pool.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 10
	}
	maxIdle := pool.MaxIdleConns
	if maxIdle <= 0 {
		maxIdle = 2
	}
	if maxIdle > maxOpen {
		maxIdle = maxOpen
	}
	maxLifetime := pool.ConnMaxLifetime.Duration
	if maxLifetime <= 0 {
		maxLifetime = 5 * time.Minute
	}

	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(maxLifetime)
}
