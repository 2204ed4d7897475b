package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/veya/storefront/internal/money"
)

// applyEnvOverrides applies STOREFRONT_* environment variables on top of the file.
func (c *Config) applyEnvOverrides() {
	setIfEnv(&c.Server.Address, "STOREFRONT_SERVER_ADDRESS")
	setIfEnv(&c.Server.RoutePrefix, "STOREFRONT_ROUTE_PREFIX")
	setIfEnv(&c.Server.AdminMetricsAPIKey, "STOREFRONT_ADMIN_METRICS_API_KEY")
	setListIfEnv(&c.Server.CORSAllowedOrigins, "STOREFRONT_CORS_ALLOWED_ORIGINS")
	if c.Server.RoutePrefix != "" {
		c.Server.RoutePrefix = normalizeRoutePrefix(c.Server.RoutePrefix)
	}

	setIfEnv(&c.Logging.Level, "STOREFRONT_LOG_LEVEL")
	setIfEnv(&c.Logging.Format, "STOREFRONT_LOG_FORMAT")
	setIfEnv(&c.Logging.Environment, "STOREFRONT_ENVIRONMENT")

	setIfEnv(&c.Backend.BaseURL, "STOREFRONT_BACKEND_BASE_URL")
	setDurationIfEnv(&c.Backend.Timeout, "STOREFRONT_BACKEND_TIMEOUT")

	setAmountIfEnv(&c.Pricing.FreeShippingThreshold, "STOREFRONT_FREE_SHIPPING_THRESHOLD")
	setAmountIfEnv(&c.Pricing.ShippingFee, "STOREFRONT_SHIPPING_FEE")
	setBoolIfEnv(&c.Pricing.ClampFinalTotal, "STOREFRONT_CLAMP_FINAL_TOTAL")

	setDurationIfEnv(&c.OTP.ResendCooldown, "STOREFRONT_OTP_RESEND_COOLDOWN")
	setIntIfEnv(&c.OTP.MaxAttempts, "STOREFRONT_OTP_MAX_ATTEMPTS")
	setDurationIfEnv(&c.OTP.PopupDelay, "STOREFRONT_OTP_POPUP_DELAY")

	setDurationIfEnv(&c.Notifications.Duration, "STOREFRONT_NOTIFICATION_DURATION")

	setIfEnv(&c.Session.CookieName, "STOREFRONT_SESSION_COOKIE")
	setDurationIfEnv(&c.Session.IdleTTL, "STOREFRONT_SESSION_IDLE_TTL")
	setBoolIfEnv(&c.Session.SecureCookie, "STOREFRONT_SESSION_SECURE_COOKIE")

	setBoolIfEnv(&c.Checkout.StrictDelivery, "STOREFRONT_CHECKOUT_STRICT_DELIVERY")
	setBoolIfEnv(&c.Checkout.AllowCOD, "STOREFRONT_CHECKOUT_ALLOW_COD")
	setDurationIfEnv(&c.Checkout.CallbackTimeout, "STOREFRONT_CHECKOUT_CALLBACK_TIMEOUT")

	setDurationIfEnv(&c.Catalog.CacheTTL, "STOREFRONT_CATALOG_CACHE_TTL")
	setBoolIfEnv(&c.Marketing.MaskNewsletterErrors, "STOREFRONT_MASK_NEWSLETTER_ERRORS")

	setIfEnv(&c.Gateway.Provider, "STOREFRONT_GATEWAY_PROVIDER")
	setIfEnv(&c.Gateway.Stripe.SecretKey, "STOREFRONT_STRIPE_SECRET_KEY")
	setIfEnv(&c.Gateway.Stripe.SuccessURL, "STOREFRONT_STRIPE_SUCCESS_URL")
	setIfEnv(&c.Gateway.Stripe.CancelURL, "STOREFRONT_STRIPE_CANCEL_URL")

	setIfEnv(&c.Storage.Backend, "STOREFRONT_STORAGE_BACKEND")
	setIfEnv(&c.Storage.PostgresURL, "STOREFRONT_POSTGRES_URL")
	setIfEnv(&c.Storage.MongoDBURL, "STOREFRONT_MONGODB_URL")
	setIfEnv(&c.Storage.MongoDBDatabase, "STOREFRONT_MONGODB_DATABASE")

	setBoolIfEnv(&c.CircuitBreaker.Enabled, "STOREFRONT_CIRCUIT_BREAKER_ENABLED")
}

func setIfEnv(target *string, key string) {
	if val := os.Getenv(key); val != "" {
		*target = val
	}
}

// setBoolIfEnv accepts "1" and any casing of "true" as true; other values set false.
func setBoolIfEnv(target *bool, key string) {
	if v := os.Getenv(key); v != "" {
		*target = v == "1" || strings.EqualFold(v, "true")
	}
}

func setIntIfEnv(target *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			*target = n
		}
	}
}

// setDurationIfEnv uses time.ParseDuration ("5m", "120s", "1h30m").
func setDurationIfEnv(target *Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if dur, err := time.ParseDuration(v); err == nil {
			*target = Duration{Duration: dur}
		}
	}
}

func setAmountIfEnv(target *Amount, key string) {
	if v := os.Getenv(key); v != "" {
		if m, err := money.FromMajor(strings.TrimSpace(v)); err == nil {
			*target = Amount{Money: m}
		}
	}
}

// setListIfEnv splits a comma separated value, dropping blanks.
func setListIfEnv(target *[]string, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	*target = out
}

// normalizeRoutePrefix ensures the prefix starts with / and doesn't end with /.
// Examples: "bff" -> "/bff", "/bff/" -> "/bff"
func normalizeRoutePrefix(prefix string) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return ""
	}
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	return strings.TrimSuffix(prefix, "/")
}
