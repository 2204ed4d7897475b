package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/veya/storefront/internal/catalog"
	"github.com/veya/storefront/internal/circuitbreaker"
	"github.com/veya/storefront/internal/config"
	"github.com/veya/storefront/internal/idempotency"
	"github.com/veya/storefront/internal/logger"
	"github.com/veya/storefront/internal/metrics"
	"github.com/veya/storefront/internal/pricing"
	"github.com/veya/storefront/internal/ratelimit"
	"github.com/veya/storefront/internal/session"
)

var serverStartTime = time.Now()

// Deps are the services the handlers call into.
type Deps struct {
	Sessions    *session.Manager
	Catalog     *catalog.Catalog
	Calculator  *pricing.Calculator
	Breakers    *circuitbreaker.Manager
	Idempotency idempotency.Store
	Metrics     *metrics.Metrics
	// Gatherer backs /metrics; the default registry when nil.
	Gatherer prometheus.Gatherer
	Logger   zerolog.Logger
}

// Server wires handlers, middleware, and dependencies.
type Server struct {
	handlers
	httpServer *http.Server
}

type handlers struct {
	cfg              *config.Config
	sessions         *session.Manager
	catalog          *catalog.Catalog
	calculator       *pricing.Calculator
	breakers         *circuitbreaker.Manager
	idempotencyStore idempotency.Store
	metrics          *metrics.Metrics
	gatherer         prometheus.Gatherer
	logger           zerolog.Logger
}

func newHandlers(cfg *config.Config, deps Deps) handlers {
	if deps.Calculator == nil {
		deps.Calculator = pricing.New(pricing.DefaultRules())
	}
	if deps.Idempotency == nil {
		deps.Idempotency = idempotency.NewMemoryStore(cfg.Idempotency.Capacity)
	}
	return handlers{
		cfg:              cfg,
		sessions:         deps.Sessions,
		catalog:          deps.Catalog,
		calculator:       deps.Calculator,
		breakers:         deps.Breakers,
		idempotencyStore: deps.Idempotency,
		metrics:          deps.Metrics,
		gatherer:         deps.Gatherer,
		logger:           deps.Logger,
	}
}

// New builds the HTTP server with configured router.
func New(cfg *config.Config, deps Deps) *Server {
	return NewWithRouter(chi.NewRouter(), cfg, deps)
}

// NewWithRouter builds the HTTP server around router, registering the
// storefront routes on it.
func NewWithRouter(router chi.Router, cfg *config.Config, deps Deps) *Server {
	s := &Server{
		handlers: newHandlers(cfg, deps),
		httpServer: &http.Server{
			Addr:         cfg.Server.Address,
			ReadTimeout:  cfg.Server.ReadTimeout.Duration,
			WriteTimeout: cfg.Server.WriteTimeout.Duration,
			IdleTimeout:  cfg.Server.IdleTimeout.Duration,
			Handler:      router,
		},
	}
	s.handlers.routes(router)
	return s
}

// ConfigureRouter attaches the storefront routes to an existing router.
func ConfigureRouter(router chi.Router, cfg *config.Config, deps Deps) {
	if router == nil {
		return
	}
	h := newHandlers(cfg, deps)
	h.routes(router)
}

func (h *handlers) routes(router chi.Router) {
	cfg := h.cfg

	if len(cfg.Server.CORSAllowedOrigins) > 0 {
		router.Use(cors.New(cors.Options{
			AllowedOrigins:   cfg.Server.CORSAllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type", idempotency.HeaderKey, "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID", idempotency.ReplayHeader},
			AllowCredentials: true, // the session cookie
			MaxAge:           300,
		}).Handler)
	}

	router.Use(securityHeadersMiddleware)
	router.Use(middleware.RealIP)
	router.Use(logger.Middleware(h.logger))
	router.Use(middleware.Recoverer)
	router.Use(requestMetrics(h.metrics))

	limits := ratelimit.Config{
		GlobalEnabled: cfg.RateLimit.GlobalEnabled,
		GlobalLimit:   cfg.RateLimit.GlobalLimit,
		GlobalWindow:  cfg.RateLimit.GlobalWindow.Duration,
		PerIPEnabled:  cfg.RateLimit.PerIPEnabled,
		PerIPLimit:    cfg.RateLimit.PerIPLimit,
		PerIPWindow:   cfg.RateLimit.PerIPWindow.Duration,
		OTPEnabled:    cfg.RateLimit.OTPEnabled,
		OTPLimit:      cfg.RateLimit.OTPLimit,
		OTPWindow:     cfg.RateLimit.OTPWindow.Duration,
		Metrics:       h.metrics,
	}
	router.Use(ratelimit.GlobalLimiter(limits))
	router.Use(ratelimit.IPLimiter(limits))

	prefix := cfg.Server.RoutePrefix

	metricsHandler := promhttp.Handler()
	if h.gatherer != nil {
		metricsHandler = promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})
	}

	// Lightweight endpoints
	router.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(5 * time.Second))
		r.Get(prefix+"/healthz", h.health)
		r.With(adminMetricsAuth(cfg.Server.AdminMetricsAPIKey)).Handle(prefix+"/metrics", metricsHandler)
	})

	// Catalog reads need no visitor state.
	router.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(15 * time.Second))
		r.Get(prefix+"/api/products", h.listProducts)
		r.Get(prefix+"/api/products/featured", h.featuredProducts)
		r.Get(prefix+"/api/products/{id}", h.getProduct)
		r.Get(prefix+"/api/categories", h.listCategories)
	})

	idempotent := idempotency.Middleware(h.idempotencyStore, cfg.Idempotency.TTL.Duration, sessionScope)
	otpLimit := ratelimit.OTPLimiter(limits)

	router.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))
		r.Use(h.sessionMiddleware)

		r.Get(prefix+"/api/cart", h.getCart)
		r.Post(prefix+"/api/cart/items", h.addCartItem)
		r.Patch(prefix+"/api/cart/items/{id}", h.updateCartItem)
		r.Delete(prefix+"/api/cart/items/{id}", h.removeCartItem)
		r.Get(prefix+"/api/cart/summary", h.cartSummary)
		r.Post(prefix+"/api/cart/coupon", h.applyCoupon)
		r.Delete(prefix+"/api/cart/coupon", h.removeCoupon)
		r.Get(prefix+"/api/coupons/mine", h.myCoupons)

		r.With(idempotent).Post(prefix+"/api/checkout", h.submitCheckout)
		r.Get(prefix+"/api/checkout/state", h.checkoutState)
		r.Post(prefix+"/api/checkout/reset", h.resetCheckout)

		r.Get(prefix+"/api/orders", h.listOrders)
		r.Get(prefix+"/api/orders/track/{order_number}", h.trackOrder)

		r.With(otpLimit).Post(prefix+"/api/otp/{variant}/send", h.sendOTP)
		r.With(otpLimit).Post(prefix+"/api/otp/{variant}/verify", h.verifyOTP)
		r.Get(prefix+"/api/otp/{variant}", h.otpStatus)
		r.Delete(prefix+"/api/otp/{variant}", h.resetOTP)
		r.Post(prefix+"/api/password-reset/confirm", h.confirmPasswordReset)
		r.Get(prefix+"/api/popup", h.popup)

		r.Get(prefix+"/api/notifications", h.notifications)
		r.Delete(prefix+"/api/notifications/{id}", h.dismissNotification)

		r.Post(prefix+"/api/newsletter", h.subscribeNewsletter)
		r.Post(prefix+"/api/bulk-orders", h.requestBulkOrder)

		r.Post(prefix+"/api/auth/login", h.login)
		r.Post(prefix+"/api/auth/register", h.register)
		r.Post(prefix+"/api/auth/logout", h.logout)
		r.Get(prefix+"/api/me", h.me)
		r.Patch(prefix+"/api/me", h.updateMe)
	})

	// The payment callback can wait on verification, and the widget may
	// deliver it long after the checkout page request finished.
	router.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))
		r.Use(h.sessionMiddleware)
		r.Post(prefix+"/api/checkout/{order_id}/payment-callback", h.paymentCallback)
	})
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
