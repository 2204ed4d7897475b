package storefront

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/veya/storefront/internal/apiclient"
	"github.com/veya/storefront/internal/catalog"
	"github.com/veya/storefront/internal/checkout"
	"github.com/veya/storefront/internal/circuitbreaker"
	"github.com/veya/storefront/internal/config"
	"github.com/veya/storefront/internal/dbpool"
	"github.com/veya/storefront/internal/gateway"
	"github.com/veya/storefront/internal/httpserver"
	"github.com/veya/storefront/internal/idempotency"
	"github.com/veya/storefront/internal/lifecycle"
	"github.com/veya/storefront/internal/logger"
	"github.com/veya/storefront/internal/metrics"
	"github.com/veya/storefront/internal/notify"
	"github.com/veya/storefront/internal/pricing"
	"github.com/veya/storefront/internal/session"
	"github.com/veya/storefront/internal/storage"
)

// App wires the storefront components for reuse or standalone serving.
type App struct {
	Config      *config.Config
	Ledger      storage.Store
	Widget      gateway.Widget
	Breakers    *circuitbreaker.Manager
	Clients     *apiclient.Factory
	Catalog     *catalog.Catalog
	Calculator  *pricing.Calculator
	Sessions    *session.Manager
	Idempotency idempotency.Store

	router           chi.Router
	server           *httpserver.Server
	logger           zerolog.Logger
	resourceManager  *lifecycle.Manager
	metricsCollector *metrics.Metrics
	gatherer         prometheus.Gatherer
}

// Option configures App construction.
type Option func(*options)

type options struct {
	ledger   storage.Store
	widget   gateway.Widget
	router   chi.Router
	registry *prometheus.Registry
	logger   *zerolog.Logger
}

// WithLedger sets a custom checkout-attempt store.
func WithLedger(store storage.Store) Option {
	return func(o *options) {
		o.ledger = store
	}
}

// WithWidget injects a payment widget adapter in place of the configured provider.
func WithWidget(widget gateway.Widget) Option {
	return func(o *options) {
		o.widget = widget
	}
}

// WithRouter allows callers to provide an existing chi.Router to register routes onto.
func WithRouter(router chi.Router) Option {
	return func(o *options) {
		o.router = router
	}
}

// WithRegistry registers metrics on reg instead of the default registerer.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(o *options) {
		o.registry = reg
	}
}

// WithLogger replaces the logger built from cfg.Logging.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) {
		o.logger = &l
	}
}

// NewApp assembles the storefront services for embedding.
func NewApp(cfg *config.Config, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("storefront: config required")
	}

	optState := options{}
	for _, opt := range opts {
		opt(&optState)
	}

	appLogger := logger.New(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Service:     "storefront",
		Environment: cfg.Logging.Environment,
	})
	if optState.logger != nil {
		appLogger = *optState.logger
	}

	app := &App{
		Config:          cfg,
		logger:          appLogger,
		resourceManager: lifecycle.NewManager(appLogger),
	}

	var registerer prometheus.Registerer = prometheus.DefaultRegisterer
	app.gatherer = prometheus.DefaultGatherer
	if optState.registry != nil {
		registerer = optState.registry
		app.gatherer = optState.registry
	}
	app.metricsCollector = metrics.New(registerer)

	if err := app.initLedger(optState.ledger); err != nil {
		_ = app.resourceManager.Close()
		return nil, err
	}

	app.Breakers = circuitbreaker.NewManagerFromConfig(cfg.CircuitBreaker, appLogger)

	if optState.widget != nil {
		app.Widget = optState.widget
	} else {
		widget, err := newWidget(cfg.Gateway, app.Breakers)
		if err != nil {
			_ = app.resourceManager.Close()
			return nil, err
		}
		app.Widget = widget
	}

	m := app.metricsCollector
	clients, err := apiclient.NewFactory(apiclient.Options{
		BaseURL:        cfg.Backend.BaseURL,
		Timeout:        cfg.Backend.Timeout.Duration,
		CSRFCookieName: cfg.Backend.CSRFCookieName,
		CSRFHeaderName: cfg.Backend.CSRFHeaderName,
		Retry: apiclient.RetryPolicy{
			MaxAttempts:     cfg.Backend.Retry.MaxAttempts,
			InitialInterval: cfg.Backend.Retry.InitialInterval.Duration,
			MaxInterval:     cfg.Backend.Retry.MaxInterval.Duration,
			Multiplier:      cfg.Backend.Retry.Multiplier,
		},
		Breakers: app.Breakers,
		Observer: m.ObserveBackendRequest,
	})
	if err != nil {
		_ = app.resourceManager.Close()
		return nil, err
	}
	app.Clients = clients

	// Catalog reads are not per visitor; one anonymous client serves them all.
	app.Catalog = catalog.New(clients.NewClient(), cfg.Catalog.CacheTTL.Duration, m)

	app.Calculator = pricing.New(pricing.Rules{
		FreeShippingThreshold: cfg.Pricing.FreeShippingThreshold.Money,
		ShippingFee:           cfg.Pricing.ShippingFee.Money,
		Currency:              cfg.Pricing.Currency,
		ClampAtZero:           cfg.Pricing.ClampFinalTotal,
	})

	app.Sessions = session.NewManager(session.Config{
		IdleTTL:         cfg.Session.IdleTTL.Duration,
		CleanupInterval: cfg.Session.CleanupInterval.Duration,
		Checkout: checkout.Config{
			StrictDelivery:  cfg.Checkout.StrictDelivery,
			AllowCOD:        cfg.Checkout.AllowCOD,
			CallbackTimeout: cfg.Checkout.CallbackTimeout.Duration,
		},
		OTP: session.OTPConfig{
			Cooldown:        cfg.OTP.ResendCooldown.Duration,
			MaxAttempts:     cfg.OTP.MaxAttempts,
			CodeLength:      cfg.OTP.CodeLength,
			ResetCodeLength: cfg.OTP.ResetCodeLength,
			PopupDelay:      cfg.OTP.PopupDelay.Duration,
		},
		Notifications: notify.Config{
			Duration:  cfg.Notifications.Duration.Duration,
			QueueSize: cfg.Notifications.QueueSize,
		},
	}, session.Deps{
		Clients:    clients,
		Calculator: app.Calculator,
		Widget:     app.Widget,
		Ledger:     app.Ledger,
		Metrics:    m,
		Logger:     appLogger,
	})
	// Sessions close before the ledger so abandoned payments are recorded.
	app.resourceManager.Register("sessions", app.Sessions)

	store := idempotency.NewMemoryStore(cfg.Idempotency.Capacity)
	app.Idempotency = store
	app.resourceManager.Register("idempotency-store", store)

	if optState.router != nil {
		app.router = optState.router
		httpserver.ConfigureRouter(app.router, cfg, app.deps())
	} else {
		app.router = chi.NewRouter()
		app.server = httpserver.NewWithRouter(app.router, cfg, app.deps())
	}

	appLogger.Info().
		Str("gateway", app.Widget.Name()).
		Str("ledger", cfg.Storage.Backend).
		Str("backend", cfg.Backend.BaseURL).
		Msg("storefront.initialized")
	return app, nil
}

func (a *App) initLedger(custom storage.Store) error {
	if custom != nil {
		a.Ledger = custom
		return nil
	}

	cfg := a.Config.Storage
	switch cfg.Backend {
	case "", "memory":
		a.Ledger = storage.NewMemoryStore()
		a.logger.Warn().Msg("storefront: checkout ledger is in memory and is lost on restart")
	case "postgres":
		pool, err := dbpool.Open(cfg.PostgresURL, cfg.PostgresPool, storage.DefaultQueryTimeout)
		if err != nil {
			return fmt.Errorf("storefront: open ledger database: %w", err)
		}
		a.resourceManager.Register("postgres-pool", pool)
		store, err := storage.NewPostgresStoreWithDB(pool.DB(), cfg.TableName, a.metricsCollector)
		if err != nil {
			return fmt.Errorf("storefront: init postgres ledger: %w", err)
		}
		a.Ledger = store
	case "mongodb":
		store, err := storage.NewMongoDBStore(cfg.MongoDBURL, cfg.MongoDBDatabase, cfg.TableName, a.metricsCollector)
		if err != nil {
			return fmt.Errorf("storefront: init mongodb ledger: %w", err)
		}
		a.Ledger = store
	default:
		return fmt.Errorf("storefront: unknown storage backend %q", cfg.Backend)
	}
	a.resourceManager.Register("ledger", a.Ledger)
	return nil
}

func newWidget(cfg config.GatewayConfig, breakers *circuitbreaker.Manager) (gateway.Widget, error) {
	switch cfg.Provider {
	case "", "razorpay":
		return gateway.Hosted{Merchant: "Veya"}, nil
	case "stripe":
		return gateway.NewStripe(gateway.StripeConfig{
			SecretKey:  cfg.Stripe.SecretKey,
			SuccessURL: cfg.Stripe.SuccessURL,
			CancelURL:  cfg.Stripe.CancelURL,
		}, breakers), nil
	case "none":
		return gateway.None{}, nil
	default:
		return nil, fmt.Errorf("storefront: unknown gateway provider %q", cfg.Provider)
	}
}

func (a *App) deps() httpserver.Deps {
	return httpserver.Deps{
		Sessions:    a.Sessions,
		Catalog:     a.Catalog,
		Calculator:  a.Calculator,
		Breakers:    a.Breakers,
		Idempotency: a.Idempotency,
		Metrics:     a.metricsCollector,
		Gatherer:    a.gatherer,
		Logger:      a.logger,
	}
}

// Router returns the chi router with storefront routes registered.
func (a *App) Router() chi.Router {
	return a.router
}

// Handler exposes the router as an http.Handler.
func (a *App) Handler() http.Handler {
	return a.router
}

// Logger returns the application logger.
func (a *App) Logger() zerolog.Logger {
	return a.logger
}

// ListenAndServe serves on cfg.Server.Address. It is unavailable when the
// routes were registered on a caller-provided router.
func (a *App) ListenAndServe() error {
	if a.server == nil {
		return errors.New("storefront: app was built on an external router")
	}
	return a.server.ListenAndServe()
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (a *App) Shutdown(ctx context.Context) error {
	if a.server == nil {
		return nil
	}
	return a.server.Shutdown(ctx)
}

// Close ends every session, then releases the ledger and database pool.
func (a *App) Close() error {
	return a.resourceManager.Close()
}

// RegisterRoutes attaches storefront endpoints to the provided router using an existing App.
func RegisterRoutes(router chi.Router, app *App) {
	if router == nil || app == nil {
		return
	}
	httpserver.ConfigureRouter(router, app.Config, app.deps())
}

// NewHandler is a convenience that constructs an App and returns its handler.
func NewHandler(cfg *config.Config, opts ...Option) (http.Handler, func(context.Context) error, error) {
	app, err := NewApp(cfg, opts...)
	if err != nil {
		return nil, nil, err
	}
	shutdown := func(context.Context) error {
		return app.Close()
	}
	return app.Handler(), shutdown, nil
}

// Config is an exported alias of the internal configuration struct for embedding use.
type Config = config.Config

// LoadConfig wraps the internal loader for consumers embedding the storefront.
func LoadConfig(path string) (*config.Config, error) {
	return config.Load(path)
}
