package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the storefront BFF.
// Every Observe method is safe to call on a nil *Metrics.
type Metrics struct {
	// Inbound HTTP
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Backend API
	BackendRequestsTotal   *prometheus.CounterVec
	BackendRequestDuration *prometheus.HistogramVec

	// Cart
	CartMutationsTotal *prometheus.CounterVec
	CartFetchesTotal   *prometheus.CounterVec
	CouponsTotal       *prometheus.CounterVec

	// Checkout
	CheckoutsTotal      *prometheus.CounterVec
	CheckoutDuration    *prometheus.HistogramVec
	OrderValueTotal     *prometheus.CounterVec
	PaymentCallbackWait prometheus.Histogram

	// OTP and notifications
	OTPEventsTotal     *prometheus.CounterVec
	NotificationsTotal *prometheus.CounterVec

	// Catalog cache
	CatalogCacheTotal *prometheus.CounterVec

	// Sessions
	SessionsActive prometheus.Gauge

	// Rate limiting
	RateLimitHitsTotal *prometheus.CounterVec

	// Checkout-attempt ledger
	DBQueryDuration *prometheus.HistogramVec
}

// New creates and registers all metrics on registry (default registerer when nil).
func New(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Metrics{
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storefront_http_requests_total",
				Help: "Requests served by the BFF",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "storefront_http_request_duration_seconds",
				Help:    "BFF request latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		BackendRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storefront_backend_requests_total",
				Help: "Requests made to the storefront REST API",
			},
			[]string{"op", "method", "status"},
		),
		BackendRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "storefront_backend_request_duration_seconds",
				Help:    "Latency of storefront REST API requests",
				Buckets: []float64{.025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"op"},
		),
		CartMutationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storefront_cart_mutations_total",
				Help: "Cart add/update/remove operations by result",
			},
			[]string{"op", "result"},
		),
		CartFetchesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storefront_cart_fetches_total",
				Help: "Cart fetches by result (ok, guest, error)",
			},
			[]string{"result"},
		),
		CouponsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storefront_coupon_applications_total",
				Help: "Coupon apply attempts by result",
			},
			[]string{"result"},
		),
		CheckoutsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storefront_checkouts_total",
				Help: "Checkout flow outcomes",
			},
			[]string{"payment_method", "outcome"},
		),
		CheckoutDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "storefront_checkout_duration_seconds",
				Help:    "Time from order submission to a terminal checkout state",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
			},
			[]string{"payment_method"},
		),
		OrderValueTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storefront_order_value_paise_total",
				Help: "Sum of placed order totals in paise",
			},
			[]string{"currency"},
		),
		PaymentCallbackWait: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "storefront_payment_callback_wait_seconds",
				Help:    "Time between payment handoff and the widget callback",
				Buckets: prometheus.ExponentialBuckets(1, 2, 11),
			},
		),
		OTPEventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storefront_otp_events_total",
				Help: "OTP flow events (sent, send_failed, verified, rejected, locked, cooldown)",
			},
			[]string{"variant", "event"},
		),
		NotificationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storefront_notifications_total",
				Help: "Toasts published by type",
			},
			[]string{"type"},
		),
		CatalogCacheTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storefront_catalog_cache_total",
				Help: "Catalog cache lookups by result",
			},
			[]string{"result"},
		),
		SessionsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "storefront_sessions_active",
				Help: "Visitor sessions currently held in memory",
			},
		),
		RateLimitHitsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storefront_rate_limit_hits_total",
				Help: "Requests rejected by a rate limiter",
			},
			[]string{"limit_type"},
		),
		DBQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "storefront_db_query_duration_seconds",
				Help:    "Checkout ledger query latency",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"operation", "backend"},
		),
	}
}

// ObserveHTTPRequest records one served request. route is the chi pattern.
func (m *Metrics) ObserveHTTPRequest(method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, statusClass(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(route).Observe(duration.Seconds())
}

// ObserveBackendRequest records one REST API round trip. status 0 means transport failure.
func (m *Metrics) ObserveBackendRequest(op, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.BackendRequestsTotal.WithLabelValues(op, method, statusClass(status)).Inc()
	m.BackendRequestDuration.WithLabelValues(op).Observe(duration.Seconds())
}

// ObserveCartMutation records an add/update/remove.
func (m *Metrics) ObserveCartMutation(op string, err error) {
	if m == nil {
		return
	}
	m.CartMutationsTotal.WithLabelValues(op, result(err)).Inc()
}

// ObserveCartFetch records a cart fetch; result is ok, guest or error.
func (m *Metrics) ObserveCartFetch(outcome string) {
	if m == nil {
		return
	}
	m.CartFetchesTotal.WithLabelValues(outcome).Inc()
}

// ObserveCoupon records a coupon apply attempt; result is applied, invalid or error.
func (m *Metrics) ObserveCoupon(outcome string) {
	if m == nil {
		return
	}
	m.CouponsTotal.WithLabelValues(outcome).Inc()
}

// ObserveCheckout records a terminal checkout outcome.
func (m *Metrics) ObserveCheckout(paymentMethod, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.CheckoutsTotal.WithLabelValues(paymentMethod, outcome).Inc()
	m.CheckoutDuration.WithLabelValues(paymentMethod).Observe(duration.Seconds())
}

// ObserveOrderPlaced adds an order total in minor units.
func (m *Metrics) ObserveOrderPlaced(currency string, amountMinor int64) {
	if m == nil || amountMinor <= 0 {
		return
	}
	m.OrderValueTotal.WithLabelValues(currency).Add(float64(amountMinor))
}

// ObservePaymentCallback records how long the visitor spent in the payment widget.
func (m *Metrics) ObservePaymentCallback(wait time.Duration) {
	if m == nil {
		return
	}
	m.PaymentCallbackWait.Observe(wait.Seconds())
}

// ObserveOTP records an OTP flow event.
func (m *Metrics) ObserveOTP(variant, event string) {
	if m == nil {
		return
	}
	m.OTPEventsTotal.WithLabelValues(variant, event).Inc()
}

// ObserveNotification records a published toast.
func (m *Metrics) ObserveNotification(kind string) {
	if m == nil {
		return
	}
	m.NotificationsTotal.WithLabelValues(kind).Inc()
}

// ObserveCatalogCache records a cache hit or miss.
func (m *Metrics) ObserveCatalogCache(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CatalogCacheTotal.WithLabelValues("hit").Inc()
		return
	}
	m.CatalogCacheTotal.WithLabelValues("miss").Inc()
}

// SetActiveSessions reports the in-memory session count.
func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.SessionsActive.Set(float64(n))
}

// ObserveRateLimit records a rejected request.
func (m *Metrics) ObserveRateLimit(limitType string) {
	if m == nil {
		return
	}
	m.RateLimitHitsTotal.WithLabelValues(limitType).Inc()
}

// ObserveDBQuery records a ledger query duration.
func (m *Metrics) ObserveDBQuery(operation, backend string, duration time.Duration) {
	if m == nil {
		return
	}
	m.DBQueryDuration.WithLabelValues(operation, backend).Observe(duration.Seconds())
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// statusClass collapses status codes to keep label cardinality low: 2xx, 4xx, 5xx, error.
func statusClass(status int) string {
	if status <= 0 {
		return "error"
	}
	return strconv.Itoa(status/100) + "xx"
}
