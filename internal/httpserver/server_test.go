package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/veya/storefront/internal/apiclient"
	"github.com/veya/storefront/internal/catalog"
	"github.com/veya/storefront/internal/checkout"
	"github.com/veya/storefront/internal/config"
	apierrors "github.com/veya/storefront/internal/errors"
	"github.com/veya/storefront/internal/gateway"
	"github.com/veya/storefront/internal/idempotency"
	"github.com/veya/storefront/internal/metrics"
	"github.com/veya/storefront/internal/money"
	"github.com/veya/storefront/internal/otp"
	"github.com/veya/storefront/internal/pricing"
	"github.com/veya/storefront/internal/session"
	"github.com/veya/storefront/internal/storage"
)

// fakeBackend is a small in-memory stand-in for the storefront REST API.
type fakeBackend struct {
	mu             sync.Mutex
	products       map[int64]apiclient.Product
	cart           []apiclient.CartItem
	nextItem       int64
	orders         []apiclient.Order
	verified       map[int64]string
	productListHit int
	newsletterFail bool
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		products: map[int64]apiclient.Product{
			1: {ID: 1, Name: "Rose Serum", Slug: "rose-serum", Price: money.Rupees(600)},
			2: {ID: 2, Name: "Clay Mask", Slug: "clay-mask", Price: money.Rupees(400), DiscountPrice: ptr(money.Rupees(300))},
		},
		verified: make(map[int64]string),
	}
}

func ptr[T any](v T) *T { return &v }

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func signedIn(r *http.Request) bool {
	c, err := r.Cookie("sessionid")
	return err == nil && c.Value == "valid"
}

func requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !signedIn(r) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Authentication credentials were not provided."})
			return
		}
		next(w, r)
	}
}

func (b *fakeBackend) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/auth/login/", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["password"] != "secret" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid credentials"})
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "sessionid", Value: "valid", Path: "/"})
		http.SetCookie(w, &http.Cookie{Name: "csrftoken", Value: "csrf", Path: "/"})
		writeJSON(w, http.StatusOK, apiclient.User{ID: 7, Username: body["username"], FirstName: "Asha"})
	})
	mux.HandleFunc("GET /api/users/me/", requireAuth(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, apiclient.User{ID: 7, Username: "asha"})
	}))
	mux.HandleFunc("PATCH /api/users/me/", requireAuth(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if email, ok := body["email"]; ok && !strings.Contains(email, "@") {
			writeJSON(w, http.StatusBadRequest, map[string][]string{"email": {"Enter a valid email address."}})
			return
		}
		writeJSON(w, http.StatusOK, apiclient.User{ID: 7, Username: "asha", Email: body["email"], FirstName: body["first_name"]})
	}))

	mux.HandleFunc("GET /api/products/", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.productListHit++
		list := []apiclient.Product{b.products[1], b.products[2]}
		b.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{"count": len(list), "results": list})
	})
	mux.HandleFunc("GET /api/products/{slug}/", func(w http.ResponseWriter, r *http.Request) {
		for _, p := range b.products {
			if p.Slug == r.PathValue("slug") {
				writeJSON(w, http.StatusOK, p)
				return
			}
		}
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Not found."})
	})

	mux.HandleFunc("GET /api/cart/", requireAuth(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		writeJSON(w, http.StatusOK, b.cart)
	}))
	mux.HandleFunc("POST /api/cart/", requireAuth(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			ProductID int64 `json:"product_id"`
			Quantity  int   `json:"quantity"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		b.mu.Lock()
		defer b.mu.Unlock()
		p, ok := b.products[body.ProductID]
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "Product not found"})
			return
		}
		b.nextItem++
		total, _ := p.EffectivePrice().Mul(int64(body.Quantity))
		b.cart = append(b.cart, apiclient.CartItem{ID: b.nextItem, Product: p, Quantity: body.Quantity, TotalPrice: total})
		writeJSON(w, http.StatusCreated, map[string]string{"message": "added"})
	}))

	mux.HandleFunc("POST /api/coupons/validate/", requireAuth(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["code"] != "SAVE100" {
			writeJSON(w, http.StatusBadRequest, map[string]any{"valid": false, "error": "Coupon has expired"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"valid": true, "code": "SAVE100", "discount_amount": "100.00"})
	}))

	mux.HandleFunc("POST /api/orders/", requireAuth(func(w http.ResponseWriter, r *http.Request) {
		var req apiclient.CreateOrderRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		b.mu.Lock()
		defer b.mu.Unlock()
		id := int64(len(b.orders) + 1)
		order := apiclient.Order{ID: id, OrderNumber: fmt.Sprintf("ORD-%04d", id), TotalAmount: req.TotalAmount, Status: apiclient.OrderPending}
		b.orders = append(b.orders, order)
		b.cart = nil
		writeJSON(w, http.StatusCreated, order)
	}))
	mux.HandleFunc("POST /api/orders/{id}/create_payment/", requireAuth(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"payment_required": true,
			"order_id":         "order_rzp_" + r.PathValue("id"),
			"amount":           110000,
			"currency":         "INR",
			"key":              "rzp_test_key",
		})
	}))
	mux.HandleFunc("POST /api/orders/{id}/verify_payment/", requireAuth(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		id, _ := strconv.ParseInt(r.PathValue("id"), 10, 64)
		b.mu.Lock()
		b.verified[id] = body["payment_id"]
		b.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
	}))
	mux.HandleFunc("GET /api/orders/track/{number}/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Order not found"})
	})

	mux.HandleFunc("POST /api/auth/email/send-otp/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"message": "OTP sent to your email"})
	})
	mux.HandleFunc("POST /api/auth/email/verify-otp/", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["otp"] != "1234" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid OTP"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"message": "Verified", "coupon": map[string]string{"code": "WELCOME10"}})
	})

	mux.HandleFunc("POST /api/newsletter/subscribe/", func(w http.ResponseWriter, r *http.Request) {
		if b.newsletterFail {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "boom"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "Subscribed!"})
	})
	return mux
}

type testEnv struct {
	backend *fakeBackend
	server  *httptest.Server
	client  *http.Client
	cfg     *config.Config
	ledger  *storage.MemoryStore
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Session.CookieName = "sf_session"
	cfg.Idempotency.TTL = config.Duration{Duration: time.Hour}
	cfg.Idempotency.Capacity = 100
	cfg.Pricing.Currency = "INR"
	return cfg
}

func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()
	backend := newFakeBackend()
	api := httptest.NewServer(backend.handler())
	t.Cleanup(api.Close)

	cfg := testConfig()
	if mutate != nil {
		mutate(cfg)
	}

	clients, err := apiclient.NewFactory(apiclient.Options{
		BaseURL: api.URL + "/api",
		Retry:   apiclient.RetryPolicy{MaxAttempts: 1},
	})
	if err != nil {
		t.Fatalf("NewFactory: %v", err)
	}
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	ledger := storage.NewMemoryStore()
	calc := pricing.New(pricing.DefaultRules())

	sessions := session.NewManager(session.Config{
		IdleTTL:         time.Hour,
		CleanupInterval: time.Hour,
		Checkout:        checkout.Config{AllowCOD: true, CallbackTimeout: 5 * time.Second},
		OTP:             session.OTPConfig{CodeLength: 4, ResetCodeLength: 6, Cooldown: 30 * time.Second, MaxAttempts: 3, PopupDelay: 10 * time.Second},
	}, session.Deps{
		Clients:    clients,
		Calculator: calc,
		Widget:     gateway.Hosted{Merchant: "Veya"},
		Ledger:     ledger,
		Metrics:    m,
		Logger:     zerolog.Nop(),
	})
	t.Cleanup(func() { _ = sessions.Close() })

	store := idempotency.NewMemoryStore(100)
	t.Cleanup(func() { _ = store.Close() })

	srv := New(cfg, Deps{
		Sessions:    sessions,
		Catalog:     catalog.New(clients.NewClient(), time.Minute, m),
		Calculator:  calc,
		Idempotency: store,
		Metrics:     m,
		Gatherer:    reg,
		Logger:      zerolog.Nop(),
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	jar, _ := cookiejar.New(nil)
	return &testEnv{backend: backend, server: ts, client: &http.Client{Jar: jar}, cfg: cfg, ledger: ledger}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, headers ...string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, e.server.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := e.client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp, data
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return v
}

func (e *testEnv) login(t *testing.T) {
	t.Helper()
	resp, body := e.do(t, http.MethodPost, "/api/auth/login", map[string]string{"username": "asha", "password": "secret"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login: %d %s", resp.StatusCode, body)
	}
}

var fullDelivery = apiclient.DeliveryDetails{
	FullName:        "Asha Rao",
	Email:           "asha@example.in",
	Phone:           "98765 43210",
	ShippingAddress: "12 MG Road",
	City:            "Bengaluru",
	State:           "Karnataka",
	Pincode:         "560001",
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, nil)
	resp, body := env.do(t, http.MethodGet, "/healthz", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	got := decode[healthResponse](t, body)
	if got.Status != "ok" {
		t.Errorf("status = %q", got.Status)
	}
	if resp.Header.Get("X-Content-Type-Options") != "nosniff" {
		t.Error("security headers missing")
	}
}

func TestGuestCartAndAddRequiresLogin(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, body := env.do(t, http.MethodGet, "/api/cart", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET cart: %d %s", resp.StatusCode, body)
	}
	cart := decode[cartResponse](t, body)
	if !cart.Guest || len(cart.Items) != 0 {
		t.Errorf("guest cart = %+v", cart)
	}

	resp, body = env.do(t, http.MethodPost, "/api/cart/items", map[string]any{"product_id": 1, "quantity": 1})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("add as guest: %d %s", resp.StatusCode, body)
	}
	if got := decode[apierrors.ErrorResponse](t, body); got.Error.Code != apierrors.ErrCodeAuthRequired {
		t.Errorf("code = %s", got.Error.Code)
	}

	_, body = env.do(t, http.MethodGet, "/api/notifications", nil)
	notes := decode[struct {
		Notifications []struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"notifications"`
	}](t, body)
	if len(notes.Notifications) != 1 || notes.Notifications[0].Type != "warning" {
		t.Errorf("notifications = %+v", notes.Notifications)
	}
}

func TestSessionCookieIssuedOnce(t *testing.T) {
	env := newTestEnv(t, nil)
	resp, _ := env.do(t, http.MethodGet, "/api/cart", nil)
	if len(resp.Cookies()) != 1 || resp.Cookies()[0].Name != "sf_session" || !resp.Cookies()[0].HttpOnly {
		t.Fatalf("cookies = %v", resp.Cookies())
	}
	resp, _ = env.do(t, http.MethodGet, "/api/cart", nil)
	if len(resp.Cookies()) != 0 {
		t.Errorf("cookie re-issued for a known session: %v", resp.Cookies())
	}
}

func TestOnlineCheckoutEndToEnd(t *testing.T) {
	env := newTestEnv(t, nil)
	env.login(t)

	resp, body := env.do(t, http.MethodPost, "/api/cart/items", map[string]any{"product_id": 1, "quantity": 2})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("add: %d %s", resp.StatusCode, body)
	}
	if cart := decode[cartResponse](t, body); !cart.OpenCart || cart.Count != 2 {
		t.Errorf("add response = %+v", cart)
	}

	resp, body = env.do(t, http.MethodPost, "/api/cart/coupon", map[string]string{"code": " save100 "})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("coupon: %d %s", resp.StatusCode, body)
	}

	_, body = env.do(t, http.MethodGet, "/api/cart/summary", nil)
	summary := decode[pricing.Snapshot](t, body)
	if summary.Subtotal != money.Rupees(1200) || summary.CouponDiscount != money.Rupees(100) ||
		summary.ShippingFee != 0 || summary.FinalTotal != money.Rupees(1100) {
		t.Fatalf("summary = %+v", summary)
	}

	submit := checkout.SubmitRequest{Delivery: fullDelivery, Method: checkout.MethodOnline, Entry: checkout.EntryPage}
	resp, first := env.do(t, http.MethodPost, "/api/checkout", submit, idempotency.HeaderKey, "checkout-1")
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("checkout: %d %s", resp.StatusCode, first)
	}
	snap := decode[checkout.Snapshot](t, first)
	if snap.State != checkout.StatePaymentPending || snap.Handoff == nil || snap.Handoff.Reference != "order_rzp_1" {
		t.Fatalf("snapshot = %+v", snap)
	}
	if snap.Order.TotalAmount != money.Rupees(1100) {
		t.Errorf("order total = %v", snap.Order.TotalAmount)
	}

	resp, replay := env.do(t, http.MethodPost, "/api/checkout", submit, idempotency.HeaderKey, "checkout-1")
	if resp.Header.Get(idempotency.ReplayHeader) != "true" || !bytes.Equal(replay, first) {
		t.Errorf("replay = %s (header %q)", replay, resp.Header.Get(idempotency.ReplayHeader))
	}
	env.backend.mu.Lock()
	orders := len(env.backend.orders)
	env.backend.mu.Unlock()
	if orders != 1 {
		t.Fatalf("orders created = %d, want 1", orders)
	}

	// A callback without a signature is refused and the payment stays open.
	resp, body = env.do(t, http.MethodPost, fmt.Sprintf("/api/checkout/%d/payment-callback", snap.Order.ID), map[string]string{
		"razorpay_payment_id": "pay_123",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("incomplete callback: %d %s", resp.StatusCode, body)
	}
	_, body = env.do(t, http.MethodGet, "/api/checkout/state", nil)
	if got := decode[checkout.Snapshot](t, body); got.State != checkout.StatePaymentPending {
		t.Fatalf("state after incomplete callback = %s", got.State)
	}

	resp, body = env.do(t, http.MethodPost, fmt.Sprintf("/api/checkout/%d/payment-callback", snap.Order.ID), map[string]string{
		"razorpay_payment_id": "pay_123",
		"razorpay_order_id":   "order_rzp_1",
		"razorpay_signature":  "sig",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("callback: %d %s", resp.StatusCode, body)
	}
	done := decode[checkout.Snapshot](t, body)
	if done.State != checkout.StateVerified || done.Redirect != "/orders" {
		t.Errorf("final = %+v", done)
	}

	env.backend.mu.Lock()
	paid := env.backend.verified[snap.Order.ID]
	env.backend.mu.Unlock()
	if paid != "pay_123" {
		t.Errorf("verified payment = %q", paid)
	}

	attempt, err := env.ledger.GetAttempt(context.Background(), snap.AttemptID)
	if err != nil {
		t.Fatalf("GetAttempt: %v", err)
	}
	if attempt.State != string(checkout.StateVerified) || attempt.CouponCode != "SAVE100" || attempt.Provider != "razorpay" {
		t.Errorf("ledger attempt = %+v", attempt)
	}

	_, body = env.do(t, http.MethodGet, "/api/cart", nil)
	if cart := decode[cartResponse](t, body); cart.Coupon != nil || cart.Count != 0 {
		t.Errorf("cart after order = %+v", cart)
	}
}

func TestCheckoutRejectsIncompleteDelivery(t *testing.T) {
	env := newTestEnv(t, nil)
	env.login(t)

	partial := fullDelivery
	partial.Pincode = "5600"
	resp, body := env.do(t, http.MethodPost, "/api/checkout", checkout.SubmitRequest{Delivery: partial, Entry: checkout.EntryPage})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d %s", resp.StatusCode, body)
	}
	got := decode[apierrors.ErrorResponse](t, body)
	if got.Error.Message != "Please enter a valid 6-digit pincode" || got.Error.Details["field"] != "pincode" {
		t.Errorf("error = %+v", got.Error)
	}

	_, body = env.do(t, http.MethodGet, "/api/checkout/state", nil)
	if snap := decode[checkout.Snapshot](t, body); snap.State != checkout.StateCollecting {
		t.Errorf("state = %s", snap.State)
	}
}

func TestInvalidCouponKeepsNone(t *testing.T) {
	env := newTestEnv(t, nil)
	env.login(t)

	resp, body := env.do(t, http.MethodPost, "/api/cart/coupon", map[string]string{"code": "OLD"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	got := decode[apierrors.ErrorResponse](t, body)
	if got.Error.Code != apierrors.ErrCodeInvalidCoupon || got.Error.Message != "Coupon has expired" {
		t.Errorf("error = %+v", got.Error)
	}
}

func TestEmailOTPFlow(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, body := env.do(t, http.MethodPost, "/api/otp/email/send", map[string]string{"email": "asha@example.in"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("send: %d %s", resp.StatusCode, body)
	}
	if st := decode[otp.Status](t, body); st.State != otp.StateSent || st.CanResend {
		t.Errorf("after send = %+v", st)
	}

	resp, body = env.do(t, http.MethodPost, "/api/otp/email/send", map[string]string{"email": "asha@example.in"})
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("resend during cooldown: %d", resp.StatusCode)
	}
	if got := decode[apierrors.ErrorResponse](t, body); got.Error.Code != apierrors.ErrCodeOTPCooldown || got.Error.Details["retryAfterSeconds"] == nil {
		t.Errorf("cooldown error = %+v", got.Error)
	}

	resp, body = env.do(t, http.MethodPost, "/api/otp/email/verify", map[string]string{"otp": "9999"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("wrong code: %d", resp.StatusCode)
	}
	if got := decode[apierrors.ErrorResponse](t, body); got.Error.Message != "Invalid OTP" {
		t.Errorf("message = %q", got.Error.Message)
	}

	resp, body = env.do(t, http.MethodPost, "/api/otp/email/verify", map[string]string{"otp": "1234"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("verify: %d %s", resp.StatusCode, body)
	}
	st := decode[otp.Status](t, body)
	if st.State != otp.StateVerified || st.Reward == nil || st.Reward.Code != "WELCOME10" {
		t.Errorf("verified = %+v", st)
	}
}

func TestUnknownOTPVariant(t *testing.T) {
	env := newTestEnv(t, nil)
	resp, _ := env.do(t, http.MethodGet, "/api/otp/carrier-pigeon", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestTrackOrderNotFound(t *testing.T) {
	env := newTestEnv(t, nil)
	resp, body := env.do(t, http.MethodGet, "/api/orders/track/ORD-9", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	got := decode[apierrors.ErrorResponse](t, body)
	if got.Error.Code != apierrors.ErrCodeOrderNotFound || got.Error.Details["orderNumber"] != "ORD-9" {
		t.Errorf("error = %+v", got.Error)
	}
}

func TestProductsAreCached(t *testing.T) {
	env := newTestEnv(t, nil)
	for i := 0; i < 3; i++ {
		resp, body := env.do(t, http.MethodGet, "/api/products", nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d %s", resp.StatusCode, body)
		}
	}
	env.backend.mu.Lock()
	hits := env.backend.productListHit
	env.backend.mu.Unlock()
	if hits != 1 {
		t.Errorf("backend hit %d times, want 1", hits)
	}

	resp, _ := env.do(t, http.MethodGet, "/api/products/nope", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing product: %d", resp.StatusCode)
	}
}

func TestNewsletterErrors(t *testing.T) {
	tests := []struct {
		name       string
		mask       bool
		wantStatus int
	}{
		{"surfaced", false, http.StatusBadGateway},
		{"masked", true, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, func(c *config.Config) { c.Marketing.MaskNewsletterErrors = tt.mask })
			env.backend.newsletterFail = true
			resp, body := env.do(t, http.MethodPost, "/api/newsletter", map[string]string{"email": "asha@example.in"})
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d (%s)", resp.StatusCode, tt.wantStatus, body)
			}
		})
	}
}

func TestMetricsRequiresAdminKey(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) { c.Server.AdminMetricsAPIKey = "k" })

	resp, _ := env.do(t, http.MethodGet, "/metrics", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("without key: %d", resp.StatusCode)
	}
	resp, _ = env.do(t, http.MethodGet, "/metrics", nil, "Authorization", "Bearer k")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("with key: %d", resp.StatusCode)
	}
}

func TestMeForGuest(t *testing.T) {
	env := newTestEnv(t, nil)
	_, body := env.do(t, http.MethodGet, "/api/me", nil)
	if got := decode[meResponse](t, body); got.Authenticated {
		t.Errorf("guest reported as signed in: %+v", got)
	}

	env.login(t)
	_, body = env.do(t, http.MethodGet, "/api/me", nil)
	if got := decode[meResponse](t, body); !got.Authenticated || got.User.Username != "asha" {
		t.Errorf("me = %+v", got)
	}
}

func TestUpdateProfile(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, body := env.do(t, http.MethodPatch, "/api/me", map[string]string{"first_name": "Asha"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("guest update: %d %s", resp.StatusCode, body)
	}

	env.login(t)
	resp, body = env.do(t, http.MethodPatch, "/api/me", map[string]string{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("empty update: %d %s", resp.StatusCode, body)
	}

	resp, body = env.do(t, http.MethodPatch, "/api/me", map[string]string{"email": " Asha@Example.in ", "first_name": " Asha "})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update: %d %s", resp.StatusCode, body)
	}
	got := decode[meResponse](t, body)
	if !got.Authenticated || got.User.Email != "asha@example.in" || got.User.FirstName != "Asha" {
		t.Errorf("me = %+v", got.User)
	}
	_, body = env.do(t, http.MethodGet, "/api/me", nil)
	if got := decode[meResponse](t, body); got.User == nil || got.User.Email != "asha@example.in" {
		t.Errorf("session user not refreshed: %+v", got.User)
	}

	resp, body = env.do(t, http.MethodPatch, "/api/me", map[string]string{"email": "not-an-email"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad email: %d %s", resp.StatusCode, body)
	}
	if msg := decode[apierrors.ErrorResponse](t, body).Error.Message; !strings.Contains(msg, "valid email") {
		t.Errorf("message = %q", msg)
	}
}
