package storefront

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/veya/storefront/internal/gateway"
	"github.com/veya/storefront/internal/storage"
)

func testConfig(t *testing.T, backendURL string) *Config {
	t.Helper()
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	cfg.Backend.BaseURL = backendURL + "/api"
	cfg.Storage.Backend = "memory"
	return cfg
}

func TestNewAppServesRoutes(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":1,"name":"Face Wash","slug":"face-wash","price":"249.00","discount_price":null}]`))
	}))
	defer backend.Close()

	app, err := NewApp(testConfig(t, backend.URL), WithRegistry(prometheus.NewRegistry()), WithLogger(zerolog.Nop()))
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}
	defer app.Close()

	if app.Widget.Name() != "razorpay" {
		t.Errorf("default widget = %q", app.Widget.Name())
	}

	srv := httptest.NewServer(app.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("healthz status = %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/api/products")
	if err != nil {
		t.Fatalf("GET /api/products: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("products status = %d", resp.StatusCode)
	}
}

func TestNewAppOptions(t *testing.T) {
	ledger := storage.NewMemoryStore()
	app, err := NewApp(testConfig(t, "http://backend.invalid"),
		WithLedger(ledger),
		WithWidget(gateway.None{}),
		WithRegistry(prometheus.NewRegistry()),
		WithLogger(zerolog.Nop()),
	)
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}
	defer app.Close()

	if app.Ledger != ledger {
		t.Error("custom ledger not used")
	}
	if app.Widget.Name() != (gateway.None{}).Name() {
		t.Errorf("widget = %q", app.Widget.Name())
	}
}

func TestNewAppRejectsBadSettings(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"nil config", nil, "config required"},
		{"unknown storage", func(c *Config) { c.Storage.Backend = "redis" }, "unknown storage backend"},
		{"unknown gateway", func(c *Config) { c.Gateway.Provider = "paypal" }, "unknown gateway provider"},
		{"bad backend url", func(c *Config) { c.Backend.BaseURL = "not a url" }, "invalid base url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cfg *Config
			if tt.mutate != nil {
				cfg = testConfig(t, "http://backend.invalid")
				tt.mutate(cfg)
			}
			app, err := NewApp(cfg, WithRegistry(prometheus.NewRegistry()), WithLogger(zerolog.Nop()))
			if err == nil {
				app.Close()
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}
