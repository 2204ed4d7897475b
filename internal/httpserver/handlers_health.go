package httpserver

import (
	"net/http"
	"time"

	"github.com/veya/storefront/internal/circuitbreaker"
	"github.com/veya/storefront/pkg/responders"
)

type healthResponse struct {
	Status   string            `json:"status"`
	Uptime   string            `json:"uptime"`
	Sessions int               `json:"sessions"`
	Breakers map[string]string `json:"breakers"`
}

// health reports "degraded" (503) while the backend API breaker is open.
func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status: "ok",
		Uptime: time.Since(serverStartTime).Round(time.Second).String(),
		Breakers: map[string]string{
			string(circuitbreaker.ServiceBackendAPI): h.breakers.State(circuitbreaker.ServiceBackendAPI),
			string(circuitbreaker.ServiceStripe):     h.breakers.State(circuitbreaker.ServiceStripe),
		},
	}
	if h.sessions != nil {
		resp.Sessions = h.sessions.Len()
	}

	status := http.StatusOK
	if resp.Breakers[string(circuitbreaker.ServiceBackendAPI)] == "open" {
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	}
	responders.JSON(w, status, resp)
}
