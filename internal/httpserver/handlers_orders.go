package httpserver

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/veya/storefront/internal/apiclient"
	apierrors "github.com/veya/storefront/internal/errors"
	"github.com/veya/storefront/pkg/responders"
)

type orderView struct {
	apiclient.Order
	Terminal bool `json:"terminal"`
}

func viewOrder(o apiclient.Order) orderView {
	return orderView{Order: o, Terminal: o.Status.Terminal()}
}

// listOrders returns the signed-in user's order history.
func (h *handlers) listOrders(w http.ResponseWriter, r *http.Request) {
	s := sessionFrom(r.Context())
	orders, err := s.API.ListOrders(r.Context())
	if err != nil {
		writeError(w, r, err, "Could not load your orders")
		return
	}
	views := make([]orderView, 0, len(orders))
	for _, o := range orders {
		views = append(views, viewOrder(o))
	}
	responders.OK(w, map[string]any{"orders": views})
}

// trackOrder looks up an order by its public number; no sign-in needed.
func (h *handlers) trackOrder(w http.ResponseWriter, r *http.Request) {
	s := sessionFrom(r.Context())
	number := strings.TrimSpace(chi.URLParam(r, "order_number"))
	if number == "" {
		writeError(w, r, errMissingOrderRef, "")
		return
	}
	order, err := s.API.TrackOrder(r.Context(), number)
	if err != nil {
		if apiclient.StatusOf(err) == http.StatusNotFound {
			apierrors.WriteErrorWithDetail(w, apierrors.ErrCodeOrderNotFound, "Order not found. Please check the order number.", "orderNumber", number)
			return
		}
		writeError(w, r, err, "Could not track this order")
		return
	}
	responders.OK(w, viewOrder(order))
}
