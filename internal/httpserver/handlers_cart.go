package httpserver

import (
	"errors"
	"net/http"

	"github.com/veya/storefront/internal/apiclient"
	"github.com/veya/storefront/internal/logger"
	"github.com/veya/storefront/internal/money"
	"github.com/veya/storefront/internal/pricing"
	"github.com/veya/storefront/internal/session"
	"github.com/veya/storefront/pkg/responders"
)

type cartResponse struct {
	Items    []apiclient.CartItem `json:"items"`
	Count    int                  `json:"count"`
	Total    money.Money          `json:"total"`
	Guest    bool                 `json:"guest"`
	Coupon   *pricing.Coupon      `json:"coupon,omitempty"`
	OpenCart bool                 `json:"open_cart,omitempty"`
}

func newCartResponse(s *session.Session) cartResponse {
	return cartResponse{
		Items:  s.Cart.Items(),
		Count:  s.Cart.Count(),
		Total:  s.Cart.Total(),
		Guest:  s.Cart.Guest(),
		Coupon: s.Coupons.Applied(),
	}
}

type addCartItemRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type updateCartItemRequest struct {
	Quantity int `json:"quantity"`
}

// getCart returns the visitor's cart. A guest gets an empty cart, not an error.
func (h *handlers) getCart(w http.ResponseWriter, r *http.Request) {
	s := sessionFrom(r.Context())
	if _, err := s.Cart.Fetch(r.Context()); err != nil {
		writeError(w, r, err, "Could not load your cart")
		return
	}
	responders.OK(w, newCartResponse(s))
}

func (h *handlers) addCartItem(w http.ResponseWriter, r *http.Request) {
	s := sessionFrom(r.Context())
	var req addCartItemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, r, err)
		return
	}
	if req.ProductID <= 0 {
		writeError(w, r, errMissingProduct, "")
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	if err := s.Cart.Add(r.Context(), req.ProductID, req.Quantity); err != nil {
		h.cartMutationFailed(w, r, s, err, "Failed to add to cart")
		return
	}
	log := logger.FromContext(r.Context())
	log.Info().
		Int64("product_id", req.ProductID).
		Int("quantity", req.Quantity).
		Msg("cart.add.succeeded")
	s.Notifier.Success("Added to cart!")

	resp := newCartResponse(s)
	resp.OpenCart = true
	responders.OK(w, resp)
}

func (h *handlers) updateCartItem(w http.ResponseWriter, r *http.Request) {
	s := sessionFrom(r.Context())
	itemID, ok := pathID(r, "id")
	if !ok {
		writeError(w, r, errBadItemID, "")
		return
	}
	var req updateCartItemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, r, err)
		return
	}
	if err := s.Cart.UpdateQuantity(r.Context(), itemID, req.Quantity); err != nil {
		h.cartMutationFailed(w, r, s, err, "Failed to update cart")
		return
	}
	responders.OK(w, newCartResponse(s))
}

func (h *handlers) removeCartItem(w http.ResponseWriter, r *http.Request) {
	s := sessionFrom(r.Context())
	itemID, ok := pathID(r, "id")
	if !ok {
		writeError(w, r, errBadItemID, "")
		return
	}
	if err := s.Cart.Remove(r.Context(), itemID); err != nil {
		h.cartMutationFailed(w, r, s, err, "Failed to remove item")
		return
	}
	s.Notifier.Info("Item removed from cart")
	responders.OK(w, newCartResponse(s))
}

// cartMutationFailed surfaces a failed mutation both as a toast and as the
// response. Sign-in is the common case for guests.
func (h *handlers) cartMutationFailed(w http.ResponseWriter, r *http.Request, s *session.Session, err error, fallback string) {
	if errors.Is(err, apiclient.ErrUnauthenticated) {
		s.Notifier.Warning("Please login to add items to cart")
	} else {
		_, msg, _ := classifyError(err, fallback)
		s.Notifier.Error(msg)
	}
	writeError(w, r, err, fallback)
}

// cartSummary prices the current cart with the applied coupon.
func (h *handlers) cartSummary(w http.ResponseWriter, r *http.Request) {
	s := sessionFrom(r.Context())
	if _, err := s.Cart.Fetch(r.Context()); err != nil {
		writeError(w, r, err, "Could not load your cart")
		return
	}
	snap, err := h.calculator.Compute(s.Cart.Lines(), s.Coupons.Applied())
	if err != nil {
		writeError(w, r, err, "Could not price your cart")
		return
	}
	responders.OK(w, snap)
}

type applyCouponRequest struct {
	Code string `json:"code"`
}

type couponResponse struct {
	Coupon  *pricing.Coupon  `json:"coupon"`
	Pricing pricing.Snapshot `json:"pricing"`
}

func (h *handlers) applyCoupon(w http.ResponseWriter, r *http.Request) {
	s := sessionFrom(r.Context())
	var req applyCouponRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, r, err)
		return
	}

	applied, err := s.Coupons.Apply(r.Context(), req.Code)
	if err != nil {
		_, msg, _ := classifyError(err, "Failed to validate coupon")
		s.Notifier.Error(msg)
		writeError(w, r, err, "Failed to validate coupon")
		return
	}
	s.Notifier.Success("Coupon " + applied.Code + " applied!")
	h.writeCoupon(w, r, s)
}

func (h *handlers) removeCoupon(w http.ResponseWriter, r *http.Request) {
	s := sessionFrom(r.Context())
	s.Coupons.Clear()
	s.Notifier.Info("Coupon removed")
	h.writeCoupon(w, r, s)
}

func (h *handlers) writeCoupon(w http.ResponseWriter, r *http.Request, s *session.Session) {
	snap, err := h.calculator.Compute(s.Cart.Lines(), s.Coupons.Applied())
	if err != nil {
		writeError(w, r, err, "Could not price your cart")
		return
	}
	responders.OK(w, couponResponse{Coupon: s.Coupons.Applied(), Pricing: snap})
}

// myCoupons lists coupons the signed-in user owns.
func (h *handlers) myCoupons(w http.ResponseWriter, r *http.Request) {
	s := sessionFrom(r.Context())
	list, err := s.API.MyCoupons(r.Context())
	if err != nil {
		writeError(w, r, err, "Could not load your coupons")
		return
	}
	responders.OK(w, map[string]any{"coupons": list})
}
