package apiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// ValidateCoupon checks a code for the signed-in user. An invalid code is not an
// error: it comes back with Valid=false and the server's reason.
func (c *Client) ValidateCoupon(ctx context.Context, code string) (CouponValidation, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	r, err := c.send(ctx, "coupons.validate", http.MethodPost, "/coupons/validate/", nil, map[string]string{"code": code})
	if err != nil {
		return CouponValidation{}, err
	}

	if r.status == http.StatusBadRequest {
		var v CouponValidation
		if json.Unmarshal(r.body, &v) == nil && !v.Valid {
			if v.Error == "" {
				v.Error = extractMessage(r.body)
			}
			v.Code = code
			return v, nil
		}
	}
	if r.status < 200 || r.status > 299 {
		return CouponValidation{}, fmt.Errorf("coupons.validate: %w", toAPIError(r))
	}
	v, err := decodeObject[CouponValidation](r.body)
	if err != nil {
		return v, fmt.Errorf("coupons.validate: %w", err)
	}
	return v, nil
}

// MyCoupons lists the coupons issued to the signed-in user, newest first.
func (c *Client) MyCoupons(ctx context.Context) ([]UserCoupon, error) {
	return getList[UserCoupon](ctx, c, "coupons.mine", "/coupons/my-coupons/", nil)
}

// CreateOrder places an order from the server-side cart. The backend clears the cart.
func (c *Client) CreateOrder(ctx context.Context, req CreateOrderRequest) (Order, error) {
	return call[Order](ctx, c, "orders.create", http.MethodPost, "/orders/", req)
}

// CreatePayment opens a gateway payment for an order.
func (c *Client) CreatePayment(ctx context.Context, orderID int64) (PaymentInit, error) {
	init, err := call[PaymentInit](ctx, c, "orders.create_payment", http.MethodPost, fmt.Sprintf("/orders/%d/create_payment/", orderID), struct{}{})
	if err != nil {
		return init, err
	}
	if init.GatewayOrderID == "" {
		init.GatewayOrderID = init.AltGatewayOrderID
	}
	if init.Key == "" {
		init.Key = init.AltKey
	}
	// Older backends omit payment_required on the gateway branch.
	if init.GatewayOrderID != "" {
		init.PaymentRequired = true
	}
	return init, nil
}

// VerifyPayment forwards the widget's signed confirmation to the backend.
func (c *Client) VerifyPayment(ctx context.Context, orderID int64, paymentID, signature string) error {
	resp, err := call[struct {
		Status string `json:"status"`
	}](ctx, c, "orders.verify_payment", http.MethodPost, fmt.Sprintf("/orders/%d/verify_payment/", orderID), map[string]string{
		"payment_id": paymentID,
		"signature":  signature,
	})
	if err != nil {
		return err
	}
	if resp.Status != "success" {
		return fmt.Errorf("orders.verify_payment: unexpected status %q", resp.Status)
	}
	return nil
}

// ListOrders returns the signed-in user's orders.
func (c *Client) ListOrders(ctx context.Context) ([]Order, error) {
	return getList[Order](ctx, c, "orders.list", "/orders/", nil)
}

// TrackOrder looks up an order by its public order number. No sign-in required.
func (c *Client) TrackOrder(ctx context.Context, orderNumber string) (Order, error) {
	path := "/orders/track/" + url.PathEscape(strings.TrimSpace(orderNumber)) + "/"
	body, err := c.do(ctx, "orders.track", http.MethodGet, path, nil, nil)
	if err != nil {
		return Order{}, err
	}
	return decodeObject[Order](body)
}
