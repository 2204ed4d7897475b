package apiclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// GetCart returns the visitor's cart lines. A 401 comes back as ErrUnauthenticated;
// the cart store decides what that means.
func (c *Client) GetCart(ctx context.Context) ([]CartItem, error) {
	return getList[CartItem](ctx, c, "cart.list", "/cart/", nil)
}

// AddToCart adds quantity of a product; the backend merges with an existing line.
func (c *Client) AddToCart(ctx context.Context, productID int64, quantity int) error {
	_, err := c.do(ctx, "cart.add", http.MethodPost, "/cart/", nil, map[string]any{
		"product_id": productID,
		"quantity":   quantity,
	})
	return err
}

// UpdateCartItem sets the quantity of a cart line. Quantity must be at least 1.
func (c *Client) UpdateCartItem(ctx context.Context, itemID int64, quantity int) error {
	if quantity < 1 {
		return errors.New("cart.update: quantity must be at least 1")
	}
	_, err := c.do(ctx, "cart.update", http.MethodPatch, fmt.Sprintf("/cart/%d/", itemID), nil, map[string]any{
		"quantity": quantity,
	})
	return err
}

// RemoveCartItem deletes a cart line.
func (c *Client) RemoveCartItem(ctx context.Context, itemID int64) error {
	_, err := c.do(ctx, "cart.remove", http.MethodDelete, fmt.Sprintf("/cart/%d/", itemID), nil, nil)
	return err
}
