package apiclient

import (
	"context"
	"net/http"
	"net/url"
)

// ListProducts returns products matching q.
func (c *Client) ListProducts(ctx context.Context, q ProductQuery) ([]Product, error) {
	query := url.Values{}
	if q.Category != "" {
		query.Set("category", q.Category)
	}
	if q.Search != "" {
		query.Set("search", q.Search)
	}
	if q.SkinType != "" {
		query.Set("skin_type", q.SkinType)
	}
	if q.Trending {
		query.Set("trending", "true")
	}
	if q.Bestseller {
		query.Set("bestseller", "true")
	}
	return getList[Product](ctx, c, "products.list", "/products/", query)
}

// FeaturedProducts returns up to ten trending or bestselling products.
func (c *Client) FeaturedProducts(ctx context.Context) ([]Product, error) {
	return getList[Product](ctx, c, "products.featured", "/products/featured/", nil)
}

// GetProduct fetches one product by slug.
func (c *Client) GetProduct(ctx context.Context, slug string) (Product, error) {
	body, err := c.do(ctx, "products.get", http.MethodGet, "/products/"+url.PathEscape(slug)+"/", nil, nil)
	if err != nil {
		return Product{}, err
	}
	return decodeObject[Product](body)
}

// ListCategories returns every product category.
func (c *Client) ListCategories(ctx context.Context) ([]Category, error) {
	return getList[Category](ctx, c, "categories.list", "/categories/", nil)
}
