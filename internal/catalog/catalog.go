// Package catalog serves product and category reads with a short TTL cache.
// Catalog data is public, so one cache is shared by every visitor.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/veya/storefront/internal/apiclient"
	"github.com/veya/storefront/internal/cacheutil"
	"github.com/veya/storefront/internal/metrics"
)

// ErrProductNotFound is returned when the backend has no product for a slug.
var ErrProductNotFound = errors.New("catalog: product not found")

// Source is the backend read surface the catalog uses.
type Source interface {
	ListProducts(ctx context.Context, q apiclient.ProductQuery) ([]apiclient.Product, error)
	FeaturedProducts(ctx context.Context) ([]apiclient.Product, error)
	GetProduct(ctx context.Context, slug string) (apiclient.Product, error)
	ListCategories(ctx context.Context) ([]apiclient.Category, error)
}

// Catalog caches Source reads. A zero TTL disables caching.
type Catalog struct {
	source  Source
	ttl     time.Duration
	metrics *metrics.Metrics

	lists      *cacheutil.Map[apiclient.ProductQuery, []apiclient.Product]
	featured   *cacheutil.Map[struct{}, []apiclient.Product]
	products   *cacheutil.Map[string, apiclient.Product]
	categories *cacheutil.Map[struct{}, []apiclient.Category]
}

// New wraps source.
func New(source Source, ttl time.Duration, m *metrics.Metrics) *Catalog {
	return &Catalog{
		source:     source,
		ttl:        ttl,
		metrics:    m,
		lists:      cacheutil.NewMap[apiclient.ProductQuery, []apiclient.Product](ttl),
		featured:   cacheutil.NewMap[struct{}, []apiclient.Product](ttl),
		products:   cacheutil.NewMap[string, apiclient.Product](ttl),
		categories: cacheutil.NewMap[struct{}, []apiclient.Category](ttl),
	}
}

// Products lists products matching q.
func (c *Catalog) Products(ctx context.Context, q apiclient.ProductQuery) ([]apiclient.Product, error) {
	return cached(c, c.lists, q, func() ([]apiclient.Product, error) {
		return c.source.ListProducts(ctx, q)
	})
}

// Featured lists the trending and bestselling products shown on the home page.
func (c *Catalog) Featured(ctx context.Context) ([]apiclient.Product, error) {
	return cached(c, c.featured, struct{}{}, func() ([]apiclient.Product, error) {
		return c.source.FeaturedProducts(ctx)
	})
}

// Product returns one product by slug.
func (c *Catalog) Product(ctx context.Context, slug string) (apiclient.Product, error) {
	p, err := cached(c, c.products, slug, func() (apiclient.Product, error) {
		return c.source.GetProduct(ctx, slug)
	})
	if apiclient.StatusOf(err) == http.StatusNotFound {
		return apiclient.Product{}, fmt.Errorf("%w: %s", ErrProductNotFound, slug)
	}
	return p, err
}

// Categories lists every category.
func (c *Catalog) Categories(ctx context.Context) ([]apiclient.Category, error) {
	return cached(c, c.categories, struct{}{}, func() ([]apiclient.Category, error) {
		return c.source.ListCategories(ctx)
	})
}

// Invalidate drops every cached read.
func (c *Catalog) Invalidate() {
	c.lists.Invalidate()
	c.featured.Invalidate()
	c.products.Invalidate()
	c.categories.Invalidate()
}

func cached[K comparable, V any](c *Catalog, m *cacheutil.Map[K, V], key K, fetch func() (V, error)) (V, error) {
	if c.ttl <= 0 {
		return fetch()
	}
	v, hit, err := m.Get(key, fetch)
	if err == nil {
		c.metrics.ObserveCatalogCache(hit)
	}
	return v, err
}
