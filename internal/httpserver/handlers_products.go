package httpserver

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/veya/storefront/internal/apiclient"
	"github.com/veya/storefront/pkg/responders"
)

// listProducts supports the storefront filters: category, search, skin_type,
// trending and bestseller.
func (h *handlers) listProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	products, err := h.catalog.Products(r.Context(), apiclient.ProductQuery{
		Category:   strings.TrimSpace(q.Get("category")),
		Search:     strings.TrimSpace(q.Get("search")),
		SkinType:   strings.TrimSpace(q.Get("skin_type")),
		Trending:   queryBool(r, "trending"),
		Bestseller: queryBool(r, "bestseller"),
	})
	if err != nil {
		writeError(w, r, err, "Could not load products")
		return
	}
	responders.OK(w, map[string]any{"products": products, "count": len(products)})
}

func (h *handlers) featuredProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.catalog.Featured(r.Context())
	if err != nil {
		writeError(w, r, err, "Could not load products")
		return
	}
	responders.OK(w, map[string]any{"products": products, "count": len(products)})
}

// getProduct accepts a slug or a numeric id.
func (h *handlers) getProduct(w http.ResponseWriter, r *http.Request) {
	product, err := h.catalog.Product(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err, "Could not load this product")
		return
	}
	responders.OK(w, product)
}

func (h *handlers) listCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.catalog.Categories(r.Context())
	if err != nil {
		writeError(w, r, err, "Could not load categories")
		return
	}
	responders.OK(w, map[string]any{"categories": categories})
}
