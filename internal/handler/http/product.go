package http

import (
	"net/http"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/listing"
	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/httputil"
	"github.com/utafrali/storefront/pkg/pagination"
	"github.com/utafrali/storefront/pkg/slug"
)

// CategoryResponse is one entry of the category picker.
type CategoryResponse struct {
	Name domain.Category `json:"name"`
	Slug string          `json:"slug"`
}

// ListProducts handles GET /api/v1/products?search=&category=&page=
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.requireCatalog(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	category, err := listing.ParseCategory(q.Get("category"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	if len(q.Get("search")) > 200 {
		httputil.WriteError(w, r, apperrors.InvalidInput("search must be at most 200 characters"), h.logger)
		return
	}

	params := pagination.FromRequest(r, h.lister.Window())
	view := h.lister.Page(listing.FilterState{
		SearchTerm:       q.Get("search"),
		SelectedCategory: category,
	}, params.Page)

	httputil.WriteData(w, http.StatusOK, CatalogView{
		Catalog:       catalogStatus(snap),
		CartItemCount: h.cart.ItemCount(),
		View:          view,
	})
}

// ListCategories handles GET /api/v1/products/categories
func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireCatalog(w, r); !ok {
		return
	}

	categories := h.catalog.Categories()
	out := make([]CategoryResponse, len(categories))
	for i, c := range categories {
		out[i] = CategoryResponse{Name: c, Slug: slug.Generate(string(c))}
	}
	httputil.WriteData(w, http.StatusOK, out)
}

// GetProduct handles GET /api/v1/products/{id}
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	h.ProductPage(w, r)
}
