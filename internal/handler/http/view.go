package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/storefront/internal/listing"
	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/httputil"
	"github.com/utafrali/storefront/pkg/validator"
)

// FilterRequest is the JSON body of PUT /filter. Omitted fields keep their
// current value.
type FilterRequest struct {
	SearchTerm *string `json:"search_term" validate:"omitempty,max=200"`
	Category   *string `json:"category" validate:"omitempty,max=100"`
}

// CatalogPage handles GET /
func (h *Handler) CatalogPage(w http.ResponseWriter, r *http.Request) {
	h.writeCatalogView(w, r)
}

// SetFilter handles PUT /filter
func (h *Handler) SetFilter(w http.ResponseWriter, r *http.Request) {
	var req FilterRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	f := h.session.Filter()
	if req.SearchTerm != nil {
		f.SearchTerm = *req.SearchTerm
	}
	if req.Category != nil {
		c, err := listing.ParseCategory(*req.Category)
		if err != nil {
			httputil.WriteError(w, r, err, h.logger)
			return
		}
		f.SelectedCategory = c
	}
	h.session.SetFilter(f)

	h.writeCatalogView(w, r)
}

// ClearFilter handles DELETE /filter
func (h *Handler) ClearFilter(w http.ResponseWriter, r *http.Request) {
	h.session.Clear()
	h.writeCatalogView(w, r)
}

// LoadMore handles POST /more
func (h *Handler) LoadMore(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireCatalog(w, r); !ok {
		return
	}
	h.session.LoadMore()
	h.writeCatalogView(w, r)
}

// RefreshCatalog handles POST /catalog/refresh. A failed refresh that still
// has an older catalog answers 200 with the failure in catalog.error.
func (h *Handler) RefreshCatalog(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.detached(r)
	defer cancel()

	// The outcome is recorded in the loader snapshot rendered below.
	_ = h.catalog.Load(ctx)
	h.writeCatalogView(w, r)
}

func (h *Handler) writeCatalogView(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.requireCatalog(w, r)
	if !ok {
		return
	}
	httputil.WriteData(w, http.StatusOK, CatalogView{
		Catalog:       catalogStatus(snap),
		CartItemCount: h.cart.ItemCount(),
		View:          h.session.View(),
	})
}

// ProductPage handles GET /product/{id}
func (h *Handler) ProductPage(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireCatalog(w, r); !ok {
		return
	}

	id := chi.URLParam(r, "id")
	d := h.resolver.Resolve(id)
	if !d.Found {
		httputil.WriteError(w, r, apperrors.NotFound("product", id), h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, d)
}

// CartPage handles GET /cart
func (h *Handler) CartPage(w http.ResponseWriter, r *http.Request) {
	httputil.WriteData(w, http.StatusOK, newCartView(h.cart.Cart()))
}
