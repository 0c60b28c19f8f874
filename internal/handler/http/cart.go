package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/storefront/internal/cart"
	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/httputil"
	"github.com/utafrali/storefront/pkg/validator"
)

// --- Request DTOs ---

// AddItemRequest is the JSON body of POST /api/v1/cart/items.
type AddItemRequest struct {
	ProductID string `json:"product_id" validate:"required,max=100"`
	Quantity  int    `json:"quantity" validate:"required,gte=1"`
}

// QuantityRequest is the JSON body of PUT and PATCH on a cart item.
type QuantityRequest struct {
	Quantity *int `json:"quantity" validate:"required"`
}

// ChangeResponse reports what a guarded quantity change did.
type ChangeResponse struct {
	Change cart.Change `json:"change"`
	Cart   CartView    `json:"cart"`
}

// --- Handlers ---

// GetCart handles GET /api/v1/cart
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	httputil.WriteData(w, http.StatusOK, newCartView(h.cart.Cart()))
}

// AddItem handles POST /api/v1/cart/items. The product snapshot is taken from
// the loaded catalog and the quantity is checked against its stock.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req AddItemRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}
	if _, ok := h.requireCatalog(w, r); !ok {
		return
	}

	d := h.resolver.Resolve(req.ProductID)
	if !d.Found {
		httputil.WriteError(w, r, apperrors.NotFound("product", req.ProductID), h.logger)
		return
	}
	if err := d.CheckAdd(req.Quantity); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	h.cart.AddToCart(r.Context(), d.Product, req.Quantity)
	httputil.WriteData(w, http.StatusOK, newCartView(h.cart.Cart()))
}

// UpdateItemQuantity handles PUT /api/v1/cart/items/{productId}. The quantity
// is stored as sent.
func (h *Handler) UpdateItemQuantity(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productId")

	var req QuantityRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}
	if _, ok := h.cart.Line(productID); !ok {
		httputil.WriteError(w, r, apperrors.NotFound("cart item", productID), h.logger)
		return
	}

	h.cart.UpdateQuantity(r.Context(), productID, *req.Quantity)
	httputil.WriteData(w, http.StatusOK, newCartView(h.cart.Cart()))
}

// ChangeItemQuantity handles PATCH /api/v1/cart/items/{productId}: below 1
// removes the item, up to its inventory updates it, above is ignored.
func (h *Handler) ChangeItemQuantity(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productId")

	var req QuantityRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}
	if _, ok := h.cart.Line(productID); !ok {
		httputil.WriteError(w, r, apperrors.NotFound("cart item", productID), h.logger)
		return
	}

	change := h.cart.ChangeQuantity(r.Context(), productID, *req.Quantity)
	httputil.WriteData(w, http.StatusOK, ChangeResponse{
		Change: change,
		Cart:   newCartView(h.cart.Cart()),
	})
}

// RemoveItem handles DELETE /api/v1/cart/items/{productId}. Removing an item
// that is not in the cart succeeds.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	h.cart.RemoveFromCart(r.Context(), chi.URLParam(r, "productId"))
	httputil.WriteData(w, http.StatusOK, newCartView(h.cart.Cart()))
}

// ClearCart handles DELETE /api/v1/cart
func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	h.cart.ClearCart(r.Context())
	httputil.WriteData(w, http.StatusOK, newCartView(h.cart.Cart()))
}
