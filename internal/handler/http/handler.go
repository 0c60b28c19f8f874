package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/utafrali/storefront/internal/cart"
	"github.com/utafrali/storefront/internal/catalog"
	"github.com/utafrali/storefront/internal/detail"
	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/listing"
	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/httputil"
	"github.com/utafrali/storefront/pkg/logger"
)

// Handler serves the storefront view and API routes.
type Handler struct {
	catalog        *catalog.Loader
	cart           *cart.Store
	lister         *listing.Lister
	session        *listing.Session
	resolver       *detail.Resolver
	refreshTimeout time.Duration
	logger         *slog.Logger
}

// NewHandler creates a Handler. The session is the single filter state shown
// by the view routes.
func NewHandler(
	loader *catalog.Loader,
	store *cart.Store,
	lister *listing.Lister,
	session *listing.Session,
	refreshTimeout time.Duration,
	logger *slog.Logger,
) *Handler {
	if refreshTimeout <= 0 {
		refreshTimeout = 15 * time.Second
	}
	return &Handler{
		catalog:        loader,
		cart:           store,
		lister:         lister,
		session:        session,
		resolver:       detail.NewResolver(loader, store),
		refreshTimeout: refreshTimeout,
		logger:         logger,
	}
}

// --- Response models ---

// CatalogStatus tells the client whether to show data, a spinner or an error
// with a retry action.
type CatalogStatus struct {
	State    catalog.State `json:"state"`
	Version  uint64        `json:"version"`
	LoadedAt *time.Time    `json:"loaded_at,omitempty"`
	Error    string        `json:"error,omitempty"`
}

// CatalogView is the product grid screen.
type CatalogView struct {
	Catalog       CatalogStatus `json:"catalog"`
	CartItemCount int           `json:"cart_item_count"`
	listing.View
}

// CartLineView is one cart line with its subtotal.
type CartLineView struct {
	Product  domain.Product `json:"product"`
	Quantity int            `json:"quantity"`
	Subtotal json.Number    `json:"subtotal"`
}

// CartView is the cart screen.
type CartView struct {
	Lines     []CartLineView `json:"lines"`
	ItemCount int            `json:"item_count"`
	Total     json.Number    `json:"total"`
}

func newCartView(c domain.Cart) CartView {
	lines := make([]CartLineView, len(c.Lines))
	for i, l := range c.Lines {
		lines[i] = CartLineView{Product: l.Product, Quantity: l.Quantity, Subtotal: domain.Number(l.Subtotal())}
	}
	return CartView{Lines: lines, ItemCount: c.ItemCount(), Total: domain.Number(c.Total())}
}

func catalogStatus(snap catalog.Snapshot) CatalogStatus {
	st := CatalogStatus{State: snap.State, Version: snap.Version}
	if !snap.LoadedAt.IsZero() {
		t := snap.LoadedAt
		st.LoadedAt = &t
	}
	if snap.Err != nil {
		st.Error = snap.Err.Error()
	}
	return st
}

// --- Helpers ---

// requireCatalog writes an error and returns false until a catalog has been
// loaded. A failed first load is reported as retryable 503; a load still in
// progress as 503 with Retry-After.
func (h *Handler) requireCatalog(w http.ResponseWriter, r *http.Request) (catalog.Snapshot, bool) {
	snap := h.catalog.Snapshot()
	if snap.Version > 0 {
		return snap, true
	}
	if snap.Err != nil {
		httputil.WriteError(w, r, catalog.AsAppError(snap.Err), h.logger)
		return snap, false
	}
	w.Header().Set("Retry-After", "1")
	httputil.WriteError(w, r,
		apperrors.Unavailable("CATALOG_LOADING", "the product catalog is loading", nil), h.logger)
	return snap, false
}

// detached returns a context for work that must finish even if the client
// goes away.
func (h *Handler) detached(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(logger.Detach(r.Context()), h.refreshTimeout)
}
