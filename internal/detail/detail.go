// Package detail joins one catalog product with its cart line.
package detail

import (
	"fmt"

	"github.com/utafrali/storefront/internal/domain"
	apperrors "github.com/utafrali/storefront/pkg/errors"
)

// Detail is the product detail view model. When Found is false the other
// fields are zero.
type Detail struct {
	Product        domain.Product `json:"product"`
	CartQuantity   int            `json:"cart_quantity"`
	AvailableStock int            `json:"available_stock"`
	IsOutOfStock   bool           `json:"is_out_of_stock"`
	MaxSelectable  int            `json:"max_selectable"`
	Found          bool           `json:"found"`
}

// Resolve finds productID in catalog (first match wins) and computes the
// stock left after what the cart already holds. AvailableStock may be
// negative when the cart holds more than the inventory.
func Resolve(catalog []domain.Product, lines []domain.CartLine, productID string) Detail {
	for _, p := range catalog {
		if p.ID != productID {
			continue
		}
		inCart := domain.Cart{Lines: lines}.Quantity(productID)
		available := p.Inventory - inCart
		return Detail{
			Product:        p,
			CartQuantity:   inCart,
			AvailableStock: available,
			IsOutOfStock:   !p.Available || available <= 0,
			MaxSelectable:  p.Inventory,
			Found:          true,
		}
	}
	return Detail{}
}

// CheckAdd validates an add-to-cart request made from the detail view: the
// product must be in stock and quantity must lie in [1, MaxSelectable].
func (d Detail) CheckAdd(quantity int) error {
	if !d.Found {
		return apperrors.ErrNotFound
	}
	if d.IsOutOfStock {
		return apperrors.Conflict(fmt.Sprintf("product %s is out of stock", d.Product.ID))
	}
	if quantity < 1 || quantity > d.MaxSelectable {
		return apperrors.InvalidInput(fmt.Sprintf("quantity must be between 1 and %d", d.MaxSelectable))
	}
	return nil
}

// CatalogSource provides the loaded catalog.
type CatalogSource interface {
	Products() ([]domain.Product, uint64)
}

// CartSource provides the current cart lines.
type CartSource interface {
	Lines() []domain.CartLine
}

// Resolver resolves details against live catalog and cart state.
type Resolver struct {
	catalog CatalogSource
	cart    CartSource
}

func NewResolver(catalog CatalogSource, cart CartSource) *Resolver {
	return &Resolver{catalog: catalog, cart: cart}
}

// Resolve returns the detail view for productID.
func (r *Resolver) Resolve(productID string) Detail {
	products, _ := r.catalog.Products()
	return Resolve(products, r.cart.Lines(), productID)
}
