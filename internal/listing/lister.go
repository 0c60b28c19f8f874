package listing

import (
	"github.com/utafrali/storefront/internal/catalog"
	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/pkg/pagination"
)

// Source provides the current catalog and its version.
type Source interface {
	Products() ([]domain.Product, uint64)
}

// View is one rendering of the product grid.
type View struct {
	Filter     FilterState       `json:"filter"`
	Categories []domain.Category `json:"categories"`
	pagination.Result[domain.Product]
}

// Lister produces views over a catalog source, memoizing the filter step.
type Lister struct {
	source Source
	window pagination.Window
	memo   Memo
}

// NewLister creates a Lister paging with window.
func NewLister(source Source, window pagination.Window) *Lister {
	return &Lister{source: source, window: window}
}

// Window returns the page window in use.
func (l *Lister) Window() pagination.Window {
	return l.window
}

// List filters the catalog with f and shows the first displayed products.
func (l *Lister) List(f FilterState, displayed int) View {
	products, version := l.source.Products()
	f = f.normalized()
	return View{
		Filter:     f,
		Categories: catalog.Categories(products),
		Result:     Paginate(l.memo.Filter(products, version, f), displayed),
	}
}

// Page is List for the stateless API: page n shows as many products as n-1
// load-more steps would.
func (l *Lister) Page(f FilterState, page int) View {
	if page < 1 {
		page = 1
	}
	v := l.List(f, l.window.Count(page))
	v.Page = page
	return v
}

// filteredLen reports how many products match f.
func (l *Lister) filteredLen(f FilterState) int {
	products, version := l.source.Products()
	return len(l.memo.Filter(products, version, f))
}
