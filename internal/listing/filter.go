// Package listing derives the product grid from the catalog: category and
// search filtering, cumulative pagination and the per-session filter state.
package listing

import (
	"strings"

	"github.com/utafrali/storefront/internal/domain"
	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/pagination"
	"github.com/utafrali/storefront/pkg/slug"
)

// FilterState is the user's current search and category selection.
type FilterState struct {
	SearchTerm       string          `json:"search_term"`
	SelectedCategory domain.Category `json:"selected_category"`
}

// DefaultFilter selects every product.
func DefaultFilter() FilterState {
	return FilterState{SelectedCategory: domain.CategoryAll}
}

func (f FilterState) normalized() FilterState {
	if f.SelectedCategory == "" {
		f.SelectedCategory = domain.CategoryAll
	}
	return f
}

// Filter keeps the products matching f, preserving catalog order. A category
// other than "all" must match exactly. A search term that is not blank must
// occur, case-insensitively, in the name, description or category.
func Filter(catalog []domain.Product, f FilterState) []domain.Product {
	f = f.normalized()
	search := ""
	if strings.TrimSpace(f.SearchTerm) != "" {
		search = strings.ToLower(f.SearchTerm)
	}

	out := make([]domain.Product, 0, len(catalog))
	for _, p := range catalog {
		if f.SelectedCategory != domain.CategoryAll && p.Category != f.SelectedCategory {
			continue
		}
		if search != "" && !matches(p, search) {
			continue
		}
		out = append(out, p)
	}
	return out
}

func matches(p domain.Product, lower string) bool {
	return strings.Contains(strings.ToLower(p.Name), lower) ||
		strings.Contains(strings.ToLower(p.Description), lower) ||
		strings.Contains(strings.ToLower(string(p.Category)), lower)
}

// Paginate returns the first displayed products of filtered.
func Paginate(filtered []domain.Product, displayed int) pagination.Result[domain.Product] {
	return pagination.Truncate(filtered, displayed)
}

var categoryIndex = func() *slug.Index {
	names := []string{string(domain.CategoryAll)}
	for _, c := range domain.ProductCategories {
		names = append(names, string(c))
	}
	return slug.NewIndex(names...)
}()

// ParseCategory resolves a category given by display name or slug
// ("wire-fencing"). Empty input means "all".
func ParseCategory(v string) (domain.Category, error) {
	if strings.TrimSpace(v) == "" {
		return domain.CategoryAll, nil
	}
	name, ok := categoryIndex.Resolve(v)
	if !ok {
		return "", apperrors.InvalidInput("unknown category " + strings.TrimSpace(v))
	}
	return domain.Category(name), nil
}
