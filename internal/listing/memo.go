package listing

import (
	"sync"

	"github.com/utafrali/storefront/internal/domain"
)

// Memo caches the most recent Filter result, keyed on the catalog version
// and the filter state.
type Memo struct {
	mu       sync.Mutex
	valid    bool
	version  uint64
	filter   FilterState
	filtered []domain.Product
}

// Filter returns Filter(catalog, f), reusing the previous result when version
// and f are unchanged. The returned slice must not be modified.
func (m *Memo) Filter(catalog []domain.Product, version uint64, f FilterState) []domain.Product {
	f = f.normalized()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.valid && m.version == version && m.filter == f {
		memoHits.Inc()
		return m.filtered
	}
	memoMisses.Inc()
	m.filtered = Filter(catalog, f)
	m.version = version
	m.filter = f
	m.valid = true
	return m.filtered
}
