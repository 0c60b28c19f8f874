package listing

import (
	"sync"

	"github.com/utafrali/storefront/internal/domain"
)

// Session is the stateful product grid: the filter state plus how many
// products are displayed. Changing the search term or category resets the
// displayed count to the first page.
type Session struct {
	lister *Lister

	mu        sync.Mutex
	filter    FilterState
	displayed int
}

// NewSession starts a session with the default filter and one page shown.
func NewSession(lister *Lister) *Session {
	return &Session{
		lister:    lister,
		filter:    DefaultFilter(),
		displayed: lister.window.Size,
	}
}

// Filter returns the current filter state.
func (s *Session) Filter() FilterState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filter
}

// Displayed returns how many products the grid shows.
func (s *Session) Displayed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.displayed
}

// SetSearchTerm updates the search term.
func (s *Session) SetSearchTerm(term string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setFilter(FilterState{SearchTerm: term, SelectedCategory: s.filter.SelectedCategory})
}

// SetCategory updates the selected category.
func (s *Session) SetCategory(c domain.Category) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setFilter(FilterState{SearchTerm: s.filter.SearchTerm, SelectedCategory: c})
}

// SetFilter replaces both fields at once.
func (s *Session) SetFilter(f FilterState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setFilter(f)
}

func (s *Session) setFilter(f FilterState) {
	f = f.normalized()
	if f == s.filter {
		return
	}
	s.filter = f
	s.displayed = s.lister.window.Size
}

// Clear resets the filter to its defaults and shows one page.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filter = DefaultFilter()
	s.displayed = s.lister.window.Size
}

// LoadMore shows one more increment of products when the current filter has
// more to show. It reports whether the count grew.
func (s *Session) LoadMore() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.displayed >= s.lister.filteredLen(s.filter) {
		return false
	}
	s.displayed += s.lister.window.Increment
	return true
}

// View renders the grid for the current state.
func (s *Session) View() View {
	s.mu.Lock()
	f, n := s.filter, s.displayed
	s.mu.Unlock()
	return s.lister.List(f, n)
}
