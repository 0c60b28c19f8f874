package pagination

import (
	"net/http"
	"strconv"
)

// maxPage bounds the page query parameter so the window stays small.
const maxPage = 1000

// Window describes a cumulative, infinite-scroll style page: the first page
// shows Size items and every following page extends the window by Increment.
type Window struct {
	Size      int
	Increment int
}

// DefaultWindow matches the mobile catalog grid.
func DefaultWindow() Window {
	return Window{Size: 8, Increment: 8}
}

// Count returns how many items are displayed after page pages have been
// requested. Page values below 1 are treated as 1.
func (w Window) Count(page int) int {
	if page < 1 {
		page = 1
	}
	return w.Size + (page-1)*w.Increment
}

// Params holds pagination parameters extracted from query strings.
type Params struct {
	Page  int `json:"page"`
	Count int `json:"-"`
}

// FromRequest extracts the page parameter from an HTTP request and resolves
// the displayed count for w.
func FromRequest(r *http.Request, w Window) Params {
	p := Params{Page: 1}

	if page := r.URL.Query().Get("page"); page != "" {
		if v, err := strconv.Atoi(page); err == nil && v > 0 {
			p.Page = min(v, maxPage)
		}
	}

	p.Count = w.Count(p.Page)
	return p
}

// Result wraps a truncated list.
type Result[T any] struct {
	Items     []T  `json:"items"`
	Total     int  `json:"total"`
	Displayed int  `json:"displayed"`
	Page      int  `json:"page,omitempty"`
	HasMore   bool `json:"has_more"`
}

// Truncate returns the first count items of all. HasMore reports whether
// items remain beyond the cutoff.
func Truncate[T any](all []T, count int) Result[T] {
	if count < 0 {
		count = 0
	}
	n := min(count, len(all))
	items := make([]T, n)
	copy(items, all[:n])

	return Result[T]{
		Items:     items,
		Total:     len(all),
		Displayed: n,
		HasMore:   count < len(all),
	}
}
