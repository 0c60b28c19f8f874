package slug

import (
	"regexp"
	"strings"
)

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// Generate creates a URL-friendly slug from the given name.
//
//	"Wire Fencing"     -> "wire-fencing"
//	"Gate Hardware!!"  -> "gate-hardware"
func Generate(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = nonAlnum.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// Index resolves either a display name or its slug back to the display name.
type Index struct {
	bySlug map[string]string
}

// NewIndex builds an Index over names. The first name wins when two names
// share a slug.
func NewIndex(names ...string) *Index {
	idx := &Index{bySlug: make(map[string]string, len(names))}
	for _, n := range names {
		s := Generate(n)
		if _, ok := idx.bySlug[s]; !ok {
			idx.bySlug[s] = n
		}
	}
	return idx
}

// Resolve returns the display name for v, which may be the name itself, its
// slug or any casing of either.
func (i *Index) Resolve(v string) (string, bool) {
	name, ok := i.bySlug[Generate(v)]
	return name, ok
}
