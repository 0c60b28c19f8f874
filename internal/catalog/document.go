package catalog

import (
	"bytes"
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"time"
)

//go:embed products.json
var sampleDocument []byte

// Document is the raw catalog JSON served at /products.json.
type Document struct {
	body []byte
	etag string
}

// LoadDocument reads the catalog document from path, or uses the built-in
// sample when path is empty. The document is validated before it is served.
func LoadDocument(path string) (*Document, error) {
	body := sampleDocument
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read catalog file: %w", err)
		}
		body = b
	}
	if _, err := Decode(body); err != nil {
		return nil, fmt.Errorf("catalog document %q: %w", path, err)
	}

	sum := sha256.Sum256(body)
	return &Document{body: body, etag: `"` + hex.EncodeToString(sum[:8]) + `"`}, nil
}

// ServeHTTP writes the document. Conditional and HEAD requests are handled
// by http.ServeContent against the ETag.
func (d *Document) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("ETag", d.etag)
	w.Header().Set("Content-Type", "application/json")
	http.ServeContent(w, r, "products.json", time.Time{}, bytes.NewReader(d.body))
}
