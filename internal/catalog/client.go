package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel/attribute"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/pkg/httpclient"
	"github.com/utafrali/storefront/pkg/tracing"
	"github.com/utafrali/storefront/pkg/validator"
)

// maxDocumentSize bounds the catalog body read into memory.
const maxDocumentSize = 8 << 20

var (
	fetchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_catalog_fetch_total",
		Help: "Catalog fetch attempts by result",
	}, []string{"result"})

	fetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "storefront_catalog_fetch_duration_seconds",
		Help:    "Duration of catalog fetches including the configured delay",
		Buckets: prometheus.DefBuckets,
	})
)

func init() {
	names := make([]string, len(domain.ProductCategories))
	for i, c := range domain.ProductCategories {
		names[i] = string(c)
	}
	if err := validator.RegisterOneOf("product_category", names); err != nil {
		panic(fmt.Sprintf("register product_category validation: %v", err))
	}
}

// Getter issues GET requests. *httpclient.CircuitBreakerClient and
// *httpclient.Client satisfy it.
type Getter interface {
	Get(ctx context.Context, url string) (*http.Response, error)
}

// Client fetches the product catalog document. It never retries.
type Client struct {
	http   Getter
	url    string
	delay  time.Duration
	logger *slog.Logger
}

// NewClient creates a catalog client for url. delay is slept before every
// fetch; zero disables it.
func NewClient(getter Getter, url string, delay time.Duration, logger *slog.Logger) *Client {
	return &Client{http: getter, url: url, delay: delay, logger: logger}
}

type document struct {
	Products *[]domain.Product `json:"products"`
}

// FetchCatalog retrieves and decodes the catalog. Any failure is returned as
// a *RetrievalError.
func (c *Client) FetchCatalog(ctx context.Context) (products []domain.Product, err error) {
	start := time.Now()
	ctx, span := tracing.Start(ctx, "catalog.fetch", attribute.String("catalog.url", c.url))
	defer func() {
		fetchDuration.Observe(time.Since(start).Seconds())
		result := "ok"
		if err != nil {
			result = "error"
		}
		fetchTotal.WithLabelValues(result).Inc()
		tracing.RecordError(span, err)
		span.End()
	}()

	if c.delay > 0 {
		t := time.NewTimer(c.delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, &RetrievalError{Err: ctx.Err()}
		case <-t.C:
		}
	}

	resp, err := c.http.Get(ctx, c.url)
	if err != nil {
		return nil, retrievalFromTransport(err)
	}
	if err := httpclient.CheckStatus(resp); err != nil {
		return nil, retrievalFromTransport(err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize+1))
	if err != nil {
		return nil, &RetrievalError{StatusCode: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}
	if len(body) > maxDocumentSize {
		return nil, &RetrievalError{StatusCode: resp.StatusCode, Err: fmt.Errorf("%w: document exceeds %d bytes", ErrMalformedCatalog, maxDocumentSize)}
	}

	products, err = Decode(body)
	if err != nil {
		return nil, &RetrievalError{StatusCode: resp.StatusCode, Err: err}
	}

	span.SetAttributes(attribute.Int("catalog.products", len(products)))
	c.logger.DebugContext(ctx, "catalog fetched",
		slog.String("url", c.url),
		slog.Int("products", len(products)),
		slog.Duration("duration", time.Since(start)),
	)
	return products, nil
}

func retrievalFromTransport(err error) *RetrievalError {
	var se *httpclient.StatusError
	if errors.As(err, &se) {
		return &RetrievalError{StatusCode: se.StatusCode, Err: fmt.Errorf("HTTP error! status: %d", se.StatusCode)}
	}
	return &RetrievalError{Err: err}
}

// Decode parses a {"products":[...]} document. A missing or null products
// array, unknown JSON structure or an invalid product is ErrMalformedCatalog.
func Decode(body []byte) ([]domain.Product, error) {
	var doc document
	dec := json.NewDecoder(bytes.NewReader(body))
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCatalog, err)
	}
	if doc.Products == nil {
		return nil, fmt.Errorf("%w: missing products array", ErrMalformedCatalog)
	}

	products := *doc.Products
	for i := range products {
		if err := validator.Validate(products[i]); err != nil {
			return nil, fmt.Errorf("%w: product %d (%q): %v", ErrMalformedCatalog, i, products[i].ID, err)
		}
		if products[i].Price.IsNegative() {
			return nil, fmt.Errorf("%w: product %d (%q): negative price", ErrMalformedCatalog, i, products[i].ID)
		}
	}
	return products, nil
}
