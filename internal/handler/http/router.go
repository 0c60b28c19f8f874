package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/storefront/pkg/health"
	"github.com/utafrali/storefront/pkg/middleware"
)

// RouterConfig carries the optional pieces of the router.
type RouterConfig struct {
	ServiceName    string
	RequestTimeout time.Duration
	CORS           middleware.CORSConfig
	PprofCIDRs     []string
	// RateLimiter throttles the mutating and API routes. Nil disables it.
	RateLimiter *middleware.RateLimiter
	// Document serves /products.json when set.
	Document http.Handler
}

// NewRouter creates a chi router with every storefront route registered.
func NewRouter(h *Handler, healthHandler *health.Handler, cfg RouterConfig, logger *slog.Logger) http.Handler {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.Tracing(cfg.ServiceName))
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.PrometheusMetrics(cfg.ServiceName))
	r.Use(middleware.CORS(cfg.CORS))

	// Ops endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())
	middleware.RegisterPprof(r, cfg.PprofCIDRs, logger)

	// Catalog resource
	if cfg.Document != nil {
		r.With(middleware.CacheControl(time.Minute)).Method(http.MethodGet, "/products.json", cfg.Document)
		r.With(middleware.CacheControl(time.Minute)).Method(http.MethodHead, "/products.json", cfg.Document)
	}

	r.Group(func(r chi.Router) {
		r.Use(chimw.Compress(5))
		r.Use(chimw.Timeout(cfg.RequestTimeout))
		r.Use(middleware.NoStore)
		if cfg.RateLimiter != nil {
			r.Use(cfg.RateLimiter.Middleware)
		}

		// View routes
		r.Get("/", h.CatalogPage)
		r.Put("/filter", h.SetFilter)
		r.Delete("/filter", h.ClearFilter)
		r.Post("/more", h.LoadMore)
		r.Post("/catalog/refresh", h.RefreshCatalog)
		r.Get("/product/{id}", h.ProductPage)
		r.Get("/cart", h.CartPage)

		// JSON API
		r.Route("/api/v1/products", func(r chi.Router) {
			r.Get("/", h.ListProducts)
			r.Get("/categories", h.ListCategories)
			r.Get("/{id}", h.GetProduct)
		})

		r.Route("/api/v1/cart", func(r chi.Router) {
			r.Get("/", h.GetCart)
			r.Delete("/", h.ClearCart)
			r.Post("/items", h.AddItem)
			r.Put("/items/{productId}", h.UpdateItemQuantity)
			r.Patch("/items/{productId}", h.ChangeItemQuantity)
			r.Delete("/items/{productId}", h.RemoveItem)
		})
	})

	return r
}
