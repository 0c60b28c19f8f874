package catalog

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/utafrali/storefront/internal/domain"
)

// State of the catalog as seen by consumers.
type State string

const (
	StateIdle    State = "idle"
	StateLoading State = "loading"
	StateReady   State = "ready"
	StateFailed  State = "failed"
)

// Fetcher retrieves the full catalog.
type Fetcher interface {
	FetchCatalog(ctx context.Context) ([]domain.Product, error)
}

// Snapshot is an immutable view of the loader. Products must not be modified.
type Snapshot struct {
	State    State
	Products []domain.Product
	// Version increases every time a fetch succeeds. Zero means no catalog
	// has been loaded yet.
	Version  uint64
	Err      error
	LoadedAt time.Time
}

// Loader holds the most recently loaded catalog and its loading state.
type Loader struct {
	fetcher Fetcher
	logger  *slog.Logger
	now     func() time.Time

	mu       sync.RWMutex
	snap     Snapshot
	issued   uint64 // tickets handed to Load calls
	applied  uint64 // newest ticket whose result was applied
	inFlight int
}

// NewLoader creates an idle Loader.
func NewLoader(fetcher Fetcher, logger *slog.Logger) *Loader {
	return &Loader{
		fetcher: fetcher,
		logger:  logger,
		now:     time.Now,
		snap:    Snapshot{State: StateIdle},
	}
}

// Load fetches the catalog and publishes the result. It is also the retry
// affordance after a failure. A failed load keeps previously loaded
// products. When loads overlap, a result older than one already applied is
// dropped.
func (l *Loader) Load(ctx context.Context) error {
	l.mu.Lock()
	l.issued++
	ticket := l.issued
	l.inFlight++
	l.snap.State = StateLoading
	l.mu.Unlock()

	products, err := l.fetcher.FetchCatalog(ctx)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.inFlight--

	if ticket < l.applied {
		l.logger.DebugContext(ctx, "discarding stale catalog load", slog.Uint64("ticket", ticket))
		l.settleState()
		return err
	}
	l.applied = ticket

	if err != nil {
		l.snap.Err = err
		l.settleState()
		l.logger.WarnContext(ctx, "catalog load failed",
			slog.String("error", err.Error()),
			slog.Bool("serving_previous", l.snap.Version > 0),
		)
		return err
	}

	l.snap.Products = products
	l.snap.Version++
	l.snap.Err = nil
	l.snap.LoadedAt = l.now()
	l.settleState()
	l.logger.InfoContext(ctx, "catalog loaded",
		slog.Int("products", len(products)),
		slog.Uint64("version", l.snap.Version),
	)
	return nil
}

// settleState derives the state once a load finished. Caller holds mu.
func (l *Loader) settleState() {
	switch {
	case l.inFlight > 0:
		l.snap.State = StateLoading
	case l.snap.Err != nil:
		l.snap.State = StateFailed
	case l.snap.Version > 0:
		l.snap.State = StateReady
	default:
		l.snap.State = StateIdle
	}
}

// Snapshot returns the current catalog view.
func (l *Loader) Snapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snap
}

// Products returns the loaded catalog and its version. The slice is shared
// and must not be modified.
func (l *Loader) Products() ([]domain.Product, uint64) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snap.Products, l.snap.Version
}

// Categories returns "all" followed by the distinct categories of the loaded
// catalog in first-seen order.
func (l *Loader) Categories() []domain.Category {
	products, _ := l.Products()
	return Categories(products)
}

// Categories returns "all" followed by the distinct categories of products in
// first-seen order.
func Categories(products []domain.Product) []domain.Category {
	seen := make(map[domain.Category]struct{}, len(domain.ProductCategories))
	out := []domain.Category{domain.CategoryAll}
	for _, p := range products {
		if _, ok := seen[p.Category]; ok {
			continue
		}
		seen[p.Category] = struct{}{}
		out = append(out, p.Category)
	}
	return out
}

// Ready reports an error until a catalog has been loaded.
func (l *Loader) Ready(context.Context) error {
	snap := l.Snapshot()
	if snap.Version > 0 {
		return nil
	}
	if snap.Err != nil {
		return snap.Err
	}
	return errNotLoaded
}
