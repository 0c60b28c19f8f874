// Package cart holds the shopping cart: the authoritative in-memory cart
// state plus its best-effort persistence to a key-value store.
package cart

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/repository"
)

// DefaultStorageKey is the key the cart record is persisted under.
const DefaultStorageKey = "cart_items"

// Config tunes persistence.
type Config struct {
	StorageKey     string
	PersistTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.StorageKey == "" {
		c.StorageKey = DefaultStorageKey
	}
	if c.PersistTimeout <= 0 {
		c.PersistTimeout = 5 * time.Second
	}
	return c
}

// Change reports what ChangeQuantity did.
type Change string

const (
	ChangeRemoved Change = "removed"
	ChangeUpdated Change = "updated"
	ChangeIgnored Change = "ignored"
)

// Observer receives a copy of the cart after every mutation. Observers run
// while the store is locked and must not call back into the Store.
type Observer func(ctx context.Context, cart domain.Cart)

// Store owns the cart. Mutations are serialized; each one except LoadCart
// schedules a write of the resulting state. Writes never block a mutation:
// writes still waiting for the worker are replaced by the newest one, so the
// record always ends up holding the latest state.
type Store struct {
	kv     repository.KVStore
	cfg    Config
	logger *slog.Logger

	mu        sync.Mutex
	lines     []domain.CartLine
	observers map[uint64]Observer
	nextObs   uint64
	closed    bool

	pending []persistOp
	wake    chan struct{}
	done    chan struct{}
}

// NewStore creates an empty Store and starts its persistence worker. Call
// Close to stop it.
func NewStore(kv repository.KVStore, cfg Config, logger *slog.Logger) *Store {
	cfg = cfg.withDefaults()
	s := &Store{
		kv:        kv,
		cfg:       cfg,
		logger:    logger,
		observers: make(map[uint64]Observer),
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	go s.run()
	return s
}

// AddToCart adds quantity of product. An existing line grows to at most
// product.Inventory; a new line is appended with quantity as given.
func (s *Store) AddToCart(ctx context.Context, product domain.Product, quantity int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i := s.indexOf(product.ID); i >= 0 {
		s.lines[i].Quantity = min(s.lines[i].Quantity+quantity, product.Inventory)
	} else {
		s.lines = append(s.lines, domain.CartLine{Product: product, Quantity: quantity})
	}
	s.commit(ctx, opSet)
}

// RemoveFromCart deletes the line for productID if there is one.
func (s *Store) RemoveFromCart(ctx context.Context, productID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i := s.indexOf(productID); i >= 0 {
		s.lines = append(s.lines[:i:i], s.lines[i+1:]...)
	}
	s.commit(ctx, opSet)
}

// UpdateQuantity overwrites the quantity of an existing line. The value is
// stored as given, without bounds checks.
func (s *Store) UpdateQuantity(ctx context.Context, productID string, quantity int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i := s.indexOf(productID); i >= 0 {
		s.lines[i].Quantity = quantity
	}
	s.commit(ctx, opSet)
}

// ChangeQuantity is the bounded form of UpdateQuantity: below 1 removes the
// line, up to the line's inventory updates it, anything larger is ignored.
// Unknown product ids are ignored.
func (s *Store) ChangeQuantity(ctx context.Context, productID string, quantity int) Change {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(productID)
	if i < 0 {
		return ChangeIgnored
	}
	switch {
	case quantity < 1:
		s.lines = append(s.lines[:i:i], s.lines[i+1:]...)
		s.commit(ctx, opSet)
		return ChangeRemoved
	case quantity <= s.lines[i].Product.Inventory:
		s.lines[i].Quantity = quantity
		s.commit(ctx, opSet)
		return ChangeUpdated
	default:
		return ChangeIgnored
	}
}

// ClearCart empties the cart and removes the persisted record.
func (s *Store) ClearCart(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lines = nil
	s.commit(ctx, opRemove)
}

// LoadCart replaces the cart wholesale without persisting. Later lines
// repeating a product id are dropped.
func (s *Store) LoadCart(ctx context.Context, lines []domain.CartLine) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lines = dedupe(lines)
	s.notify(ctx)
}

// Cart returns a copy of the current cart.
func (s *Store) Cart() domain.Cart {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

// Lines returns a copy of the lines in insertion order.
func (s *Store) Lines() []domain.CartLine {
	return s.Cart().Lines
}

// Line returns the line for productID.
func (s *Store) Line(productID string) (domain.CartLine, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexOf(productID); i >= 0 {
		return s.lines[i], true
	}
	return domain.CartLine{}, false
}

// Total is the sum of price times quantity.
func (s *Store) Total() decimal.Decimal {
	return s.Cart().Total()
}

// ItemCount is the sum of quantities.
func (s *Store) ItemCount() int {
	return s.Cart().ItemCount()
}

// Subscribe registers fn for change notifications and returns a function
// that unregisters it.
func (s *Store) Subscribe(fn Observer) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.observers, id)
	}
}

// commit notifies observers and schedules persistence. Caller holds mu.
func (s *Store) commit(ctx context.Context, kind opKind) {
	s.notify(ctx)

	op := persistOp{kind: kind, ctx: ctx, enqueued: time.Now()}
	if kind == opSet {
		payload, err := json.Marshal(s.linesOrEmpty())
		if err != nil {
			s.recordFailure(ctx, &PersistenceError{Op: string(kind), Key: s.cfg.StorageKey, Err: err})
			return
		}
		op.payload = payload
	}
	s.enqueue(op)
}

func (s *Store) notify(ctx context.Context) {
	if len(s.observers) == 0 {
		return
	}
	snap := s.snapshot()
	for _, fn := range s.observers {
		fn(ctx, snap)
	}
}

func (s *Store) snapshot() domain.Cart {
	lines := make([]domain.CartLine, len(s.lines))
	copy(lines, s.lines)
	return domain.Cart{Lines: lines}
}

func (s *Store) linesOrEmpty() []domain.CartLine {
	if s.lines == nil {
		return []domain.CartLine{}
	}
	return s.lines
}

func (s *Store) indexOf(productID string) int {
	for i := range s.lines {
		if s.lines[i].Product.ID == productID {
			return i
		}
	}
	return -1
}

func dedupe(lines []domain.CartLine) []domain.CartLine {
	out := make([]domain.CartLine, 0, len(lines))
	seen := make(map[string]struct{}, len(lines))
	for _, l := range lines {
		if _, ok := seen[l.Product.ID]; ok {
			continue
		}
		seen[l.Product.ID] = struct{}{}
		out = append(out, l)
	}
	return out
}
