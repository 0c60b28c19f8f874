package cart

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/repository/memory"
	apperrors "github.com/utafrali/storefront/pkg/errors"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func product(id string, price string, inventory int) domain.Product {
	return domain.Product{
		ID:        id,
		Name:      "Product " + id,
		Price:     decimal.RequireFromString(price),
		Category:  domain.CategoryWireFencing,
		Available: true,
		Inventory: inventory,
	}
}

func newTestStore(t *testing.T) (*Store, *memory.KVStore) {
	t.Helper()
	kv := memory.NewKVStore()
	s := NewStore(kv, Config{}, discardLogger())
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s, kv
}

// flush waits for every queued operation by closing the store.
func flush(t *testing.T, s *Store) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Close(ctx))
}

func persisted(t *testing.T, kv *memory.KVStore) ([]domain.CartLine, bool) {
	t.Helper()
	raw, err := kv.Get(context.Background(), DefaultStorageKey)
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, false
	}
	require.NoError(t, err)
	var lines []domain.CartLine
	require.NoError(t, json.Unmarshal(raw, &lines))
	return lines, true
}

func quantities(lines []domain.CartLine) map[string]int {
	out := make(map[string]int, len(lines))
	for _, l := range lines {
		out[l.Product.ID] = l.Quantity
	}
	return out
}

func TestStore_WorkedExample(t *testing.T) {
	s, kv := newTestStore(t)
	ctx := context.Background()
	a := product("A", "10.00", 5)
	b := product("B", "4.50", 2)

	s.AddToCart(ctx, a, 3)
	s.AddToCart(ctx, a, 4)
	line, ok := s.Line("A")
	require.True(t, ok)
	assert.Equal(t, 5, line.Quantity)

	s.AddToCart(ctx, b, 1)
	s.RemoveFromCart(ctx, "B")
	assert.Equal(t, map[string]int{"A": 5}, quantities(s.Lines()))

	s.UpdateQuantity(ctx, "A", 0)
	line, ok = s.Line("A")
	require.True(t, ok)
	assert.Equal(t, 0, line.Quantity)

	flush(t, s)
	lines, ok := persisted(t, kv)
	require.True(t, ok)
	assert.Equal(t, map[string]int{"A": 0}, quantities(lines))
}

func TestStore_AddToCart_ClampProperty(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	p := product("A", "1.00", 7)

	s.AddToCart(ctx, p, 2)
	for i := 0; i < 10; i++ {
		s.AddToCart(ctx, p, 3)
		line, _ := s.Line("A")
		assert.LessOrEqual(t, line.Quantity, p.Inventory)
	}
	line, _ := s.Line("A")
	assert.Equal(t, 7, line.Quantity)
}

func TestStore_AddToCart_FirstInsertNotClamped(t *testing.T) {
	s, _ := newTestStore(t)

	s.AddToCart(context.Background(), product("A", "1.00", 2), 9)

	line, ok := s.Line("A")
	require.True(t, ok)
	assert.Equal(t, 9, line.Quantity)
}

func TestStore_AddToCart_KeepsFirstSnapshot(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	s.AddToCart(ctx, product("A", "1.00", 10), 1)
	s.AddToCart(ctx, product("A", "2.00", 3), 5)

	line, _ := s.Line("A")
	assert.Equal(t, 3, line.Quantity)
	assert.True(t, decimal.RequireFromString("1.00").Equal(line.Product.Price))
}

func TestStore_InsertionOrder(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	s.AddToCart(ctx, product("C", "1", 9), 1)
	s.AddToCart(ctx, product("A", "1", 9), 1)
	s.AddToCart(ctx, product("B", "1", 9), 1)
	s.AddToCart(ctx, product("A", "1", 9), 1)
	s.RemoveFromCart(ctx, "C")
	s.AddToCart(ctx, product("C", "1", 9), 1)

	var ids []string
	for _, l := range s.Lines() {
		ids = append(ids, l.Product.ID)
	}
	assert.Equal(t, []string{"A", "B", "C"}, ids)
}

func TestStore_RemoveAbsentIsNoop(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	s.AddToCart(ctx, product("A", "1", 3), 1)
	before := s.Lines()

	s.RemoveFromCart(ctx, "missing")

	assert.Equal(t, before, s.Lines())
}

func TestStore_UpdateQuantity_Verbatim(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	s.AddToCart(ctx, product("A", "1", 3), 1)

	s.UpdateQuantity(ctx, "A", 50)
	line, _ := s.Line("A")
	assert.Equal(t, 50, line.Quantity)

	s.UpdateQuantity(ctx, "A", -2)
	line, _ = s.Line("A")
	assert.Equal(t, -2, line.Quantity)

	s.UpdateQuantity(ctx, "missing", 4)
	_, ok := s.Line("missing")
	assert.False(t, ok)
}

func TestStore_ChangeQuantity(t *testing.T) {
	tests := []struct {
		name     string
		id       string
		quantity int
		want     Change
		wantQty  map[string]int
	}{
		{name: "within inventory", id: "A", quantity: 4, want: ChangeUpdated, wantQty: map[string]int{"A": 4}},
		{name: "at inventory", id: "A", quantity: 5, want: ChangeUpdated, wantQty: map[string]int{"A": 5}},
		{name: "above inventory", id: "A", quantity: 6, want: ChangeIgnored, wantQty: map[string]int{"A": 2}},
		{name: "zero removes", id: "A", quantity: 0, want: ChangeRemoved, wantQty: map[string]int{}},
		{name: "negative removes", id: "A", quantity: -1, want: ChangeRemoved, wantQty: map[string]int{}},
		{name: "unknown id", id: "Z", quantity: 1, want: ChangeIgnored, wantQty: map[string]int{"A": 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestStore(t)
			ctx := context.Background()
			s.AddToCart(ctx, product("A", "1", 5), 2)

			got := s.ChangeQuantity(ctx, tt.id, tt.quantity)

			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantQty, quantities(s.Lines()))
		})
	}
}

func TestStore_TotalsAndCount(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	s.AddToCart(ctx, product("A", "89.99", 10), 2)
	s.AddToCart(ctx, product("B", "0.10", 10), 3)

	assert.Equal(t, "180.28", s.Total().StringFixed(2))
	assert.Equal(t, 5, s.ItemCount())
}

func TestStore_LinesReturnsCopy(t *testing.T) {
	s, _ := newTestStore(t)
	s.AddToCart(context.Background(), product("A", "1", 5), 1)

	lines := s.Lines()
	lines[0].Quantity = 99

	line, _ := s.Line("A")
	assert.Equal(t, 1, line.Quantity)
}

func TestStore_ClearLoadRehydrate_AllEmpty(t *testing.T) {
	kv := memory.NewKVStore()
	s := NewStore(kv, Config{}, discardLogger())
	ctx := context.Background()

	s.AddToCart(ctx, product("A", "1", 5), 2)
	s.ClearCart(ctx)
	assert.Empty(t, s.Lines())

	s.LoadCart(ctx, []domain.CartLine{})
	assert.Empty(t, s.Lines())

	cart := s.Rehydrate(ctx)
	assert.Empty(t, cart.Lines)
	assert.Empty(t, s.Lines())

	flush(t, s)
	_, ok := persisted(t, kv)
	assert.False(t, ok)
}

func TestStore_LoadCart_DoesNotPersist(t *testing.T) {
	s, kv := newTestStore(t)

	s.LoadCart(context.Background(), []domain.CartLine{
		{Product: product("A", "1", 5), Quantity: 2},
		{Product: product("B", "1", 5), Quantity: 1},
		{Product: product("A", "1", 5), Quantity: 4},
	})

	assert.Equal(t, map[string]int{"A": 2, "B": 1}, quantities(s.Lines()))
	flush(t, s)
	_, ok := persisted(t, kv)
	assert.False(t, ok)
}

func TestStore_Rehydrate(t *testing.T) {
	tests := []struct {
		name   string
		stored string
		want   map[string]int
	}{
		{
			name:   "nested record",
			stored: `[{"product":{"id":"A","name":"A","price":2.5,"category":"Wire Fencing","inventory":5},"quantity":3}]`,
			want:   map[string]int{"A": 3},
		},
		{
			name:   "flattened record",
			stored: `[{"id":"B","name":"B","price":1,"category":"Fence Tools","inventory":5,"quantity":2}]`,
			want:   map[string]int{"B": 2},
		},
		{name: "null", stored: `null`, want: map[string]int{}},
		{name: "not json", stored: `{{{`, want: map[string]int{}},
		{name: "wrong shape", stored: `{"items":[]}`, want: map[string]int{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kv := memory.NewKVStore()
			require.NoError(t, kv.Set(context.Background(), DefaultStorageKey, []byte(tt.stored)))
			s := NewStore(kv, Config{}, discardLogger())
			t.Cleanup(func() { _ = s.Close(context.Background()) })

			cart := s.Rehydrate(context.Background())

			assert.Equal(t, tt.want, quantities(cart.Lines))
			assert.Equal(t, tt.want, quantities(s.Lines()))
		})
	}
}

func TestStore_RehydrateRoundTrip(t *testing.T) {
	kv := memory.NewKVStore()
	ctx := context.Background()

	first := NewStore(kv, Config{}, discardLogger())
	first.AddToCart(ctx, product("A", "12.50", 5), 2)
	first.AddToCart(ctx, product("B", "3", 5), 1)
	flush(t, first)

	second := NewStore(kv, Config{}, discardLogger())
	t.Cleanup(func() { _ = second.Close(ctx) })
	cart := second.Rehydrate(ctx)

	assert.Equal(t, quantities(first.Lines()), quantities(cart.Lines))
	assert.Equal(t, "Product A", cart.Lines[0].Product.Name)
	assert.Equal(t, "26.00", cart.Total().StringFixed(2))
}

func TestStore_CustomStorageKey(t *testing.T) {
	kv := memory.NewKVStore()
	s := NewStore(kv, Config{StorageKey: "other"}, discardLogger())

	s.AddToCart(context.Background(), product("A", "1", 1), 1)
	flush(t, s)

	_, ok := persisted(t, kv)
	assert.False(t, ok)
	_, err := kv.Get(context.Background(), "other")
	assert.NoError(t, err)
}

func TestStore_Subscribe(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	var got []int
	unsubscribe := s.Subscribe(func(_ context.Context, c domain.Cart) {
		got = append(got, c.ItemCount())
	})

	s.AddToCart(ctx, product("A", "1", 5), 2)
	s.LoadCart(ctx, []domain.CartLine{{Product: product("B", "1", 5), Quantity: 4}})
	s.ClearCart(ctx)
	unsubscribe()
	s.AddToCart(ctx, product("A", "1", 5), 1)

	assert.Equal(t, []int{2, 4, 0}, got)
}

func TestStore_CloseIdempotent(t *testing.T) {
	s := NewStore(memory.NewKVStore(), Config{}, discardLogger())

	require.NoError(t, s.Close(context.Background()))
	require.NoError(t, s.Close(context.Background()))

	s.AddToCart(context.Background(), product("A", "1", 5), 1)
	assert.Equal(t, 1, s.ItemCount())
	assert.Empty(t, s.Rehydrate(context.Background()).Lines)
}

// recordingKV records the order of operations and can be told to fail.
type recordingKV struct {
	mock.Mock
	mu  sync.Mutex
	ops []string
}

func (r *recordingKV) record(op string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, op)
}

func (r *recordingKV) Get(ctx context.Context, key string) ([]byte, error) {
	r.record("get")
	args := r.Called(ctx, key)
	b, _ := args.Get(0).([]byte)
	return b, args.Error(1)
}

func (r *recordingKV) Set(ctx context.Context, key string, value []byte) error {
	r.record("set:" + string(value))
	return r.Called(ctx, key, value).Error(0)
}

func (r *recordingKV) Remove(ctx context.Context, key string) error {
	r.record("remove")
	return r.Called(ctx, key).Error(0)
}

func (r *recordingKV) Ping(context.Context) error { return nil }

// gatedKV holds every Set until release is closed, ignoring the context.
type gatedKV struct {
	*memory.KVStore
	release chan struct{}
	entered chan struct{}

	mu   sync.Mutex
	sets []string
}

func newGatedKV() *gatedKV {
	return &gatedKV{
		KVStore: memory.NewKVStore(),
		release: make(chan struct{}),
		entered: make(chan struct{}, 16),
	}
}

func (g *gatedKV) Set(ctx context.Context, key string, value []byte) error {
	select {
	case g.entered <- struct{}{}:
	default:
	}
	<-g.release
	g.mu.Lock()
	g.sets = append(g.sets, string(value))
	g.mu.Unlock()
	return g.KVStore.Set(ctx, key, value)
}

func (g *gatedKV) recordedSets() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.sets...)
}

func within(t *testing.T, d time.Duration, what string, fn func()) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()
	select {
	case <-done:
	case <-time.After(d):
		t.Fatalf("%s did not return within %s", what, d)
	}
}

func TestStore_StalledBackendDoesNotBlockMutations(t *testing.T) {
	kv := newGatedKV()
	s := NewStore(kv, Config{PersistTimeout: time.Second}, discardLogger())
	ctx := context.Background()
	p := product("A", "1", 1000)

	within(t, 2*time.Second, "mutations", func() {
		for i := 0; i < 100; i++ {
			s.AddToCart(ctx, p, 1)
		}
		s.RemoveFromCart(ctx, "missing")
		s.UpdateQuantity(ctx, "A", 100)
	})
	within(t, time.Second, "ItemCount", func() {
		assert.Equal(t, 100, s.ItemCount())
	})
	within(t, time.Second, "Cart", func() {
		assert.Len(t, s.Cart().Lines, 1)
	})

	close(kv.release)
	flush(t, s)

	sets := kv.recordedSets()
	require.NotEmpty(t, sets)
	assert.LessOrEqual(t, len(sets), 2)
	lines, ok := persisted(t, kv.KVStore)
	require.True(t, ok)
	assert.Equal(t, map[string]int{"A": 100}, quantities(lines))
}

func TestStore_PendingWritesCollapseToLatest(t *testing.T) {
	kv := newGatedKV()
	s := NewStore(kv, Config{}, discardLogger())
	ctx := context.Background()
	p := product("A", "1", 5)
	setsBefore := testutil.ToFloat64(persistTotal.WithLabelValues("set", "coalesced"))
	removesBefore := testutil.ToFloat64(persistTotal.WithLabelValues("remove", "coalesced"))

	s.AddToCart(ctx, p, 1)
	select {
	case <-kv.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("worker never started the first write")
	}

	// The worker is stuck on the first write; these queue up behind it.
	s.AddToCart(ctx, p, 1)
	s.ClearCart(ctx)
	s.AddToCart(ctx, p, 3)

	close(kv.release)
	flush(t, s)

	sets := kv.recordedSets()
	require.Len(t, sets, 2)
	assert.Contains(t, sets[0], `"quantity":1`)
	assert.Contains(t, sets[1], `"quantity":3`)
	assert.Equal(t, setsBefore+1, testutil.ToFloat64(persistTotal.WithLabelValues("set", "coalesced")))
	assert.Equal(t, removesBefore+1, testutil.ToFloat64(persistTotal.WithLabelValues("remove", "coalesced")))

	lines, ok := persisted(t, kv.KVStore)
	require.True(t, ok)
	assert.Equal(t, map[string]int{"A": 3}, quantities(lines))
}

func TestStore_RemoveKeepsOrderAgainstReads(t *testing.T) {
	kv := &recordingKV{}
	kv.On("Set", mock.Anything, DefaultStorageKey, mock.Anything).Return(nil)
	kv.On("Remove", mock.Anything, DefaultStorageKey).Return(nil)
	kv.On("Get", mock.Anything, DefaultStorageKey).Return(nil, apperrors.ErrNotFound)
	s := NewStore(kv, Config{}, discardLogger())
	ctx := context.Background()

	s.AddToCart(ctx, product("A", "1", 5), 1)
	s.ClearCart(ctx)
	s.Rehydrate(ctx)
	flush(t, s)

	kv.mu.Lock()
	defer kv.mu.Unlock()
	require.NotEmpty(t, kv.ops)
	assert.Equal(t, "get", kv.ops[len(kv.ops)-1])
	assert.Equal(t, "remove", kv.ops[len(kv.ops)-2])
}

func TestStore_EmptyCartPersistsEmptyArray(t *testing.T) {
	kv := &recordingKV{}
	kv.On("Set", mock.Anything, DefaultStorageKey, []byte(`[]`)).Return(nil).Once()
	s := NewStore(kv, Config{}, discardLogger())

	s.RemoveFromCart(context.Background(), "A")
	flush(t, s)

	kv.AssertExpectations(t)
}

func TestStore_WriteFailureKeepsState(t *testing.T) {
	kv := &recordingKV{}
	kv.On("Set", mock.Anything, DefaultStorageKey, mock.Anything).Return(errors.New("redis down"))
	s := NewStore(kv, Config{}, discardLogger())
	before := testutil.ToFloat64(persistTotal.WithLabelValues("set", "failure"))

	s.AddToCart(context.Background(), product("A", "1", 5), 2)
	flush(t, s)

	assert.Equal(t, 2, s.ItemCount())
	assert.Equal(t, before+1, testutil.ToFloat64(persistTotal.WithLabelValues("set", "failure")))
}

func TestStore_RehydrateReadFailure(t *testing.T) {
	kv := &recordingKV{}
	kv.On("Get", mock.Anything, DefaultStorageKey).Return(nil, errors.New("timeout"))
	s := NewStore(kv, Config{}, discardLogger())
	t.Cleanup(func() { _ = s.Close(context.Background()) })

	cart := s.Rehydrate(context.Background())

	assert.Empty(t, cart.Lines)
}

func TestStore_RehydrateWaitsForPendingWrites(t *testing.T) {
	kv := &recordingKV{}
	kv.On("Set", mock.Anything, DefaultStorageKey, mock.Anything).Return(nil)
	kv.On("Get", mock.Anything, DefaultStorageKey).Return([]byte(`[]`), nil)
	s := NewStore(kv, Config{}, discardLogger())
	t.Cleanup(func() { _ = s.Close(context.Background()) })

	s.AddToCart(context.Background(), product("A", "1", 5), 1)
	s.Rehydrate(context.Background())

	kv.mu.Lock()
	defer kv.mu.Unlock()
	require.Len(t, kv.ops, 2)
	assert.Equal(t, "get", kv.ops[1])
}

func TestStore_PersistUsesTimeout(t *testing.T) {
	kv := &recordingKV{}
	kv.On("Set", mock.Anything, DefaultStorageKey, mock.Anything).
		Run(func(args mock.Arguments) {
			ctx := args.Get(0).(context.Context)
			_, ok := ctx.Deadline()
			assert.True(t, ok)
		}).
		Return(nil)
	s := NewStore(kv, Config{PersistTimeout: time.Second}, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	s.AddToCart(ctx, product("A", "1", 5), 1)
	cancel()
	flush(t, s)

	kv.AssertNumberOfCalls(t, "Set", 1)
}

func TestStore_ConcurrentAdds(t *testing.T) {
	s, _ := newTestStore(t)
	p := product("A", "1", 1000)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.AddToCart(context.Background(), p, 2)
		}()
	}
	wg.Wait()

	line, _ := s.Line("A")
	assert.Equal(t, 100, line.Quantity)
}
