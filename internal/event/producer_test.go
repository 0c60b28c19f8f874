package event

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/storefront/internal/domain"
	pkgkafka "github.com/utafrali/storefront/pkg/kafka"
	"github.com/utafrali/storefront/pkg/logger"
)

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, topic string, event *pkgkafka.Event) error {
	return m.Called(ctx, topic, event).Error(0)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleCart() domain.Cart {
	return domain.Cart{Lines: []domain.CartLine{
		{Product: domain.Product{ID: "wf-001", Name: "Wire", Price: decimal.RequireFromString("89.99"), Currency: "USD"}, Quantity: 2},
	}}
}

func closeProducer(t *testing.T, p *Producer) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, p.Close(ctx))
}

func TestProducer_PublishCartUpdated(t *testing.T) {
	pub := &mockPublisher{}
	var got *pkgkafka.Event
	pub.On("Publish", mock.Anything, TopicCartUpdated, mock.Anything).
		Run(func(args mock.Arguments) { got = args.Get(2).(*pkgkafka.Event) }).
		Return(nil).Once()
	p := NewProducer(pub, "cart_items", 4, discardLogger())
	defer closeProducer(t, p)

	ctx := logger.WithCorrelationID(context.Background(), "corr-1")
	require.NoError(t, p.PublishCartUpdated(ctx, sampleCart()))

	require.NotNil(t, got)
	assert.Equal(t, TopicCartUpdated, got.EventType)
	assert.Equal(t, "cart_items", got.AggregateID)
	assert.Equal(t, AggregateTypeCart, got.AggregateType)
	assert.Equal(t, "corr-1", got.CorrelationID)

	var data CartUpdatedData
	require.NoError(t, got.UnmarshalData(&data))
	assert.Equal(t, 2, data.ItemCount)
	assert.Equal(t, json.Number("179.98"), data.Total)
	assert.Equal(t, "USD", data.Currency)
	require.Len(t, data.Items, 1)
	assert.Equal(t, "wf-001", data.Items[0].ProductID)
	assert.Equal(t, json.Number("89.99"), data.Items[0].Price)
}

func TestProducer_PublishError(t *testing.T) {
	pub := &mockPublisher{}
	pub.On("Publish", mock.Anything, TopicCartCleared, mock.Anything).Return(errors.New("broker down"))
	p := NewProducer(pub, "cart_items", 4, discardLogger())
	defer closeProducer(t, p)

	err := p.PublishCartCleared(context.Background())

	assert.ErrorContains(t, err, "publish storefront.cart.cleared event: broker down")
}

func TestProducer_ObserveRoutesByCartState(t *testing.T) {
	pub := &mockPublisher{}
	pub.On("Publish", mock.Anything, TopicCartUpdated, mock.Anything).Return(nil).Once()
	pub.On("Publish", mock.Anything, TopicCartCleared, mock.Anything).Return(nil).Once()
	p := NewProducer(pub, "cart_items", 4, discardLogger())

	p.Observe(context.Background(), sampleCart())
	p.Observe(context.Background(), domain.Cart{})
	closeProducer(t, p)

	pub.AssertExpectations(t)
	require.Len(t, pub.Calls, 2)
	assert.Equal(t, TopicCartUpdated, pub.Calls[0].Arguments.String(1))
	assert.Equal(t, TopicCartCleared, pub.Calls[1].Arguments.String(1))
}

func TestProducer_ObserveDropsWhenFull(t *testing.T) {
	release := make(chan struct{})
	pub := &mockPublisher{}
	pub.On("Publish", mock.Anything, mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { <-release }).
		Return(nil)
	p := NewProducer(pub, "cart_items", 1, discardLogger())

	// The first snapshot is taken by the worker and blocks; the second fills
	// the buffer; the rest are dropped without blocking.
	for i := 0; i < 5; i++ {
		p.Observe(context.Background(), sampleCart())
	}
	close(release)
	closeProducer(t, p)

	assert.LessOrEqual(t, len(pub.Calls), 2)
}

func TestProducer_ObserveAfterCloseIsDropped(t *testing.T) {
	pub := &mockPublisher{}
	p := NewProducer(pub, "cart_items", 4, discardLogger())
	closeProducer(t, p)

	before := testutil.ToFloat64(droppedEvents)
	assert.NotPanics(t, func() {
		p.Observe(context.Background(), sampleCart())
	})
	assert.NotPanics(t, func() { closeProducer(t, p) })

	assert.Equal(t, before+1, testutil.ToFloat64(droppedEvents))
	pub.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
}
