// Package event publishes cart changes to Kafka.
package event

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/utafrali/storefront/internal/domain"
	pkgkafka "github.com/utafrali/storefront/pkg/kafka"
	"github.com/utafrali/storefront/pkg/logger"
)

// Kafka topics for cart events.
const (
	TopicCartUpdated = "storefront.cart.updated"
	TopicCartCleared = "storefront.cart.cleared"
)

const (
	AggregateTypeCart = "cart"
	SourceStorefront  = "storefront"
)

var droppedEvents = promauto.NewCounter(prometheus.CounterOpts{
	Name: "storefront_cart_events_dropped_total",
	Help: "Cart events dropped because the publish buffer was full or closed.",
})

// CartUpdatedData is the payload of a cart.updated event.
type CartUpdatedData struct {
	CartID    string         `json:"cart_id"`
	Items     []CartItemData `json:"items"`
	ItemCount int            `json:"item_count"`
	Total     json.Number    `json:"total"`
	Currency  string         `json:"currency,omitempty"`
}

// CartItemData is one line within a cart event.
type CartItemData struct {
	ProductID string      `json:"product_id"`
	Name      string      `json:"name"`
	Price     json.Number `json:"price"`
	Quantity  int         `json:"quantity"`
}

// CartClearedData is the payload of a cart.cleared event.
type CartClearedData struct {
	CartID string `json:"cart_id"`
}

// EventPublisher is the subset of pkgkafka.Producer used here.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

type pending struct {
	ctx  context.Context
	cart domain.Cart
}

// Producer turns cart snapshots into events. Snapshots are buffered and
// published in order by one goroutine so cart mutations never wait on Kafka.
type Producer struct {
	kafka  EventPublisher
	cartID string
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan pending
	done   chan struct{}
}

// NewProducer starts a producer for the cart identified by cartID.
func NewProducer(kafka EventPublisher, cartID string, bufferSize int, logger *slog.Logger) *Producer {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	p := &Producer{
		kafka:  kafka,
		cartID: cartID,
		logger: logger,
		queue:  make(chan pending, bufferSize),
		done:   make(chan struct{}),
	}
	go p.run()
	return p
}

// Observe is a cart.Observer. It never blocks: when the buffer is full the
// snapshot is dropped and counted. Snapshots observed after Close are
// dropped as well.
func (p *Producer) Observe(ctx context.Context, cart domain.Cart) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		droppedEvents.Inc()
		return
	}
	select {
	case p.queue <- pending{ctx: logger.Detach(ctx), cart: cart}:
	default:
		droppedEvents.Inc()
		logger.WithContext(ctx, p.logger).WarnContext(ctx, "cart event buffer full, event dropped")
	}
}

func (p *Producer) run() {
	defer close(p.done)
	for ev := range p.queue {
		var err error
		if len(ev.cart.Lines) == 0 {
			err = p.PublishCartCleared(ev.ctx)
		} else {
			err = p.PublishCartUpdated(ev.ctx, ev.cart)
		}
		if err != nil {
			logger.WithContext(ev.ctx, p.logger).WarnContext(ev.ctx, "cart event not published",
				slog.String("error", err.Error()))
		}
	}
}

// Close stops accepting snapshots and waits for buffered events to be
// published. It is safe to call more than once.
func (p *Producer) Close(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()

	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("drain cart events: %w", ctx.Err())
	}
}

// PublishCartUpdated publishes a cart.updated event.
func (p *Producer) PublishCartUpdated(ctx context.Context, cart domain.Cart) error {
	items := make([]CartItemData, len(cart.Lines))
	for i, l := range cart.Lines {
		items[i] = CartItemData{
			ProductID: l.Product.ID,
			Name:      l.Product.Name,
			Price:     domain.Number(l.Product.Price),
			Quantity:  l.Quantity,
		}
	}
	data := CartUpdatedData{
		CartID:    p.cartID,
		Items:     items,
		ItemCount: cart.ItemCount(),
		Total:     domain.Number(cart.Total()),
	}
	if len(cart.Lines) > 0 {
		data.Currency = cart.Lines[0].Product.Currency
	}

	if err := p.publish(ctx, TopicCartUpdated, data); err != nil {
		return err
	}
	p.logger.DebugContext(ctx, "published cart.updated event",
		slog.String("cart_id", p.cartID),
		slog.Int("item_count", data.ItemCount),
	)
	return nil
}

// PublishCartCleared publishes a cart.cleared event.
func (p *Producer) PublishCartCleared(ctx context.Context) error {
	if err := p.publish(ctx, TopicCartCleared, CartClearedData{CartID: p.cartID}); err != nil {
		return err
	}
	p.logger.DebugContext(ctx, "published cart.cleared event", slog.String("cart_id", p.cartID))
	return nil
}

func (p *Producer) publish(ctx context.Context, topic string, data any) error {
	event, err := pkgkafka.NewEvent(topic, p.cartID, AggregateTypeCart, SourceStorefront, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		event.WithCorrelationID(id)
	}
	if err := p.kafka.Publish(ctx, topic, event); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}
	return nil
}
