package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/utafrali/storefront/internal/domain"
	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/logger"
)

var (
	persistTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_cart_persist_total",
		Help: "Cart persistence operations by operation and result.",
	}, []string{"op", "result"})

	persistDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "storefront_cart_persist_duration_seconds",
		Help:    "Time from enqueue to completion of cart persistence operations.",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})

	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "storefront_cart_persist_queue_depth",
		Help: "Cart persistence operations waiting for the worker.",
	})
)

type opKind string

const (
	opSet    opKind = "set"
	opRemove opKind = "remove"
	opGet    opKind = "get"
)

type persistOp struct {
	kind     opKind
	ctx      context.Context
	payload  []byte
	enqueued time.Time
	reply    chan getResult
}

type getResult struct {
	data []byte
	err  error
}

// PersistenceError describes a failed write of the cart record. It is logged
// and counted, never returned to callers of the Store.
type PersistenceError struct {
	Op  string
	Key string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist cart %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// enqueue hands op to the worker without waiting for it. Caller holds mu,
// which keeps pending order equal to mutation order. A set or remove
// replaces the writes queued after the last pending read: each write holds
// the whole cart, so only the newest one matters.
func (s *Store) enqueue(op persistOp) {
	if s.closed {
		persistTotal.WithLabelValues(string(op.kind), "dropped").Inc()
		s.log(op.ctx).WarnContext(op.ctx, "cart store closed, persistence skipped",
			slog.String("op", string(op.kind)))
		if op.reply != nil {
			op.reply <- getResult{err: errStoreClosed}
		}
		return
	}

	n := len(s.pending)
	if op.kind != opGet {
		for n > 0 && s.pending[n-1].kind != opGet {
			persistTotal.WithLabelValues(string(s.pending[n-1].kind), "coalesced").Inc()
			n--
		}
	}
	s.pending = append(s.pending[:n], op)
	queueDepth.Set(float64(len(s.pending)))
	s.signal()
}

func (s *Store) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

var errStoreClosed = errors.New("cart store closed")

func (s *Store) run() {
	defer close(s.done)
	for {
		op, ok := s.next()
		if !ok {
			return
		}
		s.apply(op)
	}
}

// next blocks until an operation is pending and pops it. It reports false
// once the store is closed and nothing is left.
func (s *Store) next() (persistOp, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.pending) == 0 {
		if s.closed {
			return persistOp{}, false
		}
		s.mu.Unlock()
		<-s.wake
		s.mu.Lock()
	}
	op := s.pending[0]
	s.pending[0] = persistOp{}
	s.pending = s.pending[1:]
	queueDepth.Set(float64(len(s.pending)))
	return op, true
}

func (s *Store) apply(op persistOp) {
	ctx, cancel := context.WithTimeout(logger.Detach(op.ctx), s.cfg.PersistTimeout)
	defer cancel()

	var err error
	switch op.kind {
	case opSet:
		err = s.kv.Set(ctx, s.cfg.StorageKey, op.payload)
	case opRemove:
		err = s.kv.Remove(ctx, s.cfg.StorageKey)
	case opGet:
		var data []byte
		data, err = s.kv.Get(ctx, s.cfg.StorageKey)
		op.reply <- getResult{data: data, err: err}
	}
	persistDuration.WithLabelValues(string(op.kind)).Observe(time.Since(op.enqueued).Seconds())

	if op.kind == opGet {
		return
	}
	if err != nil {
		s.recordFailure(ctx, &PersistenceError{Op: string(op.kind), Key: s.cfg.StorageKey, Err: err})
		return
	}
	persistTotal.WithLabelValues(string(op.kind), "success").Inc()
}

func (s *Store) recordFailure(ctx context.Context, err *PersistenceError) {
	persistTotal.WithLabelValues(err.Op, "failure").Inc()
	s.log(ctx).ErrorContext(ctx, "cart persistence failed",
		slog.String("op", err.Op),
		slog.String("key", err.Key),
		slog.String("error", err.Err.Error()),
	)
}

func (s *Store) log(ctx context.Context) *slog.Logger {
	return logger.WithContext(ctx, s.logger)
}

// Rehydrate reads the persisted cart once and loads it. The read is queued
// behind pending writes. A missing record, an undecodable record or a read
// failure all yield an empty cart.
func (s *Store) Rehydrate(ctx context.Context) domain.Cart {
	reply := make(chan getResult, 1)
	s.mu.Lock()
	s.enqueue(persistOp{kind: opGet, ctx: ctx, enqueued: time.Now(), reply: reply})
	s.mu.Unlock()

	var res getResult
	select {
	case res = <-reply:
	case <-ctx.Done():
		res.err = ctx.Err()
	}

	lines, err := decodeRecord(res)
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		persistTotal.WithLabelValues(string(opGet), "missing").Inc()
	case err != nil:
		persistTotal.WithLabelValues(string(opGet), "failure").Inc()
		s.log(ctx).WarnContext(ctx, "cart rehydrate failed, starting empty",
			slog.String("key", s.cfg.StorageKey),
			slog.String("error", err.Error()),
		)
	default:
		persistTotal.WithLabelValues(string(opGet), "success").Inc()
	}

	s.LoadCart(ctx, lines)
	s.log(ctx).InfoContext(ctx, "cart rehydrated", slog.Int("lines", len(lines)))
	return s.Cart()
}

func decodeRecord(res getResult) ([]domain.CartLine, error) {
	if res.err != nil {
		return nil, res.err
	}
	var lines []domain.CartLine
	if err := json.Unmarshal(res.data, &lines); err != nil {
		return nil, fmt.Errorf("decode cart record: %w", err)
	}
	return lines, nil
}

// Close stops accepting persistence work and waits until pending operations
// finish or ctx is done. Mutations after Close still change the in-memory
// cart but are not persisted.
func (s *Store) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.signal()

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("drain cart persistence queue: %w", ctx.Err())
	}
}
