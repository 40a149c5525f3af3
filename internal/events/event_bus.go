// Package events is the ingest funnel: concurrent producers (market data
// feeds, exchange acks, timers) publish onto a single buffered channel; one
// consumer goroutine drains it in FIFO order and feeds each event to the
// reducer, preserving the single-writer ordering guarantee the reducer
// core depends on.
package events

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/uprootiny/arbitragefx-sub000/pkg/types"
)

// Handler processes one event; returning an error does not stop the bus,
// it is logged and counted.
type Handler func(event types.Event) error

// BusConfig configures the bus's buffering.
type BusConfig struct {
	BufferSize int
}

// DefaultBusConfig returns the reference module's buffer size default.
func DefaultBusConfig() BusConfig {
	return BusConfig{BufferSize: 4096}
}

// Bus is a single-consumer FIFO event queue. Unlike the reference module's
// multi-worker EventBus, Bus intentionally serializes delivery: the
// reducer this bus ultimately feeds is not safe for concurrent calls.
type Bus struct {
	logger *zap.Logger
	queue  chan types.Event

	handler Handler

	published atomic.Int64
	processed atomic.Int64
	errors    atomic.Int64

	stopOnce sync.Once
	done     chan struct{}
}

// NewBus constructs a Bus that will deliver every event to handler once
// Run is called. handler is expected to be engine.Reduce wrapped to
// satisfy the Handler signature and route commands onward.
func NewBus(logger *zap.Logger, cfg BusConfig, handler Handler) *Bus {
	return &Bus{
		logger:  logger.Named("events"),
		queue:   make(chan types.Event, cfg.BufferSize),
		handler: handler,
		done:    make(chan struct{}),
	}
}

// Publish enqueues event, blocking if the buffer is full. Backpressure is
// deliberate: a producer that outruns the reducer should stall rather than
// silently drop market data.
func (b *Bus) Publish(event types.Event) {
	b.queue <- event
	b.published.Add(1)
}

// TryPublish enqueues event without blocking, reporting false if the
// buffer is full.
func (b *Bus) TryPublish(event types.Event) bool {
	select {
	case b.queue <- event:
		b.published.Add(1)
		return true
	default:
		return false
	}
}

// Run drains the queue until ctx is canceled or Stop is called. It must be
// invoked from exactly one goroutine.
func (b *Bus) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.done:
			return
		case event := <-b.queue:
			if err := b.handler(event); err != nil {
				b.errors.Add(1)
				b.logger.Error("event handler error", zap.Error(err))
			}
			b.processed.Add(1)
		}
	}
}

// Stop unblocks a running Run loop.
func (b *Bus) Stop() {
	b.stopOnce.Do(func() { close(b.done) })
}

// Stats is a point-in-time snapshot of bus throughput counters.
type Stats struct {
	Published int64
	Processed int64
	Errors    int64
	Queued    int
}

// Stats returns the bus's current counters, for the telemetry/API layers.
func (b *Bus) Stats() Stats {
	return Stats{
		Published: b.published.Load(),
		Processed: b.processed.Load(),
		Errors:    b.errors.Load(),
		Queued:    len(b.queue),
	}
}
