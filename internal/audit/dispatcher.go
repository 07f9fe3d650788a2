package audit

import (
	"context"
	"sync"
	"sync/atomic"
)

// Config controls dispatcher buffering behavior.
type Config struct {
	Enabled    bool
	BufferSize int
	// DropIfFull makes Emit drop instead of waiting for queue space.
	DropIfFull bool
}

type queued struct {
	ctx   context.Context
	event Event
}

// Dispatcher forwards audit events to a sink from a single goroutine.
//
// Every event handed to Emit is either delivered to the sink or counted in
// Dropped; Close delivers everything accepted before it returns.
type Dispatcher struct {
	cfg  Config
	sink Sink

	// mu guards closed and the send side of queue. Emit holds it shared
	// while sending so Close cannot close the queue under a sender.
	mu      sync.RWMutex
	closed  bool
	queue   chan queued
	drained chan struct{}

	dropped atomic.Uint64
}

// NewDispatcher starts the relay goroutine. It returns nil when cfg.Enabled
// is false; a nil Dispatcher accepts and discards events.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &Dispatcher{
		cfg:     cfg,
		sink:    sink,
		queue:   make(chan queued, cfg.BufferSize),
		drained: make(chan struct{}),
	}
	go d.relay()

	return d
}

func (d *Dispatcher) relay() {
	defer close(d.drained)
	for q := range d.queue {
		d.sink.Emit(q.ctx, q.event)
	}
}

// Emit queues event. The sink sees ctx values but not its cancellation.
// Events arriving after Close, or finding the queue full with DropIfFull,
// or whose ctx ends while waiting for space, are counted as dropped.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	q := queued{ctx: context.WithoutCancel(ctx), event: event}

	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.dropped.Add(1)
		return
	}

	if d.cfg.DropIfFull {
		select {
		case d.queue <- q:
		default:
			d.dropped.Add(1)
		}
		return
	}

	select {
	case d.queue <- q:
		return
	default:
	}
	select {
	case d.queue <- q:
	case <-ctx.Done():
		d.dropped.Add(1)
	}
}

// Close stops accepting events and waits until the queue is delivered.
// It is safe to call more than once.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	<-d.drained
}

// Dropped returns the number of events that never reached the sink.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
