package audit

import (
	"context"
	"sync"
	"sync/atomic"
)

// Config controls dispatcher buffering.
type Config struct {
	Enabled    bool
	BufferSize int
	// DropIfFull discards events when the buffer is full instead of blocking
	// the caller until space frees or its context ends.
	DropIfFull bool
}

// Dispatcher forwards events to a sink from a single worker goroutine, in
// emission order.
type Dispatcher struct {
	dropIfFull bool
	sink       Sink
	onDrop     func()

	mu     sync.RWMutex
	closed bool
	queue  chan Event

	worker  sync.WaitGroup
	dropped atomic.Uint64
}

// NewDispatcher returns nil when auditing is disabled; a nil Dispatcher is a
// valid no-op. onDrop, if set, runs each time an event is discarded.
func NewDispatcher(cfg Config, sink Sink, onDrop func()) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &Dispatcher{
		dropIfFull: cfg.DropIfFull,
		sink:       sink,
		onDrop:     onDrop,
		queue:      make(chan Event, max(cfg.BufferSize, 1)),
	}
	d.worker.Go(func() {
		for event := range d.queue {
			d.sink.Emit(context.Background(), event)
		}
	})
	return d
}

// Emit queues event. Events emitted after Close are ignored.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}

	if d.dropIfFull {
		select {
		case d.queue <- event:
		default:
			d.drop()
		}
		return
	}

	select {
	case d.queue <- event:
	case <-ctx.Done():
		d.drop()
	}
}

func (d *Dispatcher) drop() {
	d.dropped.Add(1)
	if d.onDrop != nil {
		d.onDrop()
	}
}

// Close stops accepting events and returns once every queued event has
// reached the sink. It is safe to call more than once.
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
	d.worker.Wait()
}

// Dropped returns the number of discarded events.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
