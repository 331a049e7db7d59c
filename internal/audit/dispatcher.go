package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Config controls how a Manager's events reach its sink.
type Config struct {
	Enabled    bool
	BufferSize int
	// DropIfFull discards an event instead of making the session operation
	// wait for buffer space.
	DropIfFull bool
	// FlushTimeout bounds how long Close waits for queued events. Zero waits
	// until the queue is empty.
	FlushTimeout time.Duration
}

// Dispatcher hands events from session operations to a Sink on a single
// relay goroutine, so a slow sink never runs inside a login, refresh or
// logout.
//
// A Dispatcher lives exactly as long as its Manager. Close is called from
// Manager.Close; the session keeps working afterwards, and events it produces
// from then on are counted in Dropped instead of being delivered.
type Dispatcher struct {
	sink       Sink
	dropIfFull bool
	flushAfter time.Duration

	queue    chan Event
	stopping chan struct{}
	relayed  chan struct{}

	// deliverCtx is passed to the sink and cancelled when a flush times out.
	deliverCtx    context.Context
	cancelDeliver context.CancelFunc

	// gate is read-held by Emit while it may send on queue; Close write-locks
	// it before closing queue.
	gate      sync.RWMutex
	closed    bool
	closeOnce sync.Once

	dropped atomic.Uint64
}

// NewDispatcher starts the relay. It returns nil when cfg is disabled; a nil
// Dispatcher accepts every call and does nothing.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if sink == nil {
		sink = NoOpSink{}
	}
	size := cfg.BufferSize
	if size <= 0 {
		size = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		sink:          sink,
		dropIfFull:    cfg.DropIfFull,
		flushAfter:    cfg.FlushTimeout,
		queue:         make(chan Event, size),
		stopping:      make(chan struct{}),
		relayed:       make(chan struct{}),
		deliverCtx:    ctx,
		cancelDeliver: cancel,
	}
	go d.relay()
	return d
}

func (d *Dispatcher) relay() {
	defer close(d.relayed)
	for event := range d.queue {
		if d.deliverCtx.Err() != nil {
			d.dropped.Add(1)
			continue
		}
		d.sink.Emit(d.deliverCtx, event)
	}
}

// Emit queues event. A zero Timestamp is stamped with the current time.
//
// With DropIfFull a full buffer drops the event at once. Otherwise Emit waits
// for space until ctx ends or the Dispatcher closes, and drops the event then.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	d.gate.RLock()
	defer d.gate.RUnlock()

	if d.closed {
		d.dropped.Add(1)
		return
	}

	if d.dropIfFull {
		select {
		case d.queue <- event:
		default:
			d.dropped.Add(1)
		}
		return
	}

	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case d.queue <- event:
	case <-ctx.Done():
		d.dropped.Add(1)
	case <-d.stopping:
		d.dropped.Add(1)
	}
}

// Close stops intake and delivers what is queued, waiting at most
// FlushTimeout. Events still queued when the timeout fires are dropped and the
// sink's context is cancelled. Close is idempotent.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		close(d.stopping)

		d.gate.Lock()
		d.closed = true
		d.gate.Unlock()
		close(d.queue)

		if d.flushAfter <= 0 {
			<-d.relayed
			d.cancelDeliver()
			return
		}

		timer := time.NewTimer(d.flushAfter)
		defer timer.Stop()
		select {
		case <-d.relayed:
		case <-timer.C:
		}
		d.cancelDeliver()
	})
}

// Dropped reports events that were never handed to the sink.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
