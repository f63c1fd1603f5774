// Package eventqueue provides the unbounded multi-producer queue between decoders and the
// aggregator.
package eventqueue

import (
	"context"
	"sync"

	"github.com/mrzor/cellwatch/internal/identity"
)

// Queue is an unbounded FIFO of identifier events, safe for concurrent use.
// Put never blocks. Order is preserved per producer; no order is defined across producers.
type Queue struct {
	mu      sync.Mutex
	events  []identity.Event
	closed  bool
	notify  chan struct{} // capacity 1, signalled on Put and Close
	dropped int64         // puts after Close
}

// New creates an empty queue.
func New() *Queue {
	return &Queue{
		notify: make(chan struct{}, 1),
	}
}

// Put appends an event. Events put after Close are dropped.
func (q *Queue) Put(event identity.Event) {
	q.mu.Lock()
	if q.closed {
		q.dropped++
		q.mu.Unlock()
		return
	}
	q.events = append(q.events, event)
	q.mu.Unlock()

	q.signal()
}

// Drain removes and returns every queued event. Returns nil if the queue is empty.
func (q *Queue) Drain() []identity.Event {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return nil
	}
	batch := q.events
	q.events = nil
	return batch
}

// Wait blocks until at least one event is queued, the queue is closed, or ctx is done, and then
// drains. The returned bool is false once the queue is closed and empty.
func (q *Queue) Wait(ctx context.Context) ([]identity.Event, bool) {
	for {
		q.mu.Lock()
		if len(q.events) > 0 {
			batch := q.events
			q.events = nil
			q.mu.Unlock()
			return batch, true
		}
		if q.closed {
			q.mu.Unlock()
			return nil, false
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return q.Drain(), true
		case <-q.notify:
		}
	}
}

// Close marks the end of production. Queued events remain drainable.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	q.signal()
}

// Closed reports whether Close has been called.
func (q *Queue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Len returns the number of queued events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Dropped returns the number of events rejected after Close.
func (q *Queue) Dropped() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

func (q *Queue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}
