// Package bus is a small event bus with two kinds of subscribers. Sync
// subscribers run inside Publish, before it returns. Deferred subscribers
// get the event later, when the owner calls Drain on its next tick; use them
// for reactions that would otherwise mutate state the publisher is still
// reading.
package bus

import (
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
)

var (
	ErrBusClosed          = errors.New("bus is closed")
	ErrSubscriberExists   = errors.New("subscriber already exists")
	ErrSubscriberNotFound = errors.New("subscriber not found")
	ErrNilHandler         = errors.New("nil handler")
)

// DefaultQueueSize is the deferred queue capacity used by New
const DefaultQueueSize = 256

type subscriber[E any] struct {
	id       string
	fn       func(E)
	deferred bool
}

// Stats counts what went through the bus
type Stats struct {
	Published uint64
	Deferred  uint64
	Dropped   uint64 // deferred events lost to a full queue
}

// Bus dispatches events of type E
type Bus[E any] struct {
	mu     sync.Mutex
	subs   []subscriber[E]
	queue  chan E
	closed bool

	dispatching atomic.Int32

	published atomic.Uint64
	deferred  atomic.Uint64
	dropped   atomic.Uint64
}

// New creates a bus with the default deferred queue size
func New[E any]() *Bus[E] {
	return NewSized[E](DefaultQueueSize)
}

// NewSized creates a bus whose deferred queue holds size events
func NewSized[E any](size int) *Bus[E] {
	return &Bus[E]{queue: make(chan E, size)}
}

func (b *Bus[E]) add(id string, fn func(E), deferred bool) error {
	if fn == nil {
		return ErrNilHandler
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBusClosed
	}
	for _, s := range b.subs {
		if s.id == id {
			return errors.Wrap(ErrSubscriberExists, id)
		}
	}
	b.subs = append(b.subs, subscriber[E]{id: id, fn: fn, deferred: deferred})
	return nil
}

// Subscribe registers a handler that runs synchronously in Publish
func (b *Bus[E]) Subscribe(id string, fn func(E)) error {
	return b.add(id, fn, false)
}

// SubscribeDeferred registers a handler that runs in Drain
func (b *Bus[E]) SubscribeDeferred(id string, fn func(E)) error {
	return b.add(id, fn, true)
}

func (b *Bus[E]) Unsubscribe(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return nil
		}
	}
	return errors.Wrap(ErrSubscriberNotFound, id)
}

func (b *Bus[E]) snapshot(deferred bool) []subscriber[E] {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []subscriber[E]
	for _, s := range b.subs {
		if s.deferred == deferred {
			out = append(out, s)
		}
	}
	return out
}

func (b *Bus[E]) hasDeferred() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.subs {
		if s.deferred {
			return true
		}
	}
	return false
}

// Publish runs the sync handlers in subscription order and queues the event
// for the deferred ones. A full queue drops the event.
func (b *Bus[E]) Publish(e E) {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return
	}
	b.published.Add(1)

	b.dispatching.Add(1)
	for _, s := range b.snapshot(false) {
		s.fn(e)
	}
	b.dispatching.Add(-1)

	if !b.hasDeferred() {
		return
	}
	select {
	case b.queue <- e:
		b.deferred.Add(1)
	default:
		b.dropped.Add(1)
	}
}

// Dispatching reports whether sync handlers are running right now
func (b *Bus[E]) Dispatching() bool {
	return b.dispatching.Load() > 0
}

// Drain delivers up to limit queued events to the deferred handlers and
// returns how many it delivered. limit <= 0 drains what is queued now.
func (b *Bus[E]) Drain(limit int) int {
	if limit <= 0 {
		limit = len(b.queue)
	}
	n := 0
	for ; n < limit; n++ {
		var e E
		select {
		case e = <-b.queue:
		default:
			return n
		}
		for _, s := range b.snapshot(true) {
			s.fn(e)
		}
	}
	return n
}

// Pending is the number of queued deferred events
func (b *Bus[E]) Pending() int {
	return len(b.queue)
}

func (b *Bus[E]) Stats() Stats {
	return Stats{
		Published: b.published.Load(),
		Deferred:  b.deferred.Load(),
		Dropped:   b.dropped.Load(),
	}
}

// Close drops all subscribers. Publishing to a closed bus is a no-op.
func (b *Bus[E]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.subs = nil
}
