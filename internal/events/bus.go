// Package events implements an in-process multicast bus for book availability changes.
package events

import (
	"sync"
	"sync/atomic"

	"github.com/and161185/lendkeeper/internal/model"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
)

// DefaultBuffer is used when a subscriber asks for a non-positive buffer.
const DefaultBuffer = 16

// Bus fans availability events out to subscribers. Publish never blocks: when a subscriber's
// buffer is full the oldest buffered event is dropped to make room for the new one.
type Bus struct {
	mu     sync.RWMutex
	subs   map[uuid.UUID]*Subscription
	closed bool

	dropped atomic.Uint64
	log     *zap.Logger
}

// NewBus constructs an empty bus.
func NewBus(log *zap.Logger) *Bus {
	if log == nil {
		log = zap.NewNop()
	}
	return &Bus{subs: map[uuid.UUID]*Subscription{}, log: log}
}

// Publish delivers ev to every live subscriber. It is a no-op after Close.
func (b *Bus) Publish(ev model.AvailabilityEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, s := range b.subs {
		if s.deliver(ev) {
			b.dropped.Add(1)
			b.log.Debug("availability event dropped",
				zap.String("subscription", s.id.String()),
				zap.Int64("book_id", ev.BookID),
			)
		}
	}
}

// Subscribe registers a subscriber with the given buffer size. On a closed bus the returned
// subscription's channel is already closed.
func (b *Bus) Subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	s := &Subscription{
		id:  uuid.Must(uuid.NewV4()),
		bus: b,
		ch:  make(chan model.AvailabilityEvent, buffer),
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		s.closeChan()
		return s
	}
	b.subs[s.id] = s
	return s
}

// Len returns the number of live subscribers.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Dropped returns the total number of events dropped across all subscribers.
func (b *Bus) Dropped() uint64 { return b.dropped.Load() }

// Close closes every subscription. Further publishes are ignored.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := b.subs
	b.subs = map[uuid.UUID]*Subscription{}
	b.mu.Unlock()

	for _, s := range subs {
		s.closeChan()
	}
}

func (b *Bus) remove(id uuid.UUID) {
	b.mu.Lock()
	delete(b.subs, id)
	b.mu.Unlock()
}

// Subscription is a live stream of availability events.
type Subscription struct {
	id  uuid.UUID
	bus *Bus

	mu      sync.Mutex
	ch      chan model.AvailabilityEvent
	closed  bool
	dropped uint64
}

// ID returns the subscription identifier.
func (s *Subscription) ID() string { return s.id.String() }

// Events returns the receive side. It is closed when the subscription or the bus is closed.
func (s *Subscription) Events() <-chan model.AvailabilityEvent { return s.ch }

// Dropped returns how many events this subscriber lost to overflow.
func (s *Subscription) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Close unsubscribes. It is idempotent and does not affect other subscribers.
func (s *Subscription) Close() {
	if s.closeChan() {
		s.bus.remove(s.id)
	}
}

// deliver enqueues ev and reports whether an older event had to be dropped.
func (s *Subscription) deliver(ev model.AvailabilityEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.ch <- ev:
		return false
	default:
	}

	dropped := false
	select {
	case <-s.ch:
		s.dropped++
		dropped = true
	default:
	}
	// only deliver sends, under s.mu, so a slot is free here
	s.ch <- ev
	return dropped
}

func (s *Subscription) closeChan() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.closed = true
	close(s.ch)
	return true
}
