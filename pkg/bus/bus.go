// Package bus provides an in-process publish/subscribe channel keyed by topic.
// Each subscriber supplies a predicate that filters the shared topic stream
// down to the events it cares about. Events are ephemeral: a subscriber only
// sees events published after it subscribed, and there is no replay.
package bus

import (
	"context"
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/predictgate-dev/predictgate/pkg/observability"
)

// DefaultBufferSize is the per-subscriber channel buffer.
const DefaultBufferSize = 64

// Bus fans published events out to matching subscribers. Publish never blocks:
// each subscriber has its own buffered channel and events are dropped for
// subscribers whose buffers are full. A dropped event is counted and logged
// but does not affect other subscribers.
type Bus[T any] struct {
	mu      sync.RWMutex
	subs    map[string]map[string]*Subscription[T] // topic -> subID -> sub
	bufSize int
	closed  bool
}

// Subscription is one subscriber's cursor into a topic stream.
type Subscription[T any] struct {
	id     string
	topic  string
	pred   func(T) bool
	ch     chan T
	bus    *Bus[T]
	closed bool // guarded by bus.mu
}

// Option configures a Bus.
type Option[T any] func(*Bus[T])

// WithBufferSize overrides the per-subscriber channel buffer.
func WithBufferSize[T any](n int) Option[T] {
	return func(b *Bus[T]) {
		if n > 0 {
			b.bufSize = n
		}
	}
}

// New creates an event bus.
func New[T any](opts ...Option[T]) *Bus[T] {
	b := &Bus[T]{
		subs:    make(map[string]map[string]*Subscription[T]),
		bufSize: DefaultBufferSize,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers a subscriber for events on topic that satisfy pred.
// A nil predicate matches every event. The subscription starts at the moment
// of the call; earlier events are never delivered. It is automatically closed
// when ctx is cancelled.
func (b *Bus[T]) Subscribe(ctx context.Context, topic string, pred func(T) bool) *Subscription[T] {
	sub := &Subscription[T]{
		id:    uuid.New().String(),
		topic: topic,
		pred:  pred,
		ch:    make(chan T, b.bufSize),
		bus:   b,
	}

	b.mu.Lock()
	if b.closed {
		sub.closed = true
		b.mu.Unlock()
		close(sub.ch)
		return sub
	}
	if _, ok := b.subs[topic]; !ok {
		b.subs[topic] = make(map[string]*Subscription[T])
	}
	b.subs[topic][sub.id] = sub
	b.mu.Unlock()

	if ctx != nil {
		go func() {
			<-ctx.Done()
			sub.Close()
		}()
	}

	return sub
}

// Events returns the channel delivering matching events. The channel is
// closed when the subscription is closed.
func (s *Subscription[T]) Events() <-chan T {
	return s.ch
}

// Close removes the subscription from the bus and closes its channel.
// It takes effect before the next Publish evaluates the predicate; it is
// safe to call multiple times.
func (s *Subscription[T]) Close() {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	s.closeLocked()
}

func (s *Subscription[T]) closeLocked() {
	if s.closed {
		return
	}
	s.closed = true

	if subs, ok := s.bus.subs[s.topic]; ok {
		delete(subs, s.id)
		if len(subs) == 0 {
			delete(s.bus.subs, s.topic)
		}
	}
	close(s.ch)
}

// Publish delivers event to every current subscriber of topic whose predicate
// passes. The predicate is evaluated exactly once per subscriber. Delivery is
// non-blocking; a subscriber with a full buffer misses the event.
func (b *Bus[T]) Publish(topic string, event T) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	observability.RecordBusPublish(topic)

	for _, sub := range b.subs[topic] {
		if sub.pred != nil && !sub.pred(event) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			observability.RecordBusDrop(topic)
			log.Printf("bus: dropped event on %q for slow subscriber %s", topic, sub.id)
		}
	}
}

// SubscriberCount returns the number of live subscriptions for topic.
func (b *Bus[T]) SubscriberCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}

// Close shuts the bus down, closing every subscriber channel. Subsequent
// Publish calls are no-ops and subsequent Subscribe calls return an already
// closed subscription.
func (b *Bus[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for _, subs := range b.subs {
		for _, sub := range subs {
			sub.closeLocked()
		}
	}
}
