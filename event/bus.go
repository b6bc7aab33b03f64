package event

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/c0deZ3R0/go-board-kit/logging"
)

// DefaultHistoryCapacity bounds the bus event history ring buffer.
const DefaultHistoryCapacity = 100

// Handler is invoked for every matching published event. Handlers run
// isolated from each other: a panicking handler is recovered and logged and
// never affects the publisher or other handlers.
type Handler func(Event)

// Subscription is a tombstoneable handle for one registered handler.
// Unsubscribe flips an active flag instead of splicing the subscriber list,
// which keeps unsubscription safe while a dispatch is iterating.
type Subscription struct {
	ID        string
	eventType string
	handler   Handler
	active    atomic.Bool
}

// Unsubscribe deactivates the subscription. It is idempotent.
func (s *Subscription) Unsubscribe() {
	s.active.Store(false)
}

// Active reports whether the subscription still receives events.
func (s *Subscription) Active() bool {
	return s.active.Load()
}

// Bus fans typed domain events out to subscribers and keeps a bounded
// history of published events.
type Bus struct {
	mu      sync.RWMutex
	subs    map[string][]*Subscription // keyed by event type; allKey matches everything
	history []Event
	cap     int
	closed  bool
	logger  *logging.Logger
}

const allKey = "*"

// BusOption configures a Bus.
type BusOption func(*Bus)

// WithHistoryCapacity overrides the history ring-buffer capacity.
func WithHistoryCapacity(n int) BusOption {
	return func(b *Bus) {
		if n > 0 {
			b.cap = n
		}
	}
}

// WithLogger sets the bus logger.
func WithLogger(logger *logging.Logger) BusOption {
	return func(b *Bus) { b.logger = logger }
}

// NewBus creates an event bus with default capacity and logger.
func NewBus(opts ...BusOption) *Bus {
	b := &Bus{
		subs:   make(map[string][]*Subscription),
		cap:    DefaultHistoryCapacity,
		logger: logging.Default().WithComponent("event-bus"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers a handler for one event type and returns its
// subscription handle.
func (b *Bus) Subscribe(eventType string, handler Handler) *Subscription {
	return b.subscribe(eventType, handler)
}

// SubscribeAll registers a handler for every event type.
func (b *Bus) SubscribeAll(handler Handler) *Subscription {
	return b.subscribe(allKey, handler)
}

func (b *Bus) subscribe(key string, handler Handler) *Subscription {
	sub := &Subscription{
		ID:        uuid.NewString(),
		eventType: key,
		handler:   handler,
	}
	sub.active.Store(true)

	b.mu.Lock()
	defer b.mu.Unlock()

	// Compact tombstones for this key while we hold the write lock anyway.
	live := b.subs[key][:0]
	for _, existing := range b.subs[key] {
		if existing.Active() {
			live = append(live, existing)
		}
	}
	b.subs[key] = append(live, sub)

	b.logger.Debug("subscriber added",
		slog.String("event_type", key),
		slog.String("subscription_id", sub.ID),
		slog.Int("subscribers_for_type", len(b.subs[key])))
	return sub
}

// Publish delivers the event to every active matching subscriber and records
// it in the history. It returns once all handler invocations have settled.
// Handler panics are recovered and logged; they never propagate to the
// publisher or suppress delivery to other handlers.
func (b *Bus) Publish(ctx context.Context, e Event) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		b.logger.Warn("publish on closed bus dropped", slog.String("event_type", e.Type()))
		return
	}
	b.history = append(b.history, e)
	if len(b.history) > b.cap {
		b.history = b.history[len(b.history)-b.cap:]
	}
	targets := make([]*Subscription, 0, len(b.subs[e.Type()])+len(b.subs[allKey]))
	targets = append(targets, b.subs[e.Type()]...)
	targets = append(targets, b.subs[allKey]...)
	b.mu.Unlock()

	if len(targets) == 0 {
		return
	}

	b.logger.Debug("publishing event",
		slog.String("event_type", e.Type()),
		slog.Int("subscriber_count", len(targets)))

	var wg sync.WaitGroup
	for _, sub := range targets {
		if !sub.Active() {
			continue
		}
		wg.Add(1)
		go func(s *Subscription) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					b.logger.Error("subscriber panic recovered",
						slog.Any("panic", r),
						slog.String("event_type", e.Type()),
						slog.String("subscription_id", s.ID))
				}
			}()
			// Re-check after scheduling: unsubscribing mid-publish is legal.
			if s.Active() {
				s.handler(e)
			}
		}(sub)
	}
	wg.Wait()
}

// PublishAsync dispatches the event after the caller's stack unwinds and does
// not wait for subscriber completion.
func (b *Bus) PublishAsync(e Event) {
	go b.Publish(context.Background(), e)
}

// History returns the most recent published events, newest last. A limit of
// zero or less returns the full retained history.
func (b *Bus) History(limit int) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := len(b.history)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Event, n)
	copy(out, b.history[len(b.history)-n:])
	return out
}

// SubscriberCount returns the number of active subscriptions for a type.
func (b *Bus) SubscriberCount(eventType string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	count := 0
	for _, sub := range b.subs[eventType] {
		if sub.Active() {
			count++
		}
	}
	return count
}

// Close deactivates every subscription and drops further publishes.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for _, subs := range b.subs {
		for _, sub := range subs {
			sub.active.Store(false)
		}
	}
	b.subs = make(map[string][]*Subscription)
	b.logger.Debug("event bus closed")
}
