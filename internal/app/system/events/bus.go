// Package events is a small in-process event bus.
//
// Listeners subscribe to a Topic with a priority (lower runs first; equal
// priorities run in subscription order). Every subscription returns a handle
// that can be unsubscribed, or suppressed for the publishes made under one
// context. Suppression travels with the context, so concurrent callers on
// other contexts still reach the listener. A context derived from a
// suppressing one keeps its parent's suppressions.
package events

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Topic names a kind of event.
type Topic string

// Event is anything published on a Bus.
type Event interface {
	Topic() Topic
}

// Handler receives published events.
type Handler func(ctx context.Context, ev Event) error

// DefaultPriority is used by callers that do not care about ordering.
const DefaultPriority = 10

// Bus dispatches events synchronously on the publisher's goroutine.
type Bus struct {
	name string
	log  *zap.Logger

	mu   sync.RWMutex
	subs map[Topic][]*Subscription
	seq  uint64
}

// NewBus creates a bus. The name is only used in log output.
func NewBus(name string, logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		name: name,
		log:  logger,
		subs: make(map[Topic][]*Subscription),
	}
}

// Name returns the bus name.
func (b *Bus) Name() string { return b.name }

// Subscription is the handle returned by Subscribe.
type Subscription struct {
	bus      *Bus
	topic    Topic
	name     string
	priority int
	seq      uint64
	handler  Handler
	once     bool

	mu      sync.Mutex
	removed bool
}

// Subscribe registers h for topic.
func (b *Bus) Subscribe(topic Topic, name string, priority int, h Handler) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	s := &Subscription{
		bus:      b,
		topic:    topic,
		name:     name,
		priority: priority,
		seq:      b.seq,
		handler:  h,
	}
	list := append(b.subs[topic], s)
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].priority != list[j].priority {
			return list[i].priority < list[j].priority
		}
		return list[i].seq < list[j].seq
	})
	b.subs[topic] = list
	return s
}

// SubscribeOnce registers h so that it is removed right before its first run.
func (b *Bus) SubscribeOnce(topic Topic, name string, priority int, h Handler) *Subscription {
	s := b.Subscribe(topic, name, priority, h)
	s.once = true
	return s
}

// On subscribes a handler typed to the concrete event struct. Events of other
// types published on the same topic are ignored.
func On[T Event](b *Bus, topic Topic, name string, priority int, fn func(ctx context.Context, ev T) error) *Subscription {
	return b.Subscribe(topic, name, priority, func(ctx context.Context, ev Event) error {
		typed, ok := ev.(T)
		if !ok {
			return nil
		}
		return fn(ctx, typed)
	})
}

// Name returns the listener name given at subscription.
func (s *Subscription) Name() string { return s.name }

// Topic returns the subscribed topic.
func (s *Subscription) Topic() Topic { return s.topic }

// Unsubscribe removes the listener. Calling it more than once is a no-op.
func (s *Subscription) Unsubscribe() {
	s.mu.Lock()
	if s.removed {
		s.mu.Unlock()
		return
	}
	s.removed = true
	s.mu.Unlock()

	b := s.bus
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.subs[s.topic]
	for i, cur := range list {
		if cur == s {
			b.subs[s.topic] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
}

// Active reports whether the listener is still subscribed.
func (s *Subscription) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.removed
}

type suppressKey struct{}

// Suppress returns a copy of ctx under which subs do not run. Publishes made
// with any other context are unaffected.
func Suppress(ctx context.Context, subs ...*Subscription) context.Context {
	if len(subs) == 0 {
		return ctx
	}
	prev, _ := ctx.Value(suppressKey{}).(map[*Subscription]struct{})
	next := make(map[*Subscription]struct{}, len(prev)+len(subs))
	for s := range prev {
		next[s] = struct{}{}
	}
	for _, s := range subs {
		next[s] = struct{}{}
	}
	return context.WithValue(ctx, suppressKey{}, next)
}

// Suppressed reports whether s is suppressed in ctx.
func Suppressed(ctx context.Context, s *Subscription) bool {
	set, _ := ctx.Value(suppressKey{}).(map[*Subscription]struct{})
	_, ok := set[s]
	return ok
}

// Set groups subscriptions that are suppressed or removed together.
type Set []*Subscription

// Suppress returns a copy of ctx under which every subscription in the set
// is suppressed.
func (set Set) Suppress(ctx context.Context) context.Context {
	return Suppress(ctx, set...)
}

// Unsubscribe removes every subscription in the set.
func (set Set) Unsubscribe() {
	for _, s := range set {
		s.Unsubscribe()
	}
}

// Publish runs every listener for ev's topic in priority order, skipping those
// suppressed in ctx. A failing listener does not stop later listeners; all listener errors are
// returned combined.
func (b *Bus) Publish(ctx context.Context, ev Event) error {
	topic := ev.Topic()

	b.mu.RLock()
	list := make([]*Subscription, len(b.subs[topic]))
	copy(list, b.subs[topic])
	b.mu.RUnlock()

	var errs error
	for _, s := range list {
		if !s.Active() || Suppressed(ctx, s) {
			continue
		}
		if s.once {
			s.Unsubscribe()
		}
		if err := s.handler(ctx, ev); err != nil {
			b.log.Warn("event listener failed",
				zap.String("bus", b.name),
				zap.String("topic", string(topic)),
				zap.String("listener", s.name),
				zap.Error(err))
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

// Listeners returns the number of active listeners for topic.
func (b *Bus) Listeners(topic Topic) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for _, s := range b.subs[topic] {
		if s.Active() {
			n++
		}
	}
	return n
}
