package event

import (
	"reflect"
	"sync"
)

// Bus is a typed, synchronous event bus. Publish delivers to every handler
// registered for the event's exact type before returning, in subscription
// order. Handlers run on the publisher's goroutine (the frame loop).
type Bus struct {
	mu       sync.Mutex // only protects handler registration
	handlers map[reflect.Type][]*Subscription
	nextID   uint64
}

// Subscription is the token returned by Subscribe. Unsubscribe detaches it.
type Subscription struct {
	bus *Bus
	typ reflect.Type
	id  uint64
	fn  any
}

func NewBus() *Bus {
	return &Bus{
		handlers: make(map[reflect.Type][]*Subscription),
	}
}

func typeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// Subscribe registers a typed handler for events of type T.
func Subscribe[T any](b *Bus, fn func(T)) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	t := typeOf[T]()
	s := &Subscription{bus: b, typ: t, id: b.nextID, fn: fn}
	b.handlers[t] = append(b.handlers[t], s)
	return s
}

// Publish delivers event to all handlers subscribed to T.
func Publish[T any](b *Bus, event T) {
	b.mu.Lock()
	subs := b.handlers[typeOf[T]()]
	// Copy so handlers may (un)subscribe while we iterate.
	snapshot := make([]*Subscription, len(subs))
	copy(snapshot, subs)
	b.mu.Unlock()

	for _, s := range snapshot {
		s.fn.(func(T))(event)
	}
}

// Unsubscribe removes the handler. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	if s == nil || s.bus == nil {
		return
	}
	b := s.bus
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.handlers[s.typ]
	for i, o := range subs {
		if o.id == s.id {
			b.handlers[s.typ] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(b.handlers[s.typ]) == 0 {
		delete(b.handlers, s.typ)
	}
	s.bus = nil
}

// Len returns the number of registered handlers across all event types.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, subs := range b.handlers {
		n += len(subs)
	}
	return n
}
