// Package events is a type-keyed publish/subscribe bus. The Go type of a
// value is its event name, so subscribers receive typed payloads without
// assertions.
package events

import (
	"reflect"
	"sync"
)

// Bus dispatches published values to the handlers subscribed to their type.
// The zero value is ready to use.
type Bus struct {
	mu       sync.RWMutex
	nextID   uint64
	handlers map[reflect.Type][]subscription
}

type subscription struct {
	id uint64
	fn func(any)
}

// New returns an empty bus.
func New() *Bus {
	return &Bus{}
}

func typeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// Subscribe registers fn for events of type T and returns a function that
// removes it. Calling the returned function more than once is harmless.
func Subscribe[T any](b *Bus, fn func(T)) func() {
	key := typeOf[T]()

	b.mu.Lock()
	if b.handlers == nil {
		b.handlers = make(map[reflect.Type][]subscription)
	}
	b.nextID++
	id := b.nextID
	b.handlers[key] = append(b.handlers[key], subscription{
		id: id,
		fn: func(v any) { fn(v.(T)) },
	})
	b.mu.Unlock()

	return func() { b.remove(key, id) }
}

// Publish delivers ev synchronously to every subscriber of T, in
// subscription order, and returns how many handlers ran. Handlers
// subscribed during delivery see the next event, not this one.
func Publish[T any](b *Bus, ev T) int {
	b.mu.RLock()
	subs := append([]subscription(nil), b.handlers[typeOf[T]()]...)
	b.mu.RUnlock()

	for _, s := range subs {
		s.fn(ev)
	}
	return len(subs)
}

// Count returns the number of subscribers for T.
func Count[T any](b *Bus) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[typeOf[T]()])
}

// Reset drops every subscription.
func (b *Bus) Reset() {
	b.mu.Lock()
	b.handlers = nil
	b.mu.Unlock()
}

func (b *Bus) remove(key reflect.Type, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.handlers[key]
	for i, s := range subs {
		if s.id == id {
			b.handlers[key] = append(subs[:i:i], subs[i+1:]...)
			return
		}
	}
}
