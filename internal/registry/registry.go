// Package registry implements the subscriber registry: the single fan-out
// point for inbound hub events and locally synthesized status events.
package registry

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/taskflow-hub/realtime/internal/model"
)

// Listener receives events of the type it was subscribed to.
type Listener func(evt model.RealtimeEvent)

// subscriber is one registered listener. removed is flipped by unsubscribe so
// an in-flight broadcast holding a snapshot skips it.
type subscriber struct {
	handle  uint64
	fn      Listener
	removed atomic.Bool
}

// topic holds the listeners of one event type. order keeps registration
// order and may contain handles already deleted from entries; it is
// compacted lazily.
type topic struct {
	order   []uint64
	entries map[uint64]*subscriber
}

// Registry maps event types to listener sets. The registry only holds the
// listener functions; callers own their state and must call the returned
// unsubscribe function on teardown.
type Registry struct {
	mu     sync.RWMutex
	next   uint64
	topics map[model.EventType]*topic
	log    zerolog.Logger
}

// New creates an empty Registry.
func New(log zerolog.Logger) *Registry {
	return &Registry{
		topics: make(map[model.EventType]*topic),
		log:    log,
	}
}

// Subscribe registers fn under eventType and returns a function removing
// exactly that registration. Any event type is accepted, known or not.
func (r *Registry) Subscribe(eventType model.EventType, fn Listener) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}

	r.mu.Lock()
	r.next++
	sub := &subscriber{handle: r.next, fn: fn}
	t := r.topics[eventType]
	if t == nil {
		t = &topic{entries: make(map[uint64]*subscriber)}
		r.topics[eventType] = t
	}
	t.entries[sub.handle] = sub
	t.order = append(t.order, sub.handle)
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.remove(eventType, sub)
		})
	}
}

func (r *Registry) remove(eventType model.EventType, sub *subscriber) {
	sub.removed.Store(true)

	r.mu.Lock()
	defer r.mu.Unlock()

	t := r.topics[eventType]
	if t == nil {
		return
	}
	delete(t.entries, sub.handle)
	if len(t.entries) == 0 {
		delete(r.topics, eventType)
		return
	}
	if len(t.order) > 2*len(t.entries)+8 {
		t.compact()
	}
}

func (t *topic) compact() {
	order := t.order[:0]
	for _, h := range t.order {
		if _, ok := t.entries[h]; ok {
			order = append(order, h)
		}
	}
	t.order = order
}

// Broadcast synchronously invokes every listener registered for eventType in
// registration order on the calling goroutine. A panicking listener is
// recovered and logged; its siblings still run.
//
// Inbound hub messages are broadcast from the transport's read loop, so a
// listener must not block or invoke the hub synchronously: the completion it
// waits for is read by the goroutine it is holding. Hand such work to
// another goroutine.
func (r *Registry) Broadcast(eventType model.EventType, evt model.RealtimeEvent) {
	r.mu.RLock()
	t := r.topics[eventType]
	if t == nil {
		r.mu.RUnlock()
		return
	}
	subs := make([]*subscriber, 0, len(t.entries))
	for _, h := range t.order {
		if sub, ok := t.entries[h]; ok {
			subs = append(subs, sub)
		}
	}
	r.mu.RUnlock()

	for _, sub := range subs {
		if sub.removed.Load() {
			continue
		}
		r.invoke(eventType, sub, evt)
	}
}

func (r *Registry) invoke(eventType model.EventType, sub *subscriber, evt model.RealtimeEvent) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error().
				Str("event_type", string(eventType)).
				Uint64("listener", sub.handle).
				Err(fmt.Errorf("listener panic: %v", rec)).
				Msg("Event listener failed")
		}
	}()
	sub.fn(evt)
}

// Count returns the number of listeners currently registered for eventType.
func (r *Registry) Count(eventType model.EventType) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if t := r.topics[eventType]; t != nil {
		return len(t.entries)
	}
	return 0
}

// Types returns the event types that currently have listeners.
func (r *Registry) Types() []model.EventType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]model.EventType, 0, len(r.topics))
	for t := range r.topics {
		types = append(types, t)
	}
	return types
}
