// Package hooks holds derived-state views built purely from registry
// broadcasts. Each hook owns its own state, never touches the transport and
// never fails: without a connection it simply stays empty.
package hooks

import (
	"sync"

	"github.com/taskflow-hub/realtime/internal/model"
	"github.com/taskflow-hub/realtime/internal/registry"
)

// Subscriber is the registry surface hooks depend on.
type Subscriber interface {
	Subscribe(eventType model.EventType, fn registry.Listener) (unsubscribe func())
}

// Option configures a hook.
type Option func(*options)

type options struct {
	onChange func()
}

// OnChange registers fn to run after every state change, e.g. to re-render.
// It runs on the broadcasting goroutine with no hook lock held, so fn must
// not block or invoke the hub synchronously (e.g. NotificationFeed.MarkAsRead);
// start a goroutine for that.
func OnChange(fn func()) Option {
	return func(o *options) {
		o.onChange = fn
	}
}

// base carries the subscriptions and change callback shared by every hook.
type base struct {
	mu       sync.RWMutex
	unsubs   []func()
	closed   bool
	onChange func()
}

func (b *base) init(opts []Option) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	b.onChange = o.onChange
}

func (b *base) listen(sub Subscriber, fn registry.Listener, types ...model.EventType) {
	for _, t := range types {
		b.unsubs = append(b.unsubs, sub.Subscribe(t, fn))
	}
}

func (b *base) changed() {
	if b.onChange != nil {
		b.onChange()
	}
}

// detach unsubscribes everything once and reports whether this call did it.
func (b *base) detach() bool {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return false
	}
	b.closed = true
	unsubs := b.unsubs
	b.unsubs = nil
	b.mu.Unlock()

	for _, unsubscribe := range unsubs {
		unsubscribe()
	}
	return true
}
