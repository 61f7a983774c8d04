// Package buffer provides a FIFO ring used for queued outbound events and
// bounded event feeds.
package buffer

import (
	"sync"
)

// Ring is a thread-safe FIFO that keeps at most capacity items. When full,
// the oldest items are discarded to make room for new ones. A capacity of
// zero or less makes the ring unbounded.
type Ring[T any] struct {
	items    []T
	capacity int
	dropped  uint64
	mu       sync.RWMutex
}

// NewRing creates a new Ring with the given capacity.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity < 0 {
		capacity = 0
	}
	r := &Ring[T]{capacity: capacity}
	if capacity > 0 {
		r.items = make([]T, 0, capacity)
	}
	return r
}

// Push appends v and returns how many of the oldest items were discarded.
func (r *Ring[T]) Push(v T) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items = append(r.items, v)
	return r.trimLocked()
}

// PushFront puts vs back at the head of the ring, preserving their order.
// It is used to requeue items that were taken but could not be handled.
func (r *Ring[T]) PushFront(vs ...T) int {
	if len(vs) == 0 {
		return 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	merged := make([]T, 0, len(vs)+len(r.items))
	merged = append(merged, vs...)
	merged = append(merged, r.items...)
	r.items = merged
	return r.trimLocked()
}

func (r *Ring[T]) trimLocked() int {
	if r.capacity <= 0 || len(r.items) <= r.capacity {
		return 0
	}
	discard := len(r.items) - r.capacity

	// Copy into a fresh slice so discarded items can be collected.
	kept := make([]T, r.capacity)
	copy(kept, r.items[discard:])
	r.items = kept
	r.dropped += uint64(discard)
	return discard
}

// Pop removes and returns the oldest item.
func (r *Ring[T]) Pop() (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var zero T
	if len(r.items) == 0 {
		return zero, false
	}
	v := r.items[0]
	r.items[0] = zero
	r.items = r.items[1:]
	return v, true
}

// Drain removes and returns every item, oldest first.
func (r *Ring[T]) Drain() []T {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.items) == 0 {
		return nil
	}
	out := r.items
	if r.capacity > 0 {
		r.items = make([]T, 0, r.capacity)
	} else {
		r.items = nil
	}
	return out
}

// ReadAll returns a copy of all items, oldest first.
// The returned slice is safe to use without holding the lock.
func (r *Ring[T]) ReadAll() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.items) == 0 {
		return nil
	}

	result := make([]T, len(r.items))
	copy(result, r.items)
	return result
}

// Newest returns a copy of all items, newest first.
func (r *Ring[T]) Newest() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.items) == 0 {
		return nil
	}
	result := make([]T, len(r.items))
	for i, v := range r.items {
		result[len(r.items)-1-i] = v
	}
	return result
}

// Clear removes all items. The dropped counter is kept.
func (r *Ring[T]) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	var zero T
	for i := range r.items {
		r.items[i] = zero
	}
	r.items = r.items[:0]
}

// Len returns the current number of items.
func (r *Ring[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.items)
}

// Cap returns the capacity, zero when unbounded.
func (r *Ring[T]) Cap() int {
	return r.capacity
}

// Dropped returns how many items were discarded over the ring's lifetime.
func (r *Ring[T]) Dropped() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.dropped
}
