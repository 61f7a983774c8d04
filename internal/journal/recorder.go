// Package journal persists every event seen on the registry so a session can
// be inspected after the fact.
package journal

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/taskflow-hub/realtime/internal/hooks"
	"github.com/taskflow-hub/realtime/internal/model"
)

const defaultBufferSize = 256

// Store appends events to durable storage.
type Store interface {
	Create(ctx context.Context, evt model.RealtimeEvent, receivedAt time.Time) (int64, error)
}

// Config configures a Recorder.
type Config struct {
	// Types to record; defaults to every known event type plus status changes.
	Types      []model.EventType
	BufferSize int
	Log        zerolog.Logger
}

type entry struct {
	evt        model.RealtimeEvent
	receivedAt time.Time
}

// Recorder subscribes to the registry and writes events on its own goroutine
// so slow storage never stalls a broadcast. When the buffer is full the
// event is dropped and counted.
type Recorder struct {
	store   Store
	log     zerolog.Logger
	entries chan entry
	unsubs  []func()
	done    chan struct{}

	mu      sync.Mutex
	closed  bool
	written int
	dropped int
}

// NewRecorder starts recording events from sub into store.
func NewRecorder(sub hooks.Subscriber, store Store, cfg Config) *Recorder {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}
	types := cfg.Types
	if len(types) == 0 {
		types = append(append(types, model.KnownEventTypes...), model.EventConnectionStatusChanged)
	}

	r := &Recorder{
		store:   store,
		log:     cfg.Log.With().Str("component", "journal").Logger(),
		entries: make(chan entry, cfg.BufferSize),
		done:    make(chan struct{}),
	}
	go r.run()

	for _, t := range types {
		r.unsubs = append(r.unsubs, sub.Subscribe(t, r.record))
	}
	return r
}

func (r *Recorder) record(evt model.RealtimeEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}

	select {
	case r.entries <- entry{evt: evt, receivedAt: time.Now().UTC()}:
	default:
		r.dropped++
		r.log.Warn().Str("event_type", string(evt.Type)).Msg("Journal buffer full, dropping event")
	}
}

func (r *Recorder) run() {
	defer close(r.done)
	for e := range r.entries {
		if _, err := r.store.Create(context.Background(), e.evt, e.receivedAt); err != nil {
			r.log.Error().Err(err).Str("event_type", string(e.evt.Type)).Msg("Failed to journal event")
			continue
		}
		r.mu.Lock()
		r.written++
		r.mu.Unlock()
	}
}

// Stats returns how many events were written and dropped.
func (r *Recorder) Stats() (written, dropped int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.written, r.dropped
}

// Close unsubscribes and waits until buffered events are written or ctx ends.
func (r *Recorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	unsubs := r.unsubs
	r.unsubs = nil
	close(r.entries)
	r.mu.Unlock()

	for _, unsubscribe := range unsubs {
		unsubscribe()
	}

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
