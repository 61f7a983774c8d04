// Package outbox buffers application events while the hub connection is
// down and replays them in enqueue order once it is back.
package outbox

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/taskflow-hub/realtime/internal/buffer"
	"github.com/taskflow-hub/realtime/internal/model"
)

// Broadcaster fans an event out to local listeners.
type Broadcaster interface {
	Broadcast(eventType model.EventType, evt model.RealtimeEvent)
}

// Sender forwards events to the hub.
type Sender interface {
	Connected() bool
	SendEvent(ctx context.Context, evt model.RealtimeEvent) error
}

// Config configures a Queue.
type Config struct {
	// Capacity bounds the queue; the oldest events are dropped when it is
	// exceeded. Zero keeps the queue unbounded, in which case a long outage
	// grows it without limit.
	Capacity int
	Log      zerolog.Logger
}

// Queue is the outbound event queue.
type Queue struct {
	ring     *buffer.Ring[model.RealtimeEvent]
	flushing atomic.Bool
	bc       Broadcaster
	sender   Sender
	log      zerolog.Logger
}

// New creates a Queue.
func New(cfg Config, bc Broadcaster, sender Sender) *Queue {
	return &Queue{
		ring:   buffer.NewRing[model.RealtimeEvent](cfg.Capacity),
		bc:     bc,
		sender: sender,
		log:    cfg.Log,
	}
}

// QueueEvent sends evt right away when connected and nothing is waiting
// ahead of it, echoing it to local listeners. Otherwise evt is appended to
// the queue. Events are never silently dropped by a transient disconnect.
func (q *Queue) QueueEvent(ctx context.Context, evt model.RealtimeEvent) error {
	if q.sender.Connected() && q.ring.Len() == 0 && !q.flushing.Load() {
		err := q.sender.SendEvent(ctx, evt)
		if err == nil {
			q.bc.Broadcast(evt.Type, evt)
			return nil
		}
		if !errors.Is(err, model.ErrNotConnected) {
			return err
		}
		q.log.Debug().Err(err).Str("event_type", string(evt.Type)).Msg("Send failed, queueing event")
	}

	q.push(evt)

	if q.sender.Connected() {
		_, err := q.Flush(ctx)
		return err
	}
	return nil
}

func (q *Queue) push(evt model.RealtimeEvent) {
	if dropped := q.ring.Push(evt); dropped > 0 {
		q.log.Warn().
			Int("dropped", dropped).
			Int("capacity", q.ring.Cap()).
			Msg("Outbound queue full, dropped oldest events")
	}
}

// Flush drains the queue in enqueue order, sending then broadcasting each
// event. A flush already in progress makes this call a no-op. When a send
// fails the unsent events stay queued at the head and the error is returned.
func (q *Queue) Flush(ctx context.Context) (int, error) {
	sent := 0
	for {
		if !q.flushing.CompareAndSwap(false, true) {
			return sent, nil
		}
		n, err := q.drain(ctx)
		sent += n
		q.flushing.Store(false)

		// Events pushed while the flag was set are picked up here.
		if err != nil || q.ring.Len() == 0 || !q.sender.Connected() {
			if sent > 0 {
				q.log.Debug().Int("sent", sent).Int("remaining", q.ring.Len()).Msg("Flushed outbound queue")
			}
			return sent, err
		}
	}
}

func (q *Queue) drain(ctx context.Context) (int, error) {
	n := 0
	for {
		evt, ok := q.ring.Pop()
		if !ok {
			return n, nil
		}
		if err := q.sender.SendEvent(ctx, evt); err != nil {
			q.ring.PushFront(evt)
			return n, err
		}
		q.bc.Broadcast(evt.Type, evt)
		n++
	}
}

// Len returns the number of queued events.
func (q *Queue) Len() int {
	return q.ring.Len()
}

// Pending returns a copy of the queued events, oldest first.
func (q *Queue) Pending() []model.RealtimeEvent {
	return q.ring.ReadAll()
}

// Dropped returns how many events were evicted by the capacity bound.
func (q *Queue) Dropped() uint64 {
	return q.ring.Dropped()
}
