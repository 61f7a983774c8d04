package registry

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/taskflow-hub/realtime/internal/model"
)

func event(t model.EventType) model.RealtimeEvent {
	return model.RealtimeEvent{Type: t}
}

func TestSubscribeAndBroadcast(t *testing.T) {
	reg := New(zerolog.Nop())

	var got []string
	unsubA := reg.Subscribe(model.EventTaskUpdated, func(model.RealtimeEvent) { got = append(got, "a") })
	defer unsubA()
	unsubB := reg.Subscribe(model.EventTaskUpdated, func(model.RealtimeEvent) { got = append(got, "b") })
	defer unsubB()
	reg.Subscribe(model.EventCommentAdded, func(model.RealtimeEvent) { got = append(got, "other") })

	reg.Broadcast(model.EventTaskUpdated, event(model.EventTaskUpdated))

	assert.Equal(t, []string{"a", "b"}, got, "listeners run in registration order")
	assert.Equal(t, 2, reg.Count(model.EventTaskUpdated))
}

func TestBroadcastWithoutListeners(t *testing.T) {
	reg := New(zerolog.Nop())
	reg.Broadcast(model.EventType("never-subscribed"), event("never-subscribed"))
	assert.Equal(t, 0, reg.Count("never-subscribed"))
}

func TestUnknownTypeSubscription(t *testing.T) {
	reg := New(zerolog.Nop())
	calls := 0
	unsub := reg.Subscribe(model.EventType("sprint-started"), func(model.RealtimeEvent) { calls++ })
	defer unsub()

	reg.Broadcast("sprint-started", event("sprint-started"))
	assert.Equal(t, 1, calls)
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	reg := New(zerolog.Nop())
	calls := 0
	unsub := reg.Subscribe(model.EventNotification, func(model.RealtimeEvent) { calls++ })
	keep := reg.Subscribe(model.EventNotification, func(model.RealtimeEvent) {})
	defer keep()

	unsub()
	unsub()

	reg.Broadcast(model.EventNotification, event(model.EventNotification))
	assert.Equal(t, 0, calls)
	assert.Equal(t, 1, reg.Count(model.EventNotification), "second unsubscribe must not remove another listener")
}

func TestPanickingListenerIsIsolated(t *testing.T) {
	reg := New(zerolog.Nop())
	var got []int
	reg.Subscribe(model.EventUserPresenceUpdated, func(model.RealtimeEvent) { got = append(got, 1) })
	reg.Subscribe(model.EventUserPresenceUpdated, func(model.RealtimeEvent) { panic("boom") })
	reg.Subscribe(model.EventUserPresenceUpdated, func(model.RealtimeEvent) { got = append(got, 3) })

	assert.NotPanics(t, func() {
		reg.Broadcast(model.EventUserPresenceUpdated, event(model.EventUserPresenceUpdated))
	})
	assert.Equal(t, []int{1, 3}, got)
}

func TestUnsubscribeDuringBroadcast(t *testing.T) {
	reg := New(zerolog.Nop())

	var unsubSecond func()
	secondCalls := 0
	reg.Subscribe(model.EventUserTyping, func(model.RealtimeEvent) { unsubSecond() })
	unsubSecond = reg.Subscribe(model.EventUserTyping, func(model.RealtimeEvent) { secondCalls++ })

	assert.NotPanics(t, func() {
		reg.Broadcast(model.EventUserTyping, event(model.EventUserTyping))
	})
	assert.Equal(t, 0, secondCalls, "listener removed earlier in the same broadcast is skipped")

	reg.Broadcast(model.EventUserTyping, event(model.EventUserTyping))
	assert.Equal(t, 0, secondCalls)
}

func TestSelfUnsubscribeDuringBroadcast(t *testing.T) {
	reg := New(zerolog.Nop())
	calls := 0
	var unsub func()
	unsub = reg.Subscribe(model.EventSystemMessage, func(model.RealtimeEvent) {
		calls++
		unsub()
	})

	reg.Broadcast(model.EventSystemMessage, event(model.EventSystemMessage))
	reg.Broadcast(model.EventSystemMessage, event(model.EventSystemMessage))
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, reg.Count(model.EventSystemMessage))
}

func TestManyUnsubscribesCompactOrder(t *testing.T) {
	reg := New(zerolog.Nop())
	unsubs := make([]func(), 0, 100)
	for i := 0; i < 100; i++ {
		unsubs = append(unsubs, reg.Subscribe(model.EventTaskAssigned, func(model.RealtimeEvent) {}))
	}
	calls := 0
	keep := reg.Subscribe(model.EventTaskAssigned, func(model.RealtimeEvent) { calls++ })
	defer keep()
	for _, u := range unsubs {
		u()
	}

	reg.Broadcast(model.EventTaskAssigned, event(model.EventTaskAssigned))
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, reg.Count(model.EventTaskAssigned))
	assert.Len(t, reg.Types(), 1)
}

// Every still-registered listener is invoked exactly once per broadcast of its
// type, and no listener runs after its unsubscribe returned.
func TestBroadcastDeliveryProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	types := []model.EventType{model.EventTaskUpdated, model.EventUserTyping, model.EventNotification}

	properties.Property("subscribe/unsubscribe/broadcast interleavings deliver exactly once", prop.ForAll(
		func(ops []int) bool {
			reg := New(zerolog.Nop())

			type entry struct {
				eventType model.EventType
				unsub     func()
				active    bool
				calls     int
				expected  int
			}
			var entries []*entry

			for _, op := range ops {
				arg := op / 3
				switch op % 3 {
				case 0:
					e := &entry{eventType: types[arg%len(types)], active: true}
					e.unsub = reg.Subscribe(e.eventType, func(model.RealtimeEvent) { e.calls++ })
					entries = append(entries, e)
				case 1:
					if len(entries) == 0 {
						continue
					}
					e := entries[arg%len(entries)]
					e.unsub()
					e.active = false
				case 2:
					et := types[arg%len(types)]
					for _, e := range entries {
						if e.active && e.eventType == et {
							e.expected++
						}
					}
					reg.Broadcast(et, model.RealtimeEvent{Type: et})
				}
			}

			for _, e := range entries {
				if e.calls != e.expected {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 299)),
	))

	properties.TestingRun(t)
}
