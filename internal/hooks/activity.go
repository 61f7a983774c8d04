package hooks

import (
	"github.com/taskflow-hub/realtime/internal/buffer"
	"github.com/taskflow-hub/realtime/internal/model"
)

// DefaultActivityLimit is how many activity entries a feed keeps.
const DefaultActivityLimit = 50

// ActivityFilter narrows an activity feed. Empty fields match everything.
type ActivityFilter struct {
	ProjectID string
	TeamID    string
	Limit     int
}

// ActivityFeed keeps the most recent activity-feed-updated events.
type ActivityFeed struct {
	base
	filter ActivityFilter
	ring   *buffer.Ring[model.RealtimeEvent]
}

// NewActivityFeed starts collecting activity matching filter.
func NewActivityFeed(sub Subscriber, filter ActivityFilter, opts ...Option) *ActivityFeed {
	if filter.Limit <= 0 {
		filter.Limit = DefaultActivityLimit
	}
	h := &ActivityFeed{
		filter: filter,
		ring:   buffer.NewRing[model.RealtimeEvent](filter.Limit),
	}
	h.init(opts)
	h.listen(sub, h.handle, model.EventActivityFeedUpdated)
	return h
}

func (h *ActivityFeed) handle(evt model.RealtimeEvent) {
	if h.filter.ProjectID != "" && evt.ProjectID != h.filter.ProjectID {
		return
	}
	if h.filter.TeamID != "" && evt.TeamID != h.filter.TeamID {
		return
	}

	h.mu.RLock()
	closed := h.closed
	h.mu.RUnlock()
	if closed {
		return
	}

	h.ring.Push(evt)
	h.changed()
}

// Entries returns the retained activity, newest first.
func (h *ActivityFeed) Entries() []model.RealtimeEvent {
	return h.ring.Newest()
}

// Clear empties the feed.
func (h *ActivityFeed) Clear() {
	h.ring.Clear()
	h.changed()
}

// Close stops collecting activity.
func (h *ActivityFeed) Close() {
	h.detach()
}
