package hooks

import (
	"sort"

	"github.com/taskflow-hub/realtime/internal/model"
)

// CollaborationMap tracks who is typing, viewing and editing one entity.
// A signal carrying false removes the user from that signal's set.
type CollaborationMap struct {
	base
	entityID   string
	entityType string
	signals    map[model.EventType]map[string]model.CollaborationEvent
}

// NewCollaborationMap starts tracking collaboration on one entity. An empty
// entityType matches any type.
func NewCollaborationMap(sub Subscriber, entityID, entityType string, opts ...Option) *CollaborationMap {
	h := &CollaborationMap{
		entityID:   entityID,
		entityType: entityType,
		signals:    newSignals(),
	}
	h.init(opts)
	h.listen(sub, h.handle, model.EventUserTyping, model.EventUserViewing, model.EventUserEditing)
	return h
}

func newSignals() map[model.EventType]map[string]model.CollaborationEvent {
	return map[model.EventType]map[string]model.CollaborationEvent{
		model.EventUserTyping:  {},
		model.EventUserViewing: {},
		model.EventUserEditing: {},
	}
}

var signalTypes = map[model.EventType]model.CollaborationType{
	model.EventUserTyping:  model.CollabTyping,
	model.EventUserViewing: model.CollabViewing,
	model.EventUserEditing: model.CollabEditing,
}

func (h *CollaborationMap) handle(evt model.RealtimeEvent) {
	var c model.CollaborationEvent
	if err := evt.Decode(&c); err != nil {
		return
	}
	if c.UserID == "" {
		c.UserID = evt.UserID
	}
	if c.EntityID != h.entityID || c.UserID == "" {
		return
	}
	if h.entityType != "" && c.EntityType != "" && c.EntityType != h.entityType {
		return
	}
	if c.Timestamp.IsZero() {
		c.Timestamp = evt.Timestamp
	}
	if c.Type == "" {
		c.Type = signalTypes[evt.Type]
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	users := h.signals[evt.Type]
	changed := false
	if active, ok := c.Flag(); ok {
		if active {
			users[c.UserID] = c
			changed = true
		} else if _, present := users[c.UserID]; present {
			delete(users, c.UserID)
			changed = true
		}
	} else if prev, present := users[c.UserID]; present {
		// Cursor and selection moves refresh an existing entry.
		if c.Data.Cursor != nil {
			prev.Data.Cursor = c.Data.Cursor
		}
		if c.Data.Selection != nil {
			prev.Data.Selection = c.Data.Selection
		}
		prev.Timestamp = c.Timestamp
		users[c.UserID] = prev
		changed = true
	}
	h.mu.Unlock()

	if changed {
		h.changed()
	}
}

func (h *CollaborationMap) list(t model.EventType) []model.CollaborationEvent {
	h.mu.RLock()
	out := make([]model.CollaborationEvent, 0, len(h.signals[t]))
	for _, c := range h.signals[t] {
		out = append(out, c)
	}
	h.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// Typing returns the users typing on the entity.
func (h *CollaborationMap) Typing() []model.CollaborationEvent {
	return h.list(model.EventUserTyping)
}

// Viewing returns the users viewing the entity.
func (h *CollaborationMap) Viewing() []model.CollaborationEvent {
	return h.list(model.EventUserViewing)
}

// Editing returns the users editing the entity.
func (h *CollaborationMap) Editing() []model.CollaborationEvent {
	return h.list(model.EventUserEditing)
}

// Close stops tracking and clears all state.
func (h *CollaborationMap) Close() {
	if !h.detach() {
		return
	}
	h.mu.Lock()
	h.signals = newSignals()
	h.mu.Unlock()
	h.changed()
}
