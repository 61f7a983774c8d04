// Package model holds the event contracts shared by the realtime client, its
// derived-state hooks and the development hub.
package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType is the canonical, hub-independent name of an event stream.
type EventType string

const (
	EventTaskUpdated         EventType = "task-updated"
	EventTaskStatusChanged   EventType = "task-status-changed"
	EventTaskAssigned        EventType = "task-assigned"
	EventTaskCompleted       EventType = "task-completed"
	EventCommentAdded        EventType = "comment-added"
	EventCommentUpdated      EventType = "comment-updated"
	EventProjectUpdated      EventType = "project-updated"
	EventTeamMemberAdded     EventType = "team-member-added"
	EventNotification        EventType = "notification"
	EventUserConnected       EventType = "user-connected"
	EventUserDisconnected    EventType = "user-disconnected"
	EventUserPresenceUpdated EventType = "user-presence-updated"
	EventUserTyping          EventType = "user-typing"
	EventUserViewing         EventType = "user-viewing"
	EventUserEditing         EventType = "user-editing"
	EventActivityFeedUpdated EventType = "activity-feed-updated"
	EventSystemMaintenance   EventType = "system-maintenance"
	EventSystemMessage       EventType = "system-message"
	EventConnectionError     EventType = "connection-error"

	// EventConnectionStatusChanged is synthesized locally on every ConnectionStatus write.
	EventConnectionStatusChanged EventType = "connection-status-changed"
)

// KnownEventTypes lists every event type carried over the hub connection.
var KnownEventTypes = []EventType{
	EventTaskUpdated,
	EventTaskStatusChanged,
	EventTaskAssigned,
	EventTaskCompleted,
	EventCommentAdded,
	EventCommentUpdated,
	EventProjectUpdated,
	EventTeamMemberAdded,
	EventNotification,
	EventUserConnected,
	EventUserDisconnected,
	EventUserPresenceUpdated,
	EventUserTyping,
	EventUserViewing,
	EventUserEditing,
	EventActivityFeedUpdated,
	EventSystemMaintenance,
	EventSystemMessage,
	EventConnectionError,
}

var knownEventTypes = func() map[EventType]struct{} {
	m := make(map[EventType]struct{}, len(KnownEventTypes)+1)
	for _, t := range KnownEventTypes {
		m[t] = struct{}{}
	}
	m[EventConnectionStatusChanged] = struct{}{}
	return m
}()

// Known reports whether t belongs to the fixed vocabulary. Unknown types are
// still valid and are forwarded opaquely.
func (t EventType) Known() bool {
	_, ok := knownEventTypes[t]
	return ok
}

// IsTaskEvent reports whether t is one of the task-* event types.
func (t EventType) IsTaskEvent() bool {
	switch t {
	case EventTaskUpdated, EventTaskStatusChanged, EventTaskAssigned, EventTaskCompleted:
		return true
	}
	return false
}

// RealtimeEvent is the envelope wrapping every inbound and outbound message.
type RealtimeEvent struct {
	Type      EventType       `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	UserID    string          `json:"userId,omitempty"`
	UserName  string          `json:"userName,omitempty"`
	ProjectID string          `json:"projectId,omitempty"`
	TaskID    string          `json:"taskId,omitempty"`
	TeamID    string          `json:"teamId,omitempty"`
}

// NewEvent builds an event stamped with the current time and payload marshaled into Data.
func NewEvent(eventType EventType, payload any) (RealtimeEvent, error) {
	evt := RealtimeEvent{Type: eventType, Timestamp: time.Now().UTC()}
	if payload == nil {
		return evt, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return RealtimeEvent{}, fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}
	evt.Data = data
	return evt, nil
}

// Decode unmarshals the event data into v.
func (e RealtimeEvent) Decode(v any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("event %s has no data", e.Type)
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("failed to decode %s data: %w", e.Type, err)
	}
	return nil
}

// envelopeFields mirrors the addressing fields a hub payload may carry.
type envelopeFields struct {
	Timestamp *time.Time `json:"timestamp"`
	UserID    string     `json:"userId"`
	UserName  string     `json:"userName"`
	ProjectID string     `json:"projectId"`
	TaskID    string     `json:"taskId"`
	TeamID    string     `json:"teamId"`
}

// EventFromPayload wraps a raw hub payload. Data keeps the full payload; the
// addressing fields are lifted from it when present. A payload that is not a
// JSON object is kept as-is and stamped with the receive time.
func EventFromPayload(eventType EventType, payload json.RawMessage) RealtimeEvent {
	evt := RealtimeEvent{Type: eventType, Data: payload}

	var fields envelopeFields
	if len(payload) > 0 && json.Unmarshal(payload, &fields) == nil {
		evt.UserID = fields.UserID
		evt.UserName = fields.UserName
		evt.ProjectID = fields.ProjectID
		evt.TaskID = fields.TaskID
		evt.TeamID = fields.TeamID
		if fields.Timestamp != nil {
			evt.Timestamp = *fields.Timestamp
		}
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	return evt
}
