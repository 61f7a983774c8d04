package model

import "time"

// StoredEvent is an event persisted in the journal.
type StoredEvent struct {
	ID         int64         `json:"id"`
	Event      RealtimeEvent `json:"event"`
	ReceivedAt time.Time     `json:"receivedAt"`
}

// EventFilter selects journal entries. Zero fields match everything; Limit
// keeps only the most recent matches.
type EventFilter struct {
	Type      EventType
	UserID    string
	ProjectID string
	TaskID    string
	TeamID    string
	Since     time.Time
	Limit     int
}
