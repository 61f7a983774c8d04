package model

import (
	"encoding/json"
	"time"
)

// CollaborationType names a transient collaboration signal.
type CollaborationType string

const (
	CollabTyping          CollaborationType = "user_typing"
	CollabViewing         CollaborationType = "user_viewing"
	CollabEditing         CollaborationType = "user_editing"
	CollabCursorMove      CollaborationType = "cursor_move"
	CollabSelectionChange CollaborationType = "selection_change"
)

// CursorPosition locates a collaborator's cursor inside an entity field.
type CursorPosition struct {
	Line   int    `json:"line"`
	Column int    `json:"column"`
	Field  string `json:"field,omitempty"`
}

// Selection is a collaborator's selected range.
type Selection struct {
	Start int    `json:"start"`
	End   int    `json:"end"`
	Field string `json:"field,omitempty"`
}

// CollaborationData carries the signal payload. Nil flags are absent.
type CollaborationData struct {
	Typing    *bool           `json:"typing,omitempty"`
	Viewing   *bool           `json:"viewing,omitempty"`
	Editing   *bool           `json:"editing,omitempty"`
	Cursor    *CursorPosition `json:"cursor,omitempty"`
	Selection *Selection      `json:"selection,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
}

// CollaborationEvent is one user's signal about one entity.
type CollaborationEvent struct {
	Type       CollaborationType `json:"type"`
	UserID     string            `json:"userId"`
	UserName   string            `json:"userName"`
	EntityID   string            `json:"entityId"`
	EntityType string            `json:"entityType"`
	Data       CollaborationData `json:"data"`
	Timestamp  time.Time         `json:"timestamp"`
}

// Flag returns the boolean carried for the event's own signal and whether it was present.
func (e CollaborationEvent) Flag() (value, ok bool) {
	var p *bool
	switch e.Type {
	case CollabTyping:
		p = e.Data.Typing
	case CollabViewing:
		p = e.Data.Viewing
	case CollabEditing:
		p = e.Data.Editing
	}
	if p == nil {
		return false, false
	}
	return *p, true
}

// Bool returns a pointer to b, for building CollaborationData literals.
func Bool(b bool) *bool {
	return &b
}
