package model

import "time"

// ConnectionStatus describes the hub connection as seen by the client.
// Only the connection manager writes it.
type ConnectionStatus struct {
	IsConnected        bool       `json:"isConnected"`
	IsReconnecting     bool       `json:"isReconnecting"`
	LastConnected      *time.Time `json:"lastConnected,omitempty"`
	LastDisconnected   *time.Time `json:"lastDisconnected,omitempty"`
	ConnectionAttempts int        `json:"connectionAttempts"`
}

// Clone returns a deep copy so readers never alias the writer's timestamps.
func (s ConnectionStatus) Clone() ConnectionStatus {
	out := s
	if s.LastConnected != nil {
		t := *s.LastConnected
		out.LastConnected = &t
	}
	if s.LastDisconnected != nil {
		t := *s.LastDisconnected
		out.LastDisconnected = &t
	}
	return out
}
