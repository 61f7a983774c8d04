package model

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned when an operation needs a live hub connection.
	ErrNotConnected = errors.New("not connected to hub")

	// ErrStopped is returned when the connection manager was stopped while an operation was pending.
	ErrStopped = errors.New("connection manager stopped")

	// ErrRetriesExhausted is reported when automatic reconnection gave up.
	ErrRetriesExhausted = errors.New("reconnection attempts exhausted")

	// ErrUnauthorized is returned when the hub rejects the bearer token.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNotificationNotFound is returned when a notification is not found.
	ErrNotificationNotFound = errors.New("notification not found")

	// ErrUnknownMethod is returned by the hub for an invocation target it does not serve.
	ErrUnknownMethod = errors.New("unknown hub method")

	// ErrInvalidArguments is returned when a hub invocation carries malformed arguments.
	ErrInvalidArguments = errors.New("invalid invocation arguments")
)

// RemoteError is a failure reported by the hub in an invocation completion.
type RemoteError struct {
	Method  string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("hub method %s failed: %s", e.Method, e.Message)
}
