// Package transport carries hub frames over a persistent websocket.
//
// The package implements:
//   - Frame: the JSON wire envelope shared by client and hub
//   - WebsocketDialer: opens an authenticated connection to the hub
//   - Conn: invocation/completion correlation, fire-and-forget sends and
//     ordered delivery of hub messages on a single read goroutine
package transport

import (
	"encoding/json"
	"fmt"
)

// FrameType identifies the kind of frame on the wire.
type FrameType string

const (
	// Client -> Hub
	FrameInvocation FrameType = "invocation"

	// Hub -> Client
	FrameCompletion FrameType = "completion"
	FrameMessage    FrameType = "message"
	FrameClose      FrameType = "close"
)

// Frame is the JSON envelope for every websocket text message.
// Invocations without an InvocationID are fire-and-forget.
type Frame struct {
	Type         FrameType         `json:"type"`
	InvocationID string            `json:"invocationId,omitempty"`
	Target       string            `json:"target,omitempty"`
	Arguments    []json.RawMessage `json:"arguments,omitempty"`
	Result       json.RawMessage   `json:"result,omitempty"`
	Error        string            `json:"error,omitempty"`
}

// NewInvocation builds an invocation frame, marshaling each argument.
func NewInvocation(invocationID, target string, args ...any) (*Frame, error) {
	raw, err := marshalArgs(args)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal arguments for %s: %w", target, err)
	}
	return &Frame{
		Type:         FrameInvocation,
		InvocationID: invocationID,
		Target:       target,
		Arguments:    raw,
	}, nil
}

// NewMessage builds a hub message frame carrying a single payload.
func NewMessage(target string, payload any) (*Frame, error) {
	raw, err := marshalArgs([]any{payload})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", target, err)
	}
	return &Frame{Type: FrameMessage, Target: target, Arguments: raw}, nil
}

// NewCompletion builds the completion frame answering an invocation.
func NewCompletion(invocationID string, result any, invokeErr error) (*Frame, error) {
	f := &Frame{Type: FrameCompletion, InvocationID: invocationID}
	if invokeErr != nil {
		f.Error = invokeErr.Error()
		return f, nil
	}
	if result != nil {
		data, err := json.Marshal(result)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal completion result: %w", err)
		}
		f.Result = data
	}
	return f, nil
}

func marshalArgs(args []any) ([]json.RawMessage, error) {
	if len(args) == 0 {
		return nil, nil
	}
	raw := make([]json.RawMessage, len(args))
	for i, arg := range args {
		if r, ok := arg.(json.RawMessage); ok {
			raw[i] = r
			continue
		}
		data, err := json.Marshal(arg)
		if err != nil {
			return nil, err
		}
		raw[i] = data
	}
	return raw, nil
}

// Payload returns the first argument of a message frame, or nil.
func (f *Frame) Payload() json.RawMessage {
	if len(f.Arguments) == 0 {
		return nil
	}
	return f.Arguments[0]
}

// Arg decodes argument i into v.
func (f *Frame) Arg(i int, v any) error {
	if i >= len(f.Arguments) {
		return fmt.Errorf("%s: missing argument %d", f.Target, i)
	}
	if err := json.Unmarshal(f.Arguments[i], v); err != nil {
		return fmt.Errorf("%s: invalid argument %d: %w", f.Target, i, err)
	}
	return nil
}
