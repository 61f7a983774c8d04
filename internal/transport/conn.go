package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/taskflow-hub/realtime/internal/model"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next message or ping from the hub.
	pongWait = 60 * time.Second

	// Maximum message size allowed from the hub.
	maxMessageSize = 1 << 20

	// Outbound frames buffered before sends start failing.
	sendBufferSize = 256
)

var (
	// ErrConnectionClosed is returned for operations on a closed connection.
	ErrConnectionClosed = errors.New("hub connection closed")

	// ErrSendBufferFull is returned when the write pump cannot keep up.
	ErrSendBufferFull = errors.New("hub send buffer full")
)

// MessageHandler receives hub messages in transport order on the read goroutine.
type MessageHandler func(target string, payload json.RawMessage)

// Conn is an open hub connection.
type Conn interface {
	// Invoke calls a hub method and waits for its completion.
	Invoke(ctx context.Context, target string, args ...any) (json.RawMessage, error)
	// Send calls a hub method without waiting for a completion.
	Send(target string, args ...any) error
	// Done is closed once the connection has ended.
	Done() <-chan struct{}
	// Err reports why the connection ended; nil for a client-initiated Close.
	Err() error
	// Close shuts the connection down gracefully.
	Close() error
}

type completion struct {
	result json.RawMessage
	err    error
}

type pendingCall struct {
	target string
	ch     chan completion
}

// wsConn is a Conn over a gorilla websocket.
type wsConn struct {
	conn      *websocket.Conn
	send      chan []byte
	onMessage MessageHandler
	log       zerolog.Logger

	pendingMu sync.Mutex
	pending   map[string]pendingCall

	done      chan struct{}
	closeOnce sync.Once
	errMu     sync.Mutex
	err       error
}

func newWSConn(conn *websocket.Conn, onMessage MessageHandler, log zerolog.Logger) *wsConn {
	c := &wsConn{
		conn:      conn,
		send:      make(chan []byte, sendBufferSize),
		onMessage: onMessage,
		log:       log,
		pending:   make(map[string]pendingCall),
		done:      make(chan struct{}),
	}
	go c.writePump()
	go c.readPump()
	return c
}

// Invoke sends an invocation frame and waits for the matching completion, the
// caller's context, or the end of the connection.
func (c *wsConn) Invoke(ctx context.Context, target string, args ...any) (json.RawMessage, error) {
	id := uuid.NewString()
	frame, err := NewInvocation(id, target, args...)
	if err != nil {
		return nil, err
	}

	ch := make(chan completion, 1)
	c.pendingMu.Lock()
	c.pending[id] = pendingCall{target: target, ch: ch}
	c.pendingMu.Unlock()

	if err := c.enqueue(frame); err != nil {
		c.dropPending(id)
		return nil, err
	}

	select {
	case res := <-ch:
		return res.result, res.err
	case <-ctx.Done():
		c.dropPending(id)
		return nil, ctx.Err()
	case <-c.done:
		c.dropPending(id)
		return nil, c.closedErr()
	}
}

// Send enqueues a fire-and-forget invocation.
func (c *wsConn) Send(target string, args ...any) error {
	frame, err := NewInvocation("", target, args...)
	if err != nil {
		return err
	}
	return c.enqueue(frame)
}

func (c *wsConn) enqueue(frame *Frame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("failed to marshal %s frame: %w", frame.Type, err)
	}

	select {
	case <-c.done:
		return c.closedErr()
	default:
	}

	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return c.closedErr()
	default:
		return ErrSendBufferFull
	}
}

func (c *wsConn) dropPending(id string) {
	c.pendingMu.Lock()
	delete(c.pending, id)
	c.pendingMu.Unlock()
}

// Done is closed once the connection has ended.
func (c *wsConn) Done() <-chan struct{} {
	return c.done
}

// Err reports why the connection ended.
func (c *wsConn) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

func (c *wsConn) closedErr() error {
	if err := c.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionClosed, err)
	}
	return ErrConnectionClosed
}

// Close sends a normal close frame and tears the connection down.
func (c *wsConn) Close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client closing")
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	c.shutdown(nil)
	return nil
}

// shutdown ends the connection once, failing every pending invocation.
func (c *wsConn) shutdown(reason error) {
	c.closeOnce.Do(func() {
		c.errMu.Lock()
		c.err = reason
		c.errMu.Unlock()
		close(c.done)
		_ = c.conn.Close()

		c.pendingMu.Lock()
		pending := c.pending
		c.pending = make(map[string]pendingCall)
		c.pendingMu.Unlock()

		for _, call := range pending {
			call.ch <- completion{err: c.closedErr()}
		}
	})
}

// readPump decodes frames from the hub. Messages are handed to onMessage in
// arrival order; completions resolve pending invocations.
func (c *wsConn) readPump() {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPingHandler(func(appData string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		err := c.conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeWait))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				// Closed locally.
			default:
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					c.log.Warn().Err(err).Msg("Hub connection lost")
				}
				c.shutdown(err)
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.log.Warn().Err(err).Msg("Failed to unmarshal hub frame")
			continue
		}

		switch frame.Type {
		case FrameMessage:
			if c.onMessage != nil {
				c.onMessage(frame.Target, frame.Payload())
			}
		case FrameCompletion:
			c.complete(&frame)
		case FrameClose:
			reason := frame.Error
			if reason == "" {
				reason = "hub closed the connection"
			}
			c.shutdown(errors.New(reason))
			return
		default:
			c.log.Debug().Str("frame_type", string(frame.Type)).Msg("Ignoring hub frame")
		}
	}
}

func (c *wsConn) complete(frame *Frame) {
	c.pendingMu.Lock()
	call, ok := c.pending[frame.InvocationID]
	delete(c.pending, frame.InvocationID)
	c.pendingMu.Unlock()

	if !ok {
		return
	}
	if frame.Error != "" {
		call.ch <- completion{err: &model.RemoteError{Method: call.target, Message: frame.Error}}
		return
	}
	call.ch <- completion{result: frame.Result}
}

// writePump serializes frames onto the websocket, one frame per message.
func (c *wsConn) writePump() {
	for {
		select {
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.shutdown(err)
				return
			}
		case <-c.done:
			return
		}
	}
}
