// Package connection owns the single hub connection: its lifecycle, the
// reconnection state machine, the heartbeat and the translation of inbound
// hub messages into registry broadcasts.
package connection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/taskflow-hub/realtime/internal/desktop"
	"github.com/taskflow-hub/realtime/internal/model"
	"github.com/taskflow-hub/realtime/internal/outbox"
	"github.com/taskflow-hub/realtime/internal/registry"
	"github.com/taskflow-hub/realtime/internal/transport"
)

// DefaultHeartbeatInterval is how often a liveness ping is sent to the hub.
const DefaultHeartbeatInterval = 30 * time.Second

// State is the lifecycle state of the manager.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "disconnected"
	}
}

// TokenFunc returns the current bearer token. It is called on every dial so
// a refreshed token is picked up by the next reconnect.
type TokenFunc func() (string, error)

// Config configures a Manager.
type Config struct {
	HubURL string
	Token  TokenFunc
	Dialer transport.Dialer

	Backoff Backoff

	// HeartbeatInterval defaults to 30s; a negative value disables the heartbeat.
	HeartbeatInterval time.Duration
	// HeartbeatFailureLimit closes the transport after that many consecutive
	// failed heartbeats, handing over to reconnection. Zero only logs failures.
	HeartbeatFailureLimit int

	// QueueCapacity bounds the outbound queue; zero is unbounded.
	QueueCapacity int

	// Notifier raises desktop notifications for hub Notification messages.
	// Nil means notifications are not permitted.
	Notifier desktop.Notifier

	Log zerolog.Logger
}

type group struct {
	subscribe string
	id        string
}

// Manager is the connection manager. It is the single writer of
// ConnectionStatus.
type Manager struct {
	hubURL   string
	token    TokenFunc
	dialer   transport.Dialer
	backoff  Backoff
	hbEvery  time.Duration
	hbLimit  int
	notifier desktop.Notifier
	log      zerolog.Logger

	reg    *registry.Registry
	queue  *outbox.Queue
	flight singleflight.Group

	mu     sync.Mutex
	state  State
	status model.ConnectionStatus
	conn   transport.Conn
	timer  *time.Timer
	epoch  uint64
	groups map[group]struct{}
}

// New creates a Manager publishing to reg. Nothing is dialed until Start.
func New(cfg Config, reg *registry.Registry) *Manager {
	if cfg.Dialer == nil {
		cfg.Dialer = transport.NewWebsocketDialer(cfg.Log)
	}
	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = DefaultHeartbeatInterval
	}
	m := &Manager{
		hubURL:   cfg.HubURL,
		token:    cfg.Token,
		dialer:   cfg.Dialer,
		backoff:  cfg.Backoff.withDefaults(),
		hbEvery:  cfg.HeartbeatInterval,
		hbLimit:  cfg.HeartbeatFailureLimit,
		notifier: cfg.Notifier,
		log:      cfg.Log.With().Str("component", "connection").Logger(),
		reg:      reg,
		groups:   make(map[group]struct{}),
	}
	m.queue = outbox.New(outbox.Config{Capacity: cfg.QueueCapacity, Log: m.log}, reg, m)
	return m
}

// Registry returns the registry inbound events are broadcast on.
func (m *Manager) Registry() *registry.Registry {
	return m.reg
}

// Subscribe registers fn for eventType on the manager's registry.
func (m *Manager) Subscribe(eventType model.EventType, fn registry.Listener) (unsubscribe func()) {
	return m.reg.Subscribe(eventType, fn)
}

// Status returns a snapshot of the connection status.
func (m *Manager) Status() model.ConnectionStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status.Clone()
}

// State returns the lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Connected reports whether the transport is open.
func (m *Manager) Connected() bool {
	return m.State() == StateConnected
}

// Start opens the transport. Concurrent calls share one dial and an already
// connected manager returns nil. A failed Start is not retried automatically.
func (m *Manager) Start(ctx context.Context) error {
	_, err, _ := m.flight.Do("start", func() (any, error) {
		return nil, m.start(ctx)
	})
	return err
}

func (m *Manager) start(ctx context.Context) error {
	m.mu.Lock()
	if m.state == StateConnected {
		m.mu.Unlock()
		return nil
	}
	m.stopTimerLocked()
	m.state = StateConnecting
	epoch := m.epoch
	m.mu.Unlock()

	m.log.Info().Str("hub_url", m.hubURL).Msg("Connecting to hub")

	conn, err := m.dial(ctx)
	if err != nil {
		m.mu.Lock()
		if m.epoch != epoch {
			m.mu.Unlock()
			return model.ErrStopped
		}
		m.state = StateDisconnected
		now := time.Now().UTC()
		m.status.IsConnected = false
		m.status.IsReconnecting = false
		m.status.LastDisconnected = &now
		snap := m.status.Clone()
		m.mu.Unlock()

		m.publishStatus(snap)
		m.log.Error().Err(err).Msg("Failed to connect to hub")
		return fmt.Errorf("failed to start hub connection: %w", err)
	}

	if err := m.attach(ctx, conn, epoch); err != nil {
		return err
	}
	m.log.Info().Msg("Connected to hub")
	return nil
}

func (m *Manager) dial(ctx context.Context) (transport.Conn, error) {
	var token string
	if m.token != nil {
		t, err := m.token()
		if err != nil {
			return nil, fmt.Errorf("failed to get access token: %w", err)
		}
		token = t
	}
	return m.dialer.Dial(ctx, m.hubURL, token, m.dispatch)
}

// attach installs a freshly dialed transport. It fails with ErrStopped when
// Stop ran during the dial; if another dial won the race the new transport
// is closed and the existing one kept. Remembered groups are re-joined on
// every new transport, whether Start or a retry opened it.
func (m *Manager) attach(ctx context.Context, conn transport.Conn, epoch uint64) error {
	m.mu.Lock()
	if m.epoch != epoch {
		m.mu.Unlock()
		_ = conn.Close()
		return model.ErrStopped
	}
	if m.conn != nil {
		m.mu.Unlock()
		_ = conn.Close()
		return nil
	}
	m.stopTimerLocked()
	m.conn = conn
	m.state = StateConnected
	now := time.Now().UTC()
	m.status.IsConnected = true
	m.status.IsReconnecting = false
	m.status.ConnectionAttempts = 0
	m.status.LastConnected = &now
	snap := m.status.Clone()
	groups := m.sortedGroupsLocked()
	m.mu.Unlock()

	go m.watch(conn, epoch)
	if m.hbEvery > 0 {
		go m.heartbeat(conn)
	}

	m.publishStatus(snap)

	if len(groups) > 0 {
		m.resubscribe(conn, groups)
	}
	if _, err := m.queue.Flush(ctx); err != nil {
		m.log.Warn().Err(err).Int("pending", m.queue.Len()).Msg("Failed to flush outbound queue")
	}
	return nil
}

// watch waits for the transport to end and, unless it was closed by Stop or
// replaced, enters the reconnection state machine.
func (m *Manager) watch(conn transport.Conn, epoch uint64) {
	<-conn.Done()

	m.mu.Lock()
	if m.conn != conn || m.epoch != epoch {
		m.mu.Unlock()
		return
	}
	m.conn = nil
	now := time.Now().UTC()
	m.status.IsConnected = false
	m.status.LastDisconnected = &now
	m.mu.Unlock()

	cause := conn.Err()
	if cause == nil {
		cause = transport.ErrConnectionClosed
	}
	m.log.Warn().Err(cause).Msg("Hub connection lost")
	m.publishError(cause)

	m.scheduleRetry(epoch)
}

// scheduleRetry arms the single retry timer for the next attempt, or gives up
// when the policy is exhausted.
func (m *Manager) scheduleRetry(epoch uint64) {
	m.mu.Lock()
	if m.epoch != epoch || m.conn != nil {
		m.mu.Unlock()
		return
	}

	if m.backoff.Exhausted(m.status.ConnectionAttempts) {
		m.state = StateDisconnected
		m.status.IsConnected = false
		m.status.IsReconnecting = false
		snap := m.status.Clone()
		m.mu.Unlock()

		m.publishStatus(snap)
		m.log.Error().
			Int("attempts", snap.ConnectionAttempts).
			Err(model.ErrRetriesExhausted).
			Msg("Giving up on hub connection")
		return
	}

	m.state = StateReconnecting
	m.status.IsConnected = false
	m.status.IsReconnecting = true
	m.status.ConnectionAttempts++
	attempt := m.status.ConnectionAttempts
	delay := m.backoff.Delay(attempt)
	m.stopTimerLocked()
	m.timer = time.AfterFunc(delay, func() { m.retry(epoch) })
	snap := m.status.Clone()
	m.mu.Unlock()

	m.publishStatus(snap)
	m.log.Info().Int("attempt", attempt).Dur("delay", delay).Msg("Scheduling hub reconnect")
}

func (m *Manager) retry(epoch uint64) {
	m.mu.Lock()
	if m.epoch != epoch || m.state != StateReconnecting {
		m.mu.Unlock()
		return
	}
	m.timer = nil
	attempt := m.status.ConnectionAttempts
	m.mu.Unlock()

	ctx := context.Background()
	conn, err := m.dial(ctx)
	if err != nil {
		m.mu.Lock()
		if m.epoch == epoch {
			now := time.Now().UTC()
			m.status.LastDisconnected = &now
		}
		m.mu.Unlock()

		m.log.Warn().Err(err).Int("attempt", attempt).Msg("Hub reconnect failed")
		m.scheduleRetry(epoch)
		return
	}

	if err := m.attach(ctx, conn, epoch); err != nil {
		return
	}
	m.log.Info().Int("attempt", attempt).Msg("Reconnected to hub")
}

func (m *Manager) stopTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

// Stop closes the transport, the heartbeat and any pending reconnect. Calling
// Stop on a stopped manager is a no-op.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	if m.state == StateDisconnected && m.conn == nil {
		m.mu.Unlock()
		return nil
	}
	m.stopTimerLocked()
	m.epoch++
	conn := m.conn
	m.conn = nil
	m.state = StateDisconnected
	m.status.IsConnected = false
	m.status.IsReconnecting = false
	if conn != nil {
		now := time.Now().UTC()
		m.status.LastDisconnected = &now
	}
	snap := m.status.Clone()
	m.mu.Unlock()

	var err error
	if conn != nil {
		done := make(chan error, 1)
		go func() { done <- conn.Close() }()
		select {
		case err = <-done:
		case <-ctx.Done():
			err = ctx.Err()
		}
	}

	m.publishStatus(snap)
	m.log.Info().Msg("Hub connection stopped")
	if err != nil {
		return fmt.Errorf("failed to close hub connection: %w", err)
	}
	return nil
}

func (m *Manager) activeConn() transport.Conn {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateConnected {
		return nil
	}
	return m.conn
}

// Invoke calls a hub method and waits for its completion. There is no
// manager timeout: the call ends with the hub's answer, ctx or the transport.
func (m *Manager) Invoke(ctx context.Context, method string, args ...any) (json.RawMessage, error) {
	conn := m.activeConn()
	if conn == nil {
		return nil, fmt.Errorf("failed to invoke %s: %w", method, model.ErrNotConnected)
	}
	result, err := conn.Invoke(ctx, method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to invoke %s: %w", method, err)
	}
	return result, nil
}

// SendEvent forwards an application event to the hub without waiting for a
// completion. Task events go through SendTaskUpdate so the hub routes them to
// the task group; everything else is published as is.
func (m *Manager) SendEvent(_ context.Context, evt model.RealtimeEvent) error {
	conn := m.activeConn()
	if conn == nil {
		return model.ErrNotConnected
	}

	var err error
	if evt.Type.IsTaskEvent() && evt.TaskID != "" {
		err = conn.Send(MethodSendTaskUpdate, evt.TaskID, evt)
	} else {
		err = conn.Send(MethodPublishEvent, evt)
	}
	if errors.Is(err, transport.ErrConnectionClosed) || errors.Is(err, transport.ErrSendBufferFull) {
		return fmt.Errorf("%w: %w", model.ErrNotConnected, err)
	}
	return err
}

// QueueEvent sends evt now when connected, echoing it to local listeners, and
// otherwise queues it for replay after the next (re)connect.
func (m *Manager) QueueEvent(ctx context.Context, evt model.RealtimeEvent) error {
	return m.queue.QueueEvent(ctx, evt)
}

// Outbox exposes the outbound queue.
func (m *Manager) Outbox() *outbox.Queue {
	return m.queue
}

func (m *Manager) publishStatus(status model.ConnectionStatus) {
	evt, err := model.NewEvent(model.EventConnectionStatusChanged, status)
	if err != nil {
		m.log.Error().Err(err).Msg("Failed to encode connection status")
		return
	}
	m.reg.Broadcast(model.EventConnectionStatusChanged, evt)
}

func (m *Manager) publishError(cause error) {
	evt, err := model.NewEvent(model.EventConnectionError, map[string]string{"message": cause.Error()})
	if err != nil {
		return
	}
	m.reg.Broadcast(model.EventConnectionError, evt)
}
