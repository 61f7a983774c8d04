package connection

import (
	"context"
	"time"

	"github.com/taskflow-hub/realtime/internal/transport"
)

// heartbeat pings the hub until conn ends. Each ping is an invocation, so the
// hub's completion counts as inbound traffic and keeps an idle connection's
// read deadline fresh. A failed ping is logged; with a failure limit set,
// enough consecutive failures close conn so the reconnection state machine
// takes over.
func (m *Manager) heartbeat(conn transport.Conn) {
	ticker := time.NewTicker(m.hbEvery)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-conn.Done():
			return
		case <-ticker.C:
			if err := m.ping(conn); err != nil {
				select {
				case <-conn.Done():
					return
				default:
				}
				failures++
				m.log.Warn().Err(err).Int("consecutive_failures", failures).Msg("Heartbeat failed")
				if m.hbLimit > 0 && failures >= m.hbLimit {
					m.log.Error().Int("consecutive_failures", failures).Msg("Heartbeat failure limit reached, closing hub connection")
					_ = conn.Close()
					return
				}
				continue
			}
			failures = 0
		}
	}
}

// ping waits at most one heartbeat interval for the hub to answer.
func (m *Manager) ping(conn transport.Conn) error {
	ctx, cancel := context.WithTimeout(context.Background(), m.hbEvery)
	defer cancel()
	_, err := conn.Invoke(ctx, MethodHeartbeat)
	return err
}
