// Package desktop raises user-facing notifications for hub Notification
// messages. Delivery is best effort.
package desktop

import (
	"sync"

	"github.com/rs/zerolog"
)

// Notifier raises a native notification popup.
type Notifier interface {
	Notify(title, message, actionURL string) error
}

// LogNotifier writes notifications to a zerolog logger, for terminals and
// headless hosts without a notification daemon.
type LogNotifier struct {
	log zerolog.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: log.With().Str("component", "desktop").Logger()}
}

// Notify logs the notification at info level.
func (n *LogNotifier) Notify(title, message, actionURL string) error {
	evt := n.log.Info().Str("title", title)
	if actionURL != "" {
		evt = evt.Str("action_url", actionURL)
	}
	evt.Msg(message)
	return nil
}

// Notification is one recorded call to Recorder.Notify.
type Notification struct {
	Title     string
	Message   string
	ActionURL string
}

// Recorder keeps every notification in memory.
type Recorder struct {
	mu   sync.Mutex
	sent []Notification
}

// Notify records the notification.
func (r *Recorder) Notify(title, message, actionURL string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, Notification{Title: title, Message: message, ActionURL: actionURL})
	return nil
}

// Sent returns a copy of the recorded notifications.
func (r *Recorder) Sent() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.sent...)
}
