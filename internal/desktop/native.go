package desktop

import (
	"github.com/gen2brain/beeep"
	"github.com/rs/zerolog"
)

// NativeNotifier raises notifications through the operating system's
// notification service. When the platform refuses, the notification goes to
// the fallback instead so it is never silently lost.
type NativeNotifier struct {
	notify   func(title, message string) error
	fallback Notifier
	log      zerolog.Logger
}

// NewNativeNotifier creates a NativeNotifier that falls back to a LogNotifier.
func NewNativeNotifier(log zerolog.Logger) *NativeNotifier {
	return &NativeNotifier{
		notify: func(title, message string) error {
			return beeep.Notify(title, message, "")
		},
		fallback: NewLogNotifier(log),
		log:      log.With().Str("component", "desktop").Logger(),
	}
}

// Notify shows the popup. The action URL has no native equivalent and is
// appended to the message body.
func (n *NativeNotifier) Notify(title, message, actionURL string) error {
	body := message
	if actionURL != "" {
		body += "\n" + actionURL
	}
	if err := n.notify(title, body); err != nil {
		n.log.Debug().Err(err).Msg("Native notification failed, using fallback")
		return n.fallback.Notify(title, message, actionURL)
	}
	return nil
}
