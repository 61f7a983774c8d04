package hooks

import (
	"context"

	"github.com/taskflow-hub/realtime/internal/model"
)

// NotificationAcker acknowledges notifications on the hub.
type NotificationAcker interface {
	MarkNotificationAsRead(ctx context.Context, notificationID string) error
	MarkAllNotificationsAsRead(ctx context.Context) error
}

// NotificationFeed keeps received notifications newest first with an unread
// counter. Read state only changes after the hub acknowledged it.
type NotificationFeed struct {
	base
	acker  NotificationAcker
	items  []model.NotificationEvent
	unread int
}

// NewNotificationFeed starts collecting notification events.
func NewNotificationFeed(sub Subscriber, acker NotificationAcker, opts ...Option) *NotificationFeed {
	h := &NotificationFeed{acker: acker}
	h.init(opts)
	h.listen(sub, h.handle, model.EventNotification)
	return h
}

func (h *NotificationFeed) handle(evt model.RealtimeEvent) {
	var n model.NotificationEvent
	if err := evt.Decode(&n); err != nil {
		return
	}
	if n.Timestamp.IsZero() {
		n.Timestamp = evt.Timestamp
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.items = append([]model.NotificationEvent{n}, h.items...)
	if !n.IsRead {
		h.unread++
	}
	h.mu.Unlock()
	h.changed()
}

// Notifications returns the feed, newest first.
func (h *NotificationFeed) Notifications() []model.NotificationEvent {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]model.NotificationEvent(nil), h.items...)
}

// UnreadCount returns the number of unread notifications.
func (h *NotificationFeed) UnreadCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.unread
}

// MarkAsRead acknowledges one notification on the hub, then marks it read.
func (h *NotificationFeed) MarkAsRead(ctx context.Context, notificationID string) error {
	if err := h.acker.MarkNotificationAsRead(ctx, notificationID); err != nil {
		return err
	}

	h.mu.Lock()
	changed := false
	for i := range h.items {
		if h.items[i].ID == notificationID && !h.items[i].IsRead {
			h.items[i].IsRead = true
			h.unread--
			changed = true
		}
	}
	h.mu.Unlock()

	if changed {
		h.changed()
	}
	return nil
}

// MarkAllAsRead acknowledges every notification on the hub, then marks the
// whole feed read.
func (h *NotificationFeed) MarkAllAsRead(ctx context.Context) error {
	if err := h.acker.MarkAllNotificationsAsRead(ctx); err != nil {
		return err
	}

	h.mu.Lock()
	for i := range h.items {
		h.items[i].IsRead = true
	}
	h.unread = 0
	h.mu.Unlock()

	h.changed()
	return nil
}

// Close stops collecting notifications.
func (h *NotificationFeed) Close() {
	h.detach()
}
