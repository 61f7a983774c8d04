package connection

import (
	"encoding/json"

	"github.com/taskflow-hub/realtime/internal/model"
)

// Hub method names invoked by the client.
const (
	MethodSubscribeToTask            = "SubscribeToTask"
	MethodUnsubscribeFromTask        = "UnsubscribeFromTask"
	MethodSubscribeToProject         = "SubscribeToProject"
	MethodUnsubscribeFromProject     = "UnsubscribeFromProject"
	MethodSubscribeToTeam            = "SubscribeToTeam"
	MethodUnsubscribeFromTeam        = "UnsubscribeFromTeam"
	MethodSendTaskUpdate             = "SendTaskUpdate"
	MethodSendTypingStatus           = "SendTypingStatus"
	MethodSendViewingStatus          = "SendViewingStatus"
	MethodSendEditingStatus          = "SendEditingStatus"
	MethodSendCursorPosition         = "SendCursorPosition"
	MethodUpdatePresence             = "UpdatePresence"
	MethodUpdateLocation             = "UpdateLocation"
	MethodMarkNotificationAsRead     = "MarkNotificationAsRead"
	MethodMarkAllNotificationsAsRead = "MarkAllNotificationsAsRead"
	MethodHeartbeat                  = "Heartbeat"
	MethodPublishEvent               = "PublishEvent"
)

// hubMessages is the only place hub message names are translated to the
// canonical event vocabulary.
var hubMessages = map[string]model.EventType{
	"TaskUpdated":         model.EventTaskUpdated,
	"TaskStatusChanged":   model.EventTaskStatusChanged,
	"TaskAssigned":        model.EventTaskAssigned,
	"TaskCompleted":       model.EventTaskCompleted,
	"CommentAdded":        model.EventCommentAdded,
	"CommentUpdated":      model.EventCommentUpdated,
	"ProjectUpdated":      model.EventProjectUpdated,
	"TeamMemberAdded":     model.EventTeamMemberAdded,
	"Notification":        model.EventNotification,
	"UserConnected":       model.EventUserConnected,
	"UserDisconnected":    model.EventUserDisconnected,
	"UserPresenceUpdated": model.EventUserPresenceUpdated,
	"UserTyping":          model.EventUserTyping,
	"UserViewing":         model.EventUserViewing,
	"UserEditing":         model.EventUserEditing,
	"ActivityFeedUpdated": model.EventActivityFeedUpdated,
	"SystemMaintenance":   model.EventSystemMaintenance,
	"SystemMessage":       model.EventSystemMessage,
	"Error":               model.EventConnectionError,
}

var eventMessages = func() map[model.EventType]string {
	m := make(map[model.EventType]string, len(hubMessages))
	for name, t := range hubMessages {
		m[t] = name
	}
	return m
}()

// CanonicalType maps a hub message name to its event type. Unknown names are
// passed through unchanged as an opaque type.
func CanonicalType(hubMessage string) model.EventType {
	if t, ok := hubMessages[hubMessage]; ok {
		return t
	}
	return model.EventType(hubMessage)
}

// HubMessage maps an event type back to the hub message name carrying it.
func HubMessage(t model.EventType) (string, bool) {
	name, ok := eventMessages[t]
	return name, ok
}

// dispatch turns one inbound hub message into a registry broadcast. It runs
// on the transport's read goroutine, so listeners see transport order.
func (m *Manager) dispatch(hubMessage string, payload json.RawMessage) {
	eventType := CanonicalType(hubMessage)
	evt := model.EventFromPayload(eventType, payload)

	switch eventType {
	case model.EventConnectionError:
		m.log.Warn().
			Str("hub_message", hubMessage).
			Str("payload", string(payload)).
			Msg("Hub reported an error")
	case model.EventNotification:
		m.notifyDesktop(evt)
	default:
		if !eventType.Known() {
			m.log.Debug().Str("hub_message", hubMessage).Msg("Forwarding unknown hub message")
		}
	}

	m.reg.Broadcast(eventType, evt)
}

func (m *Manager) notifyDesktop(evt model.RealtimeEvent) {
	if m.notifier == nil {
		return
	}
	var n model.NotificationEvent
	if err := evt.Decode(&n); err != nil {
		m.log.Debug().Err(err).Msg("Skipping desktop notification")
		return
	}
	go func() {
		if err := m.notifier.Notify(n.Title, n.Message, n.ActionURL); err != nil {
			m.log.Debug().Err(err).Str("notification_id", n.ID).Msg("Desktop notification failed")
		}
	}()
}
