package devhub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/taskflow-hub/realtime/internal/connection"
	"github.com/taskflow-hub/realtime/internal/model"
	"github.com/taskflow-hub/realtime/internal/transport"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 1 << 20
)

// Hub messages pushed to clients.
const (
	MessageTaskUpdated         = "TaskUpdated"
	MessageNotification        = "Notification"
	MessageUserConnected       = "UserConnected"
	MessageUserDisconnected    = "UserDisconnected"
	MessageUserPresenceUpdated = "UserPresenceUpdated"
	MessageUserTyping          = "UserTyping"
	MessageUserViewing         = "UserViewing"
	MessageUserEditing         = "UserEditing"
)

// ErrUnauthenticated is returned when a connection carries no token.
var ErrUnauthenticated = errors.New("missing access token")

// Handler upgrades websocket connections and serves hub method invocations.
type Handler struct {
	hub            *Hub
	store          NotificationStore
	upgrader       websocket.Upgrader
	allowAnonymous bool
	log            zerolog.Logger
}

// NewHandler creates a new Handler.
func NewHandler(hub *Hub, store NotificationStore, allowAnonymous bool, log zerolog.Logger) *Handler {
	return &Handler{
		hub:   hub,
		store: store,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		allowAnonymous: allowAnonymous,
		log:            log,
	}
}

// IdentityFromRequest reads the caller's identity from the bearer header or
// the access_token query parameter.
func IdentityFromRequest(r *http.Request) (Identity, error) {
	token := r.URL.Query().Get("access_token")
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		token = strings.TrimPrefix(auth, "Bearer ")
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return Identity{}, ErrUnauthenticated
	}

	userID, userName, _ := strings.Cut(token, ":")
	if userName == "" {
		userName = userID
	}
	return Identity{UserID: userID, UserName: userName}, nil
}

// HandleConnection upgrades the request and runs the client until it
// disconnects. The returned error only reports a failed upgrade.
func (h *Handler) HandleConnection(w http.ResponseWriter, r *http.Request) error {
	user, err := IdentityFromRequest(r)
	if err != nil {
		if !h.allowAnonymous {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return nil
		}
		id := uuid.NewString()
		user = Identity{UserID: id, UserName: "anonymous-" + id[:8]}
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	client := NewClient(h.hub, conn, user)
	h.hub.Register(client)
	h.log.Info().Str("user_id", user.UserID).Str("client_id", client.ID()).Msg("Client connected")

	h.announce(client, MessageUserConnected)

	go h.writePump(client)
	go h.readPump(client)

	return nil
}

func (h *Handler) announce(client *Client, message string) {
	frame, err := transport.NewMessage(message, map[string]any{
		"userId":    client.user.UserID,
		"userName":  client.user.UserName,
		"timestamp": time.Now().UTC(),
	})
	if err != nil {
		return
	}
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}
	h.hub.Broadcast(data, client)
}

// readPump pumps frames from the websocket connection into handleFrame.
func (h *Handler) readPump(client *Client) {
	defer func() {
		h.hub.Unregister(client)
		client.conn.Close()
		h.announce(client, MessageUserDisconnected)
		h.log.Info().Str("user_id", client.user.UserID).Str("client_id", client.ID()).Msg("Client disconnected")
	}()

	client.conn.SetReadLimit(maxMessageSize)
	client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		client.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Warn().Err(err).Str("client_id", client.ID()).Msg("WebSocket error")
			}
			break
		}
		client.conn.SetReadDeadline(time.Now().Add(pongWait))

		var frame transport.Frame
		if err := json.Unmarshal(message, &frame); err != nil {
			h.log.Warn().Err(err).Msg("Failed to unmarshal frame")
			continue
		}
		if frame.Type != transport.FrameInvocation {
			continue
		}

		h.handleFrame(client, &frame)
	}
}

// writePump pumps queued frames to the websocket connection.
func (h *Handler) writePump(client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()

	for {
		select {
		case message, ok := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel
				client.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "hub closing"))
				return
			}

			// Send each frame in a separate websocket message
			if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleFrame runs one invocation and, unless it was fire-and-forget,
// answers with a completion.
func (h *Handler) handleFrame(client *Client, frame *transport.Frame) {
	result, err := h.invoke(context.Background(), client, frame)
	if err != nil {
		h.log.Debug().Err(err).Str("target", frame.Target).Str("user_id", client.user.UserID).Msg("Invocation failed")
	}
	if frame.InvocationID == "" {
		return
	}

	completion, cerr := transport.NewCompletion(frame.InvocationID, result, err)
	if cerr != nil {
		completion, _ = transport.NewCompletion(frame.InvocationID, nil, cerr)
	}
	if err := client.SendFrame(completion); err != nil {
		h.log.Error().Err(err).Msg("Failed to send completion")
	}
}

func (h *Handler) invoke(ctx context.Context, client *Client, frame *transport.Frame) (any, error) {
	switch frame.Target {
	case connection.MethodSubscribeToTask:
		return h.join(client, frame, TaskGroup, true)
	case connection.MethodUnsubscribeFromTask:
		return h.join(client, frame, TaskGroup, false)
	case connection.MethodSubscribeToProject:
		return h.join(client, frame, ProjectGroup, true)
	case connection.MethodUnsubscribeFromProject:
		return h.join(client, frame, ProjectGroup, false)
	case connection.MethodSubscribeToTeam:
		return h.join(client, frame, TeamGroup, true)
	case connection.MethodUnsubscribeFromTeam:
		return h.join(client, frame, TeamGroup, false)

	case connection.MethodSendTaskUpdate:
		return nil, h.sendTaskUpdate(client, frame)
	case connection.MethodSendTypingStatus:
		return nil, h.sendCollaboration(client, frame, model.CollabTyping, MessageUserTyping)
	case connection.MethodSendViewingStatus:
		return nil, h.sendCollaboration(client, frame, model.CollabViewing, MessageUserViewing)
	case connection.MethodSendEditingStatus:
		return nil, h.sendCollaboration(client, frame, model.CollabEditing, MessageUserEditing)
	case connection.MethodSendCursorPosition:
		return nil, h.sendCursor(client, frame)

	case connection.MethodUpdatePresence:
		return nil, h.updatePresence(client, frame)
	case connection.MethodUpdateLocation:
		return nil, h.updateLocation(client, frame)

	case connection.MethodMarkNotificationAsRead:
		var id string
		if err := frame.Arg(0, &id); err != nil {
			return nil, fmt.Errorf("%w: %v", model.ErrInvalidArguments, err)
		}
		return nil, h.store.MarkRead(ctx, client.user.UserID, id)
	case connection.MethodMarkAllNotificationsAsRead:
		n, err := h.store.MarkAllRead(ctx, client.user.UserID)
		if err != nil {
			return nil, err
		}
		return map[string]int64{"updated": n}, nil

	case connection.MethodHeartbeat:
		return nil, nil
	case connection.MethodPublishEvent:
		return nil, h.publishEvent(client, frame)
	}

	return nil, fmt.Errorf("%w: %s", model.ErrUnknownMethod, frame.Target)
}

func (h *Handler) join(client *Client, frame *transport.Frame, group func(string) string, subscribe bool) (any, error) {
	var id string
	if err := frame.Arg(0, &id); err != nil || id == "" {
		return nil, fmt.Errorf("%w: %s requires an id", model.ErrInvalidArguments, frame.Target)
	}
	if subscribe {
		h.hub.Join(client, group(id))
	} else {
		h.hub.Leave(client, group(id))
	}
	return nil, nil
}

func (h *Handler) push(group, message string, payload any, except *Client) error {
	frame, err := transport.NewMessage(message, payload)
	if err != nil {
		return err
	}
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	if group == "" {
		h.hub.Broadcast(data, except)
		return nil
	}
	h.hub.SendToGroup(group, data, except)
	return nil
}

func (h *Handler) sendTaskUpdate(client *Client, frame *transport.Frame) error {
	var taskID string
	if err := frame.Arg(0, &taskID); err != nil || taskID == "" {
		return fmt.Errorf("%w: task id required", model.ErrInvalidArguments)
	}
	if len(frame.Arguments) < 2 {
		return fmt.Errorf("%w: task update required", model.ErrInvalidArguments)
	}

	message := MessageTaskUpdated
	var evt model.RealtimeEvent
	if json.Unmarshal(frame.Arguments[1], &evt) == nil && evt.Type.IsTaskEvent() {
		if name, ok := connection.HubMessage(evt.Type); ok {
			message = name
		}
		evt.TaskID = taskID
		return h.push(TaskGroup(taskID), message, flatten(evt, client.user), client)
	}

	payload := withEnvelope(frame.Arguments[1], model.RealtimeEvent{TaskID: taskID, Timestamp: time.Now().UTC()}, client.user)
	return h.push(TaskGroup(taskID), message, payload, client)
}

func (h *Handler) collaborationArgs(frame *transport.Frame) (entityID, entityType string, err error) {
	if err := frame.Arg(0, &entityID); err != nil || entityID == "" {
		return "", "", fmt.Errorf("%w: entity id required", model.ErrInvalidArguments)
	}
	if err := frame.Arg(1, &entityType); err != nil || entityType == "" {
		return "", "", fmt.Errorf("%w: entity type required", model.ErrInvalidArguments)
	}
	return entityID, entityType, nil
}

func (h *Handler) sendCollaboration(client *Client, frame *transport.Frame, kind model.CollaborationType, message string) error {
	entityID, entityType, err := h.collaborationArgs(frame)
	if err != nil {
		return err
	}
	var active bool
	if err := frame.Arg(2, &active); err != nil {
		return fmt.Errorf("%w: %v", model.ErrInvalidArguments, err)
	}

	evt := model.CollaborationEvent{
		Type:       kind,
		UserID:     client.user.UserID,
		UserName:   client.user.UserName,
		EntityID:   entityID,
		EntityType: entityType,
		Timestamp:  time.Now().UTC(),
	}
	switch kind {
	case model.CollabTyping:
		evt.Data.Typing = model.Bool(active)
	case model.CollabViewing:
		evt.Data.Viewing = model.Bool(active)
	case model.CollabEditing:
		evt.Data.Editing = model.Bool(active)
	}
	return h.push(EntityGroup(entityType, entityID), message, evt, client)
}

func (h *Handler) sendCursor(client *Client, frame *transport.Frame) error {
	entityID, entityType, err := h.collaborationArgs(frame)
	if err != nil {
		return err
	}
	var cursor model.CursorPosition
	if err := frame.Arg(2, &cursor); err != nil {
		return fmt.Errorf("%w: %v", model.ErrInvalidArguments, err)
	}

	evt := model.CollaborationEvent{
		Type:       model.CollabCursorMove,
		UserID:     client.user.UserID,
		UserName:   client.user.UserName,
		EntityID:   entityID,
		EntityType: entityType,
		Data:       model.CollaborationData{Cursor: &cursor},
		Timestamp:  time.Now().UTC(),
	}
	return h.push(EntityGroup(entityType, entityID), MessageUserEditing, evt, client)
}

func (h *Handler) updatePresence(client *Client, frame *transport.Frame) error {
	var status model.PresenceStatus
	if err := frame.Arg(0, &status); err != nil {
		return fmt.Errorf("%w: %v", model.ErrInvalidArguments, err)
	}
	switch status {
	case model.PresenceOnline, model.PresenceAway, model.PresenceBusy, model.PresenceOffline:
	default:
		return fmt.Errorf("%w: unknown presence status %q", model.ErrInvalidArguments, status)
	}
	var activity string
	if len(frame.Arguments) > 1 {
		_ = frame.Arg(1, &activity)
	}

	return h.push("", MessageUserPresenceUpdated, model.PresenceInfo{
		UserID:          client.user.UserID,
		UserName:        client.user.UserName,
		Status:          status,
		LastSeen:        time.Now().UTC(),
		CurrentActivity: activity,
	}, nil)
}

func (h *Handler) updateLocation(client *Client, frame *transport.Frame) error {
	var location string
	if err := frame.Arg(0, &location); err != nil {
		return fmt.Errorf("%w: %v", model.ErrInvalidArguments, err)
	}
	return h.push("", MessageUserPresenceUpdated, model.PresenceInfo{
		UserID:   client.user.UserID,
		UserName: client.user.UserName,
		Status:   model.PresenceOnline,
		LastSeen: time.Now().UTC(),
		Location: location,
	}, nil)
}

// publishEvent relays an application event to the group it addresses, or to
// everyone when it addresses none. The sender already echoed it locally.
func (h *Handler) publishEvent(client *Client, frame *transport.Frame) error {
	var evt model.RealtimeEvent
	if err := frame.Arg(0, &evt); err != nil || evt.Type == "" {
		return fmt.Errorf("%w: event required", model.ErrInvalidArguments)
	}

	message, ok := connection.HubMessage(evt.Type)
	if !ok {
		message = string(evt.Type)
	}

	group := ""
	switch {
	case evt.TaskID != "":
		group = TaskGroup(evt.TaskID)
	case evt.ProjectID != "":
		group = ProjectGroup(evt.ProjectID)
	case evt.TeamID != "":
		group = TeamGroup(evt.TeamID)
	}
	return h.push(group, message, flatten(evt, client.user), client)
}

// flatten turns an event envelope into the flat payload hubs push: the event
// data with the addressing fields merged in.
func flatten(evt model.RealtimeEvent, user Identity) json.RawMessage {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	return withEnvelope(evt.Data, evt, user)
}

func withEnvelope(data json.RawMessage, evt model.RealtimeEvent, user Identity) json.RawMessage {
	fields := map[string]json.RawMessage{}
	if len(data) > 0 && json.Unmarshal(data, &fields) != nil {
		fields = map[string]json.RawMessage{"data": data}
	}
	if fields == nil {
		fields = map[string]json.RawMessage{}
	}

	set := func(key, value string) {
		if value == "" {
			return
		}
		if _, ok := fields[key]; ok {
			return
		}
		raw, _ := json.Marshal(value)
		fields[key] = raw
	}
	userID, userName := evt.UserID, evt.UserName
	if userID == "" {
		userID, userName = user.UserID, user.UserName
	}
	set("userId", userID)
	set("userName", userName)
	set("taskId", evt.TaskID)
	set("projectId", evt.ProjectID)
	set("teamId", evt.TeamID)
	if !evt.Timestamp.IsZero() {
		set("timestamp", evt.Timestamp.UTC().Format(time.RFC3339Nano))
	}

	out, err := json.Marshal(fields)
	if err != nil {
		return data
	}
	return out
}
