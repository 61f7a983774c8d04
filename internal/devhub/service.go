package devhub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/taskflow-hub/realtime/internal/model"
	"github.com/taskflow-hub/realtime/internal/transport"
)

// NotificationStore persists notifications the hub creates and acknowledges.
type NotificationStore interface {
	Create(ctx context.Context, n *model.NotificationEvent) error
	ListByUser(ctx context.Context, userID string, unreadOnly bool) ([]*model.NotificationEvent, error)
	MarkRead(ctx context.Context, userID, id string) error
	MarkAllRead(ctx context.Context, userID string) (int64, error)
}

// Service wires the hub, its websocket handler and the notification store.
type Service struct {
	hub     *Hub
	store   NotificationStore
	handler *Handler
	log     zerolog.Logger
}

// NewService creates a new dev hub service.
func NewService(store NotificationStore, allowAnonymous bool, log zerolog.Logger) *Service {
	hub := NewHub()
	return &Service{
		hub:     hub,
		store:   store,
		handler: NewHandler(hub, store, allowAnonymous, log),
		log:     log,
	}
}

// Handler returns the websocket handler.
func (s *Service) Handler() *Handler {
	return s.handler
}

// Hub returns the client hub.
func (s *Service) Hub() *Hub {
	return s.hub
}

// PushMessage sends a hub message to group, or to every client when group is
// empty. It returns the number of recipients.
func (s *Service) PushMessage(target, group string, payload json.RawMessage) (int, error) {
	frame, err := transport.NewMessage(target, payload)
	if err != nil {
		return 0, err
	}
	data, err := json.Marshal(frame)
	if err != nil {
		return 0, err
	}
	if group == "" {
		return s.hub.Broadcast(data, nil), nil
	}
	return s.hub.SendToGroup(group, data, nil), nil
}

// CreateNotification stores a notification and pushes it to the user's
// connections.
func (s *Service) CreateNotification(ctx context.Context, req model.CreateNotificationRequest) (model.NotificationEvent, int, error) {
	n := model.NotificationEvent{
		ID:         uuid.NewString(),
		Type:       req.Type,
		Title:      req.Title,
		Message:    req.Message,
		UserID:     req.UserID,
		UserName:   req.UserName,
		EntityID:   req.EntityID,
		EntityType: req.EntityType,
		ActionURL:  req.ActionURL,
		Timestamp:  time.Now().UTC(),
		Priority:   req.Priority,
	}
	if n.Priority == "" {
		n.Priority = model.PriorityMedium
	}

	if err := s.store.Create(ctx, &n); err != nil {
		return model.NotificationEvent{}, 0, fmt.Errorf("failed to store notification: %w", err)
	}

	payload, err := json.Marshal(n)
	if err != nil {
		return model.NotificationEvent{}, 0, err
	}
	delivered, err := s.PushMessage(MessageNotification, UserGroup(n.UserID), payload)
	if err != nil {
		return model.NotificationEvent{}, 0, err
	}

	s.log.Debug().Str("user_id", n.UserID).Str("notification_id", n.ID).Int("delivered", delivered).Msg("Notification pushed")
	return n, delivered, nil
}

// ListNotifications returns a user's notifications, newest first.
func (s *Service) ListNotifications(ctx context.Context, userID string, unreadOnly bool) ([]*model.NotificationEvent, error) {
	return s.store.ListByUser(ctx, userID, unreadOnly)
}

// Close tells every client the hub is going away and closes their connections.
func (s *Service) Close() {
	if data, err := json.Marshal(&transport.Frame{Type: transport.FrameClose, Error: "hub shutting down"}); err == nil {
		s.hub.Broadcast(data, nil)
	}
	s.hub.Close()
}
