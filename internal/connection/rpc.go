package connection

import (
	"context"
	"sort"

	"github.com/taskflow-hub/realtime/internal/model"
	"github.com/taskflow-hub/realtime/internal/transport"
)

// SubscribeToTask joins the task's hub group. The subscription is re-issued
// after every reconnect until UnsubscribeFromTask.
func (m *Manager) SubscribeToTask(ctx context.Context, taskID string) error {
	return m.joinGroup(ctx, MethodSubscribeToTask, taskID)
}

// UnsubscribeFromTask leaves the task's hub group.
func (m *Manager) UnsubscribeFromTask(ctx context.Context, taskID string) error {
	return m.leaveGroup(ctx, MethodSubscribeToTask, MethodUnsubscribeFromTask, taskID)
}

// SubscribeToProject joins the project's hub group.
func (m *Manager) SubscribeToProject(ctx context.Context, projectID string) error {
	return m.joinGroup(ctx, MethodSubscribeToProject, projectID)
}

// UnsubscribeFromProject leaves the project's hub group.
func (m *Manager) UnsubscribeFromProject(ctx context.Context, projectID string) error {
	return m.leaveGroup(ctx, MethodSubscribeToProject, MethodUnsubscribeFromProject, projectID)
}

// SubscribeToTeam joins the team's hub group.
func (m *Manager) SubscribeToTeam(ctx context.Context, teamID string) error {
	return m.joinGroup(ctx, MethodSubscribeToTeam, teamID)
}

// UnsubscribeFromTeam leaves the team's hub group.
func (m *Manager) UnsubscribeFromTeam(ctx context.Context, teamID string) error {
	return m.leaveGroup(ctx, MethodSubscribeToTeam, MethodUnsubscribeFromTeam, teamID)
}

func (m *Manager) joinGroup(ctx context.Context, method, id string) error {
	if _, err := m.Invoke(ctx, method, id); err != nil {
		return err
	}
	m.mu.Lock()
	m.groups[group{subscribe: method, id: id}] = struct{}{}
	m.mu.Unlock()
	return nil
}

func (m *Manager) leaveGroup(ctx context.Context, subscribe, method, id string) error {
	m.mu.Lock()
	delete(m.groups, group{subscribe: subscribe, id: id})
	m.mu.Unlock()

	_, err := m.Invoke(ctx, method, id)
	return err
}

func (m *Manager) sortedGroupsLocked() []group {
	groups := make([]group, 0, len(m.groups))
	for g := range m.groups {
		groups = append(groups, g)
	}
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].subscribe != groups[j].subscribe {
			return groups[i].subscribe < groups[j].subscribe
		}
		return groups[i].id < groups[j].id
	})
	return groups
}

// resubscribe re-joins remembered groups on a new transport; hub-side group
// membership does not survive the old one.
func (m *Manager) resubscribe(conn transport.Conn, groups []group) {
	for _, g := range groups {
		if err := conn.Send(g.subscribe, g.id); err != nil {
			m.log.Warn().Err(err).Str("method", g.subscribe).Str("id", g.id).Msg("Failed to restore hub group")
		}
	}
	if len(groups) > 0 {
		m.log.Debug().Int("groups", len(groups)).Msg("Restored hub groups")
	}
}

// Groups returns the remembered group subscriptions as "method:id".
func (m *Manager) Groups() []string {
	m.mu.Lock()
	groups := m.sortedGroupsLocked()
	m.mu.Unlock()

	out := make([]string, 0, len(groups))
	for _, g := range groups {
		out = append(out, g.subscribe+":"+g.id)
	}
	return out
}

// SendTaskUpdate pushes a task change to the task's group.
func (m *Manager) SendTaskUpdate(ctx context.Context, taskID string, update any) error {
	_, err := m.Invoke(ctx, MethodSendTaskUpdate, taskID, update)
	return err
}

// SendTypingStatus signals whether the user is typing on an entity.
func (m *Manager) SendTypingStatus(ctx context.Context, entityID, entityType string, typing bool) error {
	_, err := m.Invoke(ctx, MethodSendTypingStatus, entityID, entityType, typing)
	return err
}

// SendViewingStatus signals whether the user is viewing an entity.
func (m *Manager) SendViewingStatus(ctx context.Context, entityID, entityType string, viewing bool) error {
	_, err := m.Invoke(ctx, MethodSendViewingStatus, entityID, entityType, viewing)
	return err
}

// SendEditingStatus signals whether the user is editing an entity.
func (m *Manager) SendEditingStatus(ctx context.Context, entityID, entityType string, editing bool) error {
	_, err := m.Invoke(ctx, MethodSendEditingStatus, entityID, entityType, editing)
	return err
}

// SendCursorPosition shares the user's cursor inside an entity.
func (m *Manager) SendCursorPosition(ctx context.Context, entityID, entityType string, pos model.CursorPosition) error {
	_, err := m.Invoke(ctx, MethodSendCursorPosition, entityID, entityType, pos)
	return err
}

// UpdatePresence publishes the user's availability and current activity.
func (m *Manager) UpdatePresence(ctx context.Context, status model.PresenceStatus, activity string) error {
	_, err := m.Invoke(ctx, MethodUpdatePresence, status, activity)
	return err
}

// UpdateLocation publishes where in the application the user is.
func (m *Manager) UpdateLocation(ctx context.Context, location string) error {
	_, err := m.Invoke(ctx, MethodUpdateLocation, location)
	return err
}

// MarkNotificationAsRead acknowledges one notification on the hub.
func (m *Manager) MarkNotificationAsRead(ctx context.Context, notificationID string) error {
	_, err := m.Invoke(ctx, MethodMarkNotificationAsRead, notificationID)
	return err
}

// MarkAllNotificationsAsRead acknowledges every notification of the user.
func (m *Manager) MarkAllNotificationsAsRead(ctx context.Context) error {
	_, err := m.Invoke(ctx, MethodMarkAllNotificationsAsRead)
	return err
}
