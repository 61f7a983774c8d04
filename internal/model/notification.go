package model

import "time"

// NotificationType enumerates hub notification kinds.
type NotificationType string

const (
	NotificationTaskAssigned     NotificationType = "task_assigned"
	NotificationTaskUpdated      NotificationType = "task_updated"
	NotificationTaskCompleted    NotificationType = "task_completed"
	NotificationCommentAdded     NotificationType = "comment_added"
	NotificationMention          NotificationType = "mention"
	NotificationProjectUpdated   NotificationType = "project_updated"
	NotificationTeamInvite       NotificationType = "team_invite"
	NotificationDeadlineReminder NotificationType = "deadline_reminder"
	NotificationSystem           NotificationType = "system"
)

// NotificationPriority ranks a notification for presentation.
type NotificationPriority string

const (
	PriorityLow    NotificationPriority = "low"
	PriorityMedium NotificationPriority = "medium"
	PriorityHigh   NotificationPriority = "high"
	PriorityUrgent NotificationPriority = "urgent"
)

// NotificationEvent is created by the hub. The client only flips IsRead after
// an acknowledged mark-read round-trip.
type NotificationEvent struct {
	ID         string               `json:"id"`
	Type       NotificationType     `json:"type"`
	Title      string               `json:"title"`
	Message    string               `json:"message"`
	UserID     string               `json:"userId"`
	UserName   string               `json:"userName"`
	EntityID   string               `json:"entityId,omitempty"`
	EntityType string               `json:"entityType,omitempty"`
	ActionURL  string               `json:"actionUrl,omitempty"`
	Timestamp  time.Time            `json:"timestamp"`
	IsRead     bool                 `json:"isRead"`
	Priority   NotificationPriority `json:"priority"`
}

// CreateNotificationRequest is the dev hub request for pushing a notification to a user.
type CreateNotificationRequest struct {
	Type       NotificationType     `json:"type" binding:"required"`
	Title      string               `json:"title" binding:"required"`
	Message    string               `json:"message"`
	UserID     string               `json:"userId" binding:"required"`
	UserName   string               `json:"userName"`
	EntityID   string               `json:"entityId"`
	EntityType string               `json:"entityType"`
	ActionURL  string               `json:"actionUrl"`
	Priority   NotificationPriority `json:"priority"`
}
