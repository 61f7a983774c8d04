package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/taskflow-hub/realtime/internal/devhub"
	"github.com/taskflow-hub/realtime/internal/model"
)

// NotificationHandler handles HTTP requests for hub notifications.
type NotificationHandler struct {
	service *devhub.Service
}

// NewNotificationHandler creates a new NotificationHandler.
func NewNotificationHandler(service *devhub.Service) *NotificationHandler {
	return &NotificationHandler{service: service}
}

// NotificationResponse represents a notification in API responses.
type NotificationResponse struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	Title      string `json:"title"`
	Message    string `json:"message"`
	UserID     string `json:"userId"`
	UserName   string `json:"userName,omitempty"`
	EntityID   string `json:"entityId,omitempty"`
	EntityType string `json:"entityType,omitempty"`
	ActionURL  string `json:"actionUrl,omitempty"`
	Priority   string `json:"priority"`
	IsRead     bool   `json:"isRead"`
	Timestamp  string `json:"timestamp"`
	Delivered  *int   `json:"delivered,omitempty"`
}

func toNotificationResponse(n *model.NotificationEvent) *NotificationResponse {
	return &NotificationResponse{
		ID:         n.ID,
		Type:       string(n.Type),
		Title:      n.Title,
		Message:    n.Message,
		UserID:     n.UserID,
		UserName:   n.UserName,
		EntityID:   n.EntityID,
		EntityType: n.EntityType,
		ActionURL:  n.ActionURL,
		Priority:   string(n.Priority),
		IsRead:     n.IsRead,
		Timestamp:  n.Timestamp.Format(time.RFC3339),
	}
}

// Create handles POST /api/notifications - stores a notification and pushes
// it to the user's connections.
func (h *NotificationHandler) Create(c *gin.Context) {
	var req model.CreateNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body: "+err.Error())
		return
	}

	switch req.Priority {
	case "", model.PriorityLow, model.PriorityMedium, model.PriorityHigh, model.PriorityUrgent:
	default:
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Unknown priority "+string(req.Priority))
		return
	}

	n, delivered, err := h.service.CreateNotification(c.Request.Context(), req)
	if err != nil {
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create notification: "+err.Error())
		return
	}

	resp := toNotificationResponse(&n)
	resp.Delivered = &delivered
	c.JSON(http.StatusCreated, resp)
}

// List handles GET /api/notifications?userId=&unread= - lists a user's
// notifications, newest first.
func (h *NotificationHandler) List(c *gin.Context) {
	userID := c.Query("userId")
	if userID == "" {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "userId is required")
		return
	}

	unreadOnly := false
	if v := c.Query("unread"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "unread must be a boolean")
			return
		}
		unreadOnly = parsed
	}

	notifications, err := h.service.ListNotifications(c.Request.Context(), userID, unreadOnly)
	if err != nil {
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list notifications: "+err.Error())
		return
	}

	response := make([]*NotificationResponse, len(notifications))
	for i, n := range notifications {
		response[i] = toNotificationResponse(n)
	}
	c.JSON(http.StatusOK, response)
}

// RegisterRoutes registers the notification routes on a Gin router group.
func (h *NotificationHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/notifications", h.Create)
	rg.GET("/notifications", h.List)
}
