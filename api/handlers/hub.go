package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/taskflow-hub/realtime/internal/devhub"
)

// HubHandler serves the websocket endpoint and server-initiated pushes.
type HubHandler struct {
	service *devhub.Service
	log     zerolog.Logger
}

// NewHubHandler creates a new HubHandler.
func NewHubHandler(service *devhub.Service, log zerolog.Logger) *HubHandler {
	return &HubHandler{service: service, log: log}
}

// PushMessageRequest is the body of POST /api/messages.
type PushMessageRequest struct {
	Target  string          `json:"target" binding:"required"`
	Group   string          `json:"group"`
	Payload json.RawMessage `json:"payload"`
}

// PushMessageResponse reports how many connections received a push.
type PushMessageResponse struct {
	Delivered int `json:"delivered"`
}

// Attach handles GET /hub - upgrades to the hub websocket.
func (h *HubHandler) Attach(c *gin.Context) {
	if err := h.service.Handler().HandleConnection(c.Writer, c.Request); err != nil {
		// The upgrader already wrote the HTTP error
		h.log.Warn().Err(err).Msg("WebSocket upgrade failed")
	}
}

// PushMessage handles POST /api/messages - pushes a named hub message to a
// group, or to every client when no group is given.
func (h *HubHandler) PushMessage(c *gin.Context) {
	var req PushMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body: "+err.Error())
		return
	}
	if len(req.Payload) == 0 {
		req.Payload = json.RawMessage(`{}`)
	}

	delivered, err := h.service.PushMessage(req.Target, req.Group, req.Payload)
	if err != nil {
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to push message: "+err.Error())
		return
	}

	c.JSON(http.StatusAccepted, PushMessageResponse{Delivered: delivered})
}

// Health handles GET /health.
func (h *HubHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"clients": h.service.Hub().ClientCount(),
	})
}

// RegisterRoutes registers the hub routes on a Gin router. The websocket and
// health endpoints live at the root, pushes under /api.
func (h *HubHandler) RegisterRoutes(r gin.IRouter, api *gin.RouterGroup) {
	r.GET("/health", h.Health)
	r.GET("/hub", h.Attach)
	api.POST("/messages", h.PushMessage)
}
