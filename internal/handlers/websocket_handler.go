package handlers

import (
	"incentives-backend/internal/services"

	"github.com/gin-gonic/gin"
)

// WebSocketHandler exposes the refresh push stream over gin.
type WebSocketHandler struct {
	pushService *services.WebSocketPushService
}

// NewWebSocketHandler creates a new WebSocket handler.
func NewWebSocketHandler(pushService *services.WebSocketPushService) *WebSocketHandler {
	return &WebSocketHandler{pushService: pushService}
}

// HandleConnection upgrades and registers a dashboard client.
// GET /api/ws
func (h *WebSocketHandler) HandleConnection(c *gin.Context) {
	h.pushService.HandleWebSocket(c.Writer, c.Request)
}
