package handlers

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/agent-hub/backend/internal/ws"
)

// WebSocketHandler handles WebSocket connections for chat sessions.
type WebSocketHandler struct {
	wsHandler *ws.Handler
	logger    *zap.Logger
}

// NewWebSocketHandler creates a new WebSocketHandler.
func NewWebSocketHandler(wsHandler *ws.Handler, logger *zap.Logger) *WebSocketHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebSocketHandler{
		wsHandler: wsHandler,
		logger:    logger,
	}
}

// Attach handles GET /ws/:id and GET /ws - opens a chat session over
// WebSocket. Without an id the hub generates one.
func (h *WebSocketHandler) Attach(c *gin.Context) {
	sessionID := c.Param("id")

	// The upgrader writes its own HTTP error on failure, and a rejected
	// session is closed with a close frame, so nothing is written here.
	if err := h.wsHandler.HandleConnection(c.Writer, c.Request, sessionID); err != nil {
		h.logger.Warn("websocket attach failed", zap.String("session_id", sessionID), zap.Error(err))
	}
}

// RegisterRoutes registers the WebSocket handler routes on a Gin router group.
func (h *WebSocketHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/ws", h.Attach)
	rg.GET("/ws/:id", h.Attach)
}
