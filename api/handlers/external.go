package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/agent-hub/backend/internal/model"
)

// Bridge is the external bridge surface exposed over HTTP.
type Bridge interface {
	Status() model.BridgeStatus
	Send(ctx context.Context, content, agent string) error
	Retry() error
}

// ExternalHandler handles the external bridge endpoints.
type ExternalHandler struct {
	bridge Bridge
	logger *zap.Logger
}

// NewExternalHandler creates a new ExternalHandler. bridge is nil when no
// external peer is configured.
func NewExternalHandler(bridge Bridge, logger *zap.Logger) *ExternalHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExternalHandler{bridge: bridge, logger: logger}
}

// SendRequest is the body of POST /send-to-external. Content falls back to
// Message.
type SendRequest struct {
	Content string `json:"content"`
	Message string `json:"message"`
	Agent   string `json:"agent"`
}

// SendResponse reports the outcome of a relay.
type SendResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Status handles GET /external-status.
func (h *ExternalHandler) Status(c *gin.Context) {
	if h.bridge == nil {
		c.JSON(http.StatusOK, gin.H{"connected": false, "message": "No external bridge configured"})
		return
	}
	c.JSON(http.StatusOK, h.bridge.Status())
}

// Send handles POST /send-to-external - relays a message to the peer.
func (h *ExternalHandler) Send(c *gin.Context) {
	var req SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body: "+err.Error())
		return
	}

	content := req.Content
	if content == "" {
		content = req.Message
	}
	if strings.TrimSpace(content) == "" {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", model.ErrEmptyContent.Error())
		return
	}
	agent := req.Agent
	if agent == "" {
		agent = "Manual"
	}

	if h.bridge == nil {
		c.JSON(http.StatusOK, SendResponse{Success: false, Error: "Not connected to external WebSocket"})
		return
	}

	if err := h.bridge.Send(c.Request.Context(), content, agent); err != nil {
		if !errors.Is(err, model.ErrNotConnected) {
			h.logger.Warn("relay to external peer failed", zap.Error(err))
		}
		c.JSON(http.StatusOK, SendResponse{Success: false, Error: err.Error()})
		return
	}

	c.JSON(http.StatusOK, SendResponse{Success: true, Message: "Message sent to external WebSocket"})
}

// Retry handles POST /external/retry - restarts reconnecting after the
// attempt budget was spent.
func (h *ExternalHandler) Retry(c *gin.Context) {
	if h.bridge == nil {
		sendError(c, http.StatusNotFound, "BRIDGE_DISABLED", "No external bridge configured")
		return
	}

	if err := h.bridge.Retry(); err != nil {
		sendError(c, http.StatusConflict, "BRIDGE_UNAVAILABLE", err.Error())
		return
	}

	c.JSON(http.StatusAccepted, h.bridge.Status())
}

// RegisterRoutes registers the external bridge routes on a Gin router group.
func (h *ExternalHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/external-status", h.Status)
	rg.POST("/send-to-external", h.Send)
	rg.POST("/external/retry", h.Retry)
}
