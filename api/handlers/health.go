package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/agent-hub/backend/internal/hub"
	"github.com/agent-hub/backend/internal/router"
)

// HubStatus reports hub counters.
type HubStatus interface {
	SessionLister
	Stats() hub.Stats
}

// RouterStatus reports routing counters.
type RouterStatus interface {
	Stats() router.Stats
	Handlers() []string
}

// HealthHandler serves liveness and service description endpoints.
type HealthHandler struct {
	hub    HubStatus
	router RouterStatus
	bridge Bridge
	labels map[string]string
}

// NewHealthHandler creates a new HealthHandler. bridge may be nil; labels
// maps handler tags to descriptions.
func NewHealthHandler(h HubStatus, r RouterStatus, bridge Bridge, labels map[string]string) *HealthHandler {
	return &HealthHandler{hub: h, router: r, bridge: bridge, labels: labels}
}

// Health handles GET /health.
func (h *HealthHandler) Health(c *gin.Context) {
	var external any = gin.H{"connected": false}
	if h.bridge != nil {
		external = h.bridge.Status()
	}

	c.JSON(http.StatusOK, gin.H{
		"status":          "healthy",
		"timestamp":       time.Now().Format(time.RFC3339),
		"active_sessions": h.hub.Count(),
		"hub":             h.hub.Stats(),
		"router":          h.router.Stats(),
		"external_bridge": external,
		"handlers":        h.labels,
	})
}

// Root handles GET / with a short service description.
func (h *HealthHandler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message":  "Agent message hub",
		"status":   "running",
		"handlers": h.router.Handlers(),
	})
}

// RegisterRoutes registers the health routes on a Gin router group.
func (h *HealthHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/", h.Root)
	rg.GET("/health", h.Health)
}
