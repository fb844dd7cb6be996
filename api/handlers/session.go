// Package handlers provides HTTP API request handlers.
package handlers

import (
	"context"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/agent-hub/backend/internal/model"
)

// SessionLister reports live sessions.
type SessionLister interface {
	Sessions() []model.SessionSummary
	Count() int
}

// TranscriptLister reads persisted transcripts.
type TranscriptLister interface {
	List(ctx context.Context, sessionID string, limit int) ([]model.TranscriptEntry, error)
}

// SessionHandler handles HTTP requests for session status.
type SessionHandler struct {
	sessions    SessionLister
	transcripts TranscriptLister
	logger      *zap.Logger
}

// NewSessionHandler creates a new SessionHandler. transcripts may be nil.
func NewSessionHandler(sessions SessionLister, transcripts TranscriptLister, logger *zap.Logger) *SessionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionHandler{
		sessions:    sessions,
		transcripts: transcripts,
		logger:      logger,
	}
}

// SessionResponse represents a session in API responses.
type SessionResponse struct {
	ID           string `json:"id"`
	CreatedAt    string `json:"created_at"`
	LastActivity string `json:"last_activity"`
	MessageCount int64  `json:"message_count"`
	LastHandler  string `json:"last_handler,omitempty"`
	Virtual      bool   `json:"virtual"`
	Duration     string `json:"duration"`
}

// SessionListResponse is the body of GET /sessions.
type SessionListResponse struct {
	Total    int                `json:"total_sessions"`
	Sessions []*SessionResponse `json:"sessions"`
}

// TranscriptResponse is the body of GET /sessions/:id/transcript.
type TranscriptResponse struct {
	SessionID string                  `json:"session_id"`
	Entries   []model.TranscriptEntry `json:"entries"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error details.
type ErrorDetail struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// toSessionResponse converts a model.SessionSummary to SessionResponse.
func toSessionResponse(s model.SessionSummary) *SessionResponse {
	return &SessionResponse{
		ID:           s.ID,
		CreatedAt:    s.CreatedAt.Format(time.RFC3339),
		LastActivity: s.LastActivity.Format(time.RFC3339),
		MessageCount: s.MessageCount,
		LastHandler:  s.LastHandler,
		Virtual:      s.Virtual,
		Duration:     formatDuration(s.Duration()),
	}
}

// formatDuration formats a duration as a human-readable string.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return time.Duration(h*time.Hour + m*time.Minute + s*time.Second).String()
	}
	if m > 0 {
		return time.Duration(m*time.Minute + s*time.Second).String()
	}
	return time.Duration(s * time.Second).String()
}

// sendError sends an error response with the appropriate status code.
func sendError(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// List handles GET /sessions - lists live sessions, oldest first.
func (h *SessionHandler) List(c *gin.Context) {
	summaries := h.sessions.Sessions()
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].CreatedAt.Before(summaries[j].CreatedAt)
	})

	resp := SessionListResponse{
		Total:    len(summaries),
		Sessions: make([]*SessionResponse, 0, len(summaries)),
	}
	for _, s := range summaries {
		resp.Sessions = append(resp.Sessions, toSessionResponse(s))
	}

	c.JSON(http.StatusOK, resp)
}

// Transcript handles GET /sessions/:id/transcript - returns persisted turns.
func (h *SessionHandler) Transcript(c *gin.Context) {
	sessionID := c.Param("id")
	if sessionID == "" {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Session ID is required")
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	if h.transcripts == nil {
		sendError(c, http.StatusNotFound, "TRANSCRIPTS_DISABLED", "Transcript storage is not configured")
		return
	}

	entries, err := h.transcripts.List(c.Request.Context(), sessionID, limit)
	if err != nil {
		h.logger.Error("failed to list transcript", zap.String("session_id", sessionID), zap.Error(err))
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to read transcript: "+err.Error())
		return
	}
	if entries == nil {
		entries = []model.TranscriptEntry{}
	}

	c.JSON(http.StatusOK, TranscriptResponse{SessionID: sessionID, Entries: entries})
}

// RegisterRoutes registers the session handler routes on a Gin router group.
func (h *SessionHandler) RegisterRoutes(rg *gin.RouterGroup) {
	sessions := rg.Group("/sessions")
	{
		sessions.GET("", h.List)
		sessions.GET("/:id/transcript", h.Transcript)
	}
}
