package model

import "time"

// SessionSummary is the status view of one live session.
type SessionSummary struct {
	ID           string    `json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
	MessageCount int64     `json:"message_count"`
	LastHandler  string    `json:"last_handler,omitempty"`
	Virtual      bool      `json:"virtual"`
}

// Duration returns how long the session has been open.
func (s SessionSummary) Duration() time.Duration {
	return time.Since(s.CreatedAt)
}
