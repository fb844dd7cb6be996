package model

import "time"

// EnvelopeType is the wire discriminator of an Envelope.
type EnvelopeType string

const (
	EnvelopeMessage EnvelopeType = "message"
	EnvelopeSystem  EnvelopeType = "system"
	EnvelopeTyping  EnvelopeType = "typing"
	EnvelopeError   EnvelopeType = "error"
)

// Envelope is the JSON frame exchanged with clients and with the external peer.
type Envelope struct {
	Type      EnvelopeType   `json:"type"`
	Message   string         `json:"message"`
	Agent     string         `json:"agent,omitempty"`
	Timestamp string         `json:"timestamp"`
	UserID    string         `json:"user_id,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// NewEnvelope builds an Envelope stamped with the current time.
func NewEnvelope(typ EnvelopeType, message, agent string) Envelope {
	return Envelope{
		Type:      typ,
		Message:   message,
		Agent:     agent,
		Timestamp: time.Now().Format(time.RFC3339),
	}
}
