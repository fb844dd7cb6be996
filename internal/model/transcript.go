package model

import "time"

// TranscriptEntry is one persisted conversation turn.
type TranscriptEntry struct {
	ID        string         `json:"id"`
	SessionID string         `json:"session_id"`
	Sender    string         `json:"sender"`
	Kind      MessageKind    `json:"kind"`
	Content   string         `json:"content"`
	Handler   string         `json:"handler,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// EntryFromMessage builds the persisted form of msg. The handler tag is
// taken from the "handler" metadata key when present.
func EntryFromMessage(id, sessionID string, msg Message) TranscriptEntry {
	meta := msg.Metadata()
	handler, _ := meta["handler"].(string)
	return TranscriptEntry{
		ID:        id,
		SessionID: sessionID,
		Sender:    msg.Sender(),
		Kind:      msg.Kind(),
		Content:   msg.Content(),
		Handler:   handler,
		Metadata:  meta,
		CreatedAt: msg.Timestamp(),
	}
}
