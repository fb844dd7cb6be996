// Package model defines the messages, sessions and routing decisions shared
// by the hub, the router and the external bridge.
package model

import (
	"encoding/json"
	"strings"
	"time"
)

// MessageKind identifies who produced a message.
type MessageKind string

const (
	KindUser     MessageKind = "user"
	KindHandler  MessageKind = "handler"
	KindSystem   MessageKind = "system"
	KindExternal MessageKind = "external"
)

// DefaultExternalSender labels peer frames that carry no sender of their own.
const DefaultExternalSender = "External User"

// Message is a single entry of a conversation. It is immutable once built;
// use NewMessage and the accessor methods.
type Message struct {
	content   string
	sender    string
	kind      MessageKind
	timestamp time.Time
	metadata  map[string]any
}

// NewMessage builds a Message stamped with the current time. The metadata map
// is copied.
func NewMessage(content, sender string, kind MessageKind, metadata map[string]any) Message {
	return Message{
		content:   content,
		sender:    sender,
		kind:      kind,
		timestamp: time.Now(),
		metadata:  copyMetadata(metadata),
	}
}

// Content returns the message text.
func (m Message) Content() string { return m.content }

// Sender returns the sender identifier.
func (m Message) Sender() string { return m.sender }

// Kind returns the message kind.
func (m Message) Kind() MessageKind { return m.kind }

// Timestamp returns when the message was built.
func (m Message) Timestamp() time.Time { return m.timestamp }

// Metadata returns a copy of the auxiliary metadata.
func (m Message) Metadata() map[string]any { return copyMetadata(m.metadata) }

// IsZero reports whether m is the zero Message.
func (m Message) IsZero() bool {
	return m.content == "" && m.sender == "" && m.kind == ""
}

// MarshalJSON renders the message for status and transcript output.
func (m Message) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Content   string         `json:"content"`
		Sender    string         `json:"sender"`
		Kind      MessageKind    `json:"kind"`
		Timestamp time.Time      `json:"timestamp"`
		Metadata  map[string]any `json:"metadata,omitempty"`
	}{m.content, m.sender, m.kind, m.timestamp, m.metadata})
}

func copyMetadata(src map[string]any) map[string]any {
	if len(src) == 0 {
		return nil
	}
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// DecodeFrame turns a raw inbound payload into a Message. A JSON object is
// read as an envelope (message or content, sender or from or user or
// user_id); anything else is taken verbatim as plain text from
// defaultSender. The returned bool is false when there is no content.
func DecodeFrame(raw []byte, kind MessageKind, defaultSender string) (Message, bool) {
	var frame inboundFrame
	if err := json.Unmarshal(raw, &frame); err == nil && frame.isObject {
		content := strings.TrimSpace(frame.text())
		if content == "" {
			return Message{}, false
		}
		sender := frame.senderOr(defaultSender)
		meta := copyMetadata(frame.Metadata)
		if frame.Type != "" {
			if meta == nil {
				meta = make(map[string]any, 1)
			}
			meta["type"] = frame.Type
		}
		return NewMessage(content, sender, kind, meta), true
	}

	content := strings.TrimSpace(string(raw))
	if content == "" {
		return Message{}, false
	}
	return NewMessage(content, defaultSender, kind, nil), true
}

// inboundFrame accepts the field spellings seen from clients and peers.
type inboundFrame struct {
	Type     string         `json:"type"`
	Message  string         `json:"message"`
	Content  string         `json:"content"`
	Sender   string         `json:"sender"`
	From     string         `json:"from"`
	User     string         `json:"user"`
	UserID   string         `json:"user_id"`
	Metadata map[string]any `json:"metadata"`

	isObject bool
}

func (f *inboundFrame) UnmarshalJSON(data []byte) error {
	type plain inboundFrame
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*f = inboundFrame(p)
	f.isObject = true
	return nil
}

func (f *inboundFrame) text() string {
	if f.Message != "" {
		return f.Message
	}
	return f.Content
}

func (f *inboundFrame) senderOr(fallback string) string {
	for _, s := range []string{f.Sender, f.From, f.User, f.UserID} {
		if s != "" {
			return s
		}
	}
	return fallback
}
