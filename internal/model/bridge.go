package model

// BridgeState is a state of the external bridge reconnect machine.
type BridgeState string

const (
	BridgeDisconnected BridgeState = "disconnected"
	BridgeConnecting   BridgeState = "connecting"
	BridgeConnected    BridgeState = "connected"
	BridgeBackoff      BridgeState = "backoff"
)

// BridgeStatus is a point-in-time snapshot of the bridge.
type BridgeStatus struct {
	Connected        bool        `json:"connected"`
	State            BridgeState `json:"state"`
	URL              string      `json:"url"`
	Target           string      `json:"target"`
	VirtualSessionID string      `json:"user_id"`
	Attempts         int         `json:"reconnect_attempts"`
	MaxAttempts      int         `json:"max_reconnect_attempts"`
	LastError        string      `json:"last_error,omitempty"`
	Terminal         bool        `json:"terminal"`
	MessagesIn       int64       `json:"messages_in"`
	MessagesOut      int64       `json:"messages_out"`
}
