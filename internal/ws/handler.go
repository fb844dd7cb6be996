package ws

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/agent-hub/backend/internal/hub"
	"github.com/agent-hub/backend/internal/model"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 8192
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// SessionHub is the part of the hub the handler drives.
type SessionHub interface {
	Connect(transport hub.Transport, sessionID string) (*hub.Session, error)
	DisconnectSession(s *hub.Session)
	Ingest(sessionID string, raw []byte) error
}

// Handler handles WebSocket connections for chat sessions.
type Handler struct {
	hub    SessionHub
	logger *zap.Logger
}

// NewHandler creates a new WebSocket handler.
func NewHandler(h SessionHub, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{hub: h, logger: logger}
}

// HandleConnection upgrades the request and attaches it to the hub as
// sessionID (generated when empty). Once the upgrade succeeded the HTTP
// response is committed; a rejected session is closed with a close frame.
func (h *Handler) HandleConnection(w http.ResponseWriter, r *http.Request, sessionID string) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	client := NewClient(conn, sessionID)
	session, err := h.hub.Connect(client, sessionID)
	if err != nil {
		code := websocket.CloseInternalServerErr
		if errors.Is(err, model.ErrDuplicateSession) {
			code = websocket.ClosePolicyViolation
		}
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(code, err.Error()),
			time.Now().Add(writeWait))
		conn.Close()
		return err
	}
	client.sessionID = session.ID()

	go h.writePump(client)
	go h.readPump(client, session)

	return nil
}

// readPump pumps frames from the WebSocket connection to the hub. On exit it
// ends the session this connection created, never a later one with the same id.
func (h *Handler) readPump(client *Client, session *hub.Session) {
	defer func() {
		h.hub.DisconnectSession(session)
		client.conn.Close()
	}()

	client.conn.SetReadLimit(maxMessageSize)
	client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		client.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn("websocket read error", zap.String("session_id", client.SessionID()), zap.Error(err))
			}
			break
		}

		if err := h.hub.Ingest(client.SessionID(), message); err != nil {
			h.logger.Debug("ingest failed", zap.String("session_id", client.SessionID()), zap.Error(err))
			break
		}
	}
}

// writePump pumps envelopes from the send queue to the WebSocket connection.
func (h *Handler) writePump(client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()

	for {
		select {
		case message, ok := <-client.SendChan():
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel
				client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			// One envelope per frame so clients can JSON.parse each one.
			if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

			n := len(client.SendChan())
			for i := 0; i < n; i++ {
				queued, ok := <-client.SendChan()
				if !ok {
					client.conn.WriteMessage(websocket.CloseMessage, []byte{})
					return
				}
				client.conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := client.conn.WriteMessage(websocket.TextMessage, queued); err != nil {
					return
				}
			}
		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SetCheckOrigin sets a custom origin checker for the WebSocket upgrader.
func SetCheckOrigin(fn func(r *http.Request) bool) {
	upgrader.CheckOrigin = fn
}
