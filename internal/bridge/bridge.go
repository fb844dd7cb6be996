// Package bridge maintains the outbound WebSocket connection to an external
// peer. Frames from the peer enter the hub through a virtual session, and
// that session's replies are written back to the peer.
//
// A single supervisor goroutine owns dialing, so at most one connection
// exists at a time. Lost connections are retried with exponential backoff
// until the attempt budget is spent; the bridge then stays disconnected
// until Retry is called.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/agent-hub/backend/internal/hub"
	"github.com/agent-hub/backend/internal/model"
)

const (
	DefaultSessionID      = "poc-backend"
	DefaultConnectTimeout = 10 * time.Second
	DefaultPingInterval   = 30 * time.Second
	DefaultHello          = "Hello! POC backend connected and ready."

	// Time allowed to write a frame to the peer.
	writeWait = 10 * time.Second

	// Maximum frame size accepted from the peer.
	maxMessageSize = 64 * 1024

	outboundType = "agent_response"
)

// ErrNotStarted is returned by Retry before Start.
var ErrNotStarted = errors.New("external bridge not started")

// Dialer opens the outbound connection. *websocket.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, urlStr string, requestHeader http.Header) (*websocket.Conn, *http.Response, error)
}

// Ingester is the part of the hub the bridge feeds.
type Ingester interface {
	ConnectVirtual(transport hub.Transport, sessionID string) (*hub.Session, error)
	Disconnect(sessionID string)
	IngestMessage(sessionID string, msg model.Message) error
}

// Config holds bridge settings.
type Config struct {
	// URL is the address template, e.g. "wss://peer.example/ws/{id}".
	URL string
	// SessionID is the virtual session id, substituted into URL.
	SessionID      string
	ConnectTimeout time.Duration
	PingInterval   time.Duration
	Backoff        Backoff
	// Hello is sent once after every successful connect. Empty disables it.
	Hello string
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithDialer replaces the default gorilla dialer.
func WithDialer(d Dialer) Option {
	return func(b *Bridge) { b.dialer = d }
}

// WithSleep replaces the backoff wait.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(b *Bridge) { b.sleep = fn }
}

// Bridge is the reconnecting client to the external peer.
type Bridge struct {
	cfg    Config
	url    string
	hub    Ingester
	dialer Dialer
	sleep  func(ctx context.Context, d time.Duration) error
	logger *zap.Logger

	mu       sync.Mutex
	state    model.BridgeState
	conn     *websocket.Conn
	attempts int
	lastErr  error
	terminal bool
	started  bool
	stopped  bool
	cancel   context.CancelFunc

	// gorilla connections support one concurrent writer.
	writeMu sync.Mutex

	retry chan struct{}
	wg    sync.WaitGroup

	messagesIn  atomic.Int64
	messagesOut atomic.Int64
}

// New creates a Bridge. It does not connect until Start.
func New(cfg Config, h Ingester, logger *zap.Logger, opts ...Option) *Bridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SessionID == "" {
		cfg.SessionID = DefaultSessionID
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = DefaultPingInterval
	}
	def := DefaultBackoff()
	if cfg.Backoff.Base <= 0 {
		cfg.Backoff.Base = def.Base
	}
	if cfg.Backoff.Max <= 0 {
		cfg.Backoff.Max = def.Max
	}
	if cfg.Backoff.MaxAttempts <= 0 {
		cfg.Backoff.MaxAttempts = def.MaxAttempts
	}

	b := &Bridge{
		cfg: cfg,
		url: ResolveURL(cfg.URL, cfg.SessionID),
		hub: h,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.ConnectTimeout,
		},
		sleep:  sleepContext,
		logger: logger.With(zap.String("component", "bridge")),
		state:  model.BridgeDisconnected,
		retry:  make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// SessionID returns the virtual session id.
func (b *Bridge) SessionID() string {
	return b.cfg.SessionID
}

// Start registers the virtual session and launches the connect loop.
// Calling Start on a running bridge is a no-op.
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return model.ErrBridgeStopped
	}
	if b.started {
		b.mu.Unlock()
		return nil
	}

	if _, err := b.hub.ConnectVirtual(&virtualTransport{bridge: b}, b.cfg.SessionID); err != nil {
		b.mu.Unlock()
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	b.started = true
	b.cancel = cancel
	b.mu.Unlock()

	b.logger.Info("starting external bridge",
		zap.String("url", b.url),
		zap.String("session_id", b.cfg.SessionID),
	)

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.run(ctx)
	}()
	return nil
}

// Stop closes the connection, ends the connect loop and disconnects the
// virtual session. Stop is idempotent.
func (b *Bridge) Stop() {
	b.mu.Lock()
	if !b.started || b.stopped {
		b.stopped = true
		b.mu.Unlock()
		return
	}
	b.stopped = true
	cancel := b.cancel
	conn := b.conn
	b.conn = nil
	b.state = model.BridgeDisconnected
	b.mu.Unlock()

	cancel()
	if conn != nil {
		conn.Close()
	}

	b.hub.Disconnect(b.cfg.SessionID)
	b.wg.Wait()

	b.logger.Info("external bridge stopped")
}

// Retry restarts the connect loop after the attempt budget was spent.
// It is a no-op while the bridge is connecting, connected or backing off.
func (b *Bridge) Retry() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch {
	case b.stopped:
		return model.ErrBridgeStopped
	case !b.started:
		return ErrNotStarted
	case !b.terminal:
		return nil
	}

	// A second Retry before the loop wakes up must find the bridge
	// non-terminal and leave no token behind.
	b.terminal = false
	b.attempts = 0
	b.state = model.BridgeConnecting

	select {
	case b.retry <- struct{}{}:
	default:
	}
	return nil
}

// Status returns a snapshot of the bridge.
func (b *Bridge) Status() model.BridgeStatus {
	b.mu.Lock()
	defer b.mu.Unlock()

	st := model.BridgeStatus{
		Connected:        b.state == model.BridgeConnected,
		State:            b.state,
		URL:              b.url,
		Target:           b.cfg.URL,
		VirtualSessionID: b.cfg.SessionID,
		Attempts:         b.attempts,
		MaxAttempts:      b.cfg.Backoff.MaxAttempts,
		Terminal:         b.terminal,
		MessagesIn:       b.messagesIn.Load(),
		MessagesOut:      b.messagesOut.Load(),
	}
	if b.lastErr != nil {
		st.LastError = b.lastErr.Error()
	}
	return st
}

// Send writes a reply frame to the peer. It fails immediately with
// model.ErrNotConnected unless a connection is up; nothing is queued.
func (b *Bridge) Send(ctx context.Context, content, agent string) error {
	if strings.TrimSpace(content) == "" {
		return model.ErrEmptyContent
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	conn := b.conn
	connected := b.state == model.BridgeConnected
	b.mu.Unlock()

	if conn == nil || !connected {
		return model.ErrNotConnected
	}

	data, err := json.Marshal(outboundFrame{
		Message:   content,
		Agent:     agent,
		Timestamp: time.Now().Format(time.RFC3339),
		From:      b.cfg.SessionID,
		Type:      outboundType,
	})
	if err != nil {
		return err
	}

	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	b.writeMu.Lock()
	conn.SetWriteDeadline(deadline)
	err = conn.WriteMessage(websocket.TextMessage, data)
	b.writeMu.Unlock()

	if err != nil {
		cerr := &model.ConnectionError{Op: "write", Addr: b.url, Err: err}
		b.mu.Lock()
		if b.conn == conn {
			b.conn = nil
			b.state = model.BridgeBackoff
			b.lastErr = cerr
		}
		b.mu.Unlock()
		// Closing ends the read loop, which hands over to the backoff path.
		conn.Close()
		b.logger.Warn("send to external peer failed", zap.Error(err))
		return cerr
	}

	b.messagesOut.Add(1)
	b.logger.Debug("sent to external peer", zap.String("agent", agent), zap.Int("bytes", len(data)))
	return nil
}

// outboundFrame is the JSON frame written to the peer.
type outboundFrame struct {
	Message   string `json:"message"`
	Agent     string `json:"agent"`
	Timestamp string `json:"timestamp"`
	From      string `json:"from"`
	Type      string `json:"type"`
}

// run is the supervisor loop: connect, read until the connection drops,
// back off, repeat.
func (b *Bridge) run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		conn, err := b.connect(ctx)
		if err == nil {
			b.sendHello(ctx)
			err = b.serve(ctx, conn)
			b.dropConn(conn, err)
		}
		if ctx.Err() != nil {
			return
		}

		b.mu.Lock()
		if b.stopped {
			b.mu.Unlock()
			return
		}
		if b.attempts >= b.cfg.Backoff.MaxAttempts {
			b.state = model.BridgeDisconnected
			b.terminal = true
			attempts := b.attempts
			b.mu.Unlock()

			b.logger.Error("max reconnection attempts reached for external peer",
				zap.Int("attempts", attempts),
				zap.Error(err),
			)

			select {
			case <-b.retry:
				b.logger.Info("manual retry of external bridge")
				continue
			case <-ctx.Done():
				return
			}
		}

		delay := b.cfg.Backoff.Delay(b.attempts)
		b.attempts++
		b.state = model.BridgeBackoff
		attempt := b.attempts
		b.mu.Unlock()

		b.logger.Info("reconnecting to external peer",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", b.cfg.Backoff.MaxAttempts),
			zap.Duration("delay", delay),
		)

		if err := b.sleep(ctx, delay); err != nil {
			return
		}
	}
}

// connect dials once under the connect timeout.
func (b *Bridge) connect(ctx context.Context) (*websocket.Conn, error) {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return nil, model.ErrBridgeStopped
	}
	b.state = model.BridgeConnecting
	b.mu.Unlock()

	dialCtx, cancel := context.WithTimeout(ctx, b.cfg.ConnectTimeout)
	defer cancel()

	conn, resp, err := b.dialer.DialContext(dialCtx, b.url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		cerr := &model.ConnectionError{Op: "dial", Addr: b.url, Err: err}
		b.mu.Lock()
		b.lastErr = cerr
		b.mu.Unlock()
		b.logger.Warn("failed to connect to external peer", zap.Error(err))
		return nil, cerr
	}

	b.mu.Lock()
	if b.stopped || ctx.Err() != nil {
		b.mu.Unlock()
		conn.Close()
		return nil, model.ErrBridgeStopped
	}
	b.conn = conn
	b.state = model.BridgeConnected
	b.attempts = 0
	b.terminal = false
	b.lastErr = nil
	b.mu.Unlock()

	b.logger.Info("connected to external peer", zap.String("url", b.url))
	return conn, nil
}

func (b *Bridge) sendHello(ctx context.Context) {
	if b.cfg.Hello == "" {
		return
	}
	if err := b.Send(ctx, b.cfg.Hello, hub.SystemAgent); err != nil {
		b.logger.Warn("hello frame failed", zap.Error(err))
	}
}

// serve reads frames until the connection fails or ctx is cancelled.
func (b *Bridge) serve(ctx context.Context, conn *websocket.Conn) error {
	pongWait := b.cfg.PingInterval * 2

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	done := make(chan struct{})
	var heartbeat sync.WaitGroup
	heartbeat.Add(1)
	go func() {
		defer heartbeat.Done()
		b.heartbeat(conn, done)
	}()
	defer func() {
		close(done)
		heartbeat.Wait()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return &model.ConnectionError{Op: "read", Addr: b.url, Err: err}
		}

		msg, ok := model.DecodeFrame(data, model.KindExternal, model.DefaultExternalSender)
		if !ok {
			continue
		}
		if msg.Sender() == b.cfg.SessionID {
			continue
		}

		b.messagesIn.Add(1)
		b.logger.Debug("external message", zap.String("sender", msg.Sender()))

		if err := b.hub.IngestMessage(b.cfg.SessionID, msg); err != nil {
			b.logger.Warn("failed to ingest external message", zap.Error(err))
		}
	}
}

func (b *Bridge) heartbeat(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(b.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			b.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			b.writeMu.Unlock()
			if err != nil {
				b.logger.Debug("ping failed", zap.Error(err))
				conn.Close()
				return
			}
		}
	}
}

// dropConn clears the connection after the read loop ended.
func (b *Bridge) dropConn(conn *websocket.Conn, err error) {
	conn.Close()

	b.mu.Lock()
	if b.conn == conn {
		b.conn = nil
	}
	if !b.stopped {
		b.state = model.BridgeBackoff
		if b.lastErr == nil {
			b.lastErr = err
		}
	}
	b.mu.Unlock()

	b.logger.Info("external connection closed", zap.Error(err))
}
