// Package hub owns live sessions and runs each one's message pipeline:
// decode, classify, dispatch to a handler, deliver the reply.
//
// Every session has a single worker goroutine draining a FIFO inbox, so
// messages of one session are handled strictly in arrival order while
// different sessions proceed in parallel.
package hub

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agent-hub/backend/internal/handler"
	"github.com/agent-hub/backend/internal/model"
)

// SystemAgent is the agent name on envelopes produced by the hub itself.
const SystemAgent = "System"

const (
	DefaultHistoryWindow  = 50
	DefaultInboxSize      = 64
	DefaultHandlerTimeout = 60 * time.Second

	handlerFailureMessage = "Sorry, I encountered an error processing your message. Please try again."
)

// Router selects a handler for a message. It must never fail.
type Router interface {
	Classify(ctx context.Context, msg model.Message, history []model.Message) model.RoutingDecision
}

// Dispatcher runs the handler registered for a tag.
type Dispatcher interface {
	Dispatch(ctx context.Context, tag, sessionID string, msg model.Message, history []model.Message) (handler.Reply, error)
	Label(tag string) string
}

// Recorder persists conversation turns.
type Recorder interface {
	Append(ctx context.Context, sessionID string, msg model.Message) error
}

// Config holds hub settings.
type Config struct {
	HistoryWindow  int
	InboxSize      int
	HandlerTimeout time.Duration

	// Typing sends "<Label> is thinking..." before each dispatch.
	Typing bool
	// Welcome is sent as a system envelope to local sessions on connect.
	Welcome string
}

// Stats are cumulative hub counters.
type Stats struct {
	Ingested         int64 `json:"ingested"`
	Processed        int64 `json:"processed"`
	HandlerErrors    int64 `json:"handler_errors"`
	DeliveryFailures int64 `json:"delivery_failures"`
}

// Hub manages live sessions.
type Hub struct {
	router   Router
	registry Dispatcher
	recorder Recorder
	cfg      Config
	logger   *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.RWMutex
	sessions map[string]*Session

	ingested         atomic.Int64
	processed        atomic.Int64
	handlerErrors    atomic.Int64
	deliveryFailures atomic.Int64
}

// New creates a Hub.
func New(router Router, registry Dispatcher, cfg Config, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = DefaultHistoryWindow
	}
	if cfg.InboxSize <= 0 {
		cfg.InboxSize = DefaultInboxSize
	}
	if cfg.HandlerTimeout <= 0 {
		cfg.HandlerTimeout = DefaultHandlerTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		router:   router,
		registry: registry,
		cfg:      cfg,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		sessions: make(map[string]*Session),
	}
}

// SetRecorder sets the transcript sink. Must be called before sessions connect.
func (h *Hub) SetRecorder(r Recorder) {
	h.recorder = r
}

// Connect registers a local session. An empty id is replaced by a generated one.
func (h *Hub) Connect(transport Transport, sessionID string) (*Session, error) {
	s, err := h.connect(transport, sessionID, false)
	if err != nil {
		return nil, err
	}
	if h.cfg.Welcome != "" {
		env := model.NewEnvelope(model.EnvelopeSystem, h.cfg.Welcome, SystemAgent)
		env.UserID = s.id
		h.deliver(s, env)
	}
	return s, nil
}

// ConnectVirtual registers the session that stands in for the external peer.
// Messages it ingests without an explicit kind are tagged external.
func (h *Hub) ConnectVirtual(transport Transport, sessionID string) (*Session, error) {
	return h.connect(transport, sessionID, true)
}

func (h *Hub) connect(transport Transport, sessionID string, virtual bool) (*Session, error) {
	if transport == nil {
		return nil, errors.New("transport is required")
	}
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	h.mu.Lock()
	if h.ctx.Err() != nil {
		h.mu.Unlock()
		return nil, errors.New("hub is closed")
	}
	if _, exists := h.sessions[sessionID]; exists {
		h.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", model.ErrDuplicateSession, sessionID)
	}
	s := newSession(h.ctx, sessionID, transport, virtual, h.cfg.HistoryWindow, h.cfg.InboxSize)
	h.sessions[sessionID] = s
	h.mu.Unlock()

	go h.run(s)

	h.logger.Info("session connected",
		zap.String("session_id", sessionID),
		zap.Bool("virtual", virtual),
	)
	return s, nil
}

// Disconnect tears down a session. Any in-flight handler call is cancelled
// and its result discarded. Disconnecting an unknown id is a no-op. The id
// stays reserved until the worker has exited and the transport is closed;
// concurrent calls wait for the same teardown.
func (h *Hub) Disconnect(sessionID string) {
	h.mu.RLock()
	s, exists := h.sessions[sessionID]
	h.mu.RUnlock()

	if exists {
		h.teardown(s)
	}
}

// DisconnectSession tears down s only if it still owns its id, so a stale
// transport cannot end a newer session that reused the id.
func (h *Hub) DisconnectSession(s *Session) {
	if s != nil {
		h.teardown(s)
	}
}

func (h *Hub) teardown(s *Session) {
	h.mu.Lock()
	if h.sessions[s.id] != s {
		h.mu.Unlock()
		return
	}
	if s.closing {
		h.mu.Unlock()
		<-s.closed
		return
	}
	s.closing = true
	h.mu.Unlock()

	s.cancel()
	<-s.done
	if err := s.transport.Close(); err != nil {
		h.logger.Debug("transport close failed", zap.String("session_id", s.id), zap.Error(err))
	}

	h.mu.Lock()
	delete(h.sessions, s.id)
	h.mu.Unlock()
	close(s.closed)

	h.logger.Info("session disconnected",
		zap.String("session_id", s.id),
		zap.Int64("messages", s.history.Total()),
	)
}

// Get returns a live session. Sessions being torn down are not returned.
func (h *Hub) Get(sessionID string) (*Session, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.sessions[sessionID]
	if !ok || s.closing {
		return nil, false
	}
	return s, true
}

// Deliver sends env to a live session.
func (h *Hub) Deliver(sessionID string, env model.Envelope) error {
	s, ok := h.Get(sessionID)
	if !ok {
		h.deliveryFailures.Add(1)
		return &model.TransportError{SessionID: sessionID, Err: model.ErrSessionNotFound}
	}
	return h.deliver(s, env)
}

func (h *Hub) deliver(s *Session, env model.Envelope) error {
	if err := s.transport.Send(env); err != nil {
		h.deliveryFailures.Add(1)
		h.logger.Warn("delivery failed",
			zap.String("session_id", s.id),
			zap.String("type", string(env.Type)),
			zap.Error(err),
		)
		return &model.TransportError{SessionID: s.id, Err: err}
	}
	return nil
}

// Ingest decodes a raw inbound frame and queues it on the session inbox.
// Frames without content are ignored.
func (h *Hub) Ingest(sessionID string, raw []byte) error {
	s, ok := h.Get(sessionID)
	if !ok {
		return &model.TransportError{SessionID: sessionID, Err: model.ErrSessionNotFound}
	}

	kind, sender := model.KindUser, sessionID
	if s.virtual {
		kind, sender = model.KindExternal, model.DefaultExternalSender
	}
	msg, ok := model.DecodeFrame(raw, kind, sender)
	if !ok {
		return nil
	}
	return h.enqueue(s, msg)
}

// IngestMessage queues an already decoded message.
func (h *Hub) IngestMessage(sessionID string, msg model.Message) error {
	if msg.IsZero() {
		return nil
	}
	s, ok := h.Get(sessionID)
	if !ok {
		return &model.TransportError{SessionID: sessionID, Err: model.ErrSessionNotFound}
	}
	return h.enqueue(s, msg)
}

func (h *Hub) enqueue(s *Session, msg model.Message) error {
	select {
	case s.inbox <- msg:
		h.ingested.Add(1)
		s.touch()
		return nil
	case <-s.ctx.Done():
		return &model.TransportError{SessionID: s.id, Err: model.ErrSessionNotFound}
	}
}

// run is the session worker.
func (h *Hub) run(s *Session) {
	defer close(s.done)
	for {
		select {
		case <-s.ctx.Done():
			return
		case msg := <-s.inbox:
			h.process(s, msg)
		}
	}
}

func (h *Hub) process(s *Session, msg model.Message) {
	logger := h.logger.With(zap.String("session_id", s.id))

	prior := s.history.Items()
	s.history.Push(msg)
	h.record(s, msg)

	decision := h.router.Classify(s.ctx, msg, prior)
	if s.ctx.Err() != nil {
		return
	}
	label := h.registry.Label(decision.Handler)

	logger.Info("routed message",
		zap.String("handler", decision.Handler),
		zap.Float64("confidence", decision.Confidence),
		zap.String("tier", string(decision.Tier)),
	)

	if h.cfg.Typing {
		env := model.NewEnvelope(model.EnvelopeTyping, label+" is thinking...", SystemAgent)
		env.UserID = s.id
		h.deliver(s, env)
	}

	ctx, cancel := context.WithTimeout(s.ctx, h.cfg.HandlerTimeout)
	reply, err := h.registry.Dispatch(ctx, decision.Handler, s.id, msg, prior)
	cancel()

	if s.ctx.Err() != nil {
		logger.Debug("discarding reply for disconnected session", zap.String("handler", decision.Handler))
		return
	}
	h.processed.Add(1)

	if err != nil {
		h.handlerErrors.Add(1)
		logger.Error("handler failed", zap.String("handler", decision.Handler), zap.Error(err))
		env := model.NewEnvelope(model.EnvelopeError, handlerFailureMessage, SystemAgent)
		env.UserID = s.id
		h.deliver(s, env)
		return
	}

	meta := map[string]any{
		"handler":    reply.Tag,
		"confidence": decision.Confidence,
		"reasoning":  decision.Reasoning,
		"tier":       string(decision.Tier),
	}
	out := model.NewMessage(reply.Content, reply.Label, model.KindHandler, meta)
	s.history.Push(out)
	s.setLastHandler(reply.Tag)

	env := model.NewEnvelope(model.EnvelopeMessage, reply.Content, reply.Label)
	env.UserID = s.id
	env.Metadata = meta
	h.deliver(s, env)

	h.record(s, out)
}

func (h *Hub) record(s *Session, msg model.Message) {
	if h.recorder == nil {
		return
	}
	if err := h.recorder.Append(s.ctx, s.id, msg); err != nil {
		h.logger.Warn("transcript append failed", zap.String("session_id", s.id), zap.Error(err))
	}
}

// Sessions returns summaries of all live sessions.
func (h *Hub) Sessions() []model.SessionSummary {
	h.mu.RLock()
	sessions := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		if !s.closing {
			sessions = append(sessions, s)
		}
	}
	h.mu.RUnlock()

	out := make([]model.SessionSummary, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Summary())
	}
	return out
}

// Count returns the number of live sessions.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, s := range h.sessions {
		if !s.closing {
			n++
		}
	}
	return n
}

// Stats returns hub counters.
func (h *Hub) Stats() Stats {
	return Stats{
		Ingested:         h.ingested.Load(),
		Processed:        h.processed.Load(),
		HandlerErrors:    h.handlerErrors.Load(),
		DeliveryFailures: h.deliveryFailures.Load(),
	}
}

// Close disconnects every session and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.cancel()
	sessions := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.Unlock()

	for _, s := range sessions {
		h.teardown(s)
	}
}
