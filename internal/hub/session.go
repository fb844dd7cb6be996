package hub

import (
	"context"
	"sync"
	"time"

	"github.com/agent-hub/backend/internal/buffer"
	"github.com/agent-hub/backend/internal/model"
)

// Transport carries envelopes to one session's peer.
type Transport interface {
	Send(env model.Envelope) error
	Close() error
}

// Session is a live conversation owned by the Hub.
type Session struct {
	id        string
	virtual   bool
	transport Transport
	createdAt time.Time

	history *buffer.RingBuffer[model.Message]
	inbox   chan model.Message

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	// closing is guarded by the hub lock; closed is closed once teardown
	// has finished.
	closing bool
	closed  chan struct{}

	mu           sync.Mutex
	lastActivity time.Time
	lastHandler  string
}

func newSession(parent context.Context, id string, transport Transport, virtual bool, window, inbox int) *Session {
	ctx, cancel := context.WithCancel(parent)
	now := time.Now()
	return &Session{
		id:           id,
		virtual:      virtual,
		transport:    transport,
		createdAt:    now,
		history:      buffer.NewRingBuffer[model.Message](window),
		inbox:        make(chan model.Message, inbox),
		ctx:          ctx,
		cancel:       cancel,
		done:         make(chan struct{}),
		closed:       make(chan struct{}),
		lastActivity: now,
	}
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Virtual reports whether the session stands in for the external peer.
func (s *Session) Virtual() bool { return s.virtual }

// History returns the retained messages, oldest first.
func (s *Session) History() []model.Message { return s.history.Items() }

// Summary returns a snapshot for status endpoints.
func (s *Session) Summary() model.SessionSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return model.SessionSummary{
		ID:           s.id,
		CreatedAt:    s.createdAt,
		LastActivity: s.lastActivity,
		MessageCount: s.history.Total(),
		LastHandler:  s.lastHandler,
		Virtual:      s.virtual,
	}
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

func (s *Session) setLastHandler(tag string) {
	s.mu.Lock()
	s.lastHandler = tag
	s.lastActivity = time.Now()
	s.mu.Unlock()
}
