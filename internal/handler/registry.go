// Package handler maps handler tags to the capabilities that turn a
// classified message into a reply.
package handler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/agent-hub/backend/internal/model"
)

var (
	ErrEmptyTag      = errors.New("handler tag is empty")
	ErrHandlerExists = errors.New("handler already registered")
)

// Handler produces a reply for a message routed to it.
type Handler interface {
	Process(ctx context.Context, sessionID string, msg model.Message, history []model.Message) (string, error)
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(ctx context.Context, sessionID string, msg model.Message, history []model.Message) (string, error)

func (f HandlerFunc) Process(ctx context.Context, sessionID string, msg model.Message, history []model.Message) (string, error) {
	return f(ctx, sessionID, msg, history)
}

// Labeler is implemented by handlers that carry a display label for the
// agent field of outbound envelopes.
type Labeler interface {
	Label() string
}

// Reply is the outcome of a successful dispatch.
type Reply struct {
	Tag     string
	Label   string
	Content string
}

// Registry is a concurrency-safe tag to Handler map.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Handler
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Handler)}
}

// Register adds a handler under tag.
func (r *Registry) Register(tag string, h Handler) error {
	if tag == "" {
		return ErrEmptyTag
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[tag]; exists {
		return fmt.Errorf("%w: %s", ErrHandlerExists, tag)
	}
	r.entries[tag] = h
	return nil
}

// Has reports whether tag is registered.
func (r *Registry) Has(tag string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[tag]
	return ok
}

// Tags returns the registered tags in sorted order.
func (r *Registry) Tags() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tags := make([]string, 0, len(r.entries))
	for tag := range r.entries {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// Label returns the display label of tag, or the tag itself.
func (r *Registry) Label(tag string) string {
	r.mu.RLock()
	h, ok := r.entries[tag]
	r.mu.RUnlock()

	if ok {
		if l, ok := h.(Labeler); ok && l.Label() != "" {
			return l.Label()
		}
	}
	return tag
}

// Dispatch invokes the handler registered under tag. It returns
// model.ErrUnknownHandler for unregistered tags and wraps handler failures,
// including panics, in *model.HandlerError. The registry lock is not held
// while the handler runs.
func (r *Registry) Dispatch(ctx context.Context, tag, sessionID string, msg model.Message, history []model.Message) (reply Reply, err error) {
	r.mu.RLock()
	h, exists := r.entries[tag]
	r.mu.RUnlock()

	if !exists {
		return Reply{}, fmt.Errorf("%w: %s", model.ErrUnknownHandler, tag)
	}

	defer func() {
		if p := recover(); p != nil {
			reply = Reply{}
			err = &model.HandlerError{Tag: tag, Err: fmt.Errorf("panic: %v", p)}
		}
	}()

	content, err := h.Process(ctx, sessionID, msg, history)
	if err != nil {
		return Reply{}, &model.HandlerError{Tag: tag, Err: err}
	}

	return Reply{Tag: tag, Label: r.Label(tag), Content: content}, nil
}
