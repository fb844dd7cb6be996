package model

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionNotFound is returned when a session is not live in the hub.
	ErrSessionNotFound = errors.New("session not found")

	// ErrDuplicateSession is returned when connecting an id that is already live.
	ErrDuplicateSession = errors.New("session already connected")

	// ErrUnknownHandler is returned when dispatching to an unregistered handler tag.
	ErrUnknownHandler = errors.New("unknown handler")

	// ErrNotConnected is returned when sending through a bridge that is not connected.
	ErrNotConnected = errors.New("external bridge not connected")

	// ErrBridgeStopped is returned when operating on a bridge after Stop.
	ErrBridgeStopped = errors.New("external bridge stopped")

	// ErrEmptyContent is returned when an outbound relay request has no content.
	ErrEmptyContent = errors.New("message content is required")
)

// TransportError reports a failed delivery to a local or virtual session.
type TransportError struct {
	SessionID string
	Err       error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("deliver to session %s: %v", e.SessionID, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ClassificationError records why the fallback classifier could not produce a decision.
type ClassificationError struct {
	Cause string // "timeout", "error", "parse", "unknown_handler", "no_classifier"
	Err   error
}

func (e *ClassificationError) Error() string {
	if e.Err == nil {
		return "classification " + e.Cause
	}
	return fmt.Sprintf("classification %s: %v", e.Cause, e.Err)
}

func (e *ClassificationError) Unwrap() error { return e.Err }

// ConnectionError is a bridge dial, read or write failure.
type ConnectionError struct {
	Op   string // "dial", "read", "write"
	Addr string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Addr, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// HandlerError wraps a failure returned (or panicked) by a domain handler.
type HandlerError struct {
	Tag string
	Err error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("handler %s failed: %v", e.Tag, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }
