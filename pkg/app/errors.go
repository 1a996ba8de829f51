package app

import (
	"errors"
	"fmt"
)

var (
	// ErrNoLoop is returned by Run when the app's clock is not a *clock.Loop.
	ErrNoLoop = errors.New("app: clock is not an event loop")

	// ErrClosed is returned by operations on a closed app.
	ErrClosed = errors.New("app: closed")
)

// HandlerError wraps a panic that occurred in an event handler.
type HandlerError struct {
	Kind  string
	Node  string
	Panic any
	Stack []byte
}

// Error returns the error message.
func (e *HandlerError) Error() string {
	return fmt.Sprintf("app: handler panic in %s handler on %s: %v", e.Kind, e.Node, e.Panic)
}

// Unwrap returns the panic value when it is an error.
func (e *HandlerError) Unwrap() error {
	if err, ok := e.Panic.(error); ok {
		return err
	}
	return nil
}

// NewHandlerError creates a new HandlerError.
func NewHandlerError(kind, node string, panicVal any, stack []byte) *HandlerError {
	return &HandlerError{
		Kind:  kind,
		Node:  node,
		Panic: panicVal,
		Stack: stack,
	}
}
