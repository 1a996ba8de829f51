package reactive

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	// ErrCycle is returned when a computed is reached again while it is
	// being computed.
	ErrCycle = errors.New("reactive: dependency cycle")

	// ErrDisposed is returned by Computed.Value once the computed was
	// disposed. Other reads of disposed primitives return zero values.
	ErrDisposed = errors.New("reactive: disposed")

	// ErrNotUIThread is matched by every *ThreadError.
	ErrNotUIThread = errors.New("reactive: not on the UI goroutine")
)

// ThreadError reports a UI-only operation invoked from another goroutine.
type ThreadError struct {
	Op        string // Operation that was refused
	Goroutine uint64 // Calling goroutine
	UI        uint64 // Bound UI goroutine
}

// Error returns the error message naming the refused operation.
func (e *ThreadError) Error() string {
	return fmt.Sprintf("reactive: %s called from goroutine %d, must run on UI goroutine %d",
		e.Op, e.Goroutine, e.UI)
}

// Unwrap returns ErrNotUIThread for errors.Is.
func (e *ThreadError) Unwrap() error {
	return ErrNotUIThread
}

// DeriveError wraps a failure raised while recomputing a derived cell.
type DeriveError struct {
	Cell string // Name or ID of the failing computed
	Err  error  // Underlying error
}

// Error returns the error message.
func (e *DeriveError) Error() string {
	return fmt.Sprintf("reactive: derive %s: %v", e.Cell, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *DeriveError) Unwrap() error {
	return e.Err
}

// PanicError carries a value recovered from a panicking derive function.
type PanicError struct {
	Value any
	Stack []byte
}

// Error returns the error message.
func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Unwrap returns the panic value when it is an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
