package app

import "github.com/zoobzio/capitan"

// Runtime lifecycle signals.
var (
	// FrameFlushed is emitted after every frame.
	FrameFlushed = capitan.NewSignal(
		"ripple.frame.flushed",
		"Frame flushed the binding queue and rendered dirty nodes",
	)

	// ScopeBuildFailed is emitted when a scope builder fails.
	ScopeBuildFailed = capitan.NewSignal(
		"ripple.scope.build.failed",
		"Scope builder failed; placeholder rendered",
	)

	// HandlerPanicked is emitted when an event handler panics.
	HandlerPanicked = capitan.NewSignal(
		"ripple.handler.panicked",
		"Event handler panicked and was recovered",
	)

	// ThreadViolation is emitted when a UI-only call runs off the UI goroutine.
	ThreadViolation = capitan.NewSignal(
		"ripple.thread.violation",
		"UI-only call refused off the UI goroutine",
	)
)

// Signal fields.
var (
	KeyFrame    = capitan.NewIntKey("frame")
	KeyEntries  = capitan.NewIntKey("entries")
	KeyLayouts  = capitan.NewIntKey("layouts")
	KeyPaints   = capitan.NewIntKey("paints")
	KeyDuration = capitan.NewDurationKey("duration")
	KeyNode     = capitan.NewStringKey("node")
	KeyScope    = capitan.NewStringKey("scope")
	KeyKind     = capitan.NewStringKey("kind")
	KeyOp       = capitan.NewStringKey("op")
	KeyError    = capitan.NewStringKey("error")
)
