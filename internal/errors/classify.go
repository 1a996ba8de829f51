package errors

import (
	stderrors "errors"

	"github.com/vango-dev/ripple/pkg/app"
	"github.com/vango-dev/ripple/pkg/clock"
	"github.com/vango-dev/ripple/pkg/reactive"
)

// Classify maps an error returned by the engine to its diagnostic code.
// Unrecognised errors become uncoded runtime diagnostics. Classify
// returns nil for a nil error.
func Classify(err error) *Diagnostic {
	if err == nil {
		return nil
	}
	var d *Diagnostic
	if stderrors.As(err, &d) {
		return d
	}

	var (
		thread  *reactive.ThreadError
		derive  *reactive.DeriveError
		handler *app.HandlerError
	)
	switch {
	case stderrors.As(err, &thread):
		return New("R101").Wrap(err)
	case stderrors.As(err, &handler):
		return New("R202").Wrap(err)
	case stderrors.Is(err, reactive.ErrCycle):
		return New("R001").Wrap(err)
	case stderrors.As(err, &derive):
		return New("R003").Wrap(err)
	case stderrors.Is(err, reactive.ErrDisposed):
		return New("R002").Wrap(err)
	case stderrors.Is(err, app.ErrNoLoop):
		return New("R301").Wrap(err)
	case stderrors.Is(err, app.ErrClosed):
		return New("R302").Wrap(err)
	case stderrors.Is(err, clock.ErrLoopRunning):
		return New("R303").Wrap(err)
	}
	return &Diagnostic{Category: CategoryRuntime, Message: err.Error(), Wrapped: err}
}
