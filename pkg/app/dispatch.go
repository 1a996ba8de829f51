package app

import (
	"context"
	"runtime/debug"

	"github.com/zoobzio/capitan"

	"github.com/vango-dev/ripple/pkg/reactive"
	"github.com/vango-dev/ripple/pkg/scope"
	"github.com/vango-dev/ripple/pkg/widget"
)

// DispatchPointer delivers ev to target, bubbling to ancestors. The
// handler runs inside a batch; a panic is recovered and returned as a
// *HandlerError. UI goroutine only.
func (a *App) DispatchPointer(target *widget.Node, ev widget.PointerEvent) (bool, error) {
	if err := a.bridge.AssertUIThread("app.DispatchPointer"); err != nil {
		return false, err
	}
	return a.dispatch("pointer", target, func() bool {
		return target.HandlePointer(ev) != nil
	})
}

// DispatchKey delivers ev like DispatchPointer.
func (a *App) DispatchKey(target *widget.Node, ev widget.KeyEvent) (bool, error) {
	if err := a.bridge.AssertUIThread("app.DispatchKey"); err != nil {
		return false, err
	}
	return a.dispatch("key", target, func() bool {
		return target.HandleKey(ev) != nil
	})
}

func (a *App) dispatch(kind string, target *widget.Node, handle func() bool) (handled bool, err error) {
	if target == nil {
		return false, nil
	}
	defer func() {
		if r := recover(); r != nil {
			herr := NewHandlerError(kind, target.String(), r, debug.Stack())
			a.metrics.handlerPanics.WithLabelValues(kind).Inc()
			a.logger.Error("app: handler panic",
				"kind", kind,
				"node", target.String(),
				"panic", r,
				"stack", string(herr.Stack))
			capitan.Emit(context.Background(), HandlerPanicked,
				KeyKind.Field(kind),
				KeyNode.Field(target.String()),
				KeyError.Field(herr.Error()),
			)
			handled, err = false, herr
		}
	}()

	reactive.Batch(func() {
		handled = handle()
	})
	return handled, nil
}

// ScopeRebuilt implements widget.ScopeReporter.
func (a *App) ScopeRebuilt(n *widget.Node, key scope.Key) {
	a.metrics.scopeRebuilds.Inc()
}

// ScopeFailed implements widget.ScopeReporter.
func (a *App) ScopeFailed(n *widget.Node, key scope.Key, id uint64, err error) {
	a.metrics.scopeFailures.Inc()
	capitan.Emit(context.Background(), ScopeBuildFailed,
		KeyNode.Field(n.String()),
		KeyScope.Field(string(key)),
		KeyError.Field(err.Error()),
	)
}
