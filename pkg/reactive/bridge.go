package reactive

import (
	"sync/atomic"

	"github.com/vango-dev/ripple/pkg/clock"
)

// Bridge marshals notification delivery for UI-bound sources onto one
// designated UI goroutine through the runtime clock.
//
// A bridge is bound to the goroutine that creates it. Event loops that
// run on a different goroutine rebind it with BindUIThread when they
// start.
type Bridge struct {
	clock clock.Clock
	ui    atomic.Uint64

	onViolation atomic.Pointer[func(*ThreadError)]
}

// NewBridge creates a bridge delivering through c, bound to the calling
// goroutine.
func NewBridge(c clock.Clock) *Bridge {
	b := &Bridge{clock: c}
	b.ui.Store(goroutineID())
	return b
}

// Clock returns the clock deliveries are scheduled on.
func (b *Bridge) Clock() clock.Clock {
	return b.clock
}

// BindUIThread makes the calling goroutine the UI goroutine.
func (b *Bridge) BindUIThread() {
	b.ui.Store(goroutineID())
}

// UIGoroutine returns the bound goroutine's ID.
func (b *Bridge) UIGoroutine() uint64 {
	return b.ui.Load()
}

// OnUIThread reports whether the caller runs on the UI goroutine. A nil
// bridge has no UI goroutine and always answers true.
func (b *Bridge) OnUIThread() bool {
	if b == nil {
		return true
	}
	return goroutineID() == b.ui.Load()
}

// OnViolation registers fn to observe every refused UI-only call.
func (b *Bridge) OnViolation(fn func(*ThreadError)) {
	b.onViolation.Store(&fn)
}

// AssertUIThread returns a *ThreadError naming op when called off the UI
// goroutine, and nil otherwise.
func (b *Bridge) AssertUIThread(op string) error {
	if b == nil {
		return nil
	}
	gid := goroutineID()
	ui := b.ui.Load()
	if gid == ui {
		return nil
	}
	err := &ThreadError{Op: op, Goroutine: gid, UI: ui}
	if fn := b.onViolation.Load(); fn != nil && *fn != nil {
		(*fn)(err)
	}
	return err
}

// MustUIThread panics with a *ThreadError when called off the UI
// goroutine.
func (b *Bridge) MustUIThread(op string) {
	if err := b.AssertUIThread(op); err != nil {
		panic(err)
	}
}

// Post schedules fn on the UI goroutine's next tick.
func (b *Bridge) Post(fn func()) *clock.Event {
	return b.clock.ScheduleOnce(fn, 0)
}
