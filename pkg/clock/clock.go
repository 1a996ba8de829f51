// Package clock provides the runtime clock the reactive engine defers work
// through.
//
// A Clock schedules callbacks that run on the UI goroutine. Two
// implementations are provided: Loop, a real single-goroutine event loop,
// and Manual, a manually advanced clock for deterministic tests.
package clock

import (
	"sync"
	"sync/atomic"
	"time"
)

// Clock is the scheduling surface of the windowing/event-loop backend.
// Callbacks scheduled on a Clock always run on the clock's own goroutine.
type Clock interface {
	// ScheduleOnce runs fn once after delay. A delay <= 0 runs fn on the
	// next tick.
	ScheduleOnce(fn func(), delay time.Duration) *Event

	// ScheduleInterval runs fn repeatedly every interval until the event
	// is unscheduled.
	ScheduleInterval(fn func(), interval time.Duration) *Event

	// Unschedule cancels a pending event. Unscheduling an event that has
	// already run or was already cancelled is a no-op.
	Unschedule(ev *Event)

	// Now returns the clock's current time.
	Now() time.Time
}

// Event is a handle to a scheduled callback.
type Event struct {
	id       uint64
	fn       func()
	due      time.Time
	interval time.Duration
	repeat   bool

	cancelled atomic.Bool
	done      chan struct{}
	once      sync.Once

	// index in the Manual heap, -1 when not queued.
	index int
}

var eventIDs atomic.Uint64

func newEvent(fn func(), due time.Time, interval time.Duration) *Event {
	return &Event{
		id:       eventIDs.Add(1),
		fn:       fn,
		due:      due,
		interval: interval,
		index:    -1,
	}
}

// ID returns the event's unique identifier.
func (e *Event) ID() uint64 {
	if e == nil {
		return 0
	}
	return e.id
}

// Due returns the time the event is next due.
func (e *Event) Due() time.Time {
	return e.due
}

// Repeating reports whether the event was scheduled with ScheduleInterval.
func (e *Event) Repeating() bool {
	return e != nil && e.repeat
}

// Cancelled reports whether the event was unscheduled.
func (e *Event) Cancelled() bool {
	return e == nil || e.cancelled.Load()
}

func (e *Event) cancel() {
	if e == nil {
		return
	}
	e.cancelled.Store(true)
	e.once.Do(func() {
		if e.done != nil {
			close(e.done)
		}
	})
}
