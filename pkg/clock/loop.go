package clock

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zoobzio/clockz"
)

// ErrLoopRunning is returned by Run when the loop is already running.
var ErrLoopRunning = errors.New("clock: loop already running")

// minInterval bounds ScheduleInterval on a real loop so a zero interval
// does not spin the loop goroutine.
const minInterval = time.Millisecond

// Loop is a single-goroutine event loop. The goroutine calling Run is the
// loop goroutine; every callback runs there, in posting order.
type Loop struct {
	source clockz.Clock
	logger *slog.Logger

	mu      sync.Mutex
	ready   []*Event
	onStart []func()
	wake    chan struct{}

	running atomic.Bool
	ran     atomic.Uint64
}

// LoopOption configures a Loop.
type LoopOption func(*Loop)

// WithTimeSource sets the clock used for Now and for delayed events.
// Tests pass a clockz.FakeClock.
func WithTimeSource(c clockz.Clock) LoopOption {
	return func(l *Loop) {
		if c != nil {
			l.source = c
		}
	}
}

// WithLoopLogger sets the logger used to report callback panics.
func WithLoopLogger(logger *slog.Logger) LoopOption {
	return func(l *Loop) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewLoop creates a loop backed by clockz.RealClock.
func NewLoop(opts ...LoopOption) *Loop {
	l := &Loop{
		source: clockz.RealClock,
		logger: slog.Default(),
		wake:   make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Now returns the current time of the loop's time source.
func (l *Loop) Now() time.Time {
	return l.source.Now()
}

// Running reports whether Run is active.
func (l *Loop) Running() bool {
	return l.running.Load()
}

// Executed returns the number of callbacks run so far.
func (l *Loop) Executed() uint64 {
	return l.ran.Load()
}

// OnStart registers fn to run on the loop goroutine when Run starts,
// before any queued callback.
func (l *Loop) OnStart(fn func()) {
	l.mu.Lock()
	l.onStart = append(l.onStart, fn)
	l.mu.Unlock()
}

// Post queues fn to run on the loop goroutine. Safe from any goroutine and
// never blocks.
func (l *Loop) Post(fn func()) *Event {
	return l.ScheduleOnce(fn, 0)
}

// ScheduleOnce runs fn on the loop goroutine after delay.
func (l *Loop) ScheduleOnce(fn func(), delay time.Duration) *Event {
	ev := newEvent(fn, l.source.Now().Add(delay), 0)
	ev.done = make(chan struct{})
	if delay <= 0 {
		l.enqueue(ev)
		return ev
	}
	l.arm(ev, delay)
	return ev
}

// ScheduleInterval runs fn on the loop goroutine every interval.
func (l *Loop) ScheduleInterval(fn func(), interval time.Duration) *Event {
	if interval < minInterval {
		interval = minInterval
	}
	ev := newEvent(fn, l.source.Now().Add(interval), interval)
	ev.repeat = true
	ev.done = make(chan struct{})
	l.arm(ev, interval)
	return ev
}

// Unschedule cancels ev. A callback already handed to the loop is skipped.
func (l *Loop) Unschedule(ev *Event) {
	ev.cancel()
}

// arm waits for the delay on a timer goroutine and then hands the event to
// the loop.
func (l *Loop) arm(ev *Event, delay time.Duration) {
	timer := l.source.NewTimer(delay)
	go func() {
		select {
		case <-timer.C():
			l.enqueue(ev)
		case <-ev.done:
			timer.Stop()
		}
	}()
}

func (l *Loop) enqueue(ev *Event) {
	if ev.Cancelled() {
		return
	}
	l.mu.Lock()
	l.ready = append(l.ready, ev)
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *Loop) drain() []*Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	batch := l.ready
	l.ready = nil
	return batch
}

// Run executes callbacks on the calling goroutine until ctx is done.
// Events already taken from the queue when ctx ends are cancelled.
func (l *Loop) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return ErrLoopRunning
	}
	defer l.running.Store(false)

	l.mu.Lock()
	hooks := append([]func(){}, l.onStart...)
	l.mu.Unlock()
	for _, fn := range hooks {
		l.execute(fn)
	}

	for {
		batch := l.drain()
		for i, ev := range batch {
			if ctx.Err() != nil {
				// Drained events that will not run are cancelled, not lost.
				for _, rest := range batch[i:] {
					rest.cancel()
				}
				return nil
			}
			l.run(ev)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-l.wake:
		}
	}
}

func (l *Loop) run(ev *Event) {
	if ev.Cancelled() {
		return
	}
	l.execute(ev.fn)
	l.ran.Add(1)
	if ev.repeat && !ev.Cancelled() {
		ev.due = l.source.Now().Add(ev.interval)
		l.arm(ev, ev.interval)
	}
}

// execute runs fn, recovering a panic so the loop goroutine survives.
func (l *Loop) execute(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("clock: callback panic",
				"panic", r,
				"stack", string(debug.Stack()))
		}
	}()
	fn()
}
