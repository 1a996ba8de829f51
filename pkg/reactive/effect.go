package reactive

import (
	"runtime/debug"
	"sync"
	"sync/atomic"
)

// Effect re-runs a function whenever a source it read changes.
//
// Like a computed, an effect rediscovers its dependencies on every run.
// Effects created with OnUI always run on the UI goroutine; a change
// arriving from another goroutine schedules one coalesced run.
type Effect struct {
	fn      func(*Frame)
	tracker *Tracker
	bridge  *Bridge
	name    string

	mu      sync.Mutex
	running bool
	pending bool

	disposed atomic.Bool
	runs     atomic.Uint64

	out outbox
}

// Watch creates an effect and runs it once, immediately.
//
// Example:
//
//	e := reactive.Watch(func(f *reactive.Frame) {
//	    log.Println("size is now", size.Get(f))
//	})
//	defer e.Dispose()
func Watch(fn func(f *Frame), opts ...Option) *Effect {
	o := applyOptions(opts)
	e := &Effect{fn: fn, bridge: o.bridge, name: o.name}
	e.tracker = NewTracker(e.schedule)
	if o.owner != nil {
		o.owner.Own(e)
	}
	e.run()
	return e
}

// ID returns the effect's tracker ID.
func (e *Effect) ID() uint64 {
	return e.tracker.ID()
}

// Runs returns how many times the effect function has run.
func (e *Effect) Runs() uint64 {
	return e.runs.Load()
}

// Dispose stops the effect.
func (e *Effect) Dispose() {
	if !e.disposed.CompareAndSwap(false, true) {
		return
	}
	e.out.cancel(e.bridge)
	e.tracker.Dispose()
}

func (e *Effect) schedule() {
	if e.disposed.Load() {
		return
	}
	if e.bridge != nil && !e.bridge.OnUIThread() {
		e.out.mu.Lock()
		e.out.armLocked(e.bridge, e.flushOutbox)
		e.out.mu.Unlock()
		return
	}
	e.run()
}

func (e *Effect) flushOutbox() {
	e.out.mu.Lock()
	ok := e.out.takeLocked()
	e.out.mu.Unlock()
	if ok {
		stats.uiFlushes.Add(1)
		e.run()
	}
}

// run executes the effect, folding re-entrant triggers into one more pass.
func (e *Effect) run() {
	e.mu.Lock()
	if e.running {
		e.pending = true
		e.mu.Unlock()
		return
	}
	e.running = true
	e.mu.Unlock()

	for {
		if !e.disposed.Load() {
			e.once()
		}
		e.mu.Lock()
		if !e.pending || e.disposed.Load() {
			e.running = false
			e.pending = false
			e.mu.Unlock()
			return
		}
		e.pending = false
		e.mu.Unlock()
	}
}

func (e *Effect) once() {
	defer func() {
		if r := recover(); r != nil {
			logger().Error("reactive: effect panicked",
				"effect", e.name,
				"panic", r,
				"stack", string(debug.Stack()))
		}
	}()
	e.runs.Add(1)
	e.tracker.Run(e.fn)
}
