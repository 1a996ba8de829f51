package reactive

import (
	"runtime/debug"
	"sync"
	"sync/atomic"
)

// Computed is a memoized value derived from other sources.
//
// Its dependency set is exactly the sources read by the last run of its
// derive function. A change to any of them marks it dirty; it recomputes
// when read, or right away when it has subscribers other than further
// computeds. A recomputation producing an equal value does not notify.
type Computed[T any] struct {
	sourceBase

	derive func(*Frame) (T, error)
	equal  func(T, T) bool

	// mu serializes recomputation and guards deps, has and err.
	mu        sync.Mutex
	deps      []dep
	has       bool
	err       error
	computing atomic.Uint64

	valMu sync.RWMutex
	value T

	dirty  atomic.Bool
	failed atomic.Bool

	out outbox

	// site is where the computed was created, reported when its
	// comparator fails.
	site uintptr
}

// NewComputed creates a computed from fn. fn runs lazily, on first read.
//
// Example:
//
//	full := reactive.NewComputed(func(f *reactive.Frame) string {
//	    return first.Get(f) + " " + last.Get(f)
//	})
func NewComputed[T any](fn func(f *Frame) T, opts ...Option) *Computed[T] {
	return newComputed(infallible(fn), callerPC(1), opts)
}

// NewComputedE creates a computed whose derive function can fail.
func NewComputedE[T any](fn func(f *Frame) (T, error), opts ...Option) *Computed[T] {
	return newComputed(fn, callerPC(1), opts)
}

func infallible[T any](fn func(f *Frame) T) func(*Frame) (T, error) {
	return func(f *Frame) (T, error) {
		return fn(f), nil
	}
}

func newComputed[T any](fn func(f *Frame) (T, error), site uintptr, opts []Option) *Computed[T] {
	o := applyOptions(opts)
	c := &Computed[T]{derive: fn, site: site}
	c.init(o)
	c.dirty.Store(true)
	if o.owner != nil {
		o.owner.Own(c)
	}
	return c
}

// WithEquals sets the comparator used for the equality cutoff.
func (c *Computed[T]) WithEquals(fn func(T, T) bool) *Computed[T] {
	c.equal = fn
	return c
}

// Get returns the up-to-date value and records the computed on f.
// A failed derivation panics with *DeriveError, which propagates through
// enclosing computeds to the outermost reader. A disposed computed returns
// the zero value.
func (c *Computed[T]) Get(f *Frame) T {
	if c.disposed.Load() {
		var zero T
		return zero
	}
	v, err := c.Value(f)
	if err != nil {
		panic(err)
	}
	return v
}

// Value is Get returning the derive failure instead of panicking. On a
// disposed computed it returns the zero value and ErrDisposed.
func (c *Computed[T]) Value(f *Frame) (T, error) {
	if c.disposed.Load() {
		var zero T
		return zero, ErrDisposed
	}
	err := c.refresh(f)
	f.track(c)
	if err != nil {
		var zero T
		return zero, err
	}
	return c.current(), nil
}

// Peek returns the up-to-date value without tracking. On failure it
// returns the last successfully computed value.
func (c *Computed[T]) Peek() T {
	if c.disposed.Load() {
		var zero T
		return zero
	}
	v, err := c.Value(nil)
	if err != nil {
		return c.current()
	}
	return v
}

// Err returns the error of the last failed derivation, or nil.
func (c *Computed[T]) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Dirty reports whether a dependency notified since the last validation.
func (c *Computed[T]) Dirty() bool {
	return c.dirty.Load()
}

// Deps returns the number of sources read by the last derivation.
func (c *Computed[T]) Deps() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.deps)
}

// Subscribe evaluates the computed and registers fn to receive every
// changed value.
func (c *Computed[T]) Subscribe(fn func(T)) *Subscription {
	if c.disposed.Load() {
		return &Subscription{}
	}
	_ = c.refresh(nil)
	return c.subscribe(&valueListener[T]{id: nextID(), fn: fn})
}

// Observe evaluates the computed and registers fn to run whenever its
// value changes.
func (c *Computed[T]) Observe(fn func()) *Subscription {
	if c.disposed.Load() {
		return &Subscription{}
	}
	_ = c.refresh(nil)
	return c.observe(fn)
}

// Dispose unsubscribes from all dependencies and drops subscribers.
func (c *Computed[T]) Dispose() {
	if !c.dispose() {
		return
	}
	c.out.cancel(c.bridge)
	c.mu.Lock()
	for _, d := range c.deps {
		d.src.unsubscribe(c)
	}
	c.deps = nil
	c.mu.Unlock()
}

// MarkDirty implements Listener.
func (c *Computed[T]) MarkDirty() {
	if c.disposed.Load() {
		return
	}
	if !c.dirty.CompareAndSwap(false, true) && !c.failed.Load() {
		return
	}
	if c.offUI() {
		c.out.mu.Lock()
		c.out.armLocked(c.bridge, c.flushOutbox)
		c.out.mu.Unlock()
		return
	}
	c.push()
}

func (c *Computed[T]) lazy() {}

func (c *Computed[T]) current() T {
	c.valMu.RLock()
	defer c.valMu.RUnlock()
	return c.value
}

func (c *Computed[T]) same(a, b T) bool {
	if c.equal != nil {
		return compare(c.equal, a, b, c.Name(), c.site)
	}
	return defaultEquals(a, b)
}

// refresh recomputes the value if it never ran, failed, or a dependency moved
// past the version observed at the last derivation.
func (c *Computed[T]) refresh(parent *Frame) error {
	if c.disposed.Load() {
		return nil
	}
	if parent.contains(c) {
		return &DeriveError{Cell: c.Name(), Err: ErrCycle}
	}
	if !c.mu.TryLock() {
		if c.computing.Load() == goroutineID() {
			return &DeriveError{Cell: c.Name(), Err: ErrCycle}
		}
		c.mu.Lock()
	}
	defer c.mu.Unlock()

	if !c.staleLocked(parent) {
		c.dirty.Store(false)
		return nil
	}
	return c.recomputeLocked(parent)
}

// staleLocked validates by pulling: the dirty flag only says a dependency
// notified, the versions say whether anything actually changed.
func (c *Computed[T]) staleLocked(parent *Frame) bool {
	if !c.has || c.failed.Load() {
		return true
	}
	probe := newFrame(c, parent)
	for _, d := range c.deps {
		if err := d.src.refresh(probe); err != nil {
			return true
		}
		if d.src.Version() != d.ver {
			return true
		}
	}
	return false
}

func (c *Computed[T]) recomputeLocked(parent *Frame) error {
	c.dirty.Store(false)
	f := newFrame(c, parent)

	c.computing.Store(goroutineID())
	v, err := c.run(f)
	c.computing.Store(0)
	stats.recomputations.Add(1)

	if err != nil {
		// Stay subscribed to everything that could fix the failure.
		next := unionDeps(c.deps, f.deps)
		swapDeps(c, c.deps, next)
		c.deps = next
		c.err = err
		c.failed.Store(true)
		c.dirty.Store(true)
		return &DeriveError{Cell: c.Name(), Err: err}
	}

	swapDeps(c, c.deps, f.deps)
	c.deps = f.deps
	c.err = nil
	c.failed.Store(false)

	if c.has && c.same(c.current(), v) {
		return nil
	}
	c.valMu.Lock()
	c.value = v
	c.valMu.Unlock()
	c.has = true
	c.version.Add(1)
	return nil
}

// run calls derive, converting a panic into an error.
func (c *Computed[T]) run(f *Frame) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			if de, ok := r.(*DeriveError); ok {
				err = de
				return
			}
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return c.derive(f)
}

// push propagates a dependency change. Lazy-only subscribers are just
// marked dirty; otherwise the value is recomputed now and delivered to
// subscribers that have not seen the new version.
func (c *Computed[T]) push() {
	subs := c.snapshot()
	if len(subs) == 0 {
		return
	}
	eager := false
	for _, sub := range subs {
		if _, ok := sub.l.(lazyListener); !ok {
			eager = true
			break
		}
	}
	if !eager {
		for _, sub := range subs {
			if !sub.done.Load() {
				sub.l.MarkDirty()
			}
		}
		return
	}

	if err := c.refresh(nil); err != nil {
		logger().Warn("reactive: eager recompute failed",
			"cell", c.Name(),
			"err", err)
		for _, sub := range subs {
			if _, ok := sub.l.(lazyListener); ok && !sub.done.Load() {
				sub.l.MarkDirty()
			}
		}
		return
	}

	ver := c.Version()
	var (
		v      T
		loaded bool
	)
	for _, sub := range subs {
		if sub.done.Load() || sub.seen.Swap(ver) == ver {
			continue
		}
		stats.notifications.Add(1)
		if vl, ok := sub.l.(*valueListener[T]); ok {
			if !loaded {
				v, loaded = c.current(), true
			}
			vl.fn(v)
			continue
		}
		sub.l.MarkDirty()
	}
}

// flushOutbox runs a deferred push on the UI goroutine.
func (c *Computed[T]) flushOutbox() {
	c.out.mu.Lock()
	ok := c.out.takeLocked()
	c.out.mu.Unlock()
	if !ok || c.disposed.Load() {
		return
	}
	stats.uiFlushes.Add(1)
	c.push()
}
