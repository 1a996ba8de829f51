package reactive

import "sync"

// Cell is a reactive value slot. Reads through a Frame create
// dependencies; writes that change the value notify subscribers in
// subscription order.
//
// Cell is safe for concurrent use. Storage is updated synchronously by
// Set from any goroutine; delivery follows the cell's dispatch mode.
type Cell[T any] struct {
	sourceBase

	mu    sync.RWMutex
	value T
	equal func(T, T) bool

	// outBase is the value subscribers last saw before the pending off-UI
	// flush; outSite is the write that armed it. Both guarded by out.mu.
	out     outbox
	outBase T
	outSite uintptr
}

// NewCell creates a cell holding initial.
//
// Example:
//
//	count := reactive.NewCell(0)
//	count.Subscribe(func(v int) { fmt.Println(v) })
//	count.Set(1) // prints 1
func NewCell[T any](initial T, opts ...Option) *Cell[T] {
	o := applyOptions(opts)
	c := &Cell[T]{value: initial}
	c.init(o)
	if o.owner != nil {
		o.owner.Own(c)
	}
	return c
}

// WithEquals sets a custom equality comparator and returns the cell.
// Set it before the cell is shared.
func (c *Cell[T]) WithEquals(fn func(T, T) bool) *Cell[T] {
	c.equal = fn
	return c
}

// Peek returns the current value without tracking.
func (c *Cell[T]) Peek() T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value
}

// Get returns the current value and records the cell on f.
func (c *Cell[T]) Get(f *Frame) T {
	f.track(c)
	return c.Peek()
}

// Set stores v. When v differs from the current value the cell notifies
// now, at the end of the enclosing batch, or on the next UI tick.
func (c *Cell[T]) Set(v T) {
	if c.disposed.Load() {
		return
	}
	c.store(func(T) T { return v }, c.site())
}

// Update applies fn to the current value under the cell lock and stores
// the result.
func (c *Cell[T]) Update(fn func(T) T) {
	if c.disposed.Load() {
		return
	}
	c.store(fn, c.site())
}

// site captures the user call site of Set or Update for comparator
// failure reports. Only custom comparators can fail.
func (c *Cell[T]) site() uintptr {
	if c.equal == nil {
		return 0
	}
	return callerPC(2)
}

// store writes fn(old) under the lock. An unbatched off-UI change arms the
// outbox before the lock is released, so concurrent writers arm in the
// order their values were stored.
func (c *Cell[T]) store(fn func(T) T, site uintptr) {
	c.mu.Lock()
	old := c.value
	v := fn(old)
	if c.same(old, v, site) {
		c.mu.Unlock()
		return
	}
	c.value = v
	c.version.Add(1)
	if currentBatch() == nil && c.offUI() {
		c.armOutbox(old, site)
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	c.changed(old, v, site)
}

// Subscribe registers fn to receive every delivered value.
func (c *Cell[T]) Subscribe(fn func(T)) *Subscription {
	return c.subscribe(&valueListener[T]{id: nextID(), fn: fn})
}

// Observe registers fn to run on every delivery.
func (c *Cell[T]) Observe(fn func()) *Subscription {
	return c.observe(fn)
}

// PendingUI reports whether an off-UI write is waiting for the next UI
// tick.
func (c *Cell[T]) PendingUI() bool {
	return c.out.isPending()
}

// Dispose drops all subscribers and cancels a pending UI delivery.
// Later writes are ignored and Peek returns the zero value.
func (c *Cell[T]) Dispose() {
	if !c.dispose() {
		return
	}
	c.out.cancel(c.bridge)
	var zero T
	c.mu.Lock()
	c.value = zero
	c.mu.Unlock()
}

// refresh implements Source; a cell is always current.
func (c *Cell[T]) refresh(*Frame) error {
	return nil
}

func (c *Cell[T]) same(a, b T, site uintptr) bool {
	if c.equal != nil {
		return compare(c.equal, a, b, c.Name(), site)
	}
	return defaultEquals(a, b)
}

// changed routes a stored change to the batch or to dispatch. A batch
// keeps the site of the first write to the cell.
func (c *Cell[T]) changed(prev, v T, site uintptr) {
	if b := currentBatch(); b != nil {
		b.touch(c.id, func() { c.settle(prev, site) })
		return
	}
	c.dispatch(prev, v, site)
}

// settle runs at batch exit with the value the batch first saw.
func (c *Cell[T]) settle(prev T, site uintptr) {
	if c.disposed.Load() {
		return
	}
	cur := c.Peek()
	if c.same(prev, cur, site) {
		return
	}
	c.dispatch(prev, cur, site)
}

// dispatch delivers v here or hands it to the bridge outbox.
func (c *Cell[T]) dispatch(prev, v T, site uintptr) {
	if c.offUI() {
		c.mu.RLock()
		c.armOutbox(prev, site)
		c.mu.RUnlock()
		return
	}
	c.out.cancel(c.bridge)
	c.deliver(v)
}

// armOutbox schedules a flush unless one is pending. Called with c.mu
// held.
func (c *Cell[T]) armOutbox(prev T, site uintptr) {
	c.out.mu.Lock()
	if c.out.armLocked(c.bridge, c.flushOutbox) {
		c.outBase, c.outSite = prev, site
	}
	c.out.mu.Unlock()
}

// flushOutbox runs on the UI goroutine and delivers the value stored at
// the time it runs.
func (c *Cell[T]) flushOutbox() {
	c.mu.RLock()
	c.out.mu.Lock()
	ok := c.out.takeLocked()
	v, base, site := c.value, c.outBase, c.outSite
	var zero T
	c.outBase, c.outSite = zero, 0
	c.out.mu.Unlock()
	c.mu.RUnlock()

	if !ok || c.disposed.Load() || c.same(base, v, site) {
		return
	}
	stats.uiFlushes.Add(1)
	c.deliver(v)
}

// deliver notifies subscribers in order. Value subscribers receive v;
// other listeners are marked dirty.
func (c *Cell[T]) deliver(v T) {
	for _, sub := range c.snapshot() {
		if sub.done.Load() {
			continue
		}
		stats.notifications.Add(1)
		if vl, ok := sub.l.(*valueListener[T]); ok {
			vl.fn(v)
			continue
		}
		sub.l.MarkDirty()
	}
}
