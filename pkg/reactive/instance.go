package reactive

import "sync"

// Instance holds the per-instance state of one widget: one cell or
// computed per definition, created on first use.
type Instance struct {
	owner *Owner

	mu    sync.Mutex
	slots map[uint64]Disposable
}

// NewInstance creates instance storage owned by a new child of parent.
func NewInstance(parent *Owner) *Instance {
	inst := &Instance{
		owner: NewOwner(parent),
		slots: make(map[uint64]Disposable),
	}
	inst.owner.OnCleanup(inst.clear)
	return inst
}

// Owner returns the owner every slot of this instance belongs to.
func (i *Instance) Owner() *Owner {
	return i.owner
}

// Len returns the number of slots created so far.
func (i *Instance) Len() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.slots)
}

// Dispose disposes every slot of the instance.
func (i *Instance) Dispose() {
	i.owner.Dispose()
}

// Disposed reports whether the instance was disposed.
func (i *Instance) Disposed() bool {
	return i == nil || i.owner.IsDisposed()
}

func (i *Instance) clear() {
	i.mu.Lock()
	i.slots = make(map[uint64]Disposable)
	i.mu.Unlock()
}

// slot returns the value stored under key, creating it with create.
func (i *Instance) slot(key uint64, create func() Disposable) Disposable {
	i.mu.Lock()
	defer i.mu.Unlock()
	if d, ok := i.slots[key]; ok {
		return d
	}
	d := create()
	i.slots[key] = d
	return d
}

// CellDef is a blueprint for a cell that every instance gets its own copy
// of.
//
// Example:
//
//	var hovered = reactive.DefineCell(false)
//
//	func (b *Button) onEnter() { hovered.In(b.inst).Set(true) }
type CellDef[T any] struct {
	key     uint64
	initial T
	equal   func(T, T) bool
	opts    []Option
}

// DefineCell creates a cell definition.
func DefineCell[T any](initial T, opts ...Option) *CellDef[T] {
	return &CellDef[T]{key: nextID(), initial: initial, opts: opts}
}

// WithEquals sets the comparator for every instance's cell.
func (d *CellDef[T]) WithEquals(fn func(T, T) bool) *CellDef[T] {
	d.equal = fn
	return d
}

// In returns inst's cell for this definition. A nil or disposed instance
// yields a disposed cell whose operations are no-ops.
func (d *CellDef[T]) In(inst *Instance) *Cell[T] {
	if inst.Disposed() {
		c := NewCell(d.initial, OwnedBy(detached))
		c.Dispose()
		return c
	}
	return inst.slot(d.key, func() Disposable {
		opts := append(append([]Option{}, d.opts...), OwnedBy(inst.owner))
		c := NewCell(d.initial, opts...)
		if d.equal != nil {
			c.WithEquals(d.equal)
		}
		return c
	}).(*Cell[T])
}

// ComputedDef is a blueprint for a computed evaluated per instance.
type ComputedDef[T any] struct {
	key    uint64
	derive func(inst *Instance, f *Frame) T
	opts   []Option
}

// DefineComputed creates a computed definition. fn receives the instance
// so it can read that instance's cells.
func DefineComputed[T any](fn func(inst *Instance, f *Frame) T, opts ...Option) *ComputedDef[T] {
	return &ComputedDef[T]{key: nextID(), derive: fn, opts: opts}
}

// In returns inst's computed for this definition.
func (d *ComputedDef[T]) In(inst *Instance) *Computed[T] {
	if inst.Disposed() {
		c := NewComputed(func(*Frame) T { var zero T; return zero }, OwnedBy(detached))
		c.Dispose()
		return c
	}
	return inst.slot(d.key, func() Disposable {
		opts := append(append([]Option{}, d.opts...), OwnedBy(inst.owner))
		return NewComputed(func(f *Frame) T {
			return d.derive(inst, f)
		}, opts...)
	}).(*Computed[T])
}

// detached is a disposed owner used for cells handed out by disposed
// instances.
var detached = func() *Owner {
	o := NewOwner(nil)
	o.Dispose()
	return o
}()
