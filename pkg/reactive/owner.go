package reactive

import (
	"sync"
	"sync/atomic"
)

// Owner is a lifetime scope for reactive primitives. Disposing an owner
// disposes its child owners, then everything it owns, then runs its
// cleanups, each in reverse order of registration.
//
// Owners form a hierarchy mirroring the widget tree: a mounted node owns
// its cells, computeds, effects and bindings.
type Owner struct {
	id     uint64
	parent *Owner

	mu       sync.Mutex
	children []*Owner
	owned    []Disposable
	cleanups []func()

	disposed atomic.Bool
}

// NewOwner creates an owner, attached to parent when parent is non-nil.
func NewOwner(parent *Owner) *Owner {
	o := &Owner{id: nextID(), parent: parent}
	if parent != nil {
		parent.addChild(o)
	}
	return o
}

// ID returns the owner's unique identifier.
func (o *Owner) ID() uint64 {
	return o.id
}

// Parent returns the parent owner.
func (o *Owner) Parent() *Owner {
	return o.parent
}

// IsDisposed reports whether the owner has been disposed.
func (o *Owner) IsDisposed() bool {
	return o.disposed.Load()
}

// Own ties d's lifetime to the owner. Owning on a disposed owner disposes
// d immediately.
func (o *Owner) Own(d Disposable) {
	if d == nil {
		return
	}
	o.mu.Lock()
	if o.disposed.Load() {
		o.mu.Unlock()
		d.Dispose()
		return
	}
	o.owned = append(o.owned, d)
	o.mu.Unlock()
}

// OnCleanup registers fn to run when the owner is disposed.
func (o *Owner) OnCleanup(fn func()) {
	o.mu.Lock()
	if o.disposed.Load() {
		o.mu.Unlock()
		fn()
		return
	}
	o.cleanups = append(o.cleanups, fn)
	o.mu.Unlock()
}

// Owned returns the number of primitives currently owned.
func (o *Owner) Owned() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.owned)
}

func (o *Owner) addChild(child *Owner) {
	o.mu.Lock()
	disposed := o.disposed.Load()
	if !disposed {
		o.children = append(o.children, child)
	}
	o.mu.Unlock()
	if disposed {
		child.Dispose()
	}
}

func (o *Owner) removeChild(child *Owner) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i, c := range o.children {
		if c == child {
			o.children = append(o.children[:i], o.children[i+1:]...)
			return
		}
	}
}

// Dispose releases everything the owner holds. It is idempotent.
func (o *Owner) Dispose() {
	if !o.disposed.CompareAndSwap(false, true) {
		return
	}

	o.mu.Lock()
	children := o.children
	owned := o.owned
	cleanups := o.cleanups
	o.children, o.owned, o.cleanups = nil, nil, nil
	o.mu.Unlock()

	for i := len(children) - 1; i >= 0; i-- {
		children[i].Dispose()
	}
	for i := len(owned) - 1; i >= 0; i-- {
		owned[i].Dispose()
	}
	for i := len(cleanups) - 1; i >= 0; i-- {
		cleanups[i]()
	}

	if o.parent != nil {
		o.parent.removeChild(o)
	}
}
