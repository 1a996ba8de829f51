package reactive

import "sync"

// Source is anything a Frame can depend on: cells and computeds.
type Source interface {
	ID() uint64
	Name() string
	Version() uint64
	Dispatch() (DispatchMode, *Bridge)

	// Observe registers fn to run whenever the source notifies.
	Observe(fn func()) *Subscription

	subscribe(l Listener) *Subscription
	unsubscribe(l Listener)

	// refresh brings the source up to date before it is read.
	refresh(parent *Frame) error
}

// Readable is a typed source.
type Readable[T any] interface {
	Source
	Get(f *Frame) T
	Peek() T
}

// dep is one entry of a dependency set: the source and the version
// observed when it was read.
type dep struct {
	src Source
	ver uint64
}

// Frame records the sources read during one tracked execution. Frames are
// created by the engine; user code only passes them along.
type Frame struct {
	owner  Listener
	parent *Frame
	deps   []dep
	index  map[uint64]int
}

func newFrame(owner Listener, parent *Frame) *Frame {
	return &Frame{owner: owner, parent: parent}
}

// Depth returns the number of enclosing frames, 0 for a root frame.
func (f *Frame) Depth() int {
	d := 0
	if f == nil {
		return d
	}
	for p := f.parent; p != nil; p = p.parent {
		d++
	}
	return d
}

// Len returns the number of distinct sources read so far.
func (f *Frame) Len() int {
	if f == nil {
		return 0
	}
	return len(f.deps)
}

// Track registers src as a dependency without reading a value, bringing it
// up to date first. Combine uses it to depend on type-erased sources.
func (f *Frame) Track(src Source) error {
	if f == nil || src == nil {
		return nil
	}
	err := src.refresh(f)
	f.track(src)
	return err
}

// track records src with its current version. Reading the version before
// the value makes a concurrent write show up as staleness later.
func (f *Frame) track(src Source) {
	if f == nil {
		return
	}
	id := src.ID()
	if f.index == nil {
		f.index = make(map[uint64]int, 4)
	}
	if _, ok := f.index[id]; ok {
		return
	}
	f.index[id] = len(f.deps)
	f.deps = append(f.deps, dep{src: src, ver: src.Version()})
}

// contains reports whether l is computing somewhere up the frame chain.
func (f *Frame) contains(l Listener) bool {
	id := l.ID()
	for p := f; p != nil; p = p.parent {
		if p.owner != nil && p.owner.ID() == id {
			return true
		}
	}
	return false
}

// swapDeps subscribes l to every source in next that old lacks and
// unsubscribes it from every source in old that next lacks.
func swapDeps(l Listener, old, next []dep) {
	keep := make(map[uint64]struct{}, len(next))
	for _, d := range next {
		keep[d.src.ID()] = struct{}{}
	}
	had := make(map[uint64]struct{}, len(old))
	for _, d := range old {
		id := d.src.ID()
		had[id] = struct{}{}
		if _, ok := keep[id]; !ok {
			d.src.unsubscribe(l)
		}
	}
	for _, d := range next {
		if _, ok := had[d.src.ID()]; !ok {
			d.src.subscribe(l)
		}
	}
}

// unionDeps returns old followed by the entries of next it lacks.
func unionDeps(old, next []dep) []dep {
	out := make([]dep, 0, len(old)+len(next))
	seen := make(map[uint64]struct{}, len(old)+len(next))
	for _, d := range old {
		seen[d.src.ID()] = struct{}{}
		out = append(out, d)
	}
	for _, d := range next {
		if _, ok := seen[d.src.ID()]; !ok {
			out = append(out, d)
		}
	}
	return out
}

// Tracker is a reusable dynamic dependency set. Each Run replaces the set
// with exactly the sources read during that run; any of them changing
// calls onDirty.
type Tracker struct {
	id      uint64
	onDirty func()

	mu       sync.Mutex
	deps     []dep
	disposed bool
}

// NewTracker creates a tracker that calls onDirty when a tracked source
// notifies.
func NewTracker(onDirty func()) *Tracker {
	return &Tracker{id: nextID(), onDirty: onDirty}
}

// ID returns the tracker's unique identifier.
func (t *Tracker) ID() uint64 {
	return t.id
}

// MarkDirty implements Listener.
func (t *Tracker) MarkDirty() {
	t.mu.Lock()
	disposed := t.disposed
	t.mu.Unlock()
	if disposed || t.onDirty == nil {
		return
	}
	t.onDirty()
}

// Run executes fn with a fresh frame and replaces the dependency set with
// what fn read. The set is replaced even when fn panics.
func (t *Tracker) Run(fn func(f *Frame)) {
	f := newFrame(t, nil)
	defer t.commit(f)
	fn(f)
}

func (t *Tracker) commit(f *Frame) {
	t.mu.Lock()
	if t.disposed {
		t.mu.Unlock()
		return
	}
	swapDeps(t, t.deps, f.deps)
	t.deps = f.deps
	t.mu.Unlock()

	// A write that landed between a read and the subscription above
	// produced no notification; catch it by version.
	for _, d := range f.deps {
		if d.src.Version() != d.ver {
			t.MarkDirty()
			return
		}
	}
}

// Deps returns the number of sources tracked by the last run.
func (t *Tracker) Deps() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.deps)
}

// Dispose unsubscribes from every tracked source.
func (t *Tracker) Dispose() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.disposed {
		return
	}
	t.disposed = true
	for _, d := range t.deps {
		d.src.unsubscribe(t)
	}
	t.deps = nil
}
