// Package scope gives keyed subtrees of a composable widget's output a
// stable identity, so a change can rebuild one subtree without rebuilding
// its siblings.
//
// A Registry belongs to one composable node. During a build the node
// declares each scope by key and renders it through the registry; the
// registry returns the cached fragment unless the scope was invalidated.
// Builders run inside a reactive tracker, so any source a builder reads
// invalidates that scope when it changes.
package scope

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/vango-dev/ripple/pkg/reactive"
)

// Key identifies a scope within its registry.
type Key string

// State is the lifecycle state of a scope.
type State uint8

const (
	StateUninitialized State = iota
	StateBuilt
	StateDirty
	StateDisposed
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateBuilt:
		return "built"
	case StateDirty:
		return "dirty"
	case StateDisposed:
		return "disposed"
	default:
		return "unknown"
	}
}

// Builder produces a scope's fragment. Reads made through f become the
// scope's dependencies.
type Builder[F any] func(f *reactive.Frame) (F, error)

var handleIDs atomic.Uint64

// Handle is the registry's record for one key.
type Handle[F any] struct {
	key      Key
	id       uint64
	state    State
	fragment F
	builder  Builder[F]
	builds   int
	err      error
	declared bool

	building      bool
	invalidatedIn bool

	reg     *Registry[F]
	tracker *reactive.Tracker
}

// Key returns the scope's key.
func (h *Handle[F]) Key() Key { return h.key }

// ID returns the scope's numeric ID, stable while the key stays declared.
func (h *Handle[F]) ID() uint64 { return h.id }

// State returns the scope's lifecycle state.
func (h *Handle[F]) State() State {
	h.reg.mu.Lock()
	defer h.reg.mu.Unlock()
	return h.state
}

// Builds returns how many times the scope's builder has run.
func (h *Handle[F]) Builds() int {
	h.reg.mu.Lock()
	defer h.reg.mu.Unlock()
	return h.builds
}

// Err returns the error of the last build, or nil.
func (h *Handle[F]) Err() error {
	h.reg.mu.Lock()
	defer h.reg.mu.Unlock()
	return h.err
}

// Info is a read-only snapshot of a handle.
type Info struct {
	Key    Key
	ID     uint64
	State  State
	Builds int
	Err    error
	Deps   int
}

// Registry maps scope keys to handles for one owner.
// It must be used from the UI goroutine when a bridge is attached.
type Registry[F any] struct {
	mu       sync.Mutex
	handles  map[Key]*Handle[F]
	order    []Key
	building bool
	disposed bool

	bridge       *reactive.Bridge
	logger       *slog.Logger
	placeholder  func(Key) F
	onInvalidate func(Key)
	onError      func(Key, uint64, error)
	onDispose    func(Key, F)
}

// Option configures a Registry.
type Option[F any] func(*Registry[F])

// WithBridge enables the UI-goroutine guard.
func WithBridge[F any](b *reactive.Bridge) Option[F] {
	return func(r *Registry[F]) { r.bridge = b }
}

// WithLogger sets the logger for builder failures.
func WithLogger[F any](l *slog.Logger) Option[F] {
	return func(r *Registry[F]) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithPlaceholder sets the fragment used when a builder fails.
func WithPlaceholder[F any](fn func(Key) F) Option[F] {
	return func(r *Registry[F]) { r.placeholder = fn }
}

// OnInvalidate registers fn to hear about every scope that turns dirty.
func OnInvalidate[F any](fn func(Key)) Option[F] {
	return func(r *Registry[F]) { r.onInvalidate = fn }
}

// OnError registers fn to hear about builder failures.
func OnError[F any](fn func(key Key, id uint64, err error)) Option[F] {
	return func(r *Registry[F]) { r.onError = fn }
}

// OnDispose registers fn to receive the last fragment of every disposed
// scope.
func OnDispose[F any](fn func(Key, F)) Option[F] {
	return func(r *Registry[F]) { r.onDispose = fn }
}

// New creates an empty registry.
func New[F any](opts ...Option[F]) *Registry[F] {
	r := &Registry[F]{
		handles: make(map[Key]*Handle[F]),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry[F]) guard(op string) error {
	return r.bridge.AssertUIThread(op)
}

// BeginBuild starts a build phase. Keys not declared before EndBuild are
// disposed.
func (r *Registry[F]) BeginBuild() error {
	if err := r.guard("scope.BeginBuild"); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.building = true
	for _, h := range r.handles {
		h.declared = false
	}
	return nil
}

// EndBuild closes the build phase and disposes undeclared scopes. It
// returns the keys disposed.
func (r *Registry[F]) EndBuild() ([]Key, error) {
	if err := r.guard("scope.EndBuild"); err != nil {
		return nil, err
	}
	r.mu.Lock()
	if !r.building {
		r.mu.Unlock()
		return nil, nil
	}
	r.building = false
	var gone []*Handle[F]
	kept := r.order[:0]
	for _, key := range r.order {
		h := r.handles[key]
		if h.declared {
			kept = append(kept, key)
			continue
		}
		gone = append(gone, h)
		delete(r.handles, key)
	}
	r.order = kept
	r.mu.Unlock()

	keys := make([]Key, 0, len(gone))
	for _, h := range gone {
		keys = append(keys, h.key)
		r.disposeHandle(h)
	}
	return keys, nil
}

// Declare returns the handle for key, creating it on first declaration.
func (r *Registry[F]) Declare(key Key) (*Handle[F], error) {
	if err := r.guard("scope.Declare"); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.disposed {
		return nil, nil
	}
	return r.declareLocked(key), nil
}

func (r *Registry[F]) declareLocked(key Key) *Handle[F] {
	h, ok := r.handles[key]
	if !ok {
		h = &Handle[F]{key: key, id: handleIDs.Add(1), reg: r}
		h.tracker = reactive.NewTracker(func() { r.trackerDirty(key) })
		r.handles[key] = h
		r.order = append(r.order, key)
	}
	h.declared = true
	return h
}

// Render declares key and returns its fragment, building it when the
// scope is new or dirty.
func (r *Registry[F]) Render(key Key, builder Builder[F]) (F, error) {
	var zero F
	if err := r.guard("scope.Render"); err != nil {
		return zero, err
	}
	r.mu.Lock()
	if r.disposed {
		r.mu.Unlock()
		return zero, nil
	}
	h := r.declareLocked(key)
	h.builder = builder
	if h.state == StateBuilt {
		frag := h.fragment
		r.mu.Unlock()
		return frag, nil
	}
	r.mu.Unlock()
	return r.build(h), nil
}

// Invalidate marks exactly the scope under key dirty. It reports whether
// the scope changed state.
func (r *Registry[F]) Invalidate(key Key) (bool, error) {
	if err := r.guard("scope.Invalidate"); err != nil {
		return false, err
	}
	return r.invalidate(key), nil
}

func (r *Registry[F]) invalidate(key Key) bool {
	r.mu.Lock()
	h, ok := r.handles[key]
	if !ok || r.disposed {
		r.mu.Unlock()
		return false
	}
	if h.building {
		h.invalidatedIn = true
		r.mu.Unlock()
		return false
	}
	if h.state != StateBuilt {
		r.mu.Unlock()
		return false
	}
	h.state = StateDirty
	hook := r.onInvalidate
	r.mu.Unlock()

	if hook != nil {
		hook(key)
	}
	return true
}

// trackerDirty runs when a source read by key's builder changes. Off the
// UI goroutine the invalidation is posted to it.
func (r *Registry[F]) trackerDirty(key Key) {
	if r.bridge != nil && !r.bridge.OnUIThread() {
		r.bridge.Post(func() { r.invalidate(key) })
		return
	}
	r.invalidate(key)
}

// Rebuild re-runs the last builder of a dirty scope. It returns the
// current fragment and whether a build ran.
func (r *Registry[F]) Rebuild(key Key) (F, bool, error) {
	var zero F
	if err := r.guard("scope.Rebuild"); err != nil {
		return zero, false, err
	}
	r.mu.Lock()
	h, ok := r.handles[key]
	if !ok || r.disposed {
		r.mu.Unlock()
		return zero, false, nil
	}
	if h.state != StateDirty || h.builder == nil {
		frag := h.fragment
		r.mu.Unlock()
		return frag, false, nil
	}
	r.mu.Unlock()
	return r.build(h), true, nil
}

// build runs h's builder under its tracker and stores the result. A failed
// builder yields the placeholder.
func (r *Registry[F]) build(h *Handle[F]) F {
	r.mu.Lock()
	h.building = true
	h.invalidatedIn = false
	builder := h.builder
	r.mu.Unlock()

	var (
		frag F
		err  error
	)
	h.tracker.Run(func(f *reactive.Frame) {
		frag, err = safeBuild(builder, f)
	})

	r.mu.Lock()
	h.building = false
	if h.state == StateDisposed {
		r.mu.Unlock()
		return frag
	}
	h.builds++
	if err != nil {
		h.err = err
		if r.placeholder != nil {
			frag = r.placeholder(h.key)
		} else {
			var zero F
			frag = zero
		}
	} else {
		h.err = nil
	}
	h.fragment = frag
	h.state = StateBuilt
	again := h.invalidatedIn
	h.invalidatedIn = false
	onError := r.onError
	r.mu.Unlock()

	if err != nil {
		r.logger.Error("scope: builder failed",
			"scope", string(h.key),
			"scope_id", h.id,
			"err", err)
		if onError != nil {
			onError(h.key, h.id, err)
		}
	}
	if again {
		r.invalidate(h.key)
	}
	return frag
}

func safeBuild[F any](builder Builder[F], f *reactive.Frame) (frag F, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("builder panic: %v\n%s", rec, debug.Stack())
		}
	}()
	if builder == nil {
		return frag, nil
	}
	return builder(f)
}

// State returns the state of key; unknown keys are uninitialized.
func (r *Registry[F]) State(key Key) State {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.handles[key]; ok {
		return h.state
	}
	if r.disposed {
		return StateDisposed
	}
	return StateUninitialized
}

// Handle returns the handle for key, or nil.
func (r *Registry[F]) Handle(key Key) *Handle[F] {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.handles[key]
}

// Fragment returns the cached fragment for key.
func (r *Registry[F]) Fragment(key Key) (F, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.handles[key]
	if !ok || h.state == StateUninitialized {
		var zero F
		return zero, false
	}
	return h.fragment, true
}

// Info returns a snapshot of key's handle.
func (r *Registry[F]) Info(key Key) (Info, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.handles[key]
	if !ok {
		return Info{}, false
	}
	return r.infoLocked(h), true
}

// Infos returns snapshots of every handle in declaration order.
func (r *Registry[F]) Infos() []Info {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Info, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, r.infoLocked(r.handles[key]))
	}
	return out
}

func (r *Registry[F]) infoLocked(h *Handle[F]) Info {
	return Info{
		Key:    h.key,
		ID:     h.id,
		State:  h.state,
		Builds: h.builds,
		Err:    h.err,
		Deps:   h.tracker.Deps(),
	}
}

// Keys returns the declared keys in declaration order.
func (r *Registry[F]) Keys() []Key {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Key(nil), r.order...)
}

// Len returns the number of live scopes.
func (r *Registry[F]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}

// Dispose disposes every scope. Later calls answer with neutral defaults.
func (r *Registry[F]) Dispose() {
	r.mu.Lock()
	if r.disposed {
		r.mu.Unlock()
		return
	}
	r.disposed = true
	handles := make([]*Handle[F], 0, len(r.order))
	for _, key := range r.order {
		handles = append(handles, r.handles[key])
	}
	r.handles = make(map[Key]*Handle[F])
	r.order = nil
	r.mu.Unlock()

	for _, h := range handles {
		r.disposeHandle(h)
	}
}

func (r *Registry[F]) disposeHandle(h *Handle[F]) {
	r.mu.Lock()
	frag := h.fragment
	built := h.state != StateUninitialized
	h.state = StateDisposed
	var zero F
	h.fragment = zero
	hook := r.onDispose
	r.mu.Unlock()

	h.tracker.Dispose()
	if built && hook != nil {
		hook(h.key, frag)
	}
}
