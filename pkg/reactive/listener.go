package reactive

import (
	"strconv"
	"sync"
	"sync/atomic"
)

// Listener is notified when a source it depends on changes.
// Computeds, effects and trackers are listeners.
type Listener interface {
	// MarkDirty is called when a dependency has changed.
	MarkDirty()

	// ID returns a unique identifier for deduplication.
	ID() uint64
}

// Disposable is anything with a lifetime that ends with Dispose.
type Disposable interface {
	Dispose()
}

// lazyListener marks listeners that pull on demand. A computed whose only
// subscribers are lazy is never recomputed eagerly.
type lazyListener interface {
	Listener
	lazy()
}

// Subscription is a registration on a source. Unsubscribe is idempotent.
type Subscription struct {
	src  *sourceBase
	l    Listener
	seen atomic.Uint64
	done atomic.Bool
}

// Unsubscribe removes the subscription from its source.
func (s *Subscription) Unsubscribe() {
	if s == nil || !s.done.CompareAndSwap(false, true) {
		return
	}
	if s.src != nil {
		s.src.unsubscribe(s.l)
	}
}

// Dispose is Unsubscribe, so a subscription can be owned.
func (s *Subscription) Dispose() {
	s.Unsubscribe()
}

// Active reports whether the subscription still receives notifications.
func (s *Subscription) Active() bool {
	return s != nil && s.src != nil && !s.done.Load()
}

// funcListener adapts a plain callback to Listener.
type funcListener struct {
	id uint64
	fn func()
}

func (f *funcListener) MarkDirty() { f.fn() }
func (f *funcListener) ID() uint64 { return f.id }

// valueListener receives the delivered value directly.
type valueListener[T any] struct {
	id uint64
	fn func(T)
}

func (v *valueListener[T]) MarkDirty() {}
func (v *valueListener[T]) ID() uint64 { return v.id }

// sourceBase is the common part of cells and computeds: identity,
// dispatch mode, version and the ordered subscriber list.
type sourceBase struct {
	id     uint64
	name   string
	mode   DispatchMode
	bridge *Bridge

	subsMu sync.RWMutex
	subs   []*Subscription

	version  atomic.Uint64
	disposed atomic.Bool
}

func (s *sourceBase) init(o options) {
	s.id = nextID()
	s.name = o.name
	if o.bridge != nil {
		s.mode = DispatchUI
		s.bridge = o.bridge
	}
}

// ID returns the source's unique identifier.
func (s *sourceBase) ID() uint64 {
	return s.id
}

// Name returns the debug name, or "#<id>" when unnamed.
func (s *sourceBase) Name() string {
	if s.name != "" {
		return s.name
	}
	return "#" + strconv.FormatUint(s.id, 10)
}

// Dispatch returns the delivery mode and, for DispatchUI, its bridge.
func (s *sourceBase) Dispatch() (DispatchMode, *Bridge) {
	return s.mode, s.bridge
}

// Version returns the change counter. It increases on every change that
// notifies.
func (s *sourceBase) Version() uint64 {
	return s.version.Load()
}

// Disposed reports whether Dispose was called.
func (s *sourceBase) Disposed() bool {
	return s.disposed.Load()
}

// Subscribers returns the number of live subscriptions.
func (s *sourceBase) Subscribers() int {
	s.subsMu.RLock()
	defer s.subsMu.RUnlock()
	return len(s.subs)
}

// subscribe adds l unless it is already subscribed. The returned
// subscription remembers the version current at subscription time.
func (s *sourceBase) subscribe(l Listener) *Subscription {
	if s.disposed.Load() {
		return &Subscription{}
	}
	s.subsMu.Lock()
	defer s.subsMu.Unlock()

	id := l.ID()
	for _, sub := range s.subs {
		if sub.l.ID() == id {
			return sub
		}
	}
	sub := &Subscription{src: s, l: l}
	sub.seen.Store(s.version.Load())
	s.subs = append(s.subs, sub)
	return sub
}

// unsubscribe removes l, preserving the order of the rest.
func (s *sourceBase) unsubscribe(l Listener) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()

	id := l.ID()
	for i, sub := range s.subs {
		if sub.l.ID() == id {
			sub.done.Store(true)
			s.subs = append(s.subs[:i], s.subs[i+1:]...)
			return
		}
	}
}

// snapshot copies the subscriber list so delivery runs without the lock.
func (s *sourceBase) snapshot() []*Subscription {
	s.subsMu.RLock()
	defer s.subsMu.RUnlock()
	if len(s.subs) == 0 {
		return nil
	}
	out := make([]*Subscription, len(s.subs))
	copy(out, s.subs)
	return out
}

// observe registers a value-less callback.
func (s *sourceBase) observe(fn func()) *Subscription {
	return s.subscribe(&funcListener{id: nextID(), fn: fn})
}

// dispose marks the source disposed and drops all subscribers.
func (s *sourceBase) dispose() bool {
	if !s.disposed.CompareAndSwap(false, true) {
		return false
	}
	s.subsMu.Lock()
	for _, sub := range s.subs {
		sub.done.Store(true)
	}
	s.subs = nil
	s.subsMu.Unlock()
	return true
}

// offUI reports whether delivery must be handed to the bridge.
func (s *sourceBase) offUI() bool {
	return s.mode == DispatchUI && !s.bridge.OnUIThread()
}
