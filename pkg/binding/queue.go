// Package binding turns reactive notifications into deferred, deduplicated
// cache invalidations on widget nodes.
//
// A binding ties a dependency tag on a node to a reactive source. When the
// source notifies, the binding enqueues one Entry. The queue drops
// duplicates and resolves entries on Flush: scope rebuilds first, then
// layout and paint invalidations for nodes that are still mounted.
package binding

import (
	"log/slog"
	"sync"

	"github.com/vango-dev/ripple/pkg/scope"
)

// Action is what a flushed entry does to its target.
type Action uint8

const (
	InvalidateLayout Action = iota + 1
	InvalidatePaint
	InvalidateScope
)

// String returns the action's metric label.
func (a Action) String() string {
	switch a {
	case InvalidateLayout:
		return "layout"
	case InvalidatePaint:
		return "paint"
	case InvalidateScope:
		return "scope"
	default:
		return "unknown"
	}
}

// Target is the node side of a binding.
type Target interface {
	InvalidateLayout()
	InvalidatePaint()
	// RebuildScope rebuilds the scope under key and reports whether a
	// build ran.
	RebuildScope(key scope.Key) bool
	Mounted() bool
}

// Entry is one pending invalidation.
type Entry struct {
	Target Target
	Tag    string
	Action Action
	Scope  scope.Key
}

type entryKey struct {
	target Target
	action Action
	scope  scope.Key
}

func (e Entry) key() entryKey {
	return entryKey{target: e.Target, action: e.Action, scope: e.Scope}
}

// Scheduler is asked for a frame whenever the queue goes from empty to
// non-empty.
type Scheduler interface {
	RequestFrame()
}

// FlushStats summarizes one Flush.
type FlushStats struct {
	Entries       int
	ScopesRebuilt int
	Layouts       int
	Paints        int
	Skipped       int
	Rounds        int
}

func (s *FlushStats) add(o FlushStats) {
	s.Entries += o.Entries
	s.ScopesRebuilt += o.ScopesRebuilt
	s.Layouts += o.Layouts
	s.Paints += o.Paints
	s.Skipped += o.Skipped
	s.Rounds += o.Rounds
}

// maxRounds bounds immediate-mode flushing when entries keep enqueueing
// more entries.
const maxRounds = 64

// Queue is a deduplicated queue of binding entries.
type Queue struct {
	mu        sync.Mutex
	entries   []Entry
	index     map[entryKey]struct{}
	scheduler Scheduler
	flushing  bool
	logger    *slog.Logger
	onFlush   func(Entry)
}

// QueueOption configures a Queue.
type QueueOption func(*Queue)

// WithScheduler defers flushing to s.
func WithScheduler(s Scheduler) QueueOption {
	return func(q *Queue) { q.scheduler = s }
}

// WithLogger sets the queue's logger.
func WithLogger(l *slog.Logger) QueueOption {
	return func(q *Queue) {
		if l != nil {
			q.logger = l
		}
	}
}

// OnEntryFlushed registers fn to observe every entry applied by Flush.
func OnEntryFlushed(fn func(Entry)) QueueOption {
	return func(q *Queue) { q.onFlush = fn }
}

// NewQueue creates a queue. Without a scheduler every Enqueue flushes
// immediately.
func NewQueue(opts ...QueueOption) *Queue {
	q := &Queue{
		index:  make(map[entryKey]struct{}),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// SetScheduler attaches or detaches the scheduler.
func (q *Queue) SetScheduler(s Scheduler) {
	q.mu.Lock()
	q.scheduler = s
	q.mu.Unlock()
}

// Immediate reports whether the queue flushes synchronously.
func (q *Queue) Immediate() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.scheduler == nil
}

// Enqueue adds e unless an entry with the same target, action and scope
// is already pending. It reports whether e was added.
func (q *Queue) Enqueue(e Entry) bool {
	if e.Target == nil {
		return false
	}
	q.mu.Lock()
	k := e.key()
	if _, dup := q.index[k]; dup {
		q.mu.Unlock()
		return false
	}
	q.index[k] = struct{}{}
	q.entries = append(q.entries, e)
	first := len(q.entries) == 1
	sched := q.scheduler
	flushing := q.flushing
	q.mu.Unlock()

	switch {
	case sched != nil:
		if first {
			sched.RequestFrame()
		}
	case !flushing:
		q.Flush()
	}
	return true
}

// Len returns the number of pending entries.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Pending returns a copy of the pending entries in enqueue order.
func (q *Queue) Pending() []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Entry(nil), q.entries...)
}

// Flush applies every pending entry. Entries enqueued while flushing wait
// for the next flush; in immediate mode that next flush follows at once.
func (q *Queue) Flush() FlushStats {
	var total FlushStats
	for round := 0; ; round++ {
		q.mu.Lock()
		if q.flushing {
			q.mu.Unlock()
			return total
		}
		if len(q.entries) == 0 {
			q.mu.Unlock()
			return total
		}
		batch := q.entries
		q.entries = nil
		q.index = make(map[entryKey]struct{})
		q.flushing = true
		q.mu.Unlock()

		stats := q.apply(batch)

		q.mu.Lock()
		q.flushing = false
		remaining := len(q.entries)
		sched := q.scheduler
		q.mu.Unlock()

		total.add(stats)
		// Enqueue already asked the scheduler for the next frame.
		if remaining == 0 || sched != nil {
			return total
		}
		if round+1 >= maxRounds {
			q.logger.Warn("binding: flush did not settle",
				"rounds", round+1,
				"pending", remaining)
			return total
		}
	}
}

func (q *Queue) apply(batch []Entry) (stats FlushStats) {
	stats.Rounds = 1
	stats.Entries = len(batch)
	defer func() {
		if r := recover(); r != nil {
			q.mu.Lock()
			q.flushing = false
			q.mu.Unlock()
			panic(r)
		}
	}()

	for _, e := range batch {
		if e.Action != InvalidateScope {
			continue
		}
		if !e.Target.Mounted() {
			stats.Skipped++
			continue
		}
		if e.Target.RebuildScope(e.Scope) {
			stats.ScopesRebuilt++
		}
		q.flushed(e)
	}
	for _, e := range batch {
		if e.Action == InvalidateScope {
			continue
		}
		if !e.Target.Mounted() {
			stats.Skipped++
			continue
		}
		switch e.Action {
		case InvalidateLayout:
			e.Target.InvalidateLayout()
			stats.Layouts++
		case InvalidatePaint:
			e.Target.InvalidatePaint()
			stats.Paints++
		default:
			stats.Skipped++
			continue
		}
		q.flushed(e)
	}
	return stats
}

func (q *Queue) flushed(e Entry) {
	if q.onFlush != nil {
		q.onFlush(e)
	}
}

// Clear drops every pending entry without applying it.
func (q *Queue) Clear() {
	q.mu.Lock()
	q.entries = nil
	q.index = make(map[entryKey]struct{})
	q.mu.Unlock()
}

// Drop removes pending entries for target, used when a node unmounts.
func (q *Queue) Drop(target Target) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	kept := q.entries[:0]
	dropped := 0
	for _, e := range q.entries {
		if e.Target == target {
			delete(q.index, e.key())
			dropped++
			continue
		}
		kept = append(kept, e)
	}
	q.entries = kept
	return dropped
}
