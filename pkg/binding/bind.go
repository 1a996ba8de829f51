package binding

import (
	"github.com/vango-dev/ripple/pkg/reactive"
	"github.com/vango-dev/ripple/pkg/scope"
)

// Bind enqueues an entry for target each time src notifies. Disposing the
// result ends the binding.
func Bind(q *Queue, target Target, tag string, action Action, src reactive.Source) reactive.Disposable {
	return BindScope(q, target, tag, action, "", src)
}

// BindScope is Bind with a scope key carried on every entry.
func BindScope(q *Queue, target Target, tag string, action Action, key scope.Key, src reactive.Source) reactive.Disposable {
	e := Entry{Target: target, Tag: tag, Action: action, Scope: key}
	return src.Observe(func() { q.Enqueue(e) })
}

// Set is a group of bindings released together.
type Set struct {
	items []reactive.Disposable
}

// Add records d in the set.
func (s *Set) Add(d reactive.Disposable) {
	if d != nil {
		s.items = append(s.items, d)
	}
}

// Len returns the number of live bindings.
func (s *Set) Len() int { return len(s.items) }

// Dispose releases every binding in reverse order.
func (s *Set) Dispose() {
	for i := len(s.items) - 1; i >= 0; i-- {
		s.items[i].Dispose()
	}
	s.items = nil
}
