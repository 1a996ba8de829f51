package widget

import (
	"github.com/vango-dev/ripple/pkg/binding"
	"github.com/vango-dev/ripple/pkg/reactive"
	"github.com/vango-dev/ripple/pkg/scope"
)

// BuildFunc produces a composable node's children.
type BuildFunc func(b *Build) []*Node

// Build is passed to a composable's BuildFunc for one build pass.
type Build struct {
	node *Node
	reg  *scope.Registry[*Node]
	err  error
}

// Node returns the composable being built.
func (b *Build) Node() *Node { return b.node }

// Instance returns the composable's per-instance reactive storage.
func (b *Build) Instance() *reactive.Instance { return b.node.Instance() }

// Scope returns the subtree under key, building it on first use and after
// invalidation. Reads made through f invalidate only this scope.
func (b *Build) Scope(key scope.Key, builder func(f *reactive.Frame) *Node) *Node {
	return b.ScopeE(key, func(f *reactive.Frame) (*Node, error) {
		return builder(f), nil
	})
}

// ScopeE is Scope for builders that can fail. A failed scope renders as a
// placeholder node.
func (b *Build) ScopeE(key scope.Key, builder func(f *reactive.Frame) (*Node, error)) *Node {
	frag, err := b.reg.Render(key, builder)
	if err != nil && b.err == nil {
		b.err = err
	}
	if frag != nil {
		// Fragments outlive the wrappers a build places them in.
		frag.scopeOf = b.node
	}
	return frag
}

type composable struct {
	build   BuildFunc
	reg     *scope.Registry[*Node]
	rebuilt int
}

// NewComposable creates a node whose children come from build. Build runs
// when the node mounts and again on Recompose; scopes declared through
// Build.Scope rebuild on their own.
func NewComposable(name string, build BuildFunc, opts ...NodeOption) *Node {
	n := New(name, opts...)
	n.comp = &composable{build: build}
	return n
}

// Scopes returns the composable's scope snapshots, or nil for plain nodes.
func (n *Node) Scopes() []scope.Info {
	if n.comp == nil || n.comp.reg == nil {
		return nil
	}
	return n.comp.reg.Infos()
}

// ScopeRebuilds returns how many scope rebuilds swapped a subtree.
func (n *Node) ScopeRebuilds() int {
	if n.comp == nil {
		return 0
	}
	return n.comp.rebuilt
}

// Recompose runs the whole build again. Clean scopes are reused; scopes no
// longer declared are disposed.
func (n *Node) Recompose() error {
	if n.comp == nil || !n.Mounted() {
		return nil
	}
	if n.host != nil {
		if err := n.host.Bridge().AssertUIThread("widget.Recompose"); err != nil {
			return err
		}
	}
	return n.comp.run(n)
}

func (c *composable) compose(n *Node) {
	var opts []scope.Option[*Node]
	if n.host != nil {
		opts = append(opts,
			scope.WithBridge[*Node](n.host.Bridge()),
			scope.WithLogger[*Node](n.host.Logger()))
	}
	opts = append(opts,
		scope.WithPlaceholder[*Node](func(key scope.Key) *Node {
			return New("placeholder:" + string(key))
		}),
		scope.OnInvalidate[*Node](func(key scope.Key) {
			n.queue.Enqueue(binding.Entry{
				Target: n,
				Tag:    "scope:" + string(key),
				Action: binding.InvalidateScope,
				Scope:  key,
			})
		}),
		scope.OnError[*Node](func(key scope.Key, id uint64, err error) {
			if rep, ok := n.host.(ScopeReporter); ok {
				rep.ScopeFailed(n, key, id, err)
			}
		}),
		scope.OnDispose[*Node](func(_ scope.Key, frag *Node) {
			if frag != nil {
				frag.Unmount()
			}
		}),
	)
	c.reg = scope.New[*Node](opts...)
	if err := c.run(n); err != nil && n.host != nil {
		n.host.Logger().Error("widget: compose failed", "node", n.String(), "err", err)
	}
}

func (c *composable) run(n *Node) error {
	if err := c.reg.BeginBuild(); err != nil {
		return err
	}
	b := &Build{node: n, reg: c.reg}
	out := c.build(b)
	if _, err := c.reg.EndBuild(); err != nil {
		return err
	}
	if b.err != nil {
		return b.err
	}

	keep := make(map[*Node]bool, len(out))
	for _, child := range out {
		if child != nil {
			keep[child] = true
		}
	}
	for _, old := range append([]*Node(nil), n.children...) {
		if !keep[old] {
			old.Unmount()
			n.detach(old)
		}
	}
	n.children = n.children[:0]
	for _, child := range out {
		if child == nil {
			continue
		}
		if child.parent != nil && child.parent != n {
			child.parent.detach(child)
		}
		child.parent = n
		n.children = append(n.children, child)
		if n.Mounted() {
			child.mount(n.host, n.queue, n.owner)
		}
	}
	n.InvalidateLayout()
	return nil
}

// rebuild swaps the fragment of one dirty scope in place.
func (c *composable) rebuild(n *Node, key scope.Key) bool {
	if c.reg == nil || !n.Mounted() {
		return false
	}
	old, _ := c.reg.Fragment(key)
	next, built, err := c.reg.Rebuild(key)
	if err != nil || !built {
		return false
	}
	if next != old {
		if next != nil {
			next.scopeOf = n
		}
		if old != nil {
			old.Unmount()
			if p := old.parent; p != nil {
				p.replace(old, next)
			}
		}
		if next != nil && next.parent != nil {
			next.mount(n.host, n.queue, next.parent.owner)
			next.parent.InvalidateLayout()
		}
	} else if next != nil {
		next.InvalidateLayout()
	}
	c.rebuilt++
	if rep, ok := n.host.(ScopeReporter); ok {
		rep.ScopeRebuilt(n, key)
	}
	return true
}

func (c *composable) dispose() {
	if c.reg != nil {
		c.reg.Dispose()
		c.reg = nil
	}
}
