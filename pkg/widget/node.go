// Package widget is the widget-tree side of the invalidation engine: nodes
// with layout and paint caches whose dependency tags are bound to reactive
// sources, and composable nodes whose output is split into keyed scopes.
package widget

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/vango-dev/ripple/pkg/binding"
	"github.com/vango-dev/ripple/pkg/reactive"
	"github.com/vango-dev/ripple/pkg/scope"
)

// Constraints bound the size a node may take.
type Constraints struct {
	MinW, MaxW float64
	MinH, MaxH float64
}

// Tight returns constraints that allow exactly w by h.
func Tight(w, h float64) Constraints {
	return Constraints{MinW: w, MaxW: w, MinH: h, MaxH: h}
}

// Clamp fits s inside c.
func (c Constraints) Clamp(s Size) Size {
	return Size{W: clamp(s.W, c.MinW, c.MaxW), H: clamp(s.H, c.MinH, c.MaxH)}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		v = lo
	}
	if hi > 0 && v > hi {
		v = hi
	}
	return v
}

// Size is a laid-out size.
type Size struct {
	W, H float64
}

// Measurer computes a node's size. It is the seam for the layout
// algorithm; nodes without one take the largest child size.
type Measurer interface {
	Measure(n *Node, c Constraints) Size
}

// MeasureFunc adapts a function to Measurer.
type MeasureFunc func(n *Node, c Constraints) Size

// Measure implements Measurer.
func (f MeasureFunc) Measure(n *Node, c Constraints) Size { return f(n, c) }

// Picture is a recorded paint result.
type Picture struct {
	Key string
	Ops []string
}

// Painter records a node's picture. Pictures are reused while ContentKey
// stays the same.
type Painter interface {
	ContentKey(n *Node) string
	Paint(n *Node) Picture
}

// Host connects mounted nodes to a runtime.
type Host interface {
	Queue() *binding.Queue
	Bridge() *reactive.Bridge
	Logger() *slog.Logger
	// NodeDirty is told about every node that starts needing layout or
	// paint.
	NodeDirty(n *Node)
}

// ScopeReporter is implemented by hosts that observe scope rebuilds.
type ScopeReporter interface {
	ScopeRebuilt(n *Node, key scope.Key)
	ScopeFailed(n *Node, key scope.Key, id uint64, err error)
}

var nodeIDs atomic.Uint64

// Node is one widget in the tree.
type Node struct {
	id       uint64
	name     string
	parent   *Node
	children []*Node

	measurer Measurer
	painter  Painter

	needsLayout atomic.Bool
	needsPaint  atomic.Bool

	cacheMu     sync.Mutex
	layoutCache map[Constraints]Size
	size        Size
	picture     Picture
	hasPicture  bool
	measures    int
	paints      int
	paintHits   int

	props      map[string]reactive.Source
	propOrder  []string
	layoutTags []string
	paintTags  []string

	onPointer func(PointerEvent) bool
	onKey     func(KeyEvent) bool

	host     Host
	queue    *binding.Queue
	mounted  atomic.Bool
	owner    *reactive.Owner
	instance *reactive.Instance
	bindings binding.Set

	comp    *composable
	scopeOf *Node
}

// NodeOption configures a Node.
type NodeOption func(*Node)

// WithMeasurer sets the node's layout collaborator.
func WithMeasurer(m Measurer) NodeOption {
	return func(n *Node) { n.measurer = m }
}

// WithPainter sets the node's paint collaborator.
func WithPainter(p Painter) NodeOption {
	return func(n *Node) { n.painter = p }
}

// WithChildren appends children at construction.
func WithChildren(children ...*Node) NodeOption {
	return func(n *Node) {
		for _, c := range children {
			n.adopt(c)
		}
	}
}

// New creates an unmounted node. New nodes need layout and paint.
func New(name string, opts ...NodeOption) *Node {
	n := &Node{
		id:          nodeIDs.Add(1),
		name:        name,
		layoutCache: make(map[Constraints]Size),
		props:       make(map[string]reactive.Source),
	}
	n.needsLayout.Store(true)
	n.needsPaint.Store(true)
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// ID returns the node's unique identifier.
func (n *Node) ID() uint64 { return n.id }

// Name returns the node's name.
func (n *Node) Name() string { return n.name }

// String returns name#id.
func (n *Node) String() string { return fmt.Sprintf("%s#%d", n.name, n.id) }

// Parent returns the parent node, or nil for a root.
func (n *Node) Parent() *Node { return n.parent }

// Children returns the node's children.
func (n *Node) Children() []*Node { return n.children }

// Root walks up to the tree's root.
func (n *Node) Root() *Node {
	for n.parent != nil {
		n = n.parent
	}
	return n
}

func (n *Node) adopt(c *Node) {
	if c.parent != nil {
		c.parent.detach(c)
	}
	c.parent = n
	n.children = append(n.children, c)
}

func (n *Node) detach(c *Node) {
	for i, child := range n.children {
		if child == c {
			n.children = append(n.children[:i], n.children[i+1:]...)
			break
		}
	}
	c.parent = nil
}

func (n *Node) guard(op string) {
	if n.host != nil {
		n.host.Bridge().MustUIThread(op)
	}
}

// Append adds children. Children appended to a mounted node are mounted
// with it.
func (n *Node) Append(children ...*Node) *Node {
	n.guard("widget.Append")
	for _, c := range children {
		n.adopt(c)
		if n.Mounted() {
			c.mount(n.host, n.queue, n.owner)
		}
	}
	if len(children) > 0 {
		n.InvalidateLayout()
	}
	return n
}

// Remove unmounts and detaches child.
func (n *Node) Remove(child *Node) {
	n.guard("widget.Remove")
	if child.parent != n {
		return
	}
	child.Unmount()
	n.detach(child)
	n.InvalidateLayout()
}

// replace swaps old for next in place.
func (n *Node) replace(old, next *Node) {
	for i, child := range n.children {
		if child == old {
			n.children[i] = next
			next.parent = n
			old.parent = nil
			return
		}
	}
	n.adopt(next)
}

// SetProp registers src as the reactive source behind tag.
func (n *Node) SetProp(tag string, src reactive.Source) *Node {
	if _, ok := n.props[tag]; !ok {
		n.propOrder = append(n.propOrder, tag)
	}
	n.props[tag] = src
	return n
}

// Prop returns the source registered under tag, or nil.
func (n *Node) Prop(tag string) reactive.Source {
	return n.props[tag]
}

// PropValue returns the current value of a typed prop.
func PropValue[T any](n *Node, tag string) (T, bool) {
	var zero T
	src, ok := n.props[tag].(reactive.Readable[T])
	if !ok {
		return zero, false
	}
	return src.Peek(), true
}

// LayoutDependsOn declares tags whose changes invalidate layout.
func (n *Node) LayoutDependsOn(tags ...string) *Node {
	n.layoutTags = append(n.layoutTags, tags...)
	return n
}

// PaintDependsOn declares tags whose changes invalidate paint.
func (n *Node) PaintDependsOn(tags ...string) *Node {
	n.paintTags = append(n.paintTags, tags...)
	return n
}

// NeedsLayout reports whether the node's layout cache is stale.
func (n *Node) NeedsLayout() bool { return n.needsLayout.Load() }

// NeedsPaint reports whether the node's picture is stale.
func (n *Node) NeedsPaint() bool { return n.needsPaint.Load() }

// InvalidateLayout marks the node and its ancestors as needing layout.
// The node itself also needs paint.
func (n *Node) InvalidateLayout() {
	n.markPaint()
	for cur := n; cur != nil; cur = cur.parent {
		cur.cacheMu.Lock()
		clear(cur.layoutCache)
		cur.cacheMu.Unlock()
		if cur.needsLayout.Swap(true) && cur != n {
			break
		}
	}
	n.notifyHost()
}

// InvalidatePaint marks only this node as needing paint.
func (n *Node) InvalidatePaint() {
	n.markPaint()
	n.notifyHost()
}

func (n *Node) markPaint() {
	n.needsPaint.Store(true)
}

func (n *Node) notifyHost() {
	if n.host != nil && n.Mounted() {
		n.host.NodeDirty(n)
	}
}

// Layout returns the node's size under c, measuring only on a cache miss.
func (n *Node) Layout(c Constraints) Size {
	n.cacheMu.Lock()
	if s, ok := n.layoutCache[c]; ok && !n.needsLayout.Load() {
		n.cacheMu.Unlock()
		return s
	}
	n.cacheMu.Unlock()

	var s Size
	if n.measurer != nil {
		s = n.measurer.Measure(n, c)
	} else {
		s = largestChild(n, c)
	}

	n.cacheMu.Lock()
	n.layoutCache[c] = s
	n.size = s
	n.measures++
	n.needsLayout.Store(false)
	n.cacheMu.Unlock()
	return s
}

func largestChild(n *Node, c Constraints) Size {
	var s Size
	for _, child := range n.children {
		cs := child.Layout(c)
		s.W = max(s.W, cs.W)
		s.H = max(s.H, cs.H)
	}
	return c.Clamp(s)
}

// Size returns the size from the last layout.
func (n *Node) Size() Size {
	n.cacheMu.Lock()
	defer n.cacheMu.Unlock()
	return n.size
}

// Paint returns the node's picture, repainting only when the content key
// changed.
func (n *Node) Paint() Picture {
	n.needsPaint.Store(false)
	key := n.name
	if n.painter != nil {
		key = n.painter.ContentKey(n)
	}

	n.cacheMu.Lock()
	if n.hasPicture && n.picture.Key == key {
		n.paintHits++
		pic := n.picture
		n.cacheMu.Unlock()
		return pic
	}
	n.cacheMu.Unlock()

	pic := Picture{Key: key}
	if n.painter != nil {
		pic = n.painter.Paint(n)
		pic.Key = key
	}

	n.cacheMu.Lock()
	n.picture = pic
	n.hasPicture = true
	n.paints++
	n.cacheMu.Unlock()
	return pic
}

// Measures returns how many times the node was measured.
func (n *Node) Measures() int {
	n.cacheMu.Lock()
	defer n.cacheMu.Unlock()
	return n.measures
}

// Paints returns how many pictures the node recorded.
func (n *Node) Paints() int {
	n.cacheMu.Lock()
	defer n.cacheMu.Unlock()
	return n.paints
}

// PaintHits returns how many paints reused the cached picture.
func (n *Node) PaintHits() int {
	n.cacheMu.Lock()
	defer n.cacheMu.Unlock()
	return n.paintHits
}

// Mounted reports whether the node is attached to a live tree.
func (n *Node) Mounted() bool { return n.mounted.Load() }

// Owner returns the node's reactive owner while mounted.
func (n *Node) Owner() *reactive.Owner { return n.owner }

// Instance returns the node's per-instance reactive storage, created on
// first use while mounted.
func (n *Node) Instance() *reactive.Instance {
	if n.instance == nil && n.owner != nil {
		n.instance = reactive.NewInstance(n.owner)
	}
	return n.instance
}

// Queue returns the binding queue the node enqueues into while mounted.
func (n *Node) Queue() *binding.Queue { return n.queue }

// Mount attaches the subtree to host. A nil host gives the subtree its
// own immediate binding queue, so changes invalidate synchronously.
func (n *Node) Mount(host Host) error {
	if host != nil {
		if err := host.Bridge().AssertUIThread("widget.Mount"); err != nil {
			return err
		}
	}
	if n.Mounted() {
		return nil
	}
	var q *binding.Queue
	var parentOwner *reactive.Owner
	if host != nil {
		q = host.Queue()
	} else {
		q = binding.NewQueue()
	}
	if n.parent != nil {
		parentOwner = n.parent.owner
	}
	n.mount(host, q, parentOwner)
	return nil
}

func (n *Node) mount(host Host, q *binding.Queue, parent *reactive.Owner) {
	if n.Mounted() {
		return
	}
	n.host = host
	n.queue = q
	if n.scopeOf != nil && n.scopeOf.owner != nil {
		parent = n.scopeOf.owner
	}
	n.owner = reactive.NewOwner(parent)
	n.mounted.Store(true)

	n.bindTags(n.layoutTags, binding.InvalidateLayout)
	n.bindTags(n.paintTags, binding.InvalidatePaint)

	if n.comp != nil {
		n.comp.compose(n)
	}
	for _, c := range n.children {
		c.mount(host, q, n.owner)
	}
	n.notifyHost()
}

func (n *Node) bindTags(tags []string, action binding.Action) {
	for _, tag := range tags {
		src, ok := n.props[tag]
		if !ok {
			if n.host != nil {
				n.host.Logger().Warn("widget: dependency tag has no prop",
					"node", n.String(),
					"tag", tag)
			}
			continue
		}
		n.bindings.Add(binding.Bind(n.queue, n, tag, action, src))
	}
}

// Unmount releases the subtree's bindings, scopes and owners.
func (n *Node) Unmount() {
	n.guard("widget.Unmount")
	if !n.mounted.Swap(false) {
		return
	}
	for _, c := range n.children {
		c.Unmount()
	}
	n.bindings.Dispose()
	if n.comp != nil {
		n.comp.dispose()
	}
	if n.queue != nil {
		n.queue.Drop(n)
	}
	if n.owner != nil {
		n.owner.Dispose()
	}
	n.owner = nil
	n.instance = nil
	n.host = nil
}

// RebuildScope implements binding.Target. Plain nodes have no scopes.
func (n *Node) RebuildScope(key scope.Key) bool {
	if n.comp == nil {
		return false
	}
	return n.comp.rebuild(n, key)
}

// Walk visits the subtree depth-first, parents before children. It stops
// descending below a node when fn returns false.
func (n *Node) Walk(fn func(*Node) bool) {
	if !fn(n) {
		return
	}
	for _, c := range n.children {
		c.Walk(fn)
	}
}
