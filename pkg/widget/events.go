package widget

// PointerKind distinguishes pointer events.
type PointerKind uint8

const (
	PointerDown PointerKind = iota
	PointerUp
	PointerMove
	PointerScroll
)

// String returns the kind's name.
func (k PointerKind) String() string {
	switch k {
	case PointerDown:
		return "down"
	case PointerUp:
		return "up"
	case PointerMove:
		return "move"
	case PointerScroll:
		return "scroll"
	default:
		return "unknown"
	}
}

// PointerEvent is a pointer input delivered to a node.
type PointerEvent struct {
	Kind   PointerKind
	X, Y   float64
	Button int
	DeltaY float64
}

// KeyEvent is a keyboard input delivered to a node.
type KeyEvent struct {
	Key   string
	Down  bool
	Shift bool
	Ctrl  bool
	Alt   bool
}

// OnPointer sets the pointer handler. Returning true stops bubbling.
func (n *Node) OnPointer(fn func(PointerEvent) bool) *Node {
	n.onPointer = fn
	return n
}

// OnKey sets the key handler. Returning true stops bubbling.
func (n *Node) OnKey(fn func(KeyEvent) bool) *Node {
	n.onKey = fn
	return n
}

// HandlePointer delivers ev to n and bubbles it to ancestors until a
// handler consumes it. It returns the consuming node, or nil.
func (n *Node) HandlePointer(ev PointerEvent) *Node {
	for cur := n; cur != nil; cur = cur.parent {
		if cur.onPointer != nil && cur.onPointer(ev) {
			return cur
		}
	}
	return nil
}

// HandleKey delivers ev like HandlePointer.
func (n *Node) HandleKey(ev KeyEvent) *Node {
	for cur := n; cur != nil; cur = cur.parent {
		if cur.onKey != nil && cur.onKey(ev) {
			return cur
		}
	}
	return nil
}
