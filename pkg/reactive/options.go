package reactive

// DispatchMode selects where a source delivers its notifications.
type DispatchMode uint8

const (
	// DispatchSync delivers on the writing goroutine.
	DispatchSync DispatchMode = iota

	// DispatchUI delivers on the bridge's UI goroutine.
	DispatchUI
)

// String returns a human-readable name for the mode.
func (m DispatchMode) String() string {
	switch m {
	case DispatchSync:
		return "sync"
	case DispatchUI:
		return "ui"
	default:
		return "unknown"
	}
}

// Option configures a cell, computed or effect at construction.
type Option func(*options)

type options struct {
	name   string
	bridge *Bridge
	owner  *Owner
}

// OnUI makes the source deliver notifications on b's UI goroutine.
// A nil bridge leaves the source synchronous.
func OnUI(b *Bridge) Option {
	return func(o *options) {
		o.bridge = b
	}
}

// Named sets a debug name used in logs and errors.
func Named(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// OwnedBy attaches the source to owner instead of the goroutine's current
// owner.
func OwnedBy(owner *Owner) Option {
	return func(o *options) {
		o.owner = owner
	}
}

func applyOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.owner == nil {
		o.owner = currentOwner()
	}
	return o
}

// inheritDispatch returns OnUI for the first UI-bound source, so derived
// cells deliver where their inputs do.
func inheritDispatch(srcs ...Source) []Option {
	for _, s := range srcs {
		if s == nil {
			continue
		}
		if mode, b := s.Dispatch(); mode == DispatchUI {
			return []Option{OnUI(b)}
		}
	}
	return nil
}
