package reactive

import (
	"sync"

	"github.com/vango-dev/ripple/pkg/clock"
)

// outbox coalesces off-UI deliveries of one source into at most one
// scheduled flush. Owners keep their snapshot fields under mu.
type outbox struct {
	mu      sync.Mutex
	pending bool
	event   *clock.Event
}

// armLocked schedules fn on the bridge unless a flush is already pending.
// It reports whether this call armed the flush. Called with mu held.
func (o *outbox) armLocked(b *Bridge, fn func()) bool {
	if o.pending {
		stats.uiWritesCoalesced.Add(1)
		return false
	}
	o.pending = true
	o.event = b.Post(fn)
	return true
}

// takeLocked clears the pending flag and reports whether it was set.
func (o *outbox) takeLocked() bool {
	if !o.pending {
		return false
	}
	o.pending = false
	o.event = nil
	return true
}

// cancel unschedules a pending flush.
func (o *outbox) cancel(b *Bridge) {
	o.mu.Lock()
	ev := o.event
	pending := o.pending
	o.pending = false
	o.event = nil
	o.mu.Unlock()
	if pending && ev != nil && b != nil {
		b.clock.Unschedule(ev)
	}
}

// isPending reports whether a flush is scheduled.
func (o *outbox) isPending() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.pending
}
