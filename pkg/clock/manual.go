package clock

import (
	"container/heap"
	"sync"
	"time"

	"github.com/zoobzio/clockz"
)

// Manual is a Clock whose time only moves when the test says so.
//
// Callbacks run on the goroutine calling Tick or Advance, which makes that
// goroutine the UI goroutine for the purposes of the bridge.
type Manual struct {
	mu    sync.Mutex
	fake  *clockz.FakeClock
	queue eventQueue
	seq   uint64
	ticks int
}

// NewManual creates a manual clock starting at the fake clock's epoch.
func NewManual() *Manual {
	return &Manual{fake: clockz.NewFakeClock()}
}

// Now returns the fake current time.
func (m *Manual) Now() time.Time {
	return m.fake.Now()
}

// ScheduleOnce queues fn to run once delay has elapsed.
func (m *Manual) ScheduleOnce(fn func(), delay time.Duration) *Event {
	if delay < 0 {
		delay = 0
	}
	ev := newEvent(fn, m.fake.Now().Add(delay), 0)
	m.mu.Lock()
	m.pushLocked(ev)
	m.mu.Unlock()
	return ev
}

// ScheduleInterval queues fn to run every interval. An interval <= 0 runs
// fn once per Tick.
func (m *Manual) ScheduleInterval(fn func(), interval time.Duration) *Event {
	if interval <= 0 {
		interval = 0
	}
	ev := newEvent(fn, m.fake.Now().Add(interval), interval)
	ev.repeat = true
	m.mu.Lock()
	m.pushLocked(ev)
	m.mu.Unlock()
	return ev
}

// Unschedule cancels ev.
func (m *Manual) Unschedule(ev *Event) {
	if ev == nil {
		return
	}
	ev.cancel()
	m.mu.Lock()
	if ev.index >= 0 && ev.index < len(m.queue) && m.queue[ev.index].ev == ev {
		heap.Remove(&m.queue, ev.index)
	}
	m.mu.Unlock()
}

// Pending returns the number of scheduled, uncancelled events.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// Ticks returns how many times Tick has been called, directly or through
// Advance.
func (m *Manual) Ticks() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ticks
}

// Tick runs every callback due at the current time that was scheduled
// before the tick began. Callbacks scheduled while the tick runs are left
// for the next tick. It returns the number of callbacks run.
func (m *Manual) Tick() int {
	m.mu.Lock()
	m.ticks++
	limit := m.seq
	m.mu.Unlock()

	now := m.fake.Now()
	ran := 0
	for {
		m.mu.Lock()
		if len(m.queue) == 0 {
			m.mu.Unlock()
			return ran
		}
		head := m.queue[0]
		if head.ev.due.After(now) || head.seq > limit {
			m.mu.Unlock()
			return ran
		}
		heap.Pop(&m.queue)
		ev := head.ev
		if ev.repeat && !ev.Cancelled() {
			ev.due = now.Add(ev.interval)
			m.pushLocked(ev)
		}
		m.mu.Unlock()

		if ev.Cancelled() {
			continue
		}
		ev.fn()
		ran++
	}
}

// Advance moves time forward by d, running everything that falls due in
// due-time order. Time is stepped to each event's due time before its tick.
func (m *Manual) Advance(d time.Duration) int {
	target := m.fake.Now().Add(d)
	ran := 0
	ticked := false
	var last time.Time
	for {
		m.mu.Lock()
		if len(m.queue) == 0 || m.queue[0].ev.due.After(target) {
			m.mu.Unlock()
			break
		}
		due := m.queue[0].ev.due
		m.mu.Unlock()

		if step := due.Sub(m.fake.Now()); step > 0 {
			m.fake.Advance(step)
		}
		now := m.fake.Now()
		if ticked && !now.After(last) {
			// One tick per instant; work scheduled during it waits for
			// the next Tick.
			break
		}
		ticked, last = true, now
		ran += m.Tick()
	}
	if rest := target.Sub(m.fake.Now()); rest > 0 {
		m.fake.Advance(rest)
	}
	return ran
}

func (m *Manual) pushLocked(ev *Event) {
	m.seq++
	heap.Push(&m.queue, queued{ev: ev, seq: m.seq})
}

type queued struct {
	ev  *Event
	seq uint64
}

// eventQueue orders events by due time, then by scheduling order.
type eventQueue []queued

func (q eventQueue) Len() int { return len(q) }

func (q eventQueue) Less(i, j int) bool {
	if q[i].ev.due.Equal(q[j].ev.due) {
		return q[i].seq < q[j].seq
	}
	return q[i].ev.due.Before(q[j].ev.due)
}

func (q eventQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].ev.index = i
	q[j].ev.index = j
}

func (q *eventQueue) Push(x any) {
	item := x.(queued)
	item.ev.index = len(*q)
	*q = append(*q, item)
}

func (q *eventQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = queued{}
	item.ev.index = -1
	*q = old[:n-1]
	return item
}
