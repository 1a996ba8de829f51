package clock

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/zoobzio/clockz"
)

var (
	_ Clock = (*Manual)(nil)
	_ Clock = (*Loop)(nil)
)

func TestManualTickRunsDueCallbacks(t *testing.T) {
	m := NewManual()
	var order []int

	m.ScheduleOnce(func() { order = append(order, 1) }, 0)
	m.ScheduleOnce(func() { order = append(order, 2) }, 0)
	m.ScheduleOnce(func() { order = append(order, 3) }, time.Second)

	if n := m.Tick(); n != 2 {
		t.Fatalf("expected 2 callbacks, got %d", n)
	}
	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Errorf("expected [1 2], got %v", order)
	}
	if m.Pending() != 1 {
		t.Errorf("expected 1 pending event, got %d", m.Pending())
	}
}

func TestManualTickDefersCallbacksScheduledDuringTick(t *testing.T) {
	m := NewManual()
	var ran []string

	m.ScheduleOnce(func() {
		ran = append(ran, "outer")
		m.ScheduleOnce(func() { ran = append(ran, "inner") }, 0)
	}, 0)

	m.Tick()
	if len(ran) != 1 {
		t.Fatalf("expected inner callback to wait for the next tick, got %v", ran)
	}
	m.Tick()
	if len(ran) != 2 || ran[1] != "inner" {
		t.Errorf("expected inner on second tick, got %v", ran)
	}
}

func TestManualUnschedule(t *testing.T) {
	m := NewManual()
	called := false
	ev := m.ScheduleOnce(func() { called = true }, 0)

	m.Unschedule(ev)
	m.Unschedule(ev)
	m.Tick()

	if called {
		t.Error("expected cancelled callback not to run")
	}
	if !ev.Cancelled() {
		t.Error("expected event to report cancelled")
	}
	if m.Pending() != 0 {
		t.Errorf("expected empty queue, got %d", m.Pending())
	}
}

func TestManualAdvanceOrdersByDueTime(t *testing.T) {
	m := NewManual()
	start := m.Now()
	var order []string
	var seen []time.Duration

	m.ScheduleOnce(func() {
		order = append(order, "b")
		seen = append(seen, m.Now().Sub(start))
	}, 20*time.Millisecond)
	m.ScheduleOnce(func() {
		order = append(order, "a")
		seen = append(seen, m.Now().Sub(start))
	}, 10*time.Millisecond)

	if n := m.Advance(15 * time.Millisecond); n != 1 {
		t.Fatalf("expected 1 callback by 15ms, got %d", n)
	}
	m.Advance(10 * time.Millisecond)

	if len(order) != 2 || order[0] != "a" || order[1] != "b" {
		t.Fatalf("expected [a b], got %v", order)
	}
	if seen[0] != 10*time.Millisecond || seen[1] != 20*time.Millisecond {
		t.Errorf("expected callbacks at 10ms and 20ms, got %v", seen)
	}
	if got := m.Now().Sub(start); got != 25*time.Millisecond {
		t.Errorf("expected clock at 25ms, got %v", got)
	}
}

func TestManualInterval(t *testing.T) {
	m := NewManual()
	count := 0
	ev := m.ScheduleInterval(func() { count++ }, 10*time.Millisecond)

	m.Advance(35 * time.Millisecond)
	if count != 3 {
		t.Fatalf("expected 3 runs, got %d", count)
	}

	m.Unschedule(ev)
	m.Advance(50 * time.Millisecond)
	if count != 3 {
		t.Errorf("expected no runs after unschedule, got %d", count)
	}
}

func TestManualZeroIntervalRunsOncePerTick(t *testing.T) {
	m := NewManual()
	count := 0
	m.ScheduleInterval(func() { count++ }, 0)

	m.Tick()
	m.Tick()
	m.Tick()
	if count != 3 {
		t.Errorf("expected 3 runs over 3 ticks, got %d", count)
	}
}

func TestLoopRunsPostedCallbacksInOrder(t *testing.T) {
	l := NewLoop()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan []int, 1)
	var order []int
	started := make(chan struct{})
	l.OnStart(func() { close(started) })

	errc := make(chan error, 1)
	go func() { errc <- l.Run(ctx) }()
	<-started

	for i := 1; i <= 3; i++ {
		i := i
		l.Post(func() {
			order = append(order, i)
			if i == 3 {
				done <- order
			}
		})
	}

	select {
	case got := <-done:
		if len(got) != 3 || got[0] != 1 || got[2] != 3 {
			t.Errorf("expected [1 2 3], got %v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for posted callbacks")
	}

	cancel()
	if err := <-errc; err != nil {
		t.Errorf("expected nil from Run, got %v", err)
	}
}

func TestLoopCancelsRemainingEventsOnStop(t *testing.T) {
	l := NewLoop()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var ran []int
	first := l.Post(func() {
		ran = append(ran, 1)
		cancel()
	})
	second := l.Post(func() { ran = append(ran, 2) })
	third := l.Post(func() { ran = append(ran, 3) })

	if err := l.Run(ctx); err != nil {
		t.Fatalf("expected nil from Run, got %v", err)
	}

	if len(ran) != 1 || ran[0] != 1 {
		t.Errorf("expected only the first callback to run, got %v", ran)
	}
	if first.Cancelled() {
		t.Error("expected the event that ran not to be cancelled")
	}
	for _, ev := range []*Event{second, third} {
		if !ev.Cancelled() {
			t.Errorf("expected event %d to be cancelled", ev.ID())
		}
		select {
		case <-ev.done:
		default:
			t.Errorf("expected event %d to be released", ev.ID())
		}
	}
}

func TestLoopRejectsSecondRun(t *testing.T) {
	l := NewLoop()
	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	l.OnStart(func() { close(started) })
	go l.Run(ctx)
	<-started
	defer cancel()

	if err := l.Run(ctx); err != ErrLoopRunning {
		t.Errorf("expected ErrLoopRunning, got %v", err)
	}
}

func TestLoopSurvivesCallbackPanic(t *testing.T) {
	l := NewLoop()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx)

	l.Post(func() { panic("boom") })
	done := make(chan struct{})
	l.Post(func() { close(done) })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("loop stopped after a panicking callback")
	}
}

func TestLoopDelayedEventUsesTimeSource(t *testing.T) {
	fake := clockz.NewFakeClock()
	l := NewLoop(WithTimeSource(fake))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx)

	var fired atomic.Bool
	done := make(chan struct{})
	l.ScheduleOnce(func() {
		fired.Store(true)
		close(done)
	}, 50*time.Millisecond)

	if fired.Load() {
		t.Fatal("expected event to wait for the fake clock")
	}
	fake.Advance(50 * time.Millisecond)
	fake.BlockUntilReady()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("delayed event never fired")
	}
}

func TestLoopUnscheduleDelayedEvent(t *testing.T) {
	fake := clockz.NewFakeClock()
	l := NewLoop(WithTimeSource(fake))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx)

	var fired atomic.Bool
	ev := l.ScheduleOnce(func() { fired.Store(true) }, 10*time.Millisecond)
	l.Unschedule(ev)
	fake.Advance(20 * time.Millisecond)
	fake.BlockUntilReady()

	flushed := make(chan struct{})
	l.Post(func() { close(flushed) })
	<-flushed
	if fired.Load() {
		t.Error("expected unscheduled event not to fire")
	}
}
