package reactive

import (
	"errors"
	"sync"
	"testing"

	"github.com/vango-dev/ripple/pkg/clock"
)

// offUI runs fn on a fresh goroutine and waits for it.
func offUI(fn func()) {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		fn()
	}()
	wg.Wait()
}

func TestBridgeCoalescesOffThreadWrites(t *testing.T) {
	clk := clock.NewManual()
	bridge := NewBridge(clk)
	c := NewCell(0, OnUI(bridge))
	var got []int
	c.Subscribe(func(v int) { got = append(got, v) })

	offUI(func() {
		for i := 1; i <= 5; i++ {
			c.Set(i)
		}
	})

	if c.Peek() != 5 {
		t.Errorf("expected storage visible immediately, got %d", c.Peek())
	}
	if len(got) != 0 {
		t.Fatalf("expected no delivery before the UI tick, got %v", got)
	}
	if clk.Pending() != 1 {
		t.Errorf("expected exactly one scheduled flush, got %d", clk.Pending())
	}

	clk.Tick()

	if len(got) != 1 || got[0] != 5 {
		t.Errorf("expected [5], got %v", got)
	}
	clk.Tick()
	if len(got) != 1 {
		t.Errorf("expected no further delivery, got %v", got)
	}
}

func TestBridgeFlushDeliversStoredValue(t *testing.T) {
	clk := clock.NewManual()
	bridge := NewBridge(clk)
	c := NewCell(0, OnUI(bridge))
	var got []int
	c.Subscribe(func(v int) { got = append(got, v) })

	for round := 0; round < 50; round++ {
		var wg sync.WaitGroup
		for w := 1; w <= 4; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				for i := 0; i < 100; i++ {
					c.Set(round*1000 + w*100 + i + 1)
				}
			}(w)
		}
		wg.Wait()

		before := len(got)
		clk.Tick()

		if len(got) != before+1 {
			t.Fatalf("round %d: expected one delivery, got %d", round, len(got)-before)
		}
		if last := got[len(got)-1]; last != c.Peek() {
			t.Fatalf("round %d: delivered %d but the cell holds %d", round, last, c.Peek())
		}
	}
}

func TestBridgeSkipsRoundTripWrites(t *testing.T) {
	clk := clock.NewManual()
	bridge := NewBridge(clk)
	c := NewCell("idle", OnUI(bridge))
	calls := 0
	c.Subscribe(func(string) { calls++ })

	offUI(func() {
		c.Set("busy")
		c.Set("idle")
	})
	clk.Tick()

	if calls != 0 {
		t.Errorf("expected round trip to be skipped, got %d deliveries", calls)
	}
}

func TestBridgeUIWriteDeliversSynchronously(t *testing.T) {
	clk := clock.NewManual()
	bridge := NewBridge(clk)
	c := NewCell(0, OnUI(bridge))
	var got []int
	c.Subscribe(func(v int) { got = append(got, v) })

	offUI(func() { c.Set(1) })
	c.Set(2)

	if len(got) != 1 || got[0] != 2 {
		t.Fatalf("expected [2] delivered synchronously, got %v", got)
	}
	if c.PendingUI() {
		t.Error("expected UI-thread write to cancel the pending flush")
	}
	clk.Tick()
	if len(got) != 1 {
		t.Errorf("expected cancelled flush not to deliver, got %v", got)
	}
}

func TestBridgeDisposeCancelsPendingFlush(t *testing.T) {
	clk := clock.NewManual()
	bridge := NewBridge(clk)
	c := NewCell(0, OnUI(bridge))
	calls := 0
	c.Subscribe(func(int) { calls++ })

	offUI(func() { c.Set(1) })
	c.Dispose()
	clk.Tick()

	if calls != 0 {
		t.Errorf("expected disposed cell never to deliver, got %d", calls)
	}
	if clk.Pending() != 0 {
		t.Errorf("expected flush to be unscheduled, got %d pending", clk.Pending())
	}
}

func TestBridgeDerivedCellsInheritUIDispatch(t *testing.T) {
	clk := clock.NewManual()
	bridge := NewBridge(clk)
	n := NewCell(1, OnUI(bridge))
	doubled := Map(n, func(v int) int { return v * 2 })

	if mode, b := doubled.Dispatch(); mode != DispatchUI || b != bridge {
		t.Fatalf("expected derived cell on the UI bridge, got %v", mode)
	}

	var got []int
	doubled.Subscribe(func(v int) { got = append(got, v) })

	offUI(func() { n.Set(4) })
	if len(got) != 0 {
		t.Fatalf("expected no off-thread delivery, got %v", got)
	}
	clk.Tick()
	if len(got) != 1 || got[0] != 8 {
		t.Errorf("expected [8], got %v", got)
	}
}

func TestBridgeSyncSourceIntoUIComputed(t *testing.T) {
	clk := clock.NewManual()
	bridge := NewBridge(clk)
	worker := NewCell(0)
	view := NewComputed(func(f *Frame) int { return worker.Get(f) }, OnUI(bridge))
	var got []int
	view.Subscribe(func(v int) { got = append(got, v) })

	offUI(func() {
		worker.Set(1)
		worker.Set(2)
	})
	if len(got) != 0 {
		t.Fatalf("expected delivery deferred to the UI goroutine, got %v", got)
	}
	clk.Tick()
	if len(got) != 1 || got[0] != 2 {
		t.Errorf("expected [2], got %v", got)
	}
}

func TestAssertUIThread(t *testing.T) {
	bridge := NewBridge(clock.NewManual())
	if err := bridge.AssertUIThread("tree.Mutate"); err != nil {
		t.Fatalf("expected nil on the UI goroutine, got %v", err)
	}

	var violations []string
	bridge.OnViolation(func(err *ThreadError) { violations = append(violations, err.Op) })

	var err error
	offUI(func() { err = bridge.AssertUIThread("tree.Mutate") })

	var te *ThreadError
	if !errors.As(err, &te) {
		t.Fatalf("expected *ThreadError, got %v", err)
	}
	if te.Op != "tree.Mutate" || !errors.Is(err, ErrNotUIThread) {
		t.Errorf("expected error naming tree.Mutate, got %v", err)
	}
	if len(violations) != 1 {
		t.Errorf("expected violation hook to fire once, got %v", violations)
	}
}

func TestMustUIThreadPanics(t *testing.T) {
	bridge := NewBridge(clock.NewManual())
	var recovered any
	offUI(func() {
		defer func() { recovered = recover() }()
		bridge.MustUIThread("layout")
	})
	if _, ok := recovered.(*ThreadError); !ok {
		t.Errorf("expected *ThreadError panic, got %v", recovered)
	}
}

func TestBindUIThread(t *testing.T) {
	bridge := NewBridge(clock.NewManual())
	var onUI bool
	offUI(func() {
		bridge.BindUIThread()
		onUI = bridge.OnUIThread()
	})
	if !onUI {
		t.Error("expected rebinding goroutine to be the UI goroutine")
	}
	if bridge.OnUIThread() {
		t.Error("expected test goroutine to no longer be the UI goroutine")
	}
}

func TestNilBridgeIsAlwaysOnUI(t *testing.T) {
	var b *Bridge
	if !b.OnUIThread() || b.AssertUIThread("x") != nil {
		t.Error("expected nil bridge to accept every goroutine")
	}
}
