package reactive

import (
	"sync"
	"testing"
)

func TestBatchCoalescesToFinalValue(t *testing.T) {
	c := NewCell(0)
	var got []int
	c.Subscribe(func(v int) { got = append(got, v) })

	Batch(func() {
		c.Set(1)
		c.Set(2)
		c.Set(3)
		if len(got) != 0 {
			t.Errorf("expected no delivery inside the batch, got %v", got)
		}
		if c.Peek() != 3 {
			t.Errorf("expected storage updated inside the batch, got %d", c.Peek())
		}
	})

	if len(got) != 1 || got[0] != 3 {
		t.Errorf("expected [3], got %v", got)
	}
}

func TestBatchRoundTripDoesNotNotify(t *testing.T) {
	c := NewCell(0)
	var got []int
	c.Subscribe(func(v int) { got = append(got, v) })

	Batch(func() {
		c.Set(1)
		c.Set(0)
	})

	if len(got) != 0 {
		t.Errorf("expected [], got %v", got)
	}
}

func TestBatchFirstTouchedOrder(t *testing.T) {
	a := NewCell("")
	b := NewCell("")
	var order []string
	a.Subscribe(func(string) { order = append(order, "a") })
	b.Subscribe(func(string) { order = append(order, "b") })

	Batch(func() {
		b.Set("1")
		a.Set("1")
		b.Set("2")
	})

	if len(order) != 2 || order[0] != "b" || order[1] != "a" {
		t.Errorf("expected [b a], got %v", order)
	}
}

func TestBatchNested(t *testing.T) {
	c := NewCell(0)
	calls := 0
	c.Subscribe(func(int) { calls++ })

	Batch(func() {
		c.Set(1)
		Batch(func() {
			c.Set(2)
		})
		if calls != 0 {
			t.Errorf("expected inner batch exit not to deliver, got %d", calls)
		}
		c.Set(3)
	})

	if calls != 1 {
		t.Errorf("expected 1 delivery, got %d", calls)
	}
}

func TestBatchComputedNotifiesOnce(t *testing.T) {
	w := NewCell(1)
	h := NewCell(1)
	runs := 0
	area := NewComputed(func(f *Frame) int {
		runs++
		return w.Get(f) * h.Get(f)
	})
	var got []int
	area.Subscribe(func(v int) { got = append(got, v) })

	Batch(func() {
		w.Set(3)
		h.Set(4)
	})

	if len(got) != 1 || got[0] != 12 {
		t.Errorf("expected [12], got %v", got)
	}
	if runs != 2 {
		t.Errorf("expected one recompute for the batch, got %d runs", runs)
	}
}

func TestBatchEndsWhenFnPanics(t *testing.T) {
	c := NewCell(0)
	calls := 0
	c.Subscribe(func(int) { calls++ })

	func() {
		defer func() { recover() }()
		Batch(func() {
			c.Set(1)
			panic("handler failed")
		})
	}()

	if InBatch() {
		t.Fatal("expected batch to be closed after panic")
	}
	if calls != 1 {
		t.Errorf("expected pending write delivered on exit, got %d", calls)
	}
	c.Set(2)
	if calls != 2 {
		t.Errorf("expected immediate delivery after batch, got %d", calls)
	}
}

func TestBatchWritesDuringDeliveryRunAfter(t *testing.T) {
	a := NewCell(0)
	b := NewCell(0)
	var order []string
	a.Subscribe(func(v int) {
		order = append(order, "a")
		b.Set(v * 10)
	})
	b.Subscribe(func(v int) { order = append(order, "b") })
	c := NewCell(0)
	c.Subscribe(func(int) { order = append(order, "c") })

	Batch(func() {
		a.Set(1)
		c.Set(1)
	})

	want := []string{"a", "c", "b"}
	if len(order) != len(want) {
		t.Fatalf("expected %v, got %v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("expected %v, got %v", want, order)
			break
		}
	}
	if b.Peek() != 10 {
		t.Errorf("expected 10, got %d", b.Peek())
	}
}

func TestBatchIsPerGoroutine(t *testing.T) {
	c := NewCell(0)
	var mu sync.Mutex
	var got []int
	c.Subscribe(func(v int) {
		mu.Lock()
		got = append(got, v)
		mu.Unlock()
	})

	BeginBatch()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.Set(7)
	}()
	wg.Wait()

	mu.Lock()
	n := len(got)
	mu.Unlock()
	if n != 1 {
		t.Errorf("expected other goroutine to deliver immediately, got %d", n)
	}
	EndBatch()
}

func TestEndBatchUnpairedIsNoop(t *testing.T) {
	EndBatch()
	if InBatch() {
		t.Error("expected no open batch")
	}
}
