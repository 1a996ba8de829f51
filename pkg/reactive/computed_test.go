package reactive

import (
	"errors"
	"fmt"
	"strconv"
	"testing"
)

func TestComputedIsLazy(t *testing.T) {
	a := NewCell(1)
	runs := 0
	c := NewComputed(func(f *Frame) int {
		runs++
		return a.Get(f) + 1
	})

	if runs != 0 {
		t.Fatalf("expected no run before first read, got %d", runs)
	}
	if c.Peek() != 2 {
		t.Errorf("expected 2, got %d", c.Peek())
	}
	c.Peek()
	if runs != 1 {
		t.Errorf("expected memoized value, got %d runs", runs)
	}

	a.Set(5)
	if runs != 1 {
		t.Errorf("expected unsubscribed computed to stay lazy, got %d runs", runs)
	}
	if c.Peek() != 6 {
		t.Errorf("expected 6, got %d", c.Peek())
	}
	if runs != 2 {
		t.Errorf("expected 2 runs, got %d", runs)
	}
}

func TestComputedDependencyAccuracy(t *testing.T) {
	flag := NewCell(true)
	a := NewCell("a")
	b := NewCell("b")
	runs := 0
	c := NewComputed(func(f *Frame) string {
		runs++
		if flag.Get(f) {
			return a.Get(f)
		}
		return b.Get(f)
	})
	var got []string
	c.Subscribe(func(v string) { got = append(got, v) })

	if c.Deps() != 2 {
		t.Fatalf("expected deps {flag, a}, got %d", c.Deps())
	}
	if b.Subscribers() != 0 {
		t.Errorf("expected b untracked, got %d subscribers", b.Subscribers())
	}

	b.Set("b2")
	if runs != 1 {
		t.Errorf("expected no recompute for an unread source, got %d runs", runs)
	}

	flag.Set(false)
	if runs != 2 {
		t.Fatalf("expected recompute after flag change, got %d runs", runs)
	}
	if a.Subscribers() != 0 {
		t.Errorf("expected a dropped after branch switch, got %d subscribers", a.Subscribers())
	}
	if b.Subscribers() != 1 {
		t.Errorf("expected b tracked after branch switch, got %d subscribers", b.Subscribers())
	}

	a.Set("a2")
	if runs != 2 {
		t.Errorf("expected a to be ignored now, got %d runs", runs)
	}
	if len(got) != 1 || got[0] != "b2" {
		t.Errorf("expected [b2], got %v", got)
	}
}

func TestComputedEqualityCutoff(t *testing.T) {
	n := NewCell(2)
	parity := NewComputed(func(f *Frame) bool { return n.Get(f)%2 == 0 })
	downstreamRuns := 0
	label := NewComputed(func(f *Frame) string {
		downstreamRuns++
		if parity.Get(f) {
			return "even"
		}
		return "odd"
	})
	var got []string
	label.Subscribe(func(v string) { got = append(got, v) })

	n.Set(4)
	if downstreamRuns != 1 {
		t.Errorf("expected cutoff at parity, got %d downstream runs", downstreamRuns)
	}
	n.Set(5)
	if len(got) != 1 || got[0] != "odd" {
		t.Errorf("expected [odd], got %v", got)
	}
}

func TestComputedChain(t *testing.T) {
	base := NewCell(1)
	double := Map(base, func(v int) int { return v * 2 })
	text := Map(double, strconv.Itoa)
	sum := Map2(base, double, func(a, b int) int { return a + b })
	all := Map3(base, double, text, func(a, b int, s string) string {
		return fmt.Sprintf("%d/%d/%s", a, b, s)
	})

	var got []string
	all.Subscribe(func(v string) { got = append(got, v) })
	base.Set(3)

	if text.Peek() != "6" {
		t.Errorf("expected 6, got %s", text.Peek())
	}
	if sum.Peek() != 9 {
		t.Errorf("expected 9, got %d", sum.Peek())
	}
	if len(got) != 1 || got[0] != "3/6/6" {
		t.Errorf("expected [3/6/6], got %v", got)
	}
}

func TestCompute(t *testing.T) {
	theme := NewCell("dark")
	size := NewCell(12)
	runs := 0
	style := Compute(Combine(theme, size), func(f *Frame) string {
		runs++
		return "style"
	})
	notified := 0
	style.Observe(func() { notified++ })

	theme.Set("light")
	size.Set(14)

	if runs != 3 {
		t.Errorf("expected a run per change of a combined source, got %d", runs)
	}
	if notified != 0 {
		t.Errorf("expected equal results to be cut off, got %d notifications", notified)
	}
	if style.Deps() != 2 {
		t.Errorf("expected 2 deps, got %d", style.Deps())
	}
}

func TestComputedDeriveFailureRetries(t *testing.T) {
	input := NewCell(-1)
	boom := errors.New("negative")
	runs := 0
	c := NewComputedE(func(f *Frame) (int, error) {
		runs++
		v := input.Get(f)
		if v < 0 {
			return 0, boom
		}
		return v * 10, nil
	}, Named("scaled"))

	_, err := c.Value(nil)
	var de *DeriveError
	if !errors.As(err, &de) {
		t.Fatalf("expected *DeriveError, got %v", err)
	}
	if !errors.Is(err, boom) || de.Cell != "scaled" {
		t.Errorf("expected wrapped boom for scaled, got %v", err)
	}
	if !c.Dirty() {
		t.Error("expected computed to stay dirty after failure")
	}

	c.Value(nil)
	if runs != 2 {
		t.Errorf("expected retry on next read, got %d runs", runs)
	}

	input.Set(3)
	v, err := c.Value(nil)
	if err != nil || v != 30 {
		t.Errorf("expected 30, got %d (%v)", v, err)
	}
	if c.Err() != nil {
		t.Errorf("expected cleared error, got %v", c.Err())
	}
}

func TestComputedFailurePropagatesToReader(t *testing.T) {
	inner := NewComputed(func(f *Frame) int { panic("inner broke") })
	outer := NewComputed(func(f *Frame) int { return inner.Get(f) + 1 })

	defer func() {
		r := recover()
		err, ok := r.(error)
		if !ok {
			t.Fatalf("expected an error panic, got %v", r)
		}
		var pe *PanicError
		if !errors.As(err, &pe) || pe.Value != "inner broke" {
			t.Errorf("expected inner panic in the chain, got %v", err)
		}
	}()
	outer.Get(nil)
	t.Fatal("expected Get to panic")
}

func TestComputedCycle(t *testing.T) {
	var b *Computed[int]
	a := NewComputed(func(f *Frame) int { return b.Get(f) + 1 })
	b = NewComputed(func(f *Frame) int { return a.Get(f) + 1 })

	_, err := a.Value(nil)
	if !errors.Is(err, ErrCycle) {
		t.Errorf("expected ErrCycle, got %v", err)
	}
}

func TestComputedSelfPeekIsCycle(t *testing.T) {
	var c *Computed[int]
	c = NewComputedE(func(f *Frame) (int, error) {
		v, err := c.Value(nil)
		return v + 1, err
	})

	_, err := c.Value(nil)
	if !errors.Is(err, ErrCycle) {
		t.Errorf("expected ErrCycle, got %v", err)
	}
}

func TestComputedReadInsideBatchIsCurrent(t *testing.T) {
	a := NewCell(1)
	c := Map(a, func(v int) int { return v * 100 })
	c.Peek()

	Batch(func() {
		a.Set(2)
		if c.Peek() != 200 {
			t.Errorf("expected pull to see the new value inside a batch, got %d", c.Peek())
		}
	})
}

func TestComputedDispose(t *testing.T) {
	a := NewCell(1)
	c := Map(a, func(v int) int { return v })
	calls := 0
	c.Subscribe(func(int) { calls++ })

	c.Dispose()
	a.Set(2)

	if calls != 0 {
		t.Errorf("expected no delivery after dispose, got %d", calls)
	}
	if a.Subscribers() != 0 {
		t.Errorf("expected computed to leave its sources, got %d", a.Subscribers())
	}
	if c.Get(nil) != 0 {
		t.Errorf("expected zero from disposed computed, got %d", c.Get(nil))
	}
}

func TestComputedValueAfterDispose(t *testing.T) {
	a := NewCell(4)
	c := Map(a, func(v int) int { return v * 2 })
	if c.Peek() != 8 {
		t.Fatalf("expected 8, got %d", c.Peek())
	}

	c.Dispose()

	v, err := c.Value(nil)
	if !errors.Is(err, ErrDisposed) {
		t.Errorf("expected ErrDisposed, got %v", err)
	}
	if v != 0 {
		t.Errorf("expected zero value, got %d", v)
	}
	if c.Peek() != 0 {
		t.Errorf("expected zero from Peek, got %d", c.Peek())
	}
}

func TestTrackerReplacesDeps(t *testing.T) {
	a := NewCell(1)
	b := NewCell(2)
	dirty := 0
	tr := NewTracker(func() { dirty++ })

	tr.Run(func(f *Frame) { a.Get(f); b.Get(f) })
	if tr.Deps() != 2 {
		t.Fatalf("expected 2 deps, got %d", tr.Deps())
	}
	tr.Run(func(f *Frame) { b.Get(f) })
	a.Set(10)
	b.Set(20)

	if dirty != 1 {
		t.Errorf("expected only b to dirty the tracker, got %d", dirty)
	}
	tr.Dispose()
	b.Set(30)
	if dirty != 1 {
		t.Errorf("expected disposed tracker to stay silent, got %d", dirty)
	}
}
