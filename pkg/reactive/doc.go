// Package reactive implements fine-grained dependency tracking and
// incremental invalidation for the widget toolkit.
//
// The primitives are:
//
//   - Cell: a single observable value with ordered subscribers
//   - Computed: a memoized value derived from other sources, with its
//     dependency set rediscovered on every recomputation
//   - Effect: a side effect that re-runs when its tracked sources change
//   - Tracker: a reusable dynamic dependency set used by effects, scopes
//     and bindings
//
// Reads that should create dependencies take an explicit *Frame. A nil
// frame reads without tracking. Frames chain through their parent, so a
// computed reading another computed tracks into the innermost frame only.
//
// # Batching
//
// Batch defers notifications on the calling goroutine until the outermost
// batch exits. Each cell touched inside the batch notifies at most once,
// with its final value, and not at all when the final value equals the
// value it had when the batch first touched it.
//
// # UI dispatch
//
// Cells created with OnUI deliver notifications on the Bridge's UI
// goroutine. A write from any other goroutine updates storage immediately
// and schedules a single coalesced delivery through the runtime clock.
//
//	bridge := reactive.NewBridge(clk)
//	count := reactive.NewCell(0, reactive.OnUI(bridge))
//	label := reactive.Map(count, strconv.Itoa)
//
//	go func() { count.Set(5) }() // delivered on the next UI tick
//
// # Per-instance state
//
// CellDef and ComputedDef describe state shared by every instance of a
// widget class. Each Instance lazily gets its own cells:
//
//	var pressed = reactive.DefineCell(false)
//	pressed.In(button.Instance()).Set(true)
package reactive
