package reactive

// batchState is the per-goroutine batch: a re-entrant depth counter and
// the cells touched so far in first-touched order.
type batchState struct {
	depth int
	order []batchEntry
	seen  map[uint64]struct{}
}

type batchEntry struct {
	id     uint64
	settle func()
}

// touch records a cell on first touch; later touches keep the first
// entry, which carries the pre-batch value.
func (b *batchState) touch(id uint64, settle func()) {
	if _, ok := b.seen[id]; ok {
		return
	}
	if b.seen == nil {
		b.seen = make(map[uint64]struct{})
	}
	b.seen[id] = struct{}{}
	b.order = append(b.order, batchEntry{id: id, settle: settle})
}

func (b *batchState) take() []batchEntry {
	entries := b.order
	b.order = nil
	b.seen = nil
	return entries
}

// currentBatch returns the calling goroutine's open batch, or nil.
func currentBatch() *batchState {
	if openBatches.Load() == 0 {
		return nil
	}
	st, _ := currentState(false)
	if st == nil || st.batch.depth == 0 {
		return nil
	}
	return &st.batch
}

// Batch runs fn with notifications deferred until the outermost batch on
// this goroutine exits. Each touched cell then notifies at most once with
// its final value, and not at all if it ended where it started.
//
// Batches nest. The batch is closed even if fn panics; the panic then
// continues.
//
// Example:
//
//	reactive.Batch(func() {
//	    width.Set(100)
//	    height.Set(40)
//	})
//	// subscribers of width and height each run once here
func Batch(fn func()) {
	BeginBatch()
	defer EndBatch()
	fn()
}

// BeginBatch opens a batch on the calling goroutine. Every BeginBatch
// must be paired with EndBatch on the same goroutine.
func BeginBatch() {
	st, _ := currentState(true)
	if st.batch.depth == 0 {
		openBatches.Add(1)
	}
	st.batch.depth++
}

// EndBatch closes the innermost batch. Closing the outermost batch
// delivers the pending notifications in first-touched order. Writes made
// by subscribers during delivery are collected and delivered after the
// current round, in order. An unpaired EndBatch is a no-op.
func EndBatch() {
	st, gid := currentState(false)
	if st == nil || st.batch.depth == 0 {
		return
	}
	if st.batch.depth > 1 {
		st.batch.depth--
		return
	}

	// Keep the batch open while settling so nested writes queue up.
	defer func() {
		st.batch.depth = 0
		st.batch.take()
		openBatches.Add(-1)
		st.release(gid)
	}()
	for {
		entries := st.batch.take()
		if len(entries) == 0 {
			break
		}
		for _, e := range entries {
			e.settle()
		}
	}
	stats.batches.Add(1)
}

// InBatch reports whether the calling goroutine has an open batch.
func InBatch() bool {
	return currentBatch() != nil
}
