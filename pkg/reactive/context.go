package reactive

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// goroutineState holds the reactive state of one goroutine: the current
// owner and the batch in progress.
type goroutineState struct {
	owner *Owner
	batch batchState
}

// goroutineStates maps goroutine IDs to their state. Entries are removed
// when a goroutine has neither an owner nor an open batch.
var goroutineStates sync.Map

// openBatches counts goroutines with a batch in progress so writes outside
// any batch skip the goroutine lookup.
var openBatches atomic.Int64

var idCounter atomic.Uint64

// nextID returns a process-unique identifier.
func nextID() uint64 {
	return idCounter.Add(1)
}

// goroutineID returns the runtime identifier of the calling goroutine,
// parsed from the first line of its stack ("goroutine <id> [...]").
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)

	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] < '0' || buf[i] > '9' {
			break
		}
		id = id*10 + uint64(buf[i]-'0')
	}
	return id
}

// currentState returns the calling goroutine's state. With create false it
// returns nil when none exists.
func currentState(create bool) (*goroutineState, uint64) {
	gid := goroutineID()
	if st, ok := goroutineStates.Load(gid); ok {
		return st.(*goroutineState), gid
	}
	if !create {
		return nil, gid
	}
	st := &goroutineState{}
	goroutineStates.Store(gid, st)
	return st, gid
}

// release drops the goroutine's state once it carries nothing.
func (st *goroutineState) release(gid uint64) {
	if st.owner == nil && st.batch.depth == 0 && len(st.batch.order) == 0 {
		goroutineStates.Delete(gid)
	}
}

// currentOwner returns the owner set with WithOwner on this goroutine.
func currentOwner() *Owner {
	st, _ := currentState(false)
	if st == nil {
		return nil
	}
	return st.owner
}

// WithOwner runs fn with owner as the current owner of the calling
// goroutine. Cells, computeds and effects created inside fn without an
// explicit owner are disposed with owner.
func WithOwner(owner *Owner, fn func()) {
	st, gid := currentState(true)
	prev := st.owner
	st.owner = owner
	defer func() {
		st.owner = prev
		st.release(gid)
	}()
	fn()
}
