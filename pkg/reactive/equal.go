package reactive

import (
	"fmt"
	"reflect"
	"runtime"
	"sync"
)

// defaultEquals compares common comparable kinds with == and falls back to
// reflect.DeepEqual. Values of different dynamic types are never equal.
func defaultEquals[T any](a, b T) bool {
	switch av := any(a).(type) {
	case int:
		return sameAs(av, b)
	case int8:
		return sameAs(av, b)
	case int16:
		return sameAs(av, b)
	case int32:
		return sameAs(av, b)
	case int64:
		return sameAs(av, b)
	case uint:
		return sameAs(av, b)
	case uint8:
		return sameAs(av, b)
	case uint16:
		return sameAs(av, b)
	case uint32:
		return sameAs(av, b)
	case uint64:
		return sameAs(av, b)
	case float32:
		return sameAs(av, b)
	case float64:
		return sameAs(av, b)
	case string:
		return sameAs(av, b)
	case bool:
		return sameAs(av, b)
	}
	return reflect.DeepEqual(a, b)
}

func sameAs[V comparable](av V, b any) bool {
	bv, ok := b.(V)
	return ok && av == bv
}

// callerPC returns the program counter skip frames above the function
// calling callerPC, or 0.
func callerPC(skip int) uintptr {
	var pcs [1]uintptr
	if runtime.Callers(skip+2, pcs[:]) == 0 {
		return 0
	}
	return pcs[0]
}

// siteOf renders pc as "file:line".
func siteOf(pc uintptr) string {
	if pc == 0 {
		return "unknown"
	}
	fr, _ := runtime.CallersFrames([]uintptr{pc}).Next()
	if fr.File == "" {
		return "unknown"
	}
	return fmt.Sprintf("%s:%d", fr.File, fr.Line)
}

// reportedSites remembers comparator failures already logged, keyed by
// "file:line" of the write or construction that led to the comparison.
var reportedSites sync.Map

// tryEqual runs eq, converting a panic into a returned value.
func tryEqual[T any](eq func(T, T) bool, a, b T) (same bool, failure any) {
	defer func() {
		if r := recover(); r != nil {
			same, failure = false, r
		}
	}()
	return eq(a, b), nil
}

// compare applies eq and treats a panicking comparator as "changed". The
// failure is logged once per site; pc is resolved only on failure.
func compare[T any](eq func(T, T) bool, a, b T, name string, pc uintptr) bool {
	same, failure := tryEqual(eq, a, b)
	if failure == nil {
		return same
	}
	stats.comparatorFailures.Add(1)

	site := siteOf(pc)
	if _, loaded := reportedSites.LoadOrStore(site, struct{}{}); !loaded {
		logger().Warn("reactive: equality comparator panicked, treating value as changed",
			"cell", name,
			"site", site,
			"panic", failure)
	}
	return false
}
