package reactive

import (
	"log/slog"
	"sync/atomic"
)

// Stats is a snapshot of the engine's process-wide counters.
type Stats struct {
	Notifications      uint64 // Subscriber deliveries
	Recomputations     uint64 // Computed derive runs
	ComparatorFailures uint64 // Panicking equality comparators
	UIFlushes          uint64 // Outbox deliveries run on the UI goroutine
	UIWritesCoalesced  uint64 // Off-UI writes folded into a pending flush
	Batches            uint64 // Outermost batches completed
}

var stats struct {
	notifications      atomic.Uint64
	recomputations     atomic.Uint64
	comparatorFailures atomic.Uint64
	uiFlushes          atomic.Uint64
	uiWritesCoalesced  atomic.Uint64
	batches            atomic.Uint64
}

// ReadStats returns the current counter values.
func ReadStats() Stats {
	return Stats{
		Notifications:      stats.notifications.Load(),
		Recomputations:     stats.recomputations.Load(),
		ComparatorFailures: stats.comparatorFailures.Load(),
		UIFlushes:          stats.uiFlushes.Load(),
		UIWritesCoalesced:  stats.uiWritesCoalesced.Load(),
		Batches:            stats.batches.Load(),
	}
}

var pkgLogger atomic.Pointer[slog.Logger]

// SetLogger sets the logger used for comparator and derive failures.
// A nil logger restores slog.Default.
func SetLogger(l *slog.Logger) {
	pkgLogger.Store(l)
}

func logger() *slog.Logger {
	if l := pkgLogger.Load(); l != nil {
		return l
	}
	return slog.Default()
}
