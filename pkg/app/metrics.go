package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vango-dev/ripple/pkg/reactive"
)

// MetricsConfig configures the runtime's Prometheus metrics.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "ripple").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for frame duration.
	Buckets []float64
}

// DefaultMetricsConfig returns the metric naming used when none is given.
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace: "ripple",
		Buckets:   []float64{0.0005, 0.001, 0.002, 0.004, 0.008, 0.016, 0.033, 0.066, 0.1, 0.25},
	}
}

// metrics holds the runtime's Prometheus collectors.
type metrics struct {
	framesTotal    prometheus.Counter
	frameDuration  prometheus.Histogram
	entriesFlushed *prometheus.CounterVec
	scopeRebuilds  prometheus.Counter
	scopeFailures  prometheus.Counter
	handlerPanics  *prometheus.CounterVec
	violations     prometheus.Counter
	dirtyNodes     prometheus.Gauge
}

func initMetrics(reg prometheus.Registerer, config MetricsConfig) *metrics {
	factory := promauto.With(reg)

	counterFunc := func(name, help string, read func(reactive.Stats) uint64) {
		factory.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: config.ConstLabels,
		}, func() float64 { return float64(read(reactive.ReadStats())) })
	}
	counterFunc("notifications_total", "Subscriber notifications delivered by cells and computeds",
		func(s reactive.Stats) uint64 { return s.Notifications })
	counterFunc("recomputations_total", "Computed recomputations",
		func(s reactive.Stats) uint64 { return s.Recomputations })
	counterFunc("comparator_failures_total", "Equality comparators that panicked",
		func(s reactive.Stats) uint64 { return s.ComparatorFailures })
	counterFunc("ui_flushes_total", "Cross-goroutine deliveries flushed on the UI goroutine",
		func(s reactive.Stats) uint64 { return s.UIFlushes })
	counterFunc("ui_writes_coalesced_total", "Off-thread writes folded into a pending UI flush",
		func(s reactive.Stats) uint64 { return s.UIWritesCoalesced })
	counterFunc("batches_total", "Outermost batches closed",
		func(s reactive.Stats) uint64 { return s.Batches })

	return &metrics{
		framesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "frames_total",
			Help:        "Total number of frames produced",
			ConstLabels: config.ConstLabels,
		}),

		frameDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "frame_duration_seconds",
			Help:        "Frame duration in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}),

		entriesFlushed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "binding_entries_flushed_total",
			Help:        "Binding entries applied by action",
			ConstLabels: config.ConstLabels,
		}, []string{"action"}),

		scopeRebuilds: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "scope_rebuilds_total",
			Help:        "Scopes rebuilt in place",
			ConstLabels: config.ConstLabels,
		}),

		scopeFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "scope_build_failures_total",
			Help:        "Scope builders that failed and rendered a placeholder",
			ConstLabels: config.ConstLabels,
		}),

		handlerPanics: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "handler_panics_total",
			Help:        "Event handlers that panicked, by event kind",
			ConstLabels: config.ConstLabels,
		}, []string{"kind"}),

		violations: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "thread_violations_total",
			Help:        "UI-only calls refused off the UI goroutine",
			ConstLabels: config.ConstLabels,
		}),

		dirtyNodes: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "dirty_nodes",
			Help:        "Nodes waiting for the next frame",
			ConstLabels: config.ConstLabels,
		}),
	}
}
