// Package app is the runtime that drives a widget tree: it owns the clock,
// the UI bridge and the binding queue, turns frame requests into frames,
// and is the entry point for input events.
package app

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/zoobzio/capitan"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/vango-dev/ripple/pkg/binding"
	"github.com/vango-dev/ripple/pkg/clock"
	"github.com/vango-dev/ripple/pkg/reactive"
	"github.com/vango-dev/ripple/pkg/widget"
)

const defaultTracerName = "ripple"

// Config holds runtime settings.
type Config struct {
	// Name identifies the app in logs.
	Name string

	// FrameDelay is how long a frame request waits before the frame runs.
	// Zero runs it on the next UI tick.
	FrameDelay time.Duration

	// Viewport constrains the root node's layout.
	Viewport widget.Constraints
}

// DefaultConfig returns the default runtime settings.
func DefaultConfig() Config {
	return Config{
		Name:     "ripple",
		Viewport: widget.Constraints{MaxW: 1280, MaxH: 800},
	}
}

// Renderer lays out and paints nodes. It is the seam for the paint
// backend.
type Renderer interface {
	Layout(root *widget.Node)
	Paint(n *widget.Node)
}

// ViewportRenderer lays the root out under fixed constraints and records
// pictures through each node's painter.
type ViewportRenderer struct {
	Viewport widget.Constraints
}

// Layout implements Renderer.
func (r ViewportRenderer) Layout(root *widget.Node) { root.Layout(r.Viewport) }

// Paint implements Renderer.
func (r ViewportRenderer) Paint(n *widget.Node) { n.Paint() }

// FrameStats describes one frame.
type FrameStats struct {
	Seq           uint64        `json:"seq"`
	At            time.Time     `json:"at"`
	Duration      time.Duration `json:"duration"`
	Entries       int           `json:"entries"`
	ScopesRebuilt int           `json:"scopes_rebuilt"`
	Layouts       int           `json:"layouts"`
	Paints        int           `json:"paints"`
	Relayout      bool          `json:"relayout"`
	Repainted     int           `json:"repainted"`
}

// Option configures an App.
type Option func(*App)

// WithClock sets the runtime clock. A *clock.Loop makes Run available.
func WithClock(c clock.Clock) Option {
	return func(a *App) { a.clock = c }
}

// WithLogger sets the app's logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *App) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithRegisterer registers the app's metrics with reg instead of a
// private registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(a *App) { a.registerer = reg }
}

// WithMetricsConfig overrides metric naming and buckets.
func WithMetricsConfig(cfg MetricsConfig) Option {
	return func(a *App) { a.metricsConfig = cfg }
}

// WithTracer sets the tracer used for frame spans.
func WithTracer(t trace.Tracer) Option {
	return func(a *App) { a.tracer = t }
}

// WithRenderer sets the layout and paint collaborator.
func WithRenderer(r Renderer) Option {
	return func(a *App) { a.renderer = r }
}

// App drives one widget tree.
type App struct {
	cfg           Config
	clock         clock.Clock
	loop          *clock.Loop
	bridge        *reactive.Bridge
	queue         *binding.Queue
	logger        *slog.Logger
	renderer      Renderer
	tracer        trace.Tracer
	registerer    prometheus.Registerer
	gatherer      prometheus.Gatherer
	metricsConfig MetricsConfig
	metrics       *metrics

	mu           sync.Mutex
	root         *widget.Node
	framePending bool
	frameEvent   *clock.Event
	dirty        []*widget.Node
	dirtySet     map[*widget.Node]struct{}
	lastFrame    FrameStats
	onFrame      []func(FrameStats)
	closed       bool

	frames atomic.Uint64
}

// New creates an app. The calling goroutine is the UI goroutine until Run
// hands that role to the event loop.
func New(cfg Config, opts ...Option) *App {
	a := &App{
		cfg:           cfg,
		logger:        slog.Default(),
		metricsConfig: DefaultMetricsConfig(),
		dirtySet:      make(map[*widget.Node]struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.clock == nil {
		a.clock = clock.NewLoop(clock.WithLoopLogger(a.logger))
	}
	if a.renderer == nil {
		a.renderer = ViewportRenderer{Viewport: cfg.Viewport}
	}
	if a.tracer == nil {
		a.tracer = otel.Tracer(defaultTracerName)
	}
	if a.registerer == nil {
		reg := prometheus.NewRegistry()
		a.registerer = reg
	}
	if g, ok := a.registerer.(prometheus.Gatherer); ok {
		a.gatherer = g
	}
	a.metrics = initMetrics(a.registerer, a.metricsConfig)

	a.bridge = reactive.NewBridge(a.clock)
	if loop, ok := a.clock.(*clock.Loop); ok {
		a.loop = loop
		loop.OnStart(a.bridge.BindUIThread)
	}
	a.bridge.OnViolation(a.violation)

	a.queue = binding.NewQueue(
		binding.WithScheduler(a),
		binding.WithLogger(a.logger),
		binding.OnEntryFlushed(func(e binding.Entry) {
			a.metrics.entriesFlushed.WithLabelValues(e.Action.String()).Inc()
		}),
	)
	return a
}

// Config returns the app's settings.
func (a *App) Config() Config { return a.cfg }

// Clock returns the runtime clock.
func (a *App) Clock() clock.Clock { return a.clock }

// Bridge implements widget.Host.
func (a *App) Bridge() *reactive.Bridge { return a.bridge }

// Queue implements widget.Host.
func (a *App) Queue() *binding.Queue { return a.queue }

// Logger implements widget.Host.
func (a *App) Logger() *slog.Logger { return a.logger }

// Gatherer returns the registry holding the app's metrics, or nil when the
// registerer given to WithRegisterer cannot gather.
func (a *App) Gatherer() prometheus.Gatherer { return a.gatherer }

// Registerer returns the registerer holding the app's metrics. Tools
// serving alongside the app register their collectors here.
func (a *App) Registerer() prometheus.Registerer { return a.registerer }

// MetricsConfig returns the metric naming in use.
func (a *App) MetricsConfig() MetricsConfig { return a.metricsConfig }

// Root returns the mounted root node.
func (a *App) Root() *widget.Node {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.root
}

// Mount replaces the root node. UI goroutine only.
func (a *App) Mount(root *widget.Node) error {
	if err := a.bridge.AssertUIThread("app.Mount"); err != nil {
		return err
	}
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return ErrClosed
	}
	old := a.root
	a.root = root
	a.mu.Unlock()

	if old != nil {
		old.Unmount()
	}
	if root == nil {
		return nil
	}
	if err := root.Mount(a); err != nil {
		return err
	}
	a.RequestFrame()
	return nil
}

// NodeDirty implements widget.Host.
func (a *App) NodeDirty(n *widget.Node) {
	a.mu.Lock()
	if _, ok := a.dirtySet[n]; !ok {
		a.dirtySet[n] = struct{}{}
		a.dirty = append(a.dirty, n)
	}
	pending := len(a.dirty)
	a.mu.Unlock()

	a.metrics.dirtyNodes.Set(float64(pending))
	a.RequestFrame()
}

// RequestFrame implements binding.Scheduler. Requests made before the
// frame runs share it.
func (a *App) RequestFrame() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.framePending || a.closed {
		return
	}
	a.framePending = true
	a.frameEvent = a.clock.ScheduleOnce(a.runFrame, a.cfg.FrameDelay)
}

// FramePending reports whether a frame is scheduled.
func (a *App) FramePending() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.framePending
}

func (a *App) runFrame() {
	a.mu.Lock()
	a.frameEvent = nil
	a.mu.Unlock()
	a.Frame()
}

// OnFrame registers fn to receive the stats of every frame. It runs on the
// UI goroutine.
func (a *App) OnFrame(fn func(FrameStats)) {
	a.mu.Lock()
	a.onFrame = append(a.onFrame, fn)
	a.mu.Unlock()
}

// LastFrame returns the stats of the most recent frame.
func (a *App) LastFrame() FrameStats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastFrame
}

// Frames returns how many frames have run.
func (a *App) Frames() uint64 { return a.frames.Load() }

// Run drives the event loop until ctx ends. The loop goroutine becomes
// the UI goroutine.
func (a *App) Run(ctx context.Context) error {
	if a.loop == nil {
		return ErrNoLoop
	}
	a.logger.Info("app: running", "app", a.cfg.Name)
	err := a.loop.Run(ctx)
	a.logger.Info("app: stopped", "app", a.cfg.Name, "frames", a.frames.Load())
	return err
}

// Inspect runs fn on the UI goroutine and waits for it.
func (a *App) Inspect(ctx context.Context, fn func()) error {
	if a.bridge.OnUIThread() {
		fn()
		return nil
	}
	done := make(chan struct{})
	ev := a.bridge.Post(func() {
		defer close(done)
		fn()
	})
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		a.clock.Unschedule(ev)
		return ctx.Err()
	}
}

// Close unmounts the root and cancels a pending frame.
func (a *App) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	root := a.root
	a.root = nil
	ev := a.frameEvent
	a.frameEvent = nil
	a.framePending = false
	a.mu.Unlock()

	if ev != nil {
		a.clock.Unschedule(ev)
	}
	if root != nil {
		root.Unmount()
	}
	a.queue.Clear()
}

func (a *App) violation(err *reactive.ThreadError) {
	a.metrics.violations.Inc()
	a.logger.Warn("app: UI-only call off the UI goroutine",
		"op", err.Op,
		"goroutine", err.Goroutine)
	capitan.Emit(context.Background(), ThreadViolation, KeyOp.Field(err.Op))
}
