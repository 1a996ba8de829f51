package app

import (
	"context"
	"time"

	"github.com/zoobzio/capitan"
	"go.opentelemetry.io/otel/attribute"

	"github.com/vango-dev/ripple/pkg/widget"
)

// Frame flushes the binding queue, relayouts the root when it needs it and
// repaints the dirty nodes. It normally runs from a frame request; tests
// and tools may call it directly on the UI goroutine.
func (a *App) Frame() FrameStats {
	a.bridge.MustUIThread("app.Frame")
	started := time.Now()

	// Requests made while the frame runs are answered below.
	a.mu.Lock()
	a.framePending = true
	scheduled := a.frameEvent
	a.frameEvent = nil
	a.mu.Unlock()
	if scheduled != nil {
		a.clock.Unschedule(scheduled)
	}

	ctx, span := a.tracer.Start(context.Background(), "ripple.frame")
	defer span.End()

	flush := a.queue.Flush()

	a.mu.Lock()
	dirty := a.dirty
	a.dirty = nil
	clear(a.dirtySet)
	root := a.root
	a.mu.Unlock()

	stats := FrameStats{
		At:            a.clock.Now(),
		Entries:       flush.Entries,
		ScopesRebuilt: flush.ScopesRebuilt,
		Layouts:       flush.Layouts,
		Paints:        flush.Paints,
	}

	if root != nil && root.Mounted() && root.NeedsLayout() {
		a.renderer.Layout(root)
		stats.Relayout = true
	}
	for _, n := range dirty {
		if !n.Mounted() || !n.NeedsPaint() {
			continue
		}
		a.renderer.Paint(n)
		stats.Repainted++
	}

	stats.Seq = a.frames.Add(1)
	stats.Duration = time.Since(started)

	a.metrics.framesTotal.Inc()
	a.metrics.frameDuration.Observe(stats.Duration.Seconds())

	span.SetAttributes(
		attribute.Int64("ripple.frame.seq", int64(stats.Seq)),
		attribute.Int("ripple.frame.entries", stats.Entries),
		attribute.Int("ripple.frame.scopes_rebuilt", stats.ScopesRebuilt),
		attribute.Bool("ripple.frame.relayout", stats.Relayout),
		attribute.Int("ripple.frame.repainted", stats.Repainted),
	)

	capitan.Emit(ctx, FrameFlushed,
		KeyFrame.Field(int(stats.Seq)),
		KeyEntries.Field(stats.Entries),
		KeyLayouts.Field(stats.Layouts),
		KeyPaints.Field(stats.Repainted),
		KeyDuration.Field(stats.Duration),
	)

	a.mu.Lock()
	a.framePending = false
	a.lastFrame = stats
	hooks := append([]func(FrameStats){}, a.onFrame...)
	again := len(a.dirty) > 0
	pending := len(a.dirty)
	a.mu.Unlock()

	a.metrics.dirtyNodes.Set(float64(pending))
	if again || a.queue.Len() > 0 {
		a.RequestFrame()
	}

	for _, fn := range hooks {
		fn(stats)
	}
	return stats
}

// DirtyNodes returns the nodes waiting for the next frame.
func (a *App) DirtyNodes() []*widget.Node {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]*widget.Node(nil), a.dirty...)
}
