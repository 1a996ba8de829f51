package main

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/zoobzio/capitan"

	"github.com/vango-dev/ripple/internal/config"
	"github.com/vango-dev/ripple/internal/devtools"
	"github.com/vango-dev/ripple/internal/errors"
	"github.com/vango-dev/ripple/pkg/app"
	"github.com/vango-dev/ripple/pkg/reactive"
)

type serveOptions struct {
	addr     string
	rows     int
	interval time.Duration
	duration time.Duration
}

func serveCmd(g *globalFlags) *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the sample dashboard on the event loop with devtools",
		Long: `Run the sample dashboard on a real event loop. A background goroutine
bumps random rows, the devtools server exposes /metrics, /debug/tree and
/debug/frames, and the settings file is reloaded when dev.watch is set.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.rows <= 0 {
				return errors.New("L001").WithDetail("--rows must be positive")
			}
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if opts.duration > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, opts.duration)
				defer cancel()
			}
			return runServe(ctx, g, cfg, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.addr, "addr", "", "devtools address; enables devtools (default from settings)")
	f.IntVar(&opts.rows, "rows", 20, "counter rows in the dashboard")
	f.DurationVar(&opts.interval, "interval", 250*time.Millisecond, "time between background writes")
	f.DurationVar(&opts.duration, "duration", 0, "stop after this long (0 runs until interrupted)")
	return cmd
}

func runServe(ctx context.Context, g *globalFlags, cfg *config.Config, opts serveOptions) error {
	logger := newLogger(cfg)
	reactive.SetLogger(logger)
	defer reactive.SetLogger(nil)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	a := app.New(cfg.AppConfig(),
		app.WithLogger(logger),
		app.WithRegisterer(reg),
		app.WithMetricsConfig(cfg.AppMetrics()),
	)
	// Run keeps the UI role on this goroutine, so Close may run here.
	defer a.Close()
	hookSignals(logger)

	d := newDashboard(a.Bridge(), cfg.Name, opts.rows)
	live := reactive.NewCell(cfg, reactive.OnUI(a.Bridge()), reactive.Named("config"))
	live.Subscribe(func(c *config.Config) {
		d.title.Set(c.Name)
		logger.Info("serve: settings applied", "name", c.Name, "path", c.Path())
	})
	if err := a.Mount(d.root); err != nil {
		return err
	}

	if cfg.Dev.Watch && cfg.Path() != "" {
		err := config.Watch(ctx, cfg.Path(), func(next *config.Config, err error) {
			if err != nil {
				logger.Warn("serve: settings reload failed", "err", errors.Classify(err).FormatCompact())
				return
			}
			// Runs on the watcher goroutine; the cell delivers on the UI goroutine.
			live.Set(next)
		})
		if err != nil {
			return err
		}
	}

	addr := opts.addr
	if addr == "" && cfg.Devtools.Enabled {
		addr = cfg.Devtools.Addr
	}
	p := newPrinter(os.Stdout, g.noColor)
	if addr != "" {
		srv := devtools.New(a,
			devtools.WithLogger(logger),
			devtools.WithHistory(cfg.Devtools.FrameHistory),
		)
		go func() {
			if err := srv.ListenAndServe(ctx, addr); err != nil {
				logger.Error("serve: devtools stopped", "err", errors.New("L002").Wrap(err).FormatCompact())
			}
		}()
		p.success("devtools on http://%s", addr)
	}

	go bumpRows(ctx, d, opts.interval)

	p.success("running %q with %d rows", cfg.Name, opts.rows)
	if err := a.Run(ctx); err != nil {
		return err
	}
	p.info("%d frames, total %d", a.Frames(), d.total.Peek())
	return nil
}

// bumpRows writes to random rows from its own goroutine until ctx ends.
func bumpRows(ctx context.Context, d *dashboard, interval time.Duration) {
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			d.rows[rand.IntN(len(d.rows))].Update(func(v int) int { return v + 1 })
		}
	}
}

// hookSignals logs the runtime's lifecycle signals.
func hookSignals(logger *slog.Logger) {
	capitan.Hook(app.FrameFlushed, func(_ context.Context, e *capitan.Event) {
		seq, _ := app.KeyFrame.From(e)
		entries, _ := app.KeyEntries.From(e)
		dur, _ := app.KeyDuration.From(e)
		logger.Debug("frame", "seq", seq, "entries", entries, "duration", dur)
	})
	capitan.Hook(app.ScopeBuildFailed, func(_ context.Context, e *capitan.Event) {
		node, _ := app.KeyNode.From(e)
		scope, _ := app.KeyScope.From(e)
		msg, _ := app.KeyError.From(e)
		logger.Warn("scope build failed", "node", node, "scope", scope, "err", msg)
	})
	capitan.Hook(app.HandlerPanicked, func(_ context.Context, e *capitan.Event) {
		node, _ := app.KeyNode.From(e)
		msg, _ := app.KeyError.From(e)
		logger.Error("handler panicked", "node", node, "err", msg)
	})
	capitan.Hook(app.ThreadViolation, func(_ context.Context, e *capitan.Event) {
		op, _ := app.KeyOp.From(e)
		logger.Warn("thread violation", "op", op)
	})
}
