package main

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/vango-dev/ripple/internal/errors"
	"github.com/vango-dev/ripple/internal/logging"
	"github.com/vango-dev/ripple/pkg/app"
	"github.com/vango-dev/ripple/pkg/clock"
	"github.com/vango-dev/ripple/pkg/reactive"
)

type benchOptions struct {
	Rows    int
	Frames  int
	Writers int
	Writes  int
	Seed    uint64
}

type benchResult struct {
	Rows              int           `json:"rows"`
	Frames            int           `json:"frames"`
	Writes            int           `json:"writes"`
	Coalesced         uint64        `json:"coalesced"`
	Entries           int           `json:"entries"`
	ScopesRebuilt     int           `json:"scopes_rebuilt"`
	Repainted         int           `json:"repainted"`
	RepaintedPerFrame float64       `json:"repainted_per_frame"`
	FrameP50          time.Duration `json:"frame_p50"`
	FrameP99          time.Duration `json:"frame_p99"`
	Elapsed           time.Duration `json:"elapsed"`
	Total             int           `json:"total"`
}

func benchCmd(g *globalFlags) *cobra.Command {
	var (
		opts   benchOptions
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Measure invalidation cost on a sample tree",
		Long: `Build a dashboard of counter rows, write to random rows from several
goroutines and run one frame per round on a manual clock. Reports how
many nodes each frame repainted against the size of the tree.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Rows <= 0 || opts.Frames <= 0 || opts.Writers <= 0 || opts.Writes < 0 {
				return errors.New("L001").WithDetail("--rows, --frames and --writers must be positive")
			}
			res, err := runBench(opts)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			printBench(newPrinter(cmd.OutOrStdout(), g.noColor), res)
			return nil
		},
	}

	f := cmd.Flags()
	f.IntVar(&opts.Rows, "rows", 1000, "counter rows in the tree")
	f.IntVar(&opts.Frames, "frames", 200, "frames to run")
	f.IntVar(&opts.Writers, "writers", 4, "goroutines writing between frames")
	f.IntVar(&opts.Writes, "writes", 8, "writes per writer per frame")
	f.Uint64Var(&opts.Seed, "seed", 1, "random seed")
	f.BoolVar(&asJSON, "json", false, "print the result as JSON")
	return cmd
}

func runBench(opts benchOptions) (benchResult, error) {
	clk := clock.NewManual()
	a := app.New(app.DefaultConfig(), app.WithClock(clk), app.WithLogger(logging.NewNop()))
	defer a.Close()

	d := newDashboard(a.Bridge(), "bench", opts.Rows)
	if err := a.Mount(d.root); err != nil {
		return benchResult{}, err
	}
	clk.Tick()

	var durations []time.Duration
	res := benchResult{Rows: opts.Rows, Frames: opts.Frames}
	a.OnFrame(func(s app.FrameStats) {
		durations = append(durations, s.Duration)
		res.Entries += s.Entries
		res.ScopesRebuilt += s.ScopesRebuilt
		res.Repainted += s.Repainted
	})

	before := reactive.ReadStats().UIWritesCoalesced
	started := time.Now()
	for frame := range opts.Frames {
		var wg sync.WaitGroup
		for w := range opts.Writers {
			wg.Add(1)
			go func(seed uint64) {
				defer wg.Done()
				rng := rand.New(rand.NewPCG(opts.Seed, seed))
				for range opts.Writes {
					d.rows[rng.IntN(len(d.rows))].Update(func(v int) int { return v + 1 })
				}
			}(uint64(frame*opts.Writers + w))
		}
		wg.Wait()

		// Deliver the coalesced writes, then run the frame they requested.
		clk.Tick()
		clk.Tick()
	}
	res.Elapsed = time.Since(started)
	res.Writes = opts.Frames * opts.Writers * opts.Writes
	res.Coalesced = reactive.ReadStats().UIWritesCoalesced - before
	res.Total = d.total.Peek()
	res.Frames = len(durations)
	if res.Frames > 0 {
		res.RepaintedPerFrame = float64(res.Repainted) / float64(res.Frames)
	}
	slices.Sort(durations)
	res.FrameP50 = percentile(durations, 0.50)
	res.FrameP99 = percentile(durations, 0.99)
	return res, nil
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	i := int(p * float64(len(sorted)-1))
	return sorted[i]
}

func printBench(p *printer, r benchResult) {
	p.heading("ripple bench")
	p.info("rows:                %d", r.Rows)
	p.info("frames:              %d", r.Frames)
	p.info("writes:              %d (%d coalesced off the UI goroutine)", r.Writes, r.Coalesced)
	p.info("binding entries:     %d", r.Entries)
	p.info("scopes rebuilt:      %d", r.ScopesRebuilt)
	p.info("repainted per frame: %.1f of %d nodes", r.RepaintedPerFrame, r.Rows+4)
	p.info("frame p50 / p99:     %s / %s", r.FrameP50, r.FrameP99)
	p.info("elapsed:             %s", r.Elapsed.Round(time.Millisecond))
	fmt.Fprintln(p.out)
	if r.Total != r.Writes {
		p.warn("total %d does not match %d writes", r.Total, r.Writes)
		return
	}
	p.success("every write reached the tree")
}
