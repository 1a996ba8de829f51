package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vango-dev/ripple/internal/config"
	"github.com/vango-dev/ripple/pkg/app"
	"github.com/vango-dev/ripple/pkg/clock"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionShort(t *testing.T) {
	out, err := execute(t, "version", "--short")
	require.NoError(t, err)
	assert.Equal(t, version+"\n", out)
}

func TestBenchRejectsBadFlags(t *testing.T) {
	_, err := execute(t, "bench", "--rows", "0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "L001")
}

func TestServeRejectsBadFlags(t *testing.T) {
	_, err := execute(t, "serve", "--rows", "0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "L001")
}

func TestBenchJSON(t *testing.T) {
	out, err := execute(t, "bench", "--rows", "30", "--frames", "5", "--writers", "2", "--writes", "3", "--json")
	require.NoError(t, err)

	var res benchResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, 5, res.Frames)
	assert.Equal(t, 30, res.Writes)
	assert.Equal(t, res.Writes, res.Total, "every write is counted once")
}

func TestRunBenchRepaintsOnlyTouchedRows(t *testing.T) {
	res, err := runBench(benchOptions{Rows: 200, Frames: 10, Writers: 1, Writes: 2, Seed: 7})
	require.NoError(t, err)

	require.Equal(t, 10, res.Frames)
	// Two touched rows, the new summary node and the dashboard it relaid.
	assert.LessOrEqual(t, res.RepaintedPerFrame, 4.0)
	assert.Equal(t, 10, res.ScopesRebuilt, "only the summary scope reads the rows")
}

func TestDashboardTitleScope(t *testing.T) {
	clk := clock.NewManual()
	a := app.New(app.DefaultConfig(), app.WithClock(clk))
	defer a.Close()

	d := newDashboard(a.Bridge(), "one", 3)
	require.NoError(t, a.Mount(d.root))
	clk.Tick()

	d.title.Set("two")
	clk.Tick()

	names := []string{}
	for _, c := range d.root.Children() {
		names = append(names, c.Name())
	}
	assert.Equal(t, []string{"header:two", "rows", "total:0"}, names)
	assert.Equal(t, float64(5*rowHeight), d.root.Size().H)
}

func TestLoadConfigPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: custom\nlog: {level: warn}\n"), 0o644))

	g := &globalFlags{config: path, logFormat: "json"}
	cfg, err := g.loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "custom", cfg.Name)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)

	g = &globalFlags{config: path, logLevel: "shout"}
	_, err = g.loadConfig()
	assert.Error(t, err)
}

func TestRunServeStopsWithContext(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, config.FileName)
	require.NoError(t, os.WriteFile(path, []byte("name: served\ndev: {watch: true}\n"), 0o644))
	cfg, err := config.LoadFile(path)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	err = runServe(ctx, &globalFlags{noColor: true}, cfg, serveOptions{rows: 5, interval: 10 * time.Millisecond})
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(cfg.Path(), config.FileName))
}
