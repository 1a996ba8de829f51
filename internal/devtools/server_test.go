package devtools

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vango-dev/ripple/pkg/app"
	"github.com/vango-dev/ripple/pkg/clock"
	"github.com/vango-dev/ripple/pkg/reactive"
	"github.com/vango-dev/ripple/pkg/widget"
)

func newTestServer(t *testing.T, opts ...Option) (*app.App, *clock.Manual, *Server, *httptest.Server) {
	t.Helper()
	clk := clock.NewManual()
	a := app.New(app.DefaultConfig(), app.WithClock(clk))
	t.Cleanup(a.Close)
	s := New(a, opts...)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return a, clk, s, ts
}

// pump ticks the manual clock on the test goroutine, which is the UI
// goroutine, until ch delivers.
func pump[T any](t *testing.T, clk *clock.Manual, ch <-chan T) T {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		clk.Tick()
		select {
		case v := <-ch:
			return v
		default:
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for the UI goroutine")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

type result struct {
	code int
	body string
}

func getAsync(url string) <-chan result {
	done := make(chan result, 1)
	go func() {
		resp, err := http.Get(url)
		if err != nil {
			done <- result{code: -1, body: err.Error()}
			return
		}
		defer resp.Body.Close()
		b, _ := io.ReadAll(resp.Body)
		done <- result{resp.StatusCode, string(b)}
	}()
	return done
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestMetricsEndpoint(t *testing.T) {
	a, clk, _, ts := newTestServer(t)
	require.NoError(t, a.Mount(widget.New("root")))
	clk.Tick()

	code, body := get(t, ts.URL+"/metrics")

	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "ripple_frames_total 1")
	assert.Contains(t, body, "ripple_notifications_total")
}

func TestRequestsAreInstrumented(t *testing.T) {
	_, _, _, ts := newTestServer(t)

	code, _ := get(t, ts.URL+"/debug/stats")
	require.Equal(t, http.StatusOK, code)
	code, _ = get(t, ts.URL+"/nope")
	require.Equal(t, http.StatusNotFound, code)

	_, body := get(t, ts.URL+"/metrics")
	assert.Contains(t, body, `ripple_devtools_requests_total{code="200",route="/debug/stats"} 1`)
	assert.Contains(t, body, `ripple_devtools_requests_total{code="404",route="unmatched"} 1`)
	assert.Contains(t, body, "ripple_devtools_request_duration_seconds_bucket")
}

func TestRecentFramesKeepsHistory(t *testing.T) {
	a, clk, s, ts := newTestServer(t, WithHistory(2))
	n := widget.New("root")
	require.NoError(t, a.Mount(n))
	for i := 0; i < 3; i++ {
		n.InvalidatePaint()
		clk.Tick()
	}

	recent := s.Recent()
	require.Len(t, recent, 2)
	assert.Equal(t, uint64(2), recent[0].Seq)
	assert.Equal(t, uint64(3), recent[1].Seq)

	code, body := get(t, ts.URL+"/debug/frames/recent")
	require.Equal(t, http.StatusOK, code)
	var got []app.FrameStats
	require.NoError(t, json.Unmarshal([]byte(body), &got))
	require.Len(t, got, 2)
	assert.Equal(t, uint64(2), got[0].Seq)
	assert.Equal(t, uint64(3), got[1].Seq)
}

func TestStatsEndpoint(t *testing.T) {
	a, clk, _, ts := newTestServer(t)
	require.NoError(t, a.Mount(widget.New("root")))
	clk.Tick()

	code, body := get(t, ts.URL+"/debug/stats")

	require.Equal(t, http.StatusOK, code)
	var got struct {
		Frames    uint64 `json:"frames"`
		LastFrame struct {
			Seq uint64 `json:"seq"`
		} `json:"last_frame"`
		Pending bool `json:"frame_pending"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &got))
	assert.Equal(t, uint64(1), got.Frames)
	assert.Equal(t, uint64(1), got.LastFrame.Seq)
	assert.False(t, got.Pending)
}

func TestTreeEndpointRunsOnUIGoroutine(t *testing.T) {
	a, clk, _, ts := newTestServer(t)
	label := reactive.NewCell("hi")
	root := widget.New("root", widget.WithChildren(
		widget.New("label").SetProp("text", label).PaintDependsOn("text"),
	))
	require.NoError(t, a.Mount(root))
	clk.Tick()

	res := pump(t, clk, getAsync(ts.URL+"/debug/tree"))

	require.Equal(t, http.StatusOK, res.code, res.body)
	var tree struct {
		Nodes int             `json:"nodes"`
		Root  widget.Snapshot `json:"root"`
	}
	require.NoError(t, json.Unmarshal([]byte(res.body), &tree))
	assert.Equal(t, 2, tree.Nodes)
	assert.Equal(t, "root", tree.Root.Name)
	require.Len(t, tree.Root.Children, 1)
	assert.Equal(t, []string{"text"}, tree.Root.Children[0].Props)
}

func TestTreeEndpointWithoutRoot(t *testing.T) {
	_, clk, _, ts := newTestServer(t)

	res := pump(t, clk, getAsync(ts.URL+"/debug/tree"))

	require.Equal(t, http.StatusOK, res.code, res.body)
	assert.Contains(t, res.body, `"root":null`)
}

func TestFramesStream(t *testing.T) {
	a, clk, _, ts := newTestServer(t)
	n := widget.New("root")
	require.NoError(t, a.Mount(n))
	clk.Tick()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/debug/frames"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	n.InvalidatePaint()
	clk.Tick()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var first, second app.FrameStats
	require.NoError(t, conn.ReadJSON(&first))
	require.NoError(t, conn.ReadJSON(&second))

	assert.Equal(t, uint64(1), first.Seq, "backlog replays recorded frames")
	assert.Equal(t, uint64(2), second.Seq)
	assert.Equal(t, 1, second.Repainted)
}

func TestFramesStreamRejectsForeignOrigin(t *testing.T) {
	_, _, _, ts := newTestServer(t, WithAllowedOrigins("http://devtools.local"))

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/debug/frames"
	header := http.Header{"Origin": []string{"http://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, header)

	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestServeStopsWithContext(t *testing.T) {
	a := app.New(app.DefaultConfig(), app.WithClock(clock.NewManual()))
	defer a.Close()
	s := New(a)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe(ctx, "127.0.0.1:0") }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
}
