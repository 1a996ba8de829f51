// Package devtools serves a running app's metrics, widget tree and frame
// stream over HTTP.
//
//	GET /metrics               Prometheus exposition of the app's registry
//	GET /debug/tree            widget tree snapshot, taken on the UI goroutine
//	GET /debug/stats           engine counters and the last frame
//	GET /debug/frames/recent   recent frame stats as JSON
//	GET /debug/frames          websocket stream of frame stats
package devtools

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/vango-dev/ripple/pkg/app"
	"github.com/vango-dev/ripple/pkg/reactive"
	"github.com/vango-dev/ripple/pkg/widget"
)

const (
	defaultHistory = 120
	subscriberBuf  = 64
	writeTimeout   = 10 * time.Second
)

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server's logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithHistory sets how many recent frames are kept for new clients.
func WithHistory(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.history = n
		}
	}
}

// WithTracer sets the tracer for request spans.
func WithTracer(t trace.Tracer) Option {
	return func(s *Server) { s.tracer = t }
}

// WithAllowedOrigins restricts websocket clients to the given origins.
// Without it, only same-origin browsers and non-browser clients connect.
func WithAllowedOrigins(origins ...string) Option {
	return func(s *Server) { s.origins = origins }
}

// Server exposes one app.
type Server struct {
	app     *app.App
	logger  *slog.Logger
	history int
	origins []string
	tracer  trace.Tracer

	mu     sync.Mutex
	recent []app.FrameStats
	subs   map[chan app.FrameStats]struct{}

	router chi.Router
}

// New creates a server for a and starts recording its frames.
func New(a *app.App, opts ...Option) *Server {
	s := &Server{
		app:     a,
		logger:  a.Logger(),
		history: defaultHistory,
		subs:    make(map[chan app.FrameStats]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer("ripple.devtools")
	}
	a.OnFrame(s.record)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(instrument(newHTTPMetrics(a.Registerer(), a.MetricsConfig()), s.tracer))
	r.Get("/metrics", s.handleMetrics)
	r.Route("/debug", func(r chi.Router) {
		r.Get("/tree", s.handleTree)
		r.Get("/stats", s.handleStats)
		r.Get("/frames/recent", s.handleRecent)
		r.Get("/frames", s.handleFrames)
	})
	s.router = r
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx ends.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx ends.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("devtools: listening", "addr", ln.Addr().String())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// record runs on the UI goroutine after every frame.
func (s *Server) record(stats app.FrameStats) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.recent = append(s.recent, stats)
	if over := len(s.recent) - s.history; over > 0 {
		s.recent = append(s.recent[:0], s.recent[over:]...)
	}
	for ch := range s.subs {
		select {
		case ch <- stats:
		default:
			// Slow client; it will see a gap in seq.
		}
	}
}

// Recent returns the recorded frames, oldest first.
func (s *Server) Recent() []app.FrameStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]app.FrameStats(nil), s.recent...)
}

func (s *Server) subscribe() (chan app.FrameStats, []app.FrameStats) {
	ch := make(chan app.FrameStats, subscriberBuf)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs[ch] = struct{}{}
	return ch, append([]app.FrameStats(nil), s.recent...)
}

func (s *Server) unsubscribe(ch chan app.FrameStats) {
	s.mu.Lock()
	delete(s.subs, ch)
	s.mu.Unlock()
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	g := s.app.Gatherer()
	if g == nil {
		http.Error(w, "metrics registry cannot be gathered", http.StatusNotFound)
		return
	}
	promhttp.HandlerFor(g, promhttp.HandlerOpts{}).ServeHTTP(w, r)
}

type treeResponse struct {
	Frames uint64           `json:"frames"`
	Root   *widget.Snapshot `json:"root"`
	Nodes  int              `json:"nodes"`
}

func (s *Server) handleTree(w http.ResponseWriter, r *http.Request) {
	var resp treeResponse
	err := s.app.Inspect(r.Context(), func() {
		if root := s.app.Root(); root != nil {
			snap := root.Snapshot()
			resp.Root = &snap
			resp.Nodes = snap.Count()
		}
	})
	if err != nil {
		http.Error(w, "ui goroutine did not respond: "+err.Error(), http.StatusServiceUnavailable)
		return
	}
	resp.Frames = s.app.Frames()
	writeJSON(w, resp)
}

type statsResponse struct {
	Engine    reactive.Stats `json:"engine"`
	Frames    uint64         `json:"frames"`
	LastFrame app.FrameStats `json:"last_frame"`
	Pending   bool           `json:"frame_pending"`
	Queued    int            `json:"queued"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, statsResponse{
		Engine:    reactive.ReadStats(),
		Frames:    s.app.Frames(),
		LastFrame: s.app.LastFrame(),
		Pending:   s.app.FramePending(),
		Queued:    s.app.Queue().Len(),
	})
}

func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Recent())
}

func (s *Server) handleFrames(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
	if len(s.origins) > 0 {
		upgrader.CheckOrigin = s.originAllowed
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ch, backlog := s.subscribe()
	defer s.unsubscribe(ch)

	// The client never sends; reading only detects the close.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func(stats app.FrameStats) bool {
		if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
			return false
		}
		return conn.WriteJSON(stats) == nil
	}
	for _, stats := range backlog {
		if !send(stats) {
			return
		}
	}
	for {
		select {
		case stats := <-ch:
			if !send(stats) {
				return
			}
		case <-closed:
			return
		case <-r.Context().Done():
			return
		}
	}
}

func (s *Server) originAllowed(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, o := range s.origins {
		if o == origin {
			return true
		}
	}
	return false
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
