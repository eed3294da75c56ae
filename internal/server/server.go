package server

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jpalmerr/peerwatch/internal/poller"
	"github.com/jpalmerr/peerwatch/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	// sseWriteTimeout is the maximum time allowed for a single SSE write operation.
	// This prevents goroutine leaks when clients are slow or disconnected.
	// Must be <= shutdown timeout to ensure clean shutdown.
	sseWriteTimeout = 5 * time.Second

	shutdownTimeout = 5 * time.Second

	// defaultTitle is used when no custom title is configured.
	defaultTitle = "peerwatch"

	// titlePlaceholder is the marker in HTML that gets replaced with the actual title.
	titlePlaceholder = "{{.Title}}"

	maxRequestBody = 1 << 20
)

// Host is the page the server exposes: its active panel, its visibility
// and the state of the poller refreshing its rows.
type Host interface {
	// Navigate activates a panel by key. Unknown keys are rejected.
	Navigate(key string) error

	// ActivePanel returns the key of the active panel.
	ActivePanel() string

	// SetHidden flips the page visibility.
	SetHidden(hidden bool)

	// Hidden reports whether the page is hidden.
	Hidden() bool

	// PollerSnapshot returns the poller's current state.
	PollerSnapshot() poller.Snapshot
}

// Config holds the presentation settings of a [Server].
type Config struct {
	// Port is the TCP port to listen on.
	Port int

	// Title defaults to "peerwatch".
	Title string

	// Assets holds assets/index.html. May be nil.
	Assets fs.FS

	// Gatherer backs GET /metrics. Nil disables the route.
	Gatherer prometheus.Gatherer
}

// Server handles HTTP requests for the console page.
//
// Routes:
//   - GET /: embedded dashboard HTML
//   - GET, PUT /api/devices: rendered device rows
//   - GET, POST /api/panel: active panel
//   - GET, POST /api/visibility: page visibility
//   - GET /api/poller: poller snapshot
//   - GET /api/sse: Server-Sent Events stream of row events
//   - GET /api/ws: WebSocket channel for a browser view
//   - GET /metrics: Prometheus exposition
//
// The server is designed for graceful shutdown via context cancellation.
type Server struct {
	store      store.Store
	host       Host
	cfg        Config
	logger     *slog.Logger
	router     chi.Router
	httpServer *http.Server

	// live WebSocket views; the page is hidden when the last one closes
	viewsMu sync.Mutex
	views   int
}

// NewServer creates a new HTTP [Server].
//
// The server is not started until [Server.Start] is called.
func NewServer(st store.Store, host Host, cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		store:  st,
		host:   host,
		cfg:    cfg,
		logger: logger,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/devices", s.handleGetDevices)
		r.Put("/devices", s.handlePutDevices)
		r.Get("/panel", s.handleGetPanel)
		r.Post("/panel", s.handlePostPanel)
		r.Get("/visibility", s.handleGetVisibility)
		r.Post("/visibility", s.handlePostVisibility)
		r.Get("/poller", s.handlePoller)
		r.Get("/sse", s.handleSSE)
		r.Get("/ws", s.handleWebSocket)
	})

	if s.cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	// serve dashboard assets
	if s.cfg.Assets != nil {
		r.Get("/", s.handleDashboard)
	}

	s.router = r
}

// Handler returns the server's router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins serving HTTP requests in a background goroutine.
//
// Start is non-blocking and returns immediately after confirming the server
// is listening. The server will continue running until the context is
// cancelled, at which point it initiates a graceful shutdown with a 5-second
// timeout.
//
// Returns an error if the server fails to bind to the configured port.
func (s *Server) Start(ctx context.Context) error {
	// create listener first to verify port availability synchronously
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind to port %d: %w", s.cfg.Port, err)
	}

	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		// BaseContext derives all request contexts from the server context.
		// When ctx is cancelled, all request contexts are also cancelled,
		// enabling graceful shutdown of long-running handlers like SSE.
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("http server error", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("http server shutdown error", "error", err)
		}
	}()

	return nil
}

// handleDashboard serves the main dashboard page.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Assets == nil {
		http.Error(w, "Dashboard not found", http.StatusInternalServerError)
		return
	}

	content, err := fs.ReadFile(s.cfg.Assets, "assets/index.html")
	if err != nil {
		http.Error(w, "Dashboard not found", http.StatusInternalServerError)
		return
	}

	// apply title substitution with HTML escaping to prevent XSS
	title := s.cfg.Title
	if title == "" {
		title = defaultTitle
	}
	rendered := strings.ReplaceAll(string(content), titlePlaceholder, html.EscapeString(title))

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err = w.Write([]byte(rendered)); err != nil {
		s.logger.Error("failed to write dashboard response", "error", err)
	}
}

// handleSSE streams row events via Server-Sent Events.
//
// The handler uses write deadlines to prevent goroutine leaks when clients are
// slow or disconnected. Without deadlines, a blocked Fprintf call would prevent
// the handler from detecting context cancellation or channel closure.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	if _, ok := w.(http.Flusher); !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	rc := http.NewResponseController(w)

	// track if write deadlines are supported (may not be for some ResponseWriter impls)
	deadlinesSupported := true

	writeAndFlush := func(ev store.Event) error {
		data, err := json.Marshal(ev)
		if err != nil {
			return nil
		}
		if deadlinesSupported {
			if err := rc.SetWriteDeadline(time.Now().Add(sseWriteTimeout)); err != nil {
				s.logger.Warn("sse write deadlines not supported", "error", err)
				deadlinesSupported = false
			}
		}

		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
			return err
		}
		return rc.Flush()
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := s.store.Subscribe()
	defer s.store.Unsubscribe(ch)

	// current rows first, then live events
	if err := writeAndFlush(store.Event{Type: store.EventReset, Rows: s.store.Rows()}); err != nil {
		return
	}

	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if err := writeAndFlush(ev); err != nil {
				return
			}

		case <-r.Context().Done():
			// request context is derived from server context via BaseContext,
			// so this fires on both client disconnect AND server shutdown
			return
		}
	}
}
