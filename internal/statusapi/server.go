package statusapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

const (
	// StatusesPath is the batch status route polled by the console.
	StatusesPath = "/web/device/statuses"

	// DefaultOnlineWindow is how recent a heartbeat must be to count as online.
	DefaultOnlineWindow = 5 * time.Minute

	// DefaultMaxIDs caps the number of IDs answered per request.
	DefaultMaxIDs = 500

	// DefaultRateLimit is the sustained request rate per second.
	DefaultRateLimit = 50

	// DefaultBurst is the token bucket size.
	DefaultBurst = 100

	shutdownTimeout = 5 * time.Second
	maxBodySize     = 64 << 10
)

// Config configures a status API [Server].
type Config struct {
	// Port is the TCP port to listen on.
	Port int

	// OnlineWindow defaults to DefaultOnlineWindow.
	OnlineWindow time.Duration

	// MaxIDs defaults to DefaultMaxIDs.
	MaxIDs int

	// RateLimit (requests per second) and Burst default to DefaultRateLimit
	// and DefaultBurst.
	RateLimit float64
	Burst     int
}

func (c Config) withDefaults() Config {
	if c.OnlineWindow <= 0 {
		c.OnlineWindow = DefaultOnlineWindow
	}
	if c.MaxIDs <= 0 {
		c.MaxIDs = DefaultMaxIDs
	}
	if c.RateLimit <= 0 {
		c.RateLimit = DefaultRateLimit
	}
	if c.Burst <= 0 {
		c.Burst = DefaultBurst
	}
	return c
}

// envelope is the JSON body of every status API response.
type envelope struct {
	OK bool `json:"ok"`

	// Data is a map[string]peerStatus; an empty map is still encoded.
	Data   any    `json:"data,omitempty"`
	ErrMsg string `json:"err_msg,omitempty"`
	Error  string `json:"error,omitempty"`
}

type peerStatus struct {
	Online bool `json:"is_online"`
}

// Server serves the status API.
//
// Routes:
//   - GET /web/device/statuses?ids=a,b: batch online state (session required)
//   - POST /api/heartbeat: record a device heartbeat
//   - GET /healthz: liveness
//   - GET /metrics: Prometheus exposition of the server's registry
type Server struct {
	cfg        Config
	heartbeats HeartbeatStore
	sessions   *Sessions
	logger     *slog.Logger
	metrics    *Metrics
	gatherer   prometheus.Gatherer
	limiter    *rate.Limiter
	router     chi.Router
	now        func() time.Time
	httpServer *http.Server
}

// NewServer creates a status API server. The server is not listening until
// [Server.Start] is called; [Server.Handler] can be used directly in tests.
func NewServer(cfg Config, heartbeats HeartbeatStore, sessions *Sessions, logger *slog.Logger, reg *prometheus.Registry) (*Server, error) {
	if heartbeats == nil {
		return nil, errors.New("heartbeat store is required")
	}
	if sessions == nil {
		return nil, errors.New("sessions are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	cfg = cfg.withDefaults()
	s := &Server{
		cfg:        cfg,
		heartbeats: heartbeats,
		sessions:   sessions,
		logger:     logger,
		metrics:    NewMetrics(reg),
		gatherer:   reg,
		limiter:    rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst),
		now:        time.Now,
	}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(instrument(s.logger, s.metrics))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		r.Use(rateLimit(s.limiter))

		r.Post("/api/heartbeat", s.handleHeartbeat)

		r.Group(func(r chi.Router) {
			r.Use(s.sessions.Middleware(s.logger))
			// all methods reach the handler so non-GET gets the JSON 405
			r.HandleFunc(StatusesPath, s.handleStatuses)
		})
	})

	s.router = r
}

// Handler returns the server's router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins serving in a background goroutine and returns once the port
// is bound. Cancelling ctx shuts the server down gracefully.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind to port %d: %w", s.cfg.Port, err)
	}

	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("status api server error", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("status api shutdown error", "error", err)
		}
	}()

	s.logger.Info("status api listening", "port", s.cfg.Port, "online_window", s.cfg.OnlineWindow.String())
	return nil
}

// handleStatuses answers the batch online query.
func (s *Server) handleStatuses(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeEnvelope(w, http.StatusMethodNotAllowed, envelope{Error: "Method not allowed"})
		return
	}

	ids := parseIDs(r.URL.Query().Get("ids"), s.cfg.MaxIDs)
	if len(ids) == 0 {
		writeEnvelope(w, http.StatusOK, envelope{OK: true, Data: map[string]peerStatus{}})
		return
	}

	since := s.now().Add(-s.cfg.OnlineWindow)
	online, err := s.heartbeats.OnlineSince(r.Context(), ids, since)
	if err != nil {
		s.logger.Error("failed to load statuses", "error", err, "ids", len(ids))
		writeEnvelope(w, http.StatusInternalServerError, envelope{ErrMsg: "failed to load statuses"})
		return
	}

	data := make(map[string]peerStatus, len(ids))
	for _, id := range ids {
		data[id] = peerStatus{Online: online[id]}
	}
	writeEnvelope(w, http.StatusOK, envelope{OK: true, Data: data})
}

// handleHeartbeat records a device heartbeat.
func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	var hb Heartbeat
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&hb); err != nil {
		writeEnvelope(w, http.StatusBadRequest, envelope{Error: "invalid heartbeat"})
		return
	}
	hb.ID = strings.TrimSpace(hb.ID)
	if hb.ID == "" {
		writeEnvelope(w, http.StatusBadRequest, envelope{Error: "id is required"})
		return
	}
	hb.At = s.now()

	if err := s.heartbeats.Beat(r.Context(), hb); err != nil {
		s.logger.Error("failed to record heartbeat", "error", err, "peer_id", hb.ID)
		writeEnvelope(w, http.StatusInternalServerError, envelope{ErrMsg: "failed to record heartbeat"})
		return
	}
	s.metrics.Heartbeats.Inc()

	writeEnvelope(w, http.StatusOK, envelope{OK: true})
}

// parseIDs splits a comma-separated list, trimming entries, dropping blanks
// and keeping at most max.
func parseIDs(raw string, max int) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	var ids []string
	for _, part := range strings.Split(raw, ",") {
		id := strings.TrimSpace(part)
		if id == "" {
			continue
		}
		ids = append(ids, id)
		if len(ids) == max {
			break
		}
	}
	return ids
}

func writeEnvelope(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
