package peerwatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/jpalmerr/peerwatch/dashboard"
	"github.com/jpalmerr/peerwatch/internal/poller"
	"github.com/jpalmerr/peerwatch/internal/server"
	"github.com/jpalmerr/peerwatch/internal/store"
)

const (
	defaultPort  = 8080
	defaultTitle = "peerwatch"
)

// PollerState is a point-in-time view of the status poller.
type PollerState struct {
	// Phase is one of "stopped", "scheduled", "polling" or "paused".
	Phase string

	// Failures is the number of consecutive failed cycles.
	Failures int

	// NextDelay is the delay armed for the next cycle, zero when none is armed.
	NextDelay time.Duration
}

// Console owns the device panel of an admin console page: which panel is
// active, whether the page is visible, and which device rows are rendered.
// It keeps the rows' online status fresh by polling the status endpoint
// while the devices panel is active, and serves the rows over HTTP.
//
// The typical lifecycle is:
//
//	c, err := peerwatch.New(
//	    peerwatch.WithStatusURL(statusURL),
//	    peerwatch.WithDevices(devices...),
//	)
//	if err != nil {
//	    slog.Error("failed to create console", "error", err)
//	    os.Exit(1)
//	}
//
//	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer cancel()
//
//	c.Start(ctx) // blocks until context cancelled
//
// Navigation and visibility can be driven from Go ([Console.Navigate],
// [Console.SetHidden]) or by the browser through the console server.
type Console struct {
	title           string
	statusURL       string
	port            int
	initialPanel    PanelKey
	logger          *slog.Logger
	statusCallbacks []func(StatusChange)

	store     *store.MemoryStore
	client    *poller.Client
	ctrl      *poller.Controller
	navigator *Navigator
	registry  *prometheus.Registry

	hidden      atomic.Bool
	visibilityM sync.Mutex
	unsubscribe func()

	// status changes waiting for the callback dispatcher
	pendingMu sync.Mutex
	pending   []StatusChange
	wake      chan struct{}
	quit      chan struct{}

	started   atomic.Bool
	closeOnce sync.Once
}

// New creates a [Console] with the given options.
//
// [WithStatusURL] is required. Other options have sensible defaults:
//   - Base interval: 10 seconds, max interval: 60 seconds
//   - Request timeout: 10 seconds
//   - Initial panel: [PanelHome]
//   - Port: 8080
//
// The console is stopped until [Console.Start]. Call [Console.Close] to
// release a console that is never started.
func New(opts ...Option) (*Console, error) {
	cfg := &consoleConfig{
		title:        defaultTitle,
		baseInterval: poller.DefaultBaseInterval,
		maxInterval:  poller.DefaultMaxInterval,
		headers:      make(map[string]string),
		initialPanel: PanelHome,
		port:         defaultPort,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.statusURL == "" {
		return nil, errors.New("status URL is required")
	}
	if cfg.maxInterval < cfg.baseInterval {
		return nil, fmt.Errorf("max interval %s is below base interval %s", cfg.maxInterval, cfg.baseInterval)
	}

	seen := make(map[string]bool, len(cfg.devices))
	for _, d := range cfg.devices {
		if seen[d.id] {
			return nil, fmt.Errorf("duplicate device id: %q", d.id)
		}
		seen[d.id] = true
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	reg := cfg.registry
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	var cookies []*http.Cookie
	if cfg.sessionCookie != "" {
		cookies = append(cookies, &http.Cookie{Name: "sessionid", Value: cfg.sessionCookie})
	}

	client, err := poller.NewClient(poller.ClientConfig{
		URL:     cfg.statusURL,
		Headers: cfg.headers,
		Cookies: cookies,
		Timeout: cfg.requestTimeout,
	})
	if err != nil {
		return nil, err
	}

	c := &Console{
		title:           cfg.title,
		statusURL:       cfg.statusURL,
		port:            cfg.port,
		initialPanel:    cfg.initialPanel,
		logger:          logger,
		statusCallbacks: cfg.statusCallbacks,
		store:           store.NewMemoryStore(),
		client:          client,
		navigator:       NewNavigator(cfg.initialPanel, logger),
		registry:        reg,
		wake:            make(chan struct{}, 1),
		quit:            make(chan struct{}),
	}

	c.store.SetRows(devicesToRows(cfg.devices))

	ctrl, err := poller.NewController(poller.ControllerConfig{
		Targets: c.store.IDs,
		Fetcher: client,
		Apply:   c.apply,
		Hidden:  c.hidden.Load,
		Backoff: poller.Backoff{Base: cfg.baseInterval, Max: cfg.maxInterval},
		Logger:  logger,
		Metrics: poller.NewMetrics(reg),
	})
	if err != nil {
		client.Close()
		return nil, err
	}
	c.ctrl = ctrl

	c.unsubscribe = c.navigator.Subscribe(func(key PanelKey) {
		if key == PanelDevices {
			c.ctrl.Start()
			return
		}
		c.ctrl.Stop()
	})

	if len(c.statusCallbacks) > 0 {
		go c.dispatchLoop()
	}

	return c, nil
}

// Start activates the initial panel and serves the console until ctx is
// cancelled.
//
// Start is a blocking call. When the initial panel is [PanelDevices],
// polling begins immediately. The console page is available at
// http://localhost:<port>.
//
// Start can be called once. On return the console is closed.
//
// Returns nil on graceful shutdown. Returns an error if the HTTP server
// fails to start.
func (c *Console) Start(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return errors.New("console already started")
	}
	defer c.Close()

	// check if context already cancelled
	if ctx.Err() != nil {
		return nil
	}

	c.logger.Info("peerwatch starting",
		"device_count", len(c.store.IDs()),
		"status_url", c.statusURL,
		"initial_panel", string(c.initialPanel),
	)

	httpServer := server.NewServer(c.store, hostAdapter{c}, server.Config{
		Port:     c.port,
		Title:    c.title,
		Assets:   dashboard.Assets,
		Gatherer: c.registry,
	}, c.logger)
	if err := httpServer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	c.logger.Info("console available", "url", fmt.Sprintf("http://localhost:%d", c.port))

	c.navigator.Activate(c.initialPanel)

	<-ctx.Done()
	c.logger.Info("peerwatch stopped")
	return nil
}

// Close stops polling and releases the controller and the HTTP client.
// It is idempotent and safe to call on a console that was never started.
//
// Status changes already queued are still delivered to the callbacks after
// Close returns. Close may be called from a status callback.
func (c *Console) Close() {
	c.closeOnce.Do(func() {
		c.unsubscribe()
		c.ctrl.Dispose()
		c.client.Close()
		close(c.quit)
	})
}

// Navigate activates the panel identified by key. Activating
// [PanelDevices] starts polling; any other panel stops it.
func (c *Console) Navigate(key PanelKey) error {
	if !key.Valid() {
		return fmt.Errorf("unknown panel %q", key)
	}
	c.navigator.Activate(key)
	return nil
}

// ActivePanel returns the last activated panel.
func (c *Console) ActivePanel() PanelKey {
	return c.navigator.Active()
}

// Navigator returns the console's panel navigator, for callers that want
// to observe panel changes.
func (c *Console) Navigator() *Navigator {
	return c.navigator
}

// SetHidden records whether the page is hidden.
//
// Hiding the page aborts an in-flight poll and defers the next one; showing
// it again resumes polling at once. Repeating the current state is a no-op.
func (c *Console) SetHidden(hidden bool) {
	c.visibilityM.Lock()
	defer c.visibilityM.Unlock()

	if c.hidden.Swap(hidden) == hidden {
		return
	}
	c.logger.Debug("page visibility changed", "hidden", hidden)
	c.ctrl.VisibilityChanged()
}

// Hidden reports whether the page is hidden.
func (c *Console) Hidden() bool {
	return c.hidden.Load()
}

// SetDevices replaces the rendered rows. Rows that stay keep their status.
//
// Returns an error on duplicate device IDs.
func (c *Console) SetDevices(devices ...Device) error {
	seen := make(map[string]bool, len(devices))
	for _, d := range devices {
		if seen[d.id] {
			return fmt.Errorf("duplicate device id: %q", d.id)
		}
		seen[d.id] = true
	}
	c.store.SetRows(devicesToRows(devices))
	return nil
}

// Statuses returns the current status of every rendered row, keyed by
// device ID.
func (c *Console) Statuses() map[string]Status {
	rows := c.store.Rows()
	out := make(map[string]Status, len(rows))
	for _, row := range rows {
		out[row.ID] = Status(row.Status)
	}
	return out
}

// PollerState returns the poller's current state.
func (c *Console) PollerState() PollerState {
	snap := c.ctrl.Snapshot()
	return PollerState{
		Phase:     string(snap.Phase),
		Failures:  snap.Failures,
		NextDelay: snap.NextDelay,
	}
}

// Port returns the configured HTTP port.
func (c *Console) Port() int {
	return c.port
}

// apply paints a successful poll onto the rows and queues changed rows
// for the status callbacks. It runs on the controller's loop, so it never
// calls a callback itself.
func (c *Console) apply(statuses poller.Statuses) {
	previous := make(map[string]store.RowStatus)
	for _, row := range c.store.Rows() {
		previous[row.ID] = row.Status
	}

	online := make(map[string]bool, len(statuses))
	for id, st := range statuses {
		online[id] = st.Online
	}

	changed := c.store.Apply(online)
	changes := make([]StatusChange, 0, len(changed))
	for _, row := range changed {
		change := StatusChange{
			DeviceID:  row.ID,
			Alias:     row.Alias,
			Labels:    copyMap(row.Labels),
			Previous:  Status(previous[row.ID]),
			Status:    Status(row.Status),
			ChangedAt: row.UpdatedAt,
		}
		if change.Previous == "" {
			change.Previous = StatusUnknown
		}

		c.logger.Debug("device status changed",
			"device", change.DeviceID,
			"status", change.Status.String(),
		)
		changes = append(changes, change)
	}

	if len(changes) > 0 && len(c.statusCallbacks) > 0 {
		c.enqueue(changes)
	}
}

// enqueue hands changes to the dispatcher without blocking the caller.
func (c *Console) enqueue(changes []StatusChange) {
	c.pendingMu.Lock()
	c.pending = append(c.pending, changes...)
	c.pendingMu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// dispatchLoop runs the status callbacks off the controller's loop, in
// the order the changes were applied. It drains the queue and exits once
// the console is closed.
func (c *Console) dispatchLoop() {
	for {
		select {
		case <-c.wake:
			c.deliverPending()
		case <-c.quit:
			c.deliverPending()
			return
		}
	}
}

func (c *Console) deliverPending() {
	for {
		c.pendingMu.Lock()
		batch := c.pending
		c.pending = nil
		c.pendingMu.Unlock()

		if len(batch) == 0 {
			return
		}
		for _, change := range batch {
			for _, cb := range c.statusCallbacks {
				invokeCallbackSafe(cb, change, c.logger)
			}
		}
	}
}

// invokeCallbackSafe calls a status callback with panic recovery.
// Panics are logged with a correlation ID but do not propagate.
func invokeCallbackSafe(cb func(StatusChange), change StatusChange, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("status callback panicked",
				"panic", r,
				"device", change.DeviceID,
				"correlation_id", uuid.NewString(),
			)
		}
	}()
	cb(change)
}

func devicesToRows(devices []Device) []store.Row {
	rows := make([]store.Row, 0, len(devices))
	for _, d := range devices {
		rows = append(rows, store.Row{
			ID:     d.id,
			Alias:  d.alias,
			Labels: copyMap(d.labels),
		})
	}
	return rows
}

// hostAdapter exposes the console to the HTTP server.
type hostAdapter struct {
	c *Console
}

func (h hostAdapter) Navigate(key string) error {
	return h.c.Navigate(PanelKey(key))
}

func (h hostAdapter) ActivePanel() string {
	return string(h.c.ActivePanel())
}

func (h hostAdapter) SetHidden(hidden bool) {
	h.c.SetHidden(hidden)
}

func (h hostAdapter) Hidden() bool {
	return h.c.Hidden()
}

func (h hostAdapter) PollerSnapshot() poller.Snapshot {
	return h.c.ctrl.Snapshot()
}
