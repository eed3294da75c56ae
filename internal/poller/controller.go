package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
)

// Phase is the externally observable state of a [Controller].
type Phase string

const (
	// PhaseStopped: not running, no timer, no request.
	PhaseStopped Phase = "stopped"

	// PhaseScheduled: running with the next cycle's timer armed.
	PhaseScheduled Phase = "scheduled"

	// PhasePolling: running with a status request in flight.
	PhasePolling Phase = "polling"

	// PhasePaused: running, but the next cycle is deferred until the
	// page is visible again. No timer is armed.
	PhasePaused Phase = "paused"
)

// Snapshot is a point-in-time view of a [Controller]'s state.
type Snapshot struct {
	Phase     Phase         `json:"phase"`
	Failures  int           `json:"failures"`
	NextDelay time.Duration `json:"next_delay_ns"`
}

// TargetSource returns the IDs of the rows currently rendered. It is
// called once per cycle and may return an empty slice.
type TargetSource func() []string

// ApplyFunc paints fetched statuses onto the rendered rows.
type ApplyFunc func(Statuses)

// HiddenFunc reports whether the page is currently hidden.
type HiddenFunc func() bool

// ControllerConfig wires a [Controller] to its collaborators.
type ControllerConfig struct {
	// Targets, Fetcher and Apply are required.
	Targets TargetSource
	Fetcher Fetcher
	Apply   ApplyFunc

	// Hidden defaults to a page that is always visible.
	Hidden HiddenFunc

	// Backoff zero values fall back to DefaultBackoff.
	Backoff Backoff

	// Clock defaults to the wall clock.
	Clock clock.Clock

	Logger  *slog.Logger
	Metrics *Metrics
}

// flight is the handle of the single outstanding status request.
type flight struct {
	seq    uint64
	id     string
	cancel context.CancelFunc
}

// settlement carries a finished fetch back to the event loop.
type settlement struct {
	seq    uint64
	result Result
}

// Controller periodically refreshes the online state of the rendered rows.
//
// All state lives on a single event-loop goroutine: commands, timer
// expiries and fetch completions are processed one at a time, so no two
// cycles ever overlap. At most one request is in flight and at most one
// timer is armed. A settled request is applied only if it is still the
// most recent one and the controller is still running, so once [Controller.Stop]
// returns no result issued before it can reach the ApplyFunc.
//
// Commands are synchronous. ApplyFunc runs on the loop goroutine and must
// not call Start, Stop or Dispose.
type Controller struct {
	targets TargetSource
	fetcher Fetcher
	applyFn ApplyFunc
	hidden  HiddenFunc
	backoff Backoff
	clock   clock.Clock
	logger  *slog.Logger
	metrics *Metrics

	cmds    chan func()
	settled chan settlement
	quit    chan struct{}
	done    chan struct{}

	fetches  sync.WaitGroup
	quitOnce sync.Once

	// owned by the loop goroutine
	running  bool
	paused   bool
	failures int
	timer    *clock.Timer
	delay    time.Duration
	flight   *flight
	seq      uint64
}

// NewController creates a stopped [Controller] and starts its event loop.
// Call [Controller.Dispose] to release it.
func NewController(cfg ControllerConfig) (*Controller, error) {
	if cfg.Targets == nil {
		return nil, errors.New("target source is required")
	}
	if cfg.Fetcher == nil {
		return nil, errors.New("fetcher is required")
	}
	if cfg.Apply == nil {
		return nil, errors.New("apply func is required")
	}

	c := &Controller{
		targets: cfg.Targets,
		fetcher: cfg.Fetcher,
		applyFn: cfg.Apply,
		hidden:  cfg.Hidden,
		backoff: normalizeBackoff(cfg.Backoff),
		clock:   cfg.Clock,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
		cmds:    make(chan func()),
		settled: make(chan settlement),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	if c.hidden == nil {
		c.hidden = func() bool { return false }
	}
	if c.clock == nil {
		c.clock = clock.New()
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.metrics == nil {
		c.metrics = NewMetrics(nil)
	}

	go c.loop()
	return c, nil
}

func normalizeBackoff(b Backoff) Backoff {
	def := DefaultBackoff()
	if b.Base <= 0 {
		b.Base = def.Base
	}
	if b.Max <= 0 {
		b.Max = def.Max
	}
	if b.Max < b.Base {
		b.Max = b.Base
	}
	if b.Cap <= 0 {
		b.Cap = def.Cap
	}
	return b
}

// Start begins polling; the first cycle runs immediately.
// It is a no-op if the controller is already running or disposed.
func (c *Controller) Start() {
	c.exec(func() {
		if c.running {
			return
		}
		c.running = true
		c.failures = 0
		c.logger.Info("status polling started")
		c.cycle()
	})
}

// Stop cancels the pending timer, aborts the in-flight request and resets
// the failure count. Idempotent.
func (c *Controller) Stop() {
	c.exec(func() {
		if !c.running {
			return
		}
		c.halt()
		c.logger.Info("status polling stopped")
	})
}

// VisibilityChanged tells the controller that the hidden signal flipped.
//
// Becoming hidden aborts the in-flight request without counting a failure
// and disarms the timer. Becoming visible while paused runs a cycle at once.
func (c *Controller) VisibilityChanged() {
	c.exec(func() {
		if !c.running {
			return
		}
		if c.hidden() {
			if c.flight != nil {
				c.logger.Debug("page hidden, aborting status request", "cycle_id", c.flight.id)
			}
			c.abortFlight()
			c.pause()
			return
		}
		if c.paused {
			c.logger.Debug("page visible, resuming status polling")
			c.cycle()
		}
	})
}

// Snapshot returns the current state. A disposed controller reports stopped.
func (c *Controller) Snapshot() Snapshot {
	snap := Snapshot{Phase: PhaseStopped}
	c.exec(func() {
		snap = c.snapshot()
	})
	return snap
}

// Dispose stops the controller, ends its event loop and waits for every
// fetch goroutine it started. Subsequent calls to any method are no-ops.
func (c *Controller) Dispose() {
	c.quitOnce.Do(func() { close(c.quit) })
	<-c.done
	c.fetches.Wait()
}

// exec runs fn on the loop goroutine and waits for it to finish.
// Returns false if the loop has already exited.
func (c *Controller) exec(fn func()) bool {
	ack := make(chan struct{})
	select {
	case c.cmds <- func() {
		defer close(ack)
		fn()
	}:
	case <-c.done:
		return false
	}
	<-ack
	return true
}

func (c *Controller) loop() {
	defer close(c.done)

	for {
		var timerC <-chan time.Time
		if c.timer != nil {
			timerC = c.timer.C
		}

		select {
		case fn := <-c.cmds:
			fn()
		case <-timerC:
			c.timer = nil
			c.delay = 0
			c.cycle()
		case s := <-c.settled:
			c.settle(s)
		case <-c.quit:
			if c.running {
				c.halt()
			}
			return
		}
	}
}

// cycle runs one poll attempt. Only called on the loop goroutine.
func (c *Controller) cycle() {
	if !c.running {
		return
	}
	if c.hidden() {
		c.pause()
		return
	}
	c.paused = false

	// at most one request; a leftover handle here is stale
	c.abortFlight()

	ids := c.targets()
	if len(ids) == 0 {
		c.failures = 0
		c.metrics.Cycles.WithLabelValues("empty").Inc()
		c.metrics.ConsecutiveFailures.Set(0)
		c.logger.Debug("poll cycle skipped", "reason", "no targets")
		c.scheduleNext()
		return
	}
	ids = append([]string(nil), ids...)

	c.seq++
	ctx, cancel := context.WithCancel(context.Background())
	f := &flight{seq: c.seq, id: uuid.NewString(), cancel: cancel}
	c.flight = f
	c.metrics.NextDelay.Set(0)

	c.fetches.Add(1)
	go func() {
		defer c.fetches.Done()
		result := c.fetcher.Fetch(ctx, ids)
		select {
		case c.settled <- settlement{seq: f.seq, result: result}:
		case <-c.done:
		}
	}()
}

// settle applies or discards a finished fetch and schedules the next cycle.
func (c *Controller) settle(s settlement) {
	if c.flight == nil || c.flight.seq != s.seq {
		c.logger.Debug("discarding stale status result", "seq", s.seq)
		return
	}
	f := c.flight
	c.flight = nil
	f.cancel()

	if !c.running {
		return
	}

	c.metrics.FetchDuration.Observe(s.result.Latency.Seconds())
	kind := s.result.Kind()
	c.metrics.Cycles.WithLabelValues(kind.String()).Inc()

	if kind == KindNone {
		c.failures = 0
		c.apply(f.id, s.result.Statuses)
		c.logger.Debug("poll cycle completed",
			"cycle_id", f.id,
			"statuses", len(s.result.Statuses),
			"latency_ms", s.result.Latency.Milliseconds(),
		)
	} else {
		c.failures++
		c.logger.Debug("poll cycle failed",
			"cycle_id", f.id,
			"kind", kind.String(),
			"failures", c.failures,
			"error", s.result.Err.Error(),
		)
	}
	c.metrics.ConsecutiveFailures.Set(float64(c.failures))

	c.scheduleNext()
}

// scheduleNext arms the single timer, or pauses if the page is hidden.
func (c *Controller) scheduleNext() {
	if !c.running {
		return
	}
	if c.hidden() {
		c.pause()
		return
	}
	c.stopTimer()
	c.delay = c.backoff.Delay(c.failures)
	c.timer = c.clock.Timer(c.delay)
	c.metrics.NextDelay.Set(c.delay.Seconds())
}

func (c *Controller) pause() {
	c.paused = true
	c.stopTimer()
}

// halt moves to stopped from any state.
func (c *Controller) halt() {
	c.running = false
	c.paused = false
	c.stopTimer()
	c.abortFlight()
	c.failures = 0
	c.metrics.ConsecutiveFailures.Set(0)
}

func (c *Controller) stopTimer() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.delay = 0
	c.metrics.NextDelay.Set(0)
}

// abortFlight cancels the outstanding request and releases its slot.
// Its settlement will be discarded as stale.
func (c *Controller) abortFlight() {
	if c.flight == nil {
		return
	}
	c.flight.cancel()
	c.flight = nil
}

func (c *Controller) snapshot() Snapshot {
	snap := Snapshot{Failures: c.failures, NextDelay: c.delay}
	switch {
	case !c.running:
		snap.Phase = PhaseStopped
	case c.flight != nil:
		snap.Phase = PhasePolling
	case c.paused:
		snap.Phase = PhasePaused
	default:
		snap.Phase = PhaseScheduled
	}
	return snap
}

// apply calls the ApplyFunc with panic recovery.
// A panicking renderer is logged and does not stop polling.
func (c *Controller) apply(cycleID string, statuses Statuses) {
	defer func() {
		if r := recover(); r != nil {
			correlationID := uuid.NewString()
			c.logger.Error("status apply panicked",
				"correlation_id", correlationID,
				"cycle_id", cycleID,
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
		}
	}()
	c.applyFn(statuses)
}
