package poller

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
)

// testLogger returns a logger that discards all output for clean test output.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fetchCall is one pending request seen by fakeFetcher.
type fetchCall struct {
	ctx   context.Context
	ids   []string
	reply chan Result
}

// fakeFetcher blocks every request until the test replies or the
// request is cancelled, and tracks how many uncancelled requests overlap.
type fakeFetcher struct {
	calls chan *fetchCall

	mu             sync.Mutex
	active         map[*fetchCall]struct{}
	maxOutstanding int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		calls:  make(chan *fetchCall, 16),
		active: make(map[*fetchCall]struct{}),
	}
}

func (f *fakeFetcher) Fetch(ctx context.Context, ids []string) Result {
	call := &fetchCall{ctx: ctx, ids: ids, reply: make(chan Result, 1)}

	f.mu.Lock()
	outstanding := 1
	for other := range f.active {
		if other.ctx.Err() == nil {
			outstanding++
		}
	}
	if outstanding > f.maxOutstanding {
		f.maxOutstanding = outstanding
	}
	f.active[call] = struct{}{}
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		delete(f.active, call)
		f.mu.Unlock()
	}()

	f.calls <- call

	select {
	case r := <-call.reply:
		return r
	case <-ctx.Done():
		return Result{Err: &FetchError{Kind: KindCanceled, Err: ctx.Err()}}
	}
}

func (f *fakeFetcher) next(t *testing.T) *fetchCall {
	t.Helper()
	select {
	case call := <-f.calls:
		return call
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a status request")
		return nil
	}
}

func (f *fakeFetcher) expectNone(t *testing.T) {
	t.Helper()
	select {
	case call := <-f.calls:
		t.Fatalf("unexpected status request for %v", call.ids)
	case <-time.After(50 * time.Millisecond):
	}
}

func (f *fakeFetcher) outstandingHighWater() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxOutstanding
}

// applyRecorder records every ApplyFunc invocation.
type applyRecorder struct {
	mu      sync.Mutex
	applied []Statuses
}

func (r *applyRecorder) apply(s Statuses) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.applied = append(r.applied, s)
}

func (r *applyRecorder) calls() []Statuses {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Statuses(nil), r.applied...)
}

// staticTargets returns a TargetSource whose IDs can be swapped by tests.
type staticTargets struct {
	mu  sync.Mutex
	ids []string
}

func (s *staticTargets) get() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.ids...)
}

func (s *staticTargets) set(ids ...string) {
	s.mu.Lock()
	s.ids = ids
	s.mu.Unlock()
}

type harness struct {
	ctrl    *Controller
	fetcher *fakeFetcher
	rec     *applyRecorder
	targets *staticTargets
	hidden  *atomic.Bool
	clock   *clock.Mock
}

func newHarness(t *testing.T, ids ...string) *harness {
	t.Helper()

	h := &harness{
		fetcher: newFakeFetcher(),
		rec:     &applyRecorder{},
		targets: &staticTargets{ids: ids},
		hidden:  &atomic.Bool{},
		clock:   clock.NewMock(),
	}

	ctrl, err := NewController(ControllerConfig{
		Targets: h.targets.get,
		Fetcher: h.fetcher,
		Apply:   h.rec.apply,
		Hidden:  h.hidden.Load,
		Clock:   h.clock,
		Logger:  testLogger(),
	})
	if err != nil {
		t.Fatalf("NewController() error = %v", err)
	}
	h.ctrl = ctrl
	t.Cleanup(ctrl.Dispose)
	return h
}

// waitForSnapshot polls until the controller reaches want.
func (h *harness) waitForSnapshot(t *testing.T, want Snapshot) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	var got Snapshot
	for time.Now().Before(deadline) {
		got = h.ctrl.Snapshot()
		if got == want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("Snapshot() = %+v, want %+v", got, want)
}

func success(s Statuses) Result {
	return Result{Statuses: s, StatusCode: 200}
}

func transientFailure() Result {
	return Result{Err: &FetchError{Kind: KindTransient, Err: errors.New("connection refused")}}
}

func TestNewController_RequiresCollaborators(t *testing.T) {
	fetcher := newFakeFetcher()
	targets := func() []string { return nil }
	apply := func(Statuses) {}

	tests := []struct {
		name string
		cfg  ControllerConfig
	}{
		{"missing targets", ControllerConfig{Fetcher: fetcher, Apply: apply}},
		{"missing fetcher", ControllerConfig{Targets: targets, Apply: apply}},
		{"missing apply", ControllerConfig{Targets: targets, Fetcher: fetcher}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewController(tt.cfg); err == nil {
				t.Error("NewController() expected error, got nil")
			}
		})
	}
}

func TestController_StartPollsImmediately(t *testing.T) {
	h := newHarness(t, "A", "B")

	h.ctrl.Start()

	call := h.fetcher.next(t)
	if !reflect.DeepEqual(call.ids, []string{"A", "B"}) {
		t.Errorf("ids = %v, want [A B]", call.ids)
	}
	h.waitForSnapshot(t, Snapshot{Phase: PhasePolling})
}

func TestController_StartTwiceIsNoop(t *testing.T) {
	h := newHarness(t, "A")

	h.ctrl.Start()
	h.fetcher.next(t)

	h.ctrl.Start()
	h.fetcher.expectNone(t)

	if got := h.ctrl.Snapshot().Phase; got != PhasePolling {
		t.Errorf("Phase = %v, want %v", got, PhasePolling)
	}
}

func TestController_SuccessAppliesAndSchedulesBaseInterval(t *testing.T) {
	h := newHarness(t, "A", "B")

	h.ctrl.Start()
	h.fetcher.next(t).reply <- success(Statuses{"A": {Online: true}})

	h.waitForSnapshot(t, Snapshot{Phase: PhaseScheduled, NextDelay: 10 * time.Second})

	applied := h.rec.calls()
	if len(applied) != 1 {
		t.Fatalf("apply calls = %d, want 1", len(applied))
	}
	if _, ok := applied[0]["B"]; ok {
		t.Error("B should be absent from the applied result")
	}
	if !applied[0]["A"].Online {
		t.Error("A should be applied as online")
	}

	// next cycle fires after the base interval
	h.clock.Add(10 * time.Second)
	h.fetcher.next(t)
}

func TestController_FailureBackoffProgression(t *testing.T) {
	h := newHarness(t, "A")

	h.ctrl.Start()

	wantDelays := []time.Duration{20 * time.Second, 40 * time.Second, 60 * time.Second, 60 * time.Second}
	for i, want := range wantDelays {
		h.fetcher.next(t).reply <- transientFailure()
		h.waitForSnapshot(t, Snapshot{Phase: PhaseScheduled, Failures: i + 1, NextDelay: want})
		h.clock.Add(want)
	}

	if got := len(h.rec.calls()); got != 0 {
		t.Errorf("apply calls = %d, want 0", got)
	}
}

func TestController_SuccessResetsFailures(t *testing.T) {
	h := newHarness(t, "A")

	h.ctrl.Start()
	h.fetcher.next(t).reply <- transientFailure()
	h.waitForSnapshot(t, Snapshot{Phase: PhaseScheduled, Failures: 1, NextDelay: 20 * time.Second})

	h.clock.Add(20 * time.Second)
	h.fetcher.next(t).reply <- Result{Err: &FetchError{Kind: KindProtocol, Err: errors.New("ok is not true")}}
	h.waitForSnapshot(t, Snapshot{Phase: PhaseScheduled, Failures: 2, NextDelay: 40 * time.Second})

	h.clock.Add(40 * time.Second)
	h.fetcher.next(t).reply <- success(Statuses{})
	h.waitForSnapshot(t, Snapshot{Phase: PhaseScheduled, Failures: 0, NextDelay: 10 * time.Second})
}

func TestController_EmptyTargetsSkipsRequest(t *testing.T) {
	h := newHarness(t)

	h.ctrl.Start()

	h.fetcher.expectNone(t)
	h.waitForSnapshot(t, Snapshot{Phase: PhaseScheduled, NextDelay: 10 * time.Second})

	// targets rendered later are picked up by the next cycle
	h.targets.set("C")
	h.clock.Add(10 * time.Second)
	call := h.fetcher.next(t)
	if !reflect.DeepEqual(call.ids, []string{"C"}) {
		t.Errorf("ids = %v, want [C]", call.ids)
	}
}

func TestController_EmptyTargetsResetsFailures(t *testing.T) {
	h := newHarness(t, "A")

	h.ctrl.Start()
	h.fetcher.next(t).reply <- transientFailure()
	h.waitForSnapshot(t, Snapshot{Phase: PhaseScheduled, Failures: 1, NextDelay: 20 * time.Second})

	h.targets.set()
	h.clock.Add(20 * time.Second)
	h.waitForSnapshot(t, Snapshot{Phase: PhaseScheduled, Failures: 0, NextDelay: 10 * time.Second})
}

func TestController_StopDuringFlightDiscardsResult(t *testing.T) {
	h := newHarness(t, "A")

	h.ctrl.Start()
	call := h.fetcher.next(t)

	h.ctrl.Stop()

	if call.ctx.Err() == nil {
		t.Error("in-flight request should be cancelled by Stop()")
	}
	call.reply <- success(Statuses{"A": {Online: true}})

	h.waitForSnapshot(t, Snapshot{Phase: PhaseStopped})
	h.fetcher.expectNone(t)
	if got := len(h.rec.calls()); got != 0 {
		t.Errorf("apply calls = %d, want 0", got)
	}
}

func TestController_StopResetsFailuresAndTimer(t *testing.T) {
	h := newHarness(t, "A")

	h.ctrl.Start()
	h.fetcher.next(t).reply <- transientFailure()
	h.waitForSnapshot(t, Snapshot{Phase: PhaseScheduled, Failures: 1, NextDelay: 20 * time.Second})

	h.ctrl.Stop()
	h.ctrl.Stop() // idempotent

	h.waitForSnapshot(t, Snapshot{Phase: PhaseStopped})

	// the disarmed timer must not fire a cycle
	h.clock.Add(time.Minute)
	h.fetcher.expectNone(t)
}

func TestController_RestartIgnoresStaleResponse(t *testing.T) {
	h := newHarness(t, "A", "B")

	h.ctrl.Start()
	first := h.fetcher.next(t)

	h.ctrl.Stop()
	h.ctrl.Start()
	second := h.fetcher.next(t)

	first.reply <- success(Statuses{"A": {Online: true}})
	second.reply <- success(Statuses{"B": {Online: false}})

	h.waitForSnapshot(t, Snapshot{Phase: PhaseScheduled, NextDelay: 10 * time.Second})

	applied := h.rec.calls()
	if len(applied) != 1 {
		t.Fatalf("apply calls = %d, want 1", len(applied))
	}
	if _, ok := applied[0]["B"]; !ok {
		t.Errorf("applied = %v, want the result of the second request", applied[0])
	}
}

func TestController_HiddenPageDefersNextCycle(t *testing.T) {
	h := newHarness(t, "A")

	h.ctrl.Start()
	h.fetcher.next(t).reply <- success(Statuses{})
	h.waitForSnapshot(t, Snapshot{Phase: PhaseScheduled, NextDelay: 10 * time.Second})

	// hidden without notification: the timer fires and finds the page hidden
	h.hidden.Store(true)
	h.clock.Add(10 * time.Second)
	h.waitForSnapshot(t, Snapshot{Phase: PhasePaused})
	h.fetcher.expectNone(t)

	// no timer is armed while paused
	h.clock.Add(time.Hour)
	h.fetcher.expectNone(t)

	h.hidden.Store(false)
	h.ctrl.VisibilityChanged()
	h.fetcher.next(t)
}

func TestController_HiddenAbortIsNotAFailure(t *testing.T) {
	h := newHarness(t, "A")

	h.ctrl.Start()
	call := h.fetcher.next(t)

	h.hidden.Store(true)
	h.ctrl.VisibilityChanged()

	if call.ctx.Err() == nil {
		t.Error("in-flight request should be cancelled when the page is hidden")
	}
	h.waitForSnapshot(t, Snapshot{Phase: PhasePaused, Failures: 0})
	if got := len(h.rec.calls()); got != 0 {
		t.Errorf("apply calls = %d, want 0", got)
	}
}

func TestController_StartWhileHiddenPauses(t *testing.T) {
	h := newHarness(t, "A")
	h.hidden.Store(true)

	h.ctrl.Start()

	h.waitForSnapshot(t, Snapshot{Phase: PhasePaused})
	h.fetcher.expectNone(t)

	// restart on panel re-activation while still hidden stays paused
	h.ctrl.Stop()
	h.ctrl.Start()
	h.waitForSnapshot(t, Snapshot{Phase: PhasePaused})
	h.fetcher.expectNone(t)
}

func TestController_VisibilityChangedWhenStoppedIsNoop(t *testing.T) {
	h := newHarness(t, "A")

	h.ctrl.VisibilityChanged()

	h.fetcher.expectNone(t)
	h.waitForSnapshot(t, Snapshot{Phase: PhaseStopped})
}

func TestController_AtMostOneOutstandingRequest(t *testing.T) {
	h := newHarness(t, "A")

	for i := 0; i < 20; i++ {
		h.ctrl.Start()
		call := h.fetcher.next(t)

		switch i % 3 {
		case 0:
			h.ctrl.Stop()
		case 1:
			h.hidden.Store(true)
			h.ctrl.VisibilityChanged()
			h.hidden.Store(false)
			h.ctrl.VisibilityChanged()
			h.fetcher.next(t)
			h.ctrl.Stop()
		case 2:
			h.ctrl.Start() // no-op while running
			call.reply <- transientFailure()
			h.waitForSnapshot(t, Snapshot{Phase: PhaseScheduled, Failures: 1, NextDelay: 20 * time.Second})
			h.ctrl.Stop()
		}
	}

	if got := h.fetcher.outstandingHighWater(); got != 1 {
		t.Errorf("max outstanding requests = %d, want 1", got)
	}
}

func TestController_ApplyPanicDoesNotStopPolling(t *testing.T) {
	fetcher := newFakeFetcher()
	mock := clock.NewMock()

	ctrl, err := NewController(ControllerConfig{
		Targets: func() []string { return []string{"A"} },
		Fetcher: fetcher,
		Apply:   func(Statuses) { panic("render failed") },
		Clock:   mock,
		Logger:  testLogger(),
	})
	if err != nil {
		t.Fatalf("NewController() error = %v", err)
	}
	defer ctrl.Dispose()

	ctrl.Start()
	fetcher.next(t).reply <- success(Statuses{"A": {Online: true}})

	h := &harness{ctrl: ctrl}
	h.waitForSnapshot(t, Snapshot{Phase: PhaseScheduled, NextDelay: 10 * time.Second})

	mock.Add(10 * time.Second)
	fetcher.next(t)
}

func TestController_DisposeReleasesEverything(t *testing.T) {
	h := newHarness(t, "A")

	h.ctrl.Start()
	call := h.fetcher.next(t)

	done := make(chan struct{})
	go func() {
		h.ctrl.Dispose()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Dispose() did not return")
	}

	if call.ctx.Err() == nil {
		t.Error("in-flight request should be cancelled by Dispose()")
	}

	// every method is a no-op after Dispose
	h.ctrl.Start()
	h.ctrl.VisibilityChanged()
	h.ctrl.Stop()
	h.ctrl.Dispose()
	h.fetcher.expectNone(t)

	if got := h.ctrl.Snapshot().Phase; got != PhaseStopped {
		t.Errorf("Phase = %v, want %v", got, PhaseStopped)
	}
}

func TestController_ConcurrentCommands(t *testing.T) {
	fetcher := newFakeFetcher()
	// answer every request immediately
	go func() {
		for call := range fetcher.calls {
			call.reply <- success(Statuses{})
		}
	}()

	ctrl, err := NewController(ControllerConfig{
		Targets: func() []string { return []string{"A"} },
		Fetcher: fetcher,
		Apply:   func(Statuses) {},
		Clock:   clock.NewMock(),
		Logger:  testLogger(),
	})
	if err != nil {
		t.Fatalf("NewController() error = %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(3)
		go func() { defer wg.Done(); ctrl.Start() }()
		go func() { defer wg.Done(); ctrl.Stop() }()
		go func() { defer wg.Done(); _ = ctrl.Snapshot() }()
	}
	wg.Wait()

	ctrl.Dispose()
	close(fetcher.calls)

	if got := fetcher.outstandingHighWater(); got > 1 {
		t.Errorf("max outstanding requests = %d, want at most 1", got)
	}
}
