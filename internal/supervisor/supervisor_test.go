package supervisor_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"stagehand/internal/notify"
	"stagehand/internal/supervisor"
)

type recorder struct {
	mu       sync.Mutex
	statuses []notify.Status
	logs     []string
}

func (r *recorder) Log(_ notify.Level, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, message)
}

func (r *recorder) Status(s notify.Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, s)
}

func (r *recorder) statusesOf(kind notify.StatusKind) []notify.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []notify.Status
	for _, s := range r.statuses {
		if s.Kind == kind {
			out = append(out, s)
		}
	}
	return out
}

type fakeTransport struct {
	mu          sync.Mutex
	connects    int
	disconnects int
	// failures is how many Connect calls fail before one succeeds; negative
	// means fail forever.
	failures int
}

func (f *fakeTransport) Connect(context.Context, any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	if f.failures < 0 {
		return errors.New("connection refused")
	}
	if f.failures > 0 {
		f.failures--
		return errors.New("connection refused")
	}
	return nil
}

func (f *fakeTransport) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects++
	return nil
}

func (f *fakeTransport) connectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects
}

type fakeClock struct {
	mu     sync.Mutex
	delays []time.Duration
	timers []chan time.Time
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan time.Time, 1)
	c.delays = append(c.delays, d)
	c.timers = append(c.timers, ch)
	return ch
}

func (c *fakeClock) fire(t *testing.T, i int) {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	if i >= len(c.timers) {
		t.Fatalf("no timer %d scheduled (have %d)", i, len(c.timers))
	}
	c.timers[i] <- time.Time{}
}

func (c *fakeClock) scheduled() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

func (c *fakeClock) delayList() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.delays...)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

type harness struct {
	sup   *supervisor.Supervisor
	trans *fakeTransport
	clock *fakeClock
	rec   *recorder
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	trans := &fakeTransport{}
	clock := &fakeClock{}
	rec := &recorder{}
	sup := supervisor.New("control_surface", trans, rec, zerolog.Nop())
	sup.After = clock.After
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go sup.Run(ctx)
	return &harness{sup: sup, trans: trans, clock: clock, rec: rec}
}

// connectAndOpen drives the supervisor to the connected state.
func (h *harness) connectAndOpen(t *testing.T) {
	t.Helper()
	h.sup.Connect(map[string]string{"host": "localhost"})
	waitFor(t, "initial connect", func() bool { return h.trans.connectCount() >= 1 })
	h.sup.Signals() <- supervisor.Signal{Kind: supervisor.Opened}
	waitFor(t, "connected state", func() bool { return h.sup.State() == supervisor.Connected })
}

func TestBackoffSequenceAndGiveUp(t *testing.T) {
	h := newHarness(t)
	h.trans.failures = -1 // every reconnect attempt fails
	h.connectAndOpen(t)
	base := h.trans.connectCount()

	h.sup.Signals() <- supervisor.Signal{Kind: supervisor.Closed}
	waitFor(t, "reconnecting state", func() bool { return h.sup.State() == supervisor.Reconnecting })

	want := []time.Duration{
		1000 * time.Millisecond, 2000 * time.Millisecond, 4000 * time.Millisecond,
		8000 * time.Millisecond, 16000 * time.Millisecond, 30000 * time.Millisecond,
		30000 * time.Millisecond, 30000 * time.Millisecond, 30000 * time.Millisecond,
		30000 * time.Millisecond,
	}
	for i := range want {
		waitFor(t, "timer scheduled", func() bool { return h.clock.scheduled() == i+1 })
		h.clock.fire(t, i)
		waitFor(t, "connect attempt", func() bool { return h.trans.connectCount() == base+i+1 })
	}

	waitFor(t, "give up", func() bool { return h.sup.State() == supervisor.Disconnected })
	delays := h.clock.delayList()
	if len(delays) != len(want) {
		t.Fatalf("expected %d scheduled attempts, got %d (%v)", len(want), len(delays), delays)
	}
	for i, d := range want {
		if delays[i] != d {
			t.Fatalf("attempt %d: delay %v, want %v", i+1, delays[i], d)
		}
	}

	failed := h.rec.statusesOf(notify.StatusReconnectionFailed)
	if len(failed) != 1 || failed[0].Attempt != 10 || failed[0].Err == "" {
		t.Fatalf("expected one terminal failure with attempt count, got %+v", failed)
	}
	reconnecting := h.rec.statusesOf(notify.StatusReconnecting)
	if len(reconnecting) != 10 {
		t.Fatalf("expected 10 reconnecting notifications, got %d", len(reconnecting))
	}
	if reconnecting[0].Attempt != 1 || reconnecting[0].MaxAttempts != 10 || reconnecting[0].Delay != time.Second {
		t.Fatalf("unexpected first reconnecting status %+v", reconnecting[0])
	}

	// attempt 11 never occurs
	time.Sleep(20 * time.Millisecond)
	if h.clock.scheduled() != 10 {
		t.Fatalf("an 11th attempt was scheduled")
	}
}

func TestReconnectSuccessResetsCounter(t *testing.T) {
	h := newHarness(t)
	h.connectAndOpen(t)
	h.trans.mu.Lock()
	h.trans.failures = 2
	h.trans.mu.Unlock()

	h.sup.Signals() <- supervisor.Signal{Kind: supervisor.Errored, Err: errors.New("socket reset")}
	waitFor(t, "first schedule", func() bool { return h.clock.scheduled() == 1 })
	h.clock.fire(t, 0) // fails
	waitFor(t, "second schedule", func() bool { return h.clock.scheduled() == 2 })
	h.clock.fire(t, 1) // fails
	waitFor(t, "third schedule", func() bool { return h.clock.scheduled() == 3 })
	h.clock.fire(t, 2) // succeeds
	waitFor(t, "reconnected", func() bool { return h.sup.State() == supervisor.Connected })

	// a later drop starts a fresh cycle at attempt 1 / 1s
	h.sup.Signals() <- supervisor.Signal{Kind: supervisor.Closed}
	waitFor(t, "fresh schedule", func() bool { return h.clock.scheduled() == 4 })
	delays := h.clock.delayList()
	if delays[3] != time.Second {
		t.Fatalf("counter not reset: fresh cycle delay %v", delays[3])
	}
}

func TestDisconnectCancelsPendingAttempt(t *testing.T) {
	h := newHarness(t)
	h.trans.failures = -1
	h.connectAndOpen(t)
	base := h.trans.connectCount()

	h.sup.Signals() <- supervisor.Signal{Kind: supervisor.Closed}
	waitFor(t, "pending timer", func() bool { return h.clock.scheduled() == 1 })

	h.sup.Disconnect()
	waitFor(t, "disconnected", func() bool { return h.sup.State() == supervisor.Disconnected })

	// firing the stale timer must not produce another connect attempt
	h.clock.fire(t, 0)
	time.Sleep(20 * time.Millisecond)
	if h.trans.connectCount() != base {
		t.Fatalf("connect attempted after explicit disconnect")
	}
}

func TestDisablingAutoReconnectCancelsImmediately(t *testing.T) {
	h := newHarness(t)
	h.trans.failures = -1
	h.connectAndOpen(t)
	base := h.trans.connectCount()

	h.sup.Signals() <- supervisor.Signal{Kind: supervisor.Closed}
	waitFor(t, "pending timer", func() bool { return h.clock.scheduled() == 1 })

	h.sup.SetAutoReconnect(false)
	waitFor(t, "disconnected", func() bool { return h.sup.State() == supervisor.Disconnected })

	h.clock.fire(t, 0)
	time.Sleep(20 * time.Millisecond)
	if h.trans.connectCount() != base {
		t.Fatalf("connect attempted after auto-reconnect disabled")
	}
}

func TestNoReconnectCycleWhenAutoReconnectDisabled(t *testing.T) {
	h := newHarness(t)
	h.connectAndOpen(t)
	h.sup.SetAutoReconnect(true) // toggling on is allowed at any time
	h.sup.SetAutoReconnect(false)

	h.sup.Signals() <- supervisor.Signal{Kind: supervisor.Closed}
	waitFor(t, "disconnected", func() bool { return h.sup.State() == supervisor.Disconnected })
	if h.clock.scheduled() != 0 {
		t.Fatalf("reconnect scheduled with auto-reconnect disabled")
	}
}

func TestExplicitConnectFailureReportsError(t *testing.T) {
	h := newHarness(t)
	h.trans.failures = 1

	h.sup.Connect(map[string]string{"host": "localhost"})
	waitFor(t, "failed connect", func() bool { return h.trans.connectCount() == 1 })
	waitFor(t, "disconnected", func() bool { return h.sup.State() == supervisor.Disconnected })
	// an explicit connect failure does not start the reconnect loop
	if h.clock.scheduled() != 0 {
		t.Fatalf("reconnect loop started from a failed explicit connect")
	}
}
