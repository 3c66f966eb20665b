package supervisor

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"stagehand/internal/notify"
)

// State of one supervised transport.
type State string

const (
	Disconnected State = "disconnected"
	Connecting   State = "connecting"
	Connected    State = "connected"
	Reconnecting State = "reconnecting"
)

const (
	initialDelay = 1000 * time.Millisecond
	maxDelay     = 30000 * time.Millisecond
	maxRetries   = 10
)

// Transport is any connection the supervisor can manage. Connect must block
// until the connection is established or failed. Lifecycle signals flow back
// through the channel handed to the supervisor, not through callbacks.
type Transport interface {
	Connect(ctx context.Context, cfg any) error
	Disconnect() error
}

// SignalKind is a transport lifecycle transition.
type SignalKind int

const (
	Opened SignalKind = iota
	Closed
	Errored
)

// Signal is one lifecycle transition reported by the transport.
type Signal struct {
	Kind SignalKind
	Err  error
}

type command struct {
	connect       bool
	cfg           any
	disconnect    bool
	setAuto       bool
	autoReconnect bool
}

// Supervisor wraps one transport with the auto-reconnect policy: exponential
// backoff starting at one second, doubling per attempt, capped at thirty
// seconds and ten attempts. Retries are internal; only exhaustion surfaces.
type Supervisor struct {
	Name     string
	Transport Transport
	Notifier notify.Notifier
	Logger   zerolog.Logger

	// After schedules the reconnect timer. Tests inject a controllable fake;
	// nil means time.After.
	After func(d time.Duration) <-chan time.Time

	cmds    chan command
	signals chan Signal

	mu    sync.Mutex
	state State
}

// New returns a supervisor for one transport. Auto-reconnect starts enabled.
func New(name string, t Transport, n notify.Notifier, logger zerolog.Logger) *Supervisor {
	return &Supervisor{
		Name:      name,
		Transport: t,
		Notifier:  n,
		Logger:    logger,
		cmds:      make(chan command),
		signals:   make(chan Signal, 16),
		state:     Disconnected,
	}
}

// Signals is the channel the transport reports lifecycle transitions on.
func (s *Supervisor) Signals() chan<- Signal {
	return s.signals
}

// State returns the current connection state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connect requests an explicit connection with the given config. The config
// is stored for future reconnection attempts.
func (s *Supervisor) Connect(cfg any) {
	s.cmds <- command{connect: true, cfg: cfg}
}

// Disconnect forces the disconnected state, cancelling any pending
// reconnection attempt and discarding retry state.
func (s *Supervisor) Disconnect() {
	s.cmds <- command{disconnect: true}
}

// SetAutoReconnect toggles the reconnect policy. Disabling it while
// reconnecting cancels the pending attempt immediately.
func (s *Supervisor) SetAutoReconnect(enabled bool) {
	s.cmds <- command{setAuto: true, autoReconnect: enabled}
}

// Run owns all supervisor state and consumes commands, transport signals, and
// the backoff timer until the context is cancelled.
func (s *Supervisor) Run(ctx context.Context) {
	var (
		storedCfg     any
		hasCfg        bool
		attempt       int
		autoReconnect = true
		timerCh       <-chan time.Time
	)

	cancelTimer := func() {
		timerCh = nil
		attempt = 0
	}

	scheduleAttempt := func(n int) {
		delay := backoffDelay(n)
		attempt = n
		timerCh = s.after(delay)
		s.Logger.Info().Str("transport", s.Name).Int("attempt", n).Dur("delay", delay).Msg("reconnect scheduled")
		s.Notifier.Status(notify.Status{
			Kind:        notify.StatusReconnecting,
			Transport:   s.Name,
			Attempt:     n,
			MaxAttempts: maxRetries,
			Delay:       delay,
		})
	}

	startReconnect := func(cause error) {
		if !autoReconnect || !hasCfg || s.State() == Reconnecting {
			s.setState(Disconnected)
			return
		}
		s.setState(Reconnecting)
		if cause != nil {
			notify.Logf(s.Notifier, notify.Warn, "%s connection lost: %v", s.Name, cause)
		} else {
			notify.Logf(s.Notifier, notify.Warn, "%s connection lost", s.Name)
		}
		scheduleAttempt(1)
	}

	for {
		select {
		case <-ctx.Done():
			return

		case cmd := <-s.cmds:
			switch {
			case cmd.connect:
				cancelTimer()
				storedCfg, hasCfg = cmd.cfg, true
				s.setState(Connecting)
				if err := s.Transport.Connect(ctx, storedCfg); err != nil {
					s.setState(Disconnected)
					notify.Logf(s.Notifier, notify.Error, "%s connection failed: %v", s.Name, err)
				}
			case cmd.disconnect:
				cancelTimer()
				if err := s.Transport.Disconnect(); err != nil {
					s.Logger.Warn().Err(err).Str("transport", s.Name).Msg("disconnect failed")
				}
				s.setState(Disconnected)
			case cmd.setAuto:
				autoReconnect = cmd.autoReconnect
				if !autoReconnect && s.State() == Reconnecting {
					cancelTimer()
					s.setState(Disconnected)
				}
			}

		case sig := <-s.signals:
			switch sig.Kind {
			case Opened:
				cancelTimer()
				s.setState(Connected)
			case Closed, Errored:
				if s.State() == Connected {
					startReconnect(sig.Err)
				}
			}

		case <-timerCh:
			timerCh = nil
			err := s.Transport.Connect(ctx, storedCfg)
			if err == nil {
				s.Logger.Info().Str("transport", s.Name).Int("attempt", attempt).Msg("reconnected")
				cancelTimer()
				s.setState(Connected)
				continue
			}
			s.Logger.Warn().Err(err).Str("transport", s.Name).Int("attempt", attempt).Msg("reconnect attempt failed")
			if attempt >= maxRetries {
				attempts := attempt
				cancelTimer()
				s.setState(Disconnected)
				s.Notifier.Status(notify.Status{
					Kind:      notify.StatusReconnectionFailed,
					Transport: s.Name,
					Attempt:   attempts,
					Err:       err.Error(),
				})
				notify.Logf(s.Notifier, notify.Error, "%s reconnection failed after %d attempts: %v", s.Name, attempts, err)
				continue
			}
			scheduleAttempt(attempt + 1)
		}
	}
}

func (s *Supervisor) setState(next State) {
	s.mu.Lock()
	prev := s.state
	s.state = next
	s.mu.Unlock()
	if prev == next {
		return
	}
	switch next {
	case Connected:
		s.Notifier.Status(notify.Status{Kind: notify.StatusConnected, Transport: s.Name})
	case Disconnected:
		s.Notifier.Status(notify.Status{Kind: notify.StatusDisconnected, Transport: s.Name})
	}
}

func (s *Supervisor) after(d time.Duration) <-chan time.Time {
	if s.After != nil {
		return s.After(d)
	}
	return time.After(d)
}

// backoffDelay is initialDelay doubled per attempt, capped at maxDelay:
// 1s, 2s, 4s, 8s, 16s, then 30s for every later attempt.
func backoffDelay(attempt int) time.Duration {
	d := initialDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= maxDelay {
			return maxDelay
		}
	}
	if d > maxDelay {
		return maxDelay
	}
	return d
}
