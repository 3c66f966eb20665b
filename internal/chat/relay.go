package chat

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"stagehand/internal/domain"
	"stagehand/internal/supervisor"
)

// Dispatcher pushes a normalized event to the action engine.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev domain.Event)
}

// Relay connects the chat client to the engine: it owns the Client lifecycle,
// parses inbound lines into command events, and reports connection loss to
// the supervisor. It implements supervisor.Transport.
type Relay struct {
	Client Client
	Engine Dispatcher
	Logger zerolog.Logger

	// Signals receives lifecycle transitions for the supervisor. Optional.
	Signals chan<- supervisor.Signal

	mu        sync.Mutex
	gen       int
	connected bool
}

var _ supervisor.Transport = (*Relay)(nil)

// Connect joins the channel and starts relaying messages. It blocks until
// the join succeeds or fails.
func (r *Relay) Connect(ctx context.Context, cfg any) error {
	id, ok := cfg.(Identity)
	if !ok {
		return fmt.Errorf("chat: config is %T, want chat.Identity", cfg)
	}
	if id.Channel == "" {
		return fmt.Errorf("chat: channel is empty")
	}

	msgs, err := r.Client.Connect(ctx, id)
	if err != nil {
		return fmt.Errorf("chat: connect: %w", err)
	}

	r.mu.Lock()
	r.gen++
	gen := r.gen
	r.connected = true
	r.mu.Unlock()

	go r.relay(ctx, msgs, gen)
	r.signal(supervisor.Signal{Kind: supervisor.Opened})
	return nil
}

// Disconnect leaves the channel and stops the relay loop.
func (r *Relay) Disconnect() error {
	r.mu.Lock()
	r.gen++
	r.connected = false
	r.mu.Unlock()
	return r.Client.Disconnect()
}

// Connected reports whether the relay currently holds a live connection.
func (r *Relay) Connected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connected
}

func (r *Relay) relay(ctx context.Context, msgs <-chan Message, gen int) {
	for msg := range msgs {
		ev, ok := ParseCommand(msg)
		if !ok {
			continue
		}
		r.Logger.Debug().Str("command", ev.Command.Command).Str("user", msg.Username).Msg("chat command")
		r.Engine.Dispatch(ctx, ev)
	}

	r.mu.Lock()
	stale := gen != r.gen
	if !stale {
		r.connected = false
	}
	r.mu.Unlock()
	if stale || ctx.Err() != nil {
		return
	}
	r.signal(supervisor.Signal{Kind: supervisor.Closed})
}

func (r *Relay) signal(sig supervisor.Signal) {
	if r.Signals == nil {
		return
	}
	select {
	case r.Signals <- sig:
	default:
		r.Logger.Warn().Msg("supervisor signal channel full, dropping")
	}
}
