package eventsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"stagehand/internal/domain"
	"stagehand/internal/notify"
	"stagehand/internal/supervisor"
)

// Dispatcher pushes a normalized event to the action engine.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev domain.Event)
}

// Config is the per-connection setup for a Manager.
type Config struct {
	URL           string
	BroadcasterID string
	// EventTypes lists subscription types to create on each session. Empty
	// defaults to channel-point redemptions.
	EventTypes []string
}

// Manager owns one push-subscription session: it dials the socket, creates
// server-side subscriptions against the session id, translates notifications
// into domain events, and follows session_reconnect handoffs transparently.
// It implements supervisor.Transport; reconnect-after-loss policy lives in
// the supervisor, session handoff lives here.
type Manager struct {
	API      APIClient
	Dialer   Dialer
	Engine   Dispatcher
	Tokens   *TokenStore
	Notifier notify.Notifier
	Logger   zerolog.Logger

	// Signals receives lifecycle transitions for the supervisor. Optional.
	Signals chan<- supervisor.Signal

	mu            sync.Mutex
	socket        Socket
	sessionID     string
	subs          map[string]string
	gen           int
	cfg           Config
	lastKeepalive time.Time
}

var _ supervisor.Transport = (*Manager)(nil)

// Connect dials the socket, waits for session_welcome, creates the configured
// subscriptions bound to the new session id, then hands the socket to a
// background read loop. It blocks until the session is usable or failed.
func (m *Manager) Connect(ctx context.Context, cfg any) error {
	c, ok := cfg.(Config)
	if !ok {
		return fmt.Errorf("eventsub: config is %T, want eventsub.Config", cfg)
	}
	if c.URL == "" {
		return fmt.Errorf("eventsub: connection URL is empty")
	}

	m.mu.Lock()
	m.cfg = c
	m.mu.Unlock()

	sock, gen, err := m.openSession(ctx, c.URL)
	if err != nil {
		return err
	}
	go m.readLoop(ctx, sock, gen)
	m.signal(supervisor.Signal{Kind: supervisor.Opened})
	return nil
}

// Disconnect deletes the session's subscriptions best-effort, then closes the
// socket and forgets all session state.
func (m *Manager) Disconnect() error {
	m.mu.Lock()
	sock := m.socket
	subs := m.subs
	m.socket = nil
	m.sessionID = ""
	m.subs = nil
	m.gen++
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for id, typ := range subs {
		if err := m.API.DeleteSubscription(ctx, id); err != nil {
			m.Logger.Warn().Err(err).Str("subscription", id).Str("type", typ).Msg("subscription delete failed")
		}
	}
	if sock != nil {
		return sock.Close()
	}
	return nil
}

// SessionID returns the current session id, empty when disconnected.
func (m *Manager) SessionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessionID
}

// LastKeepalive returns when the session last showed liveness: the welcome,
// a keepalive, or a notification, whichever came latest.
func (m *Manager) LastKeepalive() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastKeepalive
}

// openSession dials url, consumes the welcome frame, and subscribes. The
// returned generation ties the socket to its read loop so a superseded loop
// cannot clobber newer state.
func (m *Manager) openSession(ctx context.Context, url string) (Socket, int, error) {
	sock, err := m.Dialer.Dial(ctx, url)
	if err != nil {
		return nil, 0, fmt.Errorf("eventsub: dial: %w", err)
	}

	f, err := sock.ReadFrame()
	if err != nil {
		sock.Close()
		return nil, 0, fmt.Errorf("eventsub: waiting for welcome: %w", err)
	}
	if f.Metadata.MessageType != frameWelcome {
		sock.Close()
		return nil, 0, fmt.Errorf("eventsub: expected %s, got %s", frameWelcome, f.Metadata.MessageType)
	}
	var welcome welcomePayload
	if err := json.Unmarshal(f.Payload, &welcome); err != nil {
		sock.Close()
		return nil, 0, fmt.Errorf("eventsub: decode welcome: %w", err)
	}

	subs, err := m.subscribe(ctx, welcome.Session.ID)
	if err != nil {
		sock.Close()
		return nil, 0, err
	}

	m.mu.Lock()
	old := m.socket
	m.socket = sock
	m.sessionID = welcome.Session.ID
	m.subs = subs
	m.gen++
	gen := m.gen
	m.lastKeepalive = time.Now()
	m.mu.Unlock()

	if old != nil {
		old.Close()
	}

	m.Logger.Info().Str("session", welcome.Session.ID).Int("subscriptions", len(subs)).Msg("eventsub session established")
	return sock, gen, nil
}

func (m *Manager) subscribe(ctx context.Context, sessionID string) (map[string]string, error) {
	m.mu.Lock()
	cfg := m.cfg
	m.mu.Unlock()

	types := cfg.EventTypes
	if len(types) == 0 {
		types = []string{TypeRedemption}
	}
	subs := make(map[string]string, len(types))
	for _, typ := range types {
		id, err := m.API.CreateSubscription(ctx, SubscriptionRequest{
			Type:          typ,
			BroadcasterID: cfg.BroadcasterID,
			SessionID:     sessionID,
		})
		if err != nil {
			var authErr AuthError
			if errors.As(err, &authErr) {
				if m.Tokens != nil {
					m.Tokens.Clear()
				}
				notify.Logf(m.Notifier, notify.Error, "eventsub authorization rejected, sign in again: %v", err)
			}
			return nil, fmt.Errorf("eventsub: subscribe %s: %w", typ, err)
		}
		subs[id] = typ
	}
	return subs, nil
}

// readLoop consumes frames until the socket dies or the loop is superseded by
// a session handoff.
func (m *Manager) readLoop(ctx context.Context, sock Socket, gen int) {
	for {
		f, err := sock.ReadFrame()
		if err != nil {
			m.mu.Lock()
			stale := gen != m.gen
			if !stale {
				m.socket = nil
				m.sessionID = ""
				m.subs = nil
			}
			m.mu.Unlock()
			if stale || ctx.Err() != nil {
				return
			}
			sock.Close()
			m.signal(supervisor.Signal{Kind: supervisor.Closed, Err: err})
			return
		}

		switch f.Metadata.MessageType {
		case frameKeepalive:
			m.mu.Lock()
			m.lastKeepalive = time.Now()
			m.mu.Unlock()

		case frameNotification:
			m.mu.Lock()
			m.lastKeepalive = time.Now()
			m.mu.Unlock()
			m.handleNotification(ctx, f.Payload)

		case frameReconnect:
			var p reconnectPayload
			if err := json.Unmarshal(f.Payload, &p); err != nil {
				m.Logger.Warn().Err(err).Msg("decode reconnect frame")
				continue
			}
			m.Logger.Info().Str("url", p.Session.ReconnectURL).Msg("eventsub session handoff")
			next, nextGen, err := m.openSession(ctx, p.Session.ReconnectURL)
			if err != nil {
				notify.Logf(m.Notifier, notify.Warn, "eventsub handoff failed: %v", err)
				sock.Close()
				m.signal(supervisor.Signal{Kind: supervisor.Closed, Err: err})
				return
			}
			go m.readLoop(ctx, next, nextGen)
			return

		default:
			m.Logger.Debug().Str("type", f.Metadata.MessageType).Msg("unhandled eventsub frame")
		}
	}
}

func (m *Manager) handleNotification(ctx context.Context, payload json.RawMessage) {
	var p notificationPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		m.Logger.Warn().Err(err).Msg("decode notification frame")
		return
	}

	// Only subscriptions this session created may deliver. The tracked type
	// wins over the frame's self-declared one.
	m.mu.Lock()
	typ, tracked := m.subs[p.Subscription.ID]
	m.mu.Unlock()
	if !tracked {
		m.Logger.Debug().Str("subscription", p.Subscription.ID).Str("type", p.Subscription.Type).Msg("notification for untracked subscription, dropping")
		return
	}

	var ev domain.Event
	switch typ {
	case TypeRedemption:
		var r redemptionEvent
		if err := json.Unmarshal(p.Event, &r); err != nil {
			m.Logger.Warn().Err(err).Msg("decode redemption event")
			return
		}
		ev = domain.Event{
			Kind: domain.EventChannelPoints,
			Redemption: &domain.RedemptionEvent{
				RewardID:    r.Reward.ID,
				RewardTitle: r.Reward.Title,
				Username:    r.UserName,
				Input:       r.UserInput,
			},
		}
	case TypeCheer:
		var c cheerEvent
		if err := json.Unmarshal(p.Event, &c); err != nil {
			m.Logger.Warn().Err(err).Msg("decode cheer event")
			return
		}
		ev = domain.Event{
			Kind: domain.EventCheer,
			Cheer: &domain.CheerEvent{
				Username:  c.UserName,
				Bits:      c.Bits,
				Anonymous: c.IsAnonymous,
				Message:   c.Message,
			},
		}
	case TypeSubscribe:
		var s subscribeEvent
		if err := json.Unmarshal(p.Event, &s); err != nil {
			m.Logger.Warn().Err(err).Msg("decode subscribe event")
			return
		}
		ev = domain.Event{
			Kind: domain.EventSubscriber,
			Subscription: &domain.SubscriptionEvent{
				Username: s.UserName,
				Tier:     s.Tier,
				Months:   s.CumulativeMonths,
				IsGift:   s.IsGift,
				Gifter:   s.GifterName,
			},
		}
	default:
		m.Logger.Debug().Str("type", typ).Msg("notification for unhandled subscription type")
		return
	}

	m.Engine.Dispatch(ctx, ev)
}

func (m *Manager) signal(sig supervisor.Signal) {
	if m.Signals == nil {
		return
	}
	select {
	case m.Signals <- sig:
	default:
		m.Logger.Warn().Msg("supervisor signal channel full, dropping")
	}
}
