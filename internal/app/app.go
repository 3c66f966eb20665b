package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"stagehand/internal/chat"
	"stagehand/internal/config"
	"stagehand/internal/db"
	"stagehand/internal/engine"
	"stagehand/internal/events"
	"stagehand/internal/eventsub"
	"stagehand/internal/midi"
	"stagehand/internal/migrate"
	"stagehand/internal/notify"
	"stagehand/internal/repo"
	"stagehand/internal/server"
	"stagehand/internal/store"
	"stagehand/internal/supervisor"
)

// Options wires the external collaborators into the app. Nil collaborators
// stay offline: steps needing them fail with a connection error, and their
// transports never connect.
type Options struct {
	Workspace string
	Settings  *config.Settings
	Logger    zerolog.Logger

	Surface    engine.ControlSurface
	SurfaceTr  supervisor.Transport
	Sound      engine.SoundPlayer
	ChatClient chat.Client
	Controller midi.Controller
}

// App is the assembled process: store, engine, transports under supervision,
// timer scheduler, and the local API.
type App struct {
	DB       *sql.DB
	Store    *store.Store
	Engine   *engine.Engine
	Notifier notify.Notifier
	Hub      *server.Hub
	Handler  http.Handler
	Tokens   *eventsub.TokenStore

	SurfaceSup *supervisor.Supervisor
	ChatSup    *supervisor.Supervisor
	EventSup   *supervisor.Supervisor
	Router     *midi.Router

	settings *config.Settings
	logger   zerolog.Logger
	chatID   chat.Identity
}

// New opens the workspace database and assembles every component. Nothing is
// connected or listening yet; Run does that.
func New(ctx context.Context, opts Options) (*App, error) {
	if opts.Settings == nil {
		return nil, fmt.Errorf("app: settings are required")
	}
	if _, err := db.EnsureWorkspace(opts.Workspace); err != nil {
		return nil, err
	}
	conn, err := db.Open(db.Config{Workspace: opts.Workspace})
	if err != nil {
		return nil, err
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, err
	}
	st, err := store.Open(ctx, repo.Repo{DB: conn})
	if err != nil {
		conn.Close()
		return nil, err
	}

	hub := server.NewHub(opts.Logger)
	notifier := notify.Fanout{
		notify.ZerologSink{Logger: opts.Logger},
		notify.EventLogSink{Writer: events.Writer{DB: conn}, Logger: opts.Logger},
		hub,
	}

	eng := &engine.Engine{
		Store: st,
		Executor: engine.Executor{
			Surface:  opts.Surface,
			Chat:     opts.ChatClient,
			Sound:    opts.Sound,
			Notifier: notifier,
		},
		Notifier: notifier,
		Logger:   opts.Logger,
	}

	a := &App{
		DB:       conn,
		Store:    st,
		Engine:   eng,
		Notifier: notifier,
		Hub:      hub,
		Tokens:   &eventsub.TokenStore{},
		settings: opts.Settings,
		logger:   opts.Logger,
	}

	if opts.SurfaceTr != nil {
		a.SurfaceSup = supervisor.New("control_surface", opts.SurfaceTr, notifier, opts.Logger)
	}

	if opts.ChatClient != nil {
		relay := &chat.Relay{Client: opts.ChatClient, Engine: eng, Logger: opts.Logger}
		a.ChatSup = supervisor.New("chat", relay, notifier, opts.Logger)
		relay.Signals = a.ChatSup.Signals()
		a.chatID = chat.Identity{
			Username: opts.Settings.Chat.Username,
			Token:    opts.Settings.Chat.Token,
			Channel:  opts.Settings.Chat.Channel,
		}
	}

	manager := &eventsub.Manager{
		API: &eventsub.HTTPAPIClient{
			BaseURL:  opts.Settings.EventSub.APIURL,
			ClientID: opts.Settings.EventSub.ClientID,
			Tokens:   a.Tokens,
		},
		Dialer:   eventsub.WSDialer{},
		Engine:   eng,
		Tokens:   a.Tokens,
		Notifier: notifier,
		Logger:   opts.Logger,
	}
	a.EventSup = supervisor.New("eventsub", manager, notifier, opts.Logger)
	manager.Signals = a.EventSup.Signals()

	if opts.Controller != nil {
		a.Router = &midi.Router{
			Controller: opts.Controller,
			Engine:     eng,
			Notifier:   notifier,
			Logger:     opts.Logger,
		}
	}

	a.Handler = server.New(server.Config{
		Store:  st,
		Tester: eng,
		Events: events.Reader{DB: conn},
		Status: a.statusReport,
		Hub:    hub,
		Auth:   server.AuthConfig{Secret: opts.Settings.Server.Secret},
	})

	return a, nil
}

func (a *App) statusReport() server.StatusReport {
	report := server.StatusReport{
		ControlSurface: supervisor.Disconnected,
		Chat:           supervisor.Disconnected,
		EventSub:       supervisor.Disconnected,
	}
	if a.SurfaceSup != nil {
		report.ControlSurface = a.SurfaceSup.State()
	}
	if a.ChatSup != nil {
		report.Chat = a.ChatSup.State()
	}
	if a.EventSup != nil {
		report.EventSub = a.EventSup.State()
	}
	if a.Router != nil {
		report.MIDIOpen = a.Router.IsOpen()
	}
	return report
}

// Run starts the supervisors, the timer scheduler, and the HTTP server, then
// blocks until the context is cancelled or the server fails.
func (a *App) Run(ctx context.Context) error {
	for _, sup := range []*supervisor.Supervisor{a.SurfaceSup, a.ChatSup, a.EventSup} {
		if sup != nil {
			go sup.Run(ctx)
		}
	}

	sched := &engine.Scheduler{Engine: a.Engine}
	go sched.Run(ctx, time.Second)

	a.connectConfigured(ctx)

	srv := &http.Server{Addr: a.settings.Server.Addr, Handler: a.Handler}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
	a.logger.Info().Str("addr", a.settings.Server.Addr).Msg("api listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// connectConfigured kicks off the transports whose settings are complete.
// Missing identities are reported, not fatal.
func (a *App) connectConfigured(ctx context.Context) {
	if a.ChatSup != nil {
		if a.chatID.Channel != "" && a.chatID.Token != "" {
			a.ChatSup.Connect(a.chatID)
		} else {
			notify.Logf(a.Notifier, notify.Info, "chat identity not configured, staying offline")
		}
	}

	es := a.settings.EventSub
	if es.BroadcasterID != "" && a.Tokens.Get().Valid(time.Now()) {
		a.EventSup.Connect(eventsub.Config{
			URL:           es.URL,
			BroadcasterID: es.BroadcasterID,
			EventTypes:    es.EventTypes,
		})
	} else {
		notify.Logf(a.Notifier, notify.Info, "event subscriptions not configured, staying offline")
	}

	if a.Router != nil && a.settings.MIDI.Device != "" {
		if err := a.Router.Open(ctx, a.settings.MIDI.Device); err != nil {
			notify.Logf(a.Notifier, notify.Warn, "midi device %s unavailable: %v", a.settings.MIDI.Device, err)
		}
	}
}

// Close releases the database. Transports are torn down by cancelling the Run
// context.
func (a *App) Close() error {
	return a.DB.Close()
}
