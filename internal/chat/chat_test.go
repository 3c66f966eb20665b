package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"stagehand/internal/domain"
	"stagehand/internal/supervisor"
)

func TestParseCommandRequiresBangPrefix(t *testing.T) {
	cases := []struct {
		text    string
		want    string
		wantOK  bool
		wantArg []string
	}{
		{"!hype", "hype", true, nil},
		{"!so @friend now", "so", true, []string{"@friend", "now"}},
		{"  !clip  ", "clip", true, nil},
		{"hype", "", false, nil},
		{"hello everyone", "", false, nil},
		{"", "", false, nil},
		{"!", "", false, nil},
		{"!!hype", "!hype", true, nil},
	}
	for _, c := range cases {
		ev, ok := ParseCommand(Message{Username: "viewer", Text: c.text})
		if ok != c.wantOK {
			t.Fatalf("ParseCommand(%q) ok = %v, want %v", c.text, ok, c.wantOK)
		}
		if !ok {
			continue
		}
		if ev.Kind != domain.EventCommand || ev.Command.Command != c.want {
			t.Fatalf("ParseCommand(%q) = %+v, want command %q", c.text, ev.Command, c.want)
		}
		if len(ev.Command.Args) != len(c.wantArg) {
			t.Fatalf("ParseCommand(%q) args = %v, want %v", c.text, ev.Command.Args, c.wantArg)
		}
		for i := range c.wantArg {
			if ev.Command.Args[i] != c.wantArg[i] {
				t.Fatalf("ParseCommand(%q) args = %v, want %v", c.text, ev.Command.Args, c.wantArg)
			}
		}
	}
}

func TestParseCommandCarriesRoles(t *testing.T) {
	ev, ok := ParseCommand(Message{Username: "mod", Text: "!ban troll", IsModerator: true})
	if !ok {
		t.Fatalf("command not parsed")
	}
	if !ev.Command.IsModerator || ev.Command.IsBroadcaster {
		t.Fatalf("roles = %+v", ev.Command)
	}
	if ev.Command.Username != "mod" {
		t.Fatalf("username = %q", ev.Command.Username)
	}
}

type fakeClient struct {
	mu       sync.Mutex
	msgs     chan Message
	connErr  error
	ids      []Identity
	disconns int
}

func (c *fakeClient) Connect(ctx context.Context, id Identity) (<-chan Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connErr != nil {
		return nil, c.connErr
	}
	c.ids = append(c.ids, id)
	c.msgs = make(chan Message, 16)
	return c.msgs, nil
}

func (c *fakeClient) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconns++
	if c.msgs != nil {
		close(c.msgs)
		c.msgs = nil
	}
	return nil
}

func (c *fakeClient) SendMessage(ctx context.Context, text string) error {
	return nil
}

type recordingDispatcher struct {
	mu     sync.Mutex
	events []domain.Event
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, ev domain.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, ev)
}

func (d *recordingDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.events)
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

func TestRelayDispatchesOnlyCommands(t *testing.T) {
	client := &fakeClient{}
	disp := &recordingDispatcher{}
	r := &Relay{Client: client, Engine: disp, Logger: zerolog.Nop()}

	id := Identity{Username: "bot", Token: "tok", Channel: "#stage"}
	if err := r.Connect(context.Background(), id); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if client.ids[0].Channel != "#stage" {
		t.Fatalf("joined %q", client.ids[0].Channel)
	}

	client.msgs <- Message{Username: "a", Text: "just chatting"}
	client.msgs <- Message{Username: "b", Text: "!hype"}
	client.msgs <- Message{Username: "c", Text: "gg wp"}
	waitFor(t, "command dispatch", func() bool { return disp.count() == 1 })

	if disp.events[0].Command.Command != "hype" {
		t.Fatalf("dispatched %+v", disp.events[0])
	}
}

func TestRelaySignalsClosedWhenStreamEnds(t *testing.T) {
	client := &fakeClient{}
	signals := make(chan supervisor.Signal, 4)
	r := &Relay{Client: client, Engine: &recordingDispatcher{}, Logger: zerolog.Nop(), Signals: signals}

	if err := r.Connect(context.Background(), Identity{Channel: "#stage"}); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	<-signals // Opened

	client.mu.Lock()
	close(client.msgs)
	client.msgs = nil
	client.mu.Unlock()

	select {
	case sig := <-signals:
		if sig.Kind != supervisor.Closed {
			t.Fatalf("signal kind = %v, want Closed", sig.Kind)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no Closed signal after stream end")
	}
	waitFor(t, "relay disconnected", func() bool { return !r.Connected() })
}

func TestRelayDisconnectSuppressesClosedSignal(t *testing.T) {
	client := &fakeClient{}
	signals := make(chan supervisor.Signal, 4)
	r := &Relay{Client: client, Engine: &recordingDispatcher{}, Logger: zerolog.Nop(), Signals: signals}

	if err := r.Connect(context.Background(), Identity{Channel: "#stage"}); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	<-signals // Opened

	if err := r.Disconnect(); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	select {
	case sig := <-signals:
		t.Fatalf("unexpected signal %v after explicit disconnect", sig.Kind)
	case <-time.After(50 * time.Millisecond):
	}
	if r.Connected() {
		t.Fatalf("relay still connected after disconnect")
	}
}

func TestRelayConnectFailure(t *testing.T) {
	client := &fakeClient{connErr: errors.New("bad token")}
	r := &Relay{Client: client, Engine: &recordingDispatcher{}, Logger: zerolog.Nop()}

	err := r.Connect(context.Background(), Identity{Channel: "#stage"})
	if err == nil {
		t.Fatalf("Connect succeeded with failing client")
	}
	if r.Connected() {
		t.Fatalf("relay reports connected after failure")
	}
}

func TestRelayRejectsWrongConfigType(t *testing.T) {
	r := &Relay{Client: &fakeClient{}, Engine: &recordingDispatcher{}, Logger: zerolog.Nop()}
	if err := r.Connect(context.Background(), "not-an-identity"); err == nil {
		t.Fatalf("Connect accepted a string config")
	}
}
