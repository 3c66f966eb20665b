package chat

import (
	"context"
	"strings"

	"stagehand/internal/domain"
)

// Identity is what the chat client authenticates and joins with.
type Identity struct {
	Username string
	Token    string
	Channel  string
}

// Message is one inbound chat line with the sender's roles already resolved
// by the client. The wire protocol stays behind the Client interface.
type Message struct {
	Username      string
	Text          string
	IsModerator   bool
	IsBroadcaster bool
}

// Client is the chat connection collaborator. Connect blocks until the
// channel is joined and returns the inbound message stream; the stream closes
// when the connection drops.
type Client interface {
	Connect(ctx context.Context, id Identity) (<-chan Message, error)
	Disconnect() error
	SendMessage(ctx context.Context, text string) error
}

// ParseCommand extracts a command event from a chat line. Only lines whose
// first token starts with "!" are commands; everything else is plain chat and
// is ignored.
func ParseCommand(msg Message) (domain.Event, bool) {
	fields := strings.Fields(msg.Text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "!") {
		return domain.Event{}, false
	}
	cmd := domain.NormalizeCommand(fields[0])
	if cmd == "" {
		return domain.Event{}, false
	}
	return domain.Event{
		Kind: domain.EventCommand,
		Command: &domain.CommandEvent{
			Command:       cmd,
			Args:          fields[1:],
			Username:      msg.Username,
			IsModerator:   msg.IsModerator,
			IsBroadcaster: msg.IsBroadcaster,
		},
	}, true
}
