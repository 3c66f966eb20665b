package notify

import (
	"fmt"
	"time"
)

// Level classifies a log entry pushed to the UI.
type Level string

const (
	Info    Level = "info"
	Success Level = "success"
	Warn    Level = "warn"
	Error   Level = "error"
)

// StatusKind identifies a lifecycle event pushed to the UI.
type StatusKind string

const (
	StatusConnected          StatusKind = "connected"
	StatusDisconnected       StatusKind = "disconnected"
	StatusReconnecting       StatusKind = "reconnecting"
	StatusReconnectionFailed StatusKind = "reconnection_failed"
	StatusActionTriggered    StatusKind = "action_triggered"
)

// Status is one lifecycle event. Transport names the supervised connection
// ("control_surface", "chat", "eventsub"); Action is set for action_triggered.
type Status struct {
	Kind        StatusKind    `json:"kind"`
	Transport   string        `json:"transport,omitempty"`
	Attempt     int           `json:"attempt,omitempty"`
	MaxAttempts int           `json:"max_attempts,omitempty"`
	Delay       time.Duration `json:"delay,omitempty"`
	Err         string        `json:"error,omitempty"`
	Action      string        `json:"action,omitempty"`
}

// Notifier is the one-way push channel toward the UI and the log. All engine
// and transport failures surface here; none of them crash the process.
type Notifier interface {
	Log(level Level, message string)
	Status(s Status)
}

// Logf formats and pushes one entry.
func Logf(n Notifier, level Level, format string, args ...any) {
	n.Log(level, fmt.Sprintf(format, args...))
}

// Fanout pushes every entry to all sinks.
type Fanout []Notifier

func (f Fanout) Log(level Level, message string) {
	for _, n := range f {
		n.Log(level, message)
	}
}

func (f Fanout) Status(s Status) {
	for _, n := range f {
		n.Status(s)
	}
}

// Nop discards everything.
type Nop struct{}

func (Nop) Log(Level, string) {}
func (Nop) Status(Status)     {}
