package notify

import (
	"context"

	"github.com/rs/zerolog"

	"stagehand/internal/events"
)

// ZerologSink writes entries to the process log.
type ZerologSink struct {
	Logger zerolog.Logger
}

func (z ZerologSink) Log(level Level, message string) {
	switch level {
	case Error:
		z.Logger.Error().Msg(message)
	case Warn:
		z.Logger.Warn().Msg(message)
	default:
		// success is an info-level outcome as far as the process log goes
		z.Logger.Info().Str("level", string(level)).Msg(message)
	}
}

func (z ZerologSink) Status(s Status) {
	ev := z.Logger.Info().Str("status", string(s.Kind))
	if s.Transport != "" {
		ev = ev.Str("transport", s.Transport)
	}
	if s.Kind == StatusReconnecting {
		ev = ev.Int("attempt", s.Attempt).Int("max_attempts", s.MaxAttempts).Dur("delay", s.Delay)
	}
	if s.Err != "" {
		ev = ev.Str("error", s.Err)
	}
	if s.Action != "" {
		ev = ev.Str("action", s.Action)
	}
	ev.Msg("status")
}

// EventLogSink mirrors entries into the persisted event log. Write failures
// are reported to the process log and otherwise swallowed; telemetry must
// never block or fail the engine.
type EventLogSink struct {
	Writer events.Writer
	Logger zerolog.Logger
}

func (e EventLogSink) Log(level Level, message string) {
	err := e.Writer.Append(context.Background(), "log", string(level), "engine", message, nil)
	if err != nil {
		e.Logger.Warn().Err(err).Msg("event log append failed")
	}
}

func (e EventLogSink) Status(s Status) {
	payload := events.Payload{}
	if s.Attempt > 0 {
		payload["attempt"] = s.Attempt
		payload["max_attempts"] = s.MaxAttempts
		payload["delay_ms"] = s.Delay.Milliseconds()
	}
	if s.Err != "" {
		payload["error"] = s.Err
	}
	if s.Action != "" {
		payload["action"] = s.Action
	}
	err := e.Writer.Append(context.Background(), string(s.Kind), string(Info), s.Transport, "", payload)
	if err != nil {
		e.Logger.Warn().Err(err).Msg("event log append failed")
	}
}
