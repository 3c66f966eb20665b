package engine

import (
	"context"

	"github.com/rs/zerolog"

	"stagehand/internal/domain"
	"stagehand/internal/notify"
	"stagehand/internal/store"
)

// Engine matches incoming events against the stored actions and runs the
// matching ones through the executor, one action fully completing before the
// next begins.
type Engine struct {
	Store    *store.Store
	Executor Executor
	Notifier notify.Notifier
	Logger   zerolog.Logger
}

// Dispatch finds every action whose trigger set matches the event, applies
// the permission filter for command events, and executes the matches in store
// order. A failing action is logged and never blocks the remaining matches.
func (e *Engine) Dispatch(ctx context.Context, ev domain.Event) {
	for _, action := range e.Store.List() {
		if !matches(action, ev) {
			continue
		}
		if ev.Kind == domain.EventCommand && !permitted(action, ev.Command) {
			// silently skipped: the sender's role is not in the permission set
			continue
		}
		e.runAction(ctx, action)
	}
}

// Test executes one action's steps directly, bypassing trigger matching and
// permission checks. The execution error, if any, is returned to the caller
// for display.
func (e *Engine) Test(ctx context.Context, id string) error {
	action, err := e.Store.Get(id)
	if err != nil {
		return err
	}
	if err := e.Executor.Run(ctx, action.Steps); err != nil {
		notify.Logf(e.Notifier, notify.Error, "action %q failed: %v", action.Name, err)
		return err
	}
	e.finish(action)
	return nil
}

func (e *Engine) runAction(ctx context.Context, action domain.Action) {
	if err := e.Executor.Run(ctx, action.Steps); err != nil {
		e.Logger.Error().Err(err).Str("action", action.Name).Msg("action execution failed")
		notify.Logf(e.Notifier, notify.Error, "action %q failed: %v", action.Name, err)
		return
	}
	e.finish(action)
}

func (e *Engine) finish(action domain.Action) {
	e.Logger.Info().Str("action", action.Name).Msg("action triggered")
	notify.Logf(e.Notifier, notify.Success, "action %q triggered", action.Name)
	e.Notifier.Status(notify.Status{Kind: notify.StatusActionTriggered, Action: action.Name})
}

func matches(action domain.Action, ev domain.Event) bool {
	for _, t := range action.Triggers {
		if triggerMatches(action, t, ev) {
			return true
		}
	}
	return false
}

func triggerMatches(action domain.Action, t domain.Trigger, ev domain.Event) bool {
	if string(t.Type) != string(ev.Kind) {
		return false
	}
	switch t.Type {
	case domain.TriggerCommand:
		return ev.Command != nil && t.Command != nil &&
			domain.NormalizeCommand(t.Command.Command) == domain.NormalizeCommand(ev.Command.Command)
	case domain.TriggerChannelPoints:
		if ev.Redemption == nil {
			return false
		}
		// absent or empty reward config matches any reward
		return t.ChannelPoints == nil || t.ChannelPoints.RewardID == "" ||
			t.ChannelPoints.RewardID == ev.Redemption.RewardID
	case domain.TriggerCheer:
		return ev.Cheer != nil
	case domain.TriggerSubscriber:
		return ev.Subscription != nil
	case domain.TriggerTimer:
		return ev.Timer != nil && ev.Timer.ActionID == action.ID
	case domain.TriggerMIDI:
		return ev.MIDI != nil && t.MIDI != nil && midiMatches(*t.MIDI, *ev.MIDI)
	}
	return false
}

func midiMatches(cfg domain.MIDIConfig, msg domain.MIDIEvent) bool {
	if cfg.MessageType != msg.MessageType {
		return false
	}
	if cfg.Channel != nil && *cfg.Channel != msg.Channel {
		return false
	}
	switch cfg.MessageType {
	case domain.MIDINoteOn, domain.MIDINoteOff:
		return cfg.Note != nil && *cfg.Note == msg.Note
	case domain.MIDIControlChange:
		return cfg.Controller != nil && *cfg.Controller == msg.Controller
	}
	return true
}

// permitted applies the permission set to a command event's sender role.
// Roles rank broadcaster > moderator > viewer; the sender's highest role is
// checked against its own flag. An action with no permission map is always
// allowed.
func permitted(action domain.Action, cmd *domain.CommandEvent) bool {
	if action.Permissions == nil {
		return true
	}
	if cmd == nil {
		return false
	}
	switch {
	case cmd.IsBroadcaster:
		return action.Permissions.Broadcaster
	case cmd.IsModerator:
		return action.Permissions.Moderator
	default:
		return action.Permissions.Viewer
	}
}
