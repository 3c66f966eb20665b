package engine

import (
	"context"
	"fmt"
	"time"

	"stagehand/internal/domain"
	"stagehand/internal/notify"
)

// Executor runs one ordered step list against the external collaborators.
// Steps run strictly in order; the first failure aborts the rest of the
// invocation. There is no rollback of already-executed steps.
type Executor struct {
	Surface  ControlSurface
	Chat     ChatSender
	Sound    SoundPlayer
	Notifier notify.Notifier

	// Sleep implements the delay step. Tests inject a fake; nil means a real
	// context-aware sleep.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Run executes steps in declared order, each awaited before the next starts.
// The first failing step is returned wrapped in a StepError.
func (x Executor) Run(ctx context.Context, steps []domain.Step) error {
	for _, step := range steps {
		if err := x.runStep(ctx, step); err != nil {
			return StepError{Step: step.Type, Value: step.Value, Err: err}
		}
		x.logSuccess(step)
	}
	return nil
}

func (x Executor) runStep(ctx context.Context, step domain.Step) error {
	switch step.Type {
	case domain.StepSwitchScene:
		return x.surface(func(s ControlSurface) error { return s.SwitchScene(ctx, step.Value) })
	case domain.StepToggleSource:
		return x.surface(func(s ControlSurface) error { return s.ToggleSource(ctx, step.Value) })
	case domain.StepShowSource:
		return x.surface(func(s ControlSurface) error { return s.ShowSource(ctx, step.Value) })
	case domain.StepHideSource:
		return x.surface(func(s ControlSurface) error { return s.HideSource(ctx, step.Value) })
	case domain.StepStartStream:
		return x.surface(func(s ControlSurface) error { return s.StartStream(ctx) })
	case domain.StepStopStream:
		return x.surface(func(s ControlSurface) error { return s.StopStream(ctx) })
	case domain.StepSendMessage:
		if x.Chat == nil {
			return ConnectionError{Collaborator: "chat"}
		}
		return x.Chat.SendMessage(ctx, step.Value)
	case domain.StepPlaySound:
		if x.Sound == nil {
			return ConnectionError{Collaborator: "audio player"}
		}
		return x.Sound.Play(ctx, step.Value)
	case domain.StepDelay:
		ms, err := domain.ParseDelay(step.Value)
		if err != nil {
			return err
		}
		return x.sleep(ctx, time.Duration(ms)*time.Millisecond)
	default:
		return fmt.Errorf("unknown step type %q", step.Type)
	}
}

func (x Executor) surface(call func(ControlSurface) error) error {
	if x.Surface == nil {
		return ConnectionError{Collaborator: "control surface"}
	}
	return call(x.Surface)
}

func (x Executor) sleep(ctx context.Context, d time.Duration) error {
	if x.Sleep != nil {
		return x.Sleep(ctx, d)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (x Executor) logSuccess(step domain.Step) {
	if x.Notifier == nil {
		return
	}
	switch step.Type {
	case domain.StepSwitchScene:
		notify.Logf(x.Notifier, notify.Info, "switched scene to %q", step.Value)
	case domain.StepToggleSource:
		notify.Logf(x.Notifier, notify.Info, "toggled source %q", step.Value)
	case domain.StepShowSource:
		notify.Logf(x.Notifier, notify.Info, "showed source %q", step.Value)
	case domain.StepHideSource:
		notify.Logf(x.Notifier, notify.Info, "hid source %q", step.Value)
	case domain.StepStartStream:
		x.Notifier.Log(notify.Info, "started the stream")
	case domain.StepStopStream:
		x.Notifier.Log(notify.Info, "stopped the stream")
	case domain.StepSendMessage:
		notify.Logf(x.Notifier, notify.Info, "sent chat message %q", step.Value)
	case domain.StepPlaySound:
		notify.Logf(x.Notifier, notify.Info, "played sound %q", step.Value)
	case domain.StepDelay:
		notify.Logf(x.Notifier, notify.Info, "waited %sms", step.Value)
	}
}
