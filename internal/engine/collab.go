package engine

import (
	"context"
	"fmt"

	"stagehand/internal/domain"
)

// ControlSurface is the scene/source/stream switcher the executor drives.
// Every call fails with a ConnectionError when the surface is not connected.
type ControlSurface interface {
	SwitchScene(ctx context.Context, name string) error
	ToggleSource(ctx context.Context, name string) error
	ShowSource(ctx context.Context, name string) error
	HideSource(ctx context.Context, name string) error
	StartStream(ctx context.Context) error
	StopStream(ctx context.Context) error
}

// ChatSender sends outbound chat messages.
type ChatSender interface {
	SendMessage(ctx context.Context, text string) error
}

// SoundPlayer plays an audio file by path. Decoding and playback live behind
// this interface.
type SoundPlayer interface {
	Play(ctx context.Context, path string) error
}

// ConnectionError reports a collaborator that is required but not connected.
type ConnectionError struct {
	Collaborator string
}

func (e ConnectionError) Error() string {
	return e.Collaborator + " is not connected"
}

// StepError reports a failed step with its type and payload for diagnostics.
// The remaining steps of the invocation are aborted; completed steps stay
// applied.
type StepError struct {
	Step  domain.StepType
	Value string
	Err   error
}

func (e StepError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("step %s failed: %v", e.Step, e.Err)
	}
	return fmt.Sprintf("step %s (%q) failed: %v", e.Step, e.Value, e.Err)
}

func (e StepError) Unwrap() error {
	return e.Err
}
