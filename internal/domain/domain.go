package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// TriggerType identifies what kind of incoming event a trigger matches.
type TriggerType string

const (
	TriggerCommand       TriggerType = "command"
	TriggerChannelPoints TriggerType = "channel_points"
	TriggerCheer         TriggerType = "cheer"
	TriggerSubscriber    TriggerType = "subscriber"
	TriggerTimer         TriggerType = "timer"
	TriggerMIDI          TriggerType = "midi"
)

// StepType identifies the side effect a step performs.
type StepType string

const (
	StepSwitchScene  StepType = "switch_scene"
	StepToggleSource StepType = "toggle_source"
	StepShowSource   StepType = "show_source"
	StepHideSource   StepType = "hide_source"
	StepStartStream  StepType = "start_stream"
	StepStopStream   StepType = "stop_stream"
	StepSendMessage  StepType = "send_message"
	StepPlaySound    StepType = "play_sound"
	StepDelay        StepType = "delay"
)

// MIDI message types reported by the controller collaborator.
const (
	MIDINoteOn        = "note_on"
	MIDINoteOff       = "note_off"
	MIDIControlChange = "control_change"
	MIDIPitchBend     = "pitch_bend"
)

// Action is a named automation rule: one or more triggers, an ordered step
// list, and the chat roles allowed to invoke it via commands.
type Action struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Triggers    []Trigger    `json:"triggers"`
	Steps       []Step       `json:"steps"`
	Permissions *Permissions `json:"permissions,omitempty"`
}

// Trigger is a tagged union: Type selects which config field is set. Exactly
// the field matching Type must be non-nil for config-carrying types.
type Trigger struct {
	Type          TriggerType          `json:"type" enum:"command,channel_points,cheer,subscriber,timer,midi"`
	Command       *CommandConfig       `json:"command,omitempty"`
	ChannelPoints *ChannelPointsConfig `json:"channel_points,omitempty"`
	Timer         *TimerConfig         `json:"timer,omitempty"`
	MIDI          *MIDIConfig          `json:"midi,omitempty"`
}

// CommandConfig matches chat commands. Comparison is case-sensitive but
// ignores a leading "!" on either side.
type CommandConfig struct {
	Command string `json:"command"`
}

// ChannelPointsConfig matches reward redemptions. An empty RewardID matches
// any reward.
type ChannelPointsConfig struct {
	RewardID string `json:"reward_id,omitempty"`
}

// TimerConfig fires the action on a fixed interval.
type TimerConfig struct {
	IntervalSeconds int `json:"interval_seconds"`
}

// MIDIConfig matches controller input by message type plus note or controller
// number. Channel is optional; nil matches any channel.
type MIDIConfig struct {
	MessageType string `json:"message_type" enum:"note_on,note_off,control_change,pitch_bend"`
	Note        *int   `json:"note,omitempty"`
	Controller  *int   `json:"controller,omitempty"`
	Channel     *int   `json:"channel,omitempty"`
}

// Step is one ordered side effect. Value carries the scene/source name,
// message text, sound path, or delay in milliseconds depending on Type.
type Step struct {
	Type  StepType `json:"type" enum:"switch_scene,toggle_source,show_source,hide_source,start_stream,stop_stream,send_message,play_sound,delay"`
	Value string   `json:"value,omitempty"`
}

// Permissions is the set of chat roles that may invoke a command-triggered
// action. Saved actions must enable at least one role.
type Permissions struct {
	Viewer      bool `json:"viewer"`
	Moderator   bool `json:"moderator"`
	Broadcaster bool `json:"broadcaster"`
}

// Any reports whether at least one role is enabled.
func (p Permissions) Any() bool {
	return p.Viewer || p.Moderator || p.Broadcaster
}

// Clone returns a deep copy of the action, safe to edit without touching the
// stored value.
func (a Action) Clone() Action {
	out := a
	out.Triggers = make([]Trigger, len(a.Triggers))
	for i, t := range a.Triggers {
		out.Triggers[i] = t.clone()
	}
	out.Steps = append([]Step(nil), a.Steps...)
	if a.Permissions != nil {
		p := *a.Permissions
		out.Permissions = &p
	}
	return out
}

func (t Trigger) clone() Trigger {
	out := t
	if t.Command != nil {
		c := *t.Command
		out.Command = &c
	}
	if t.ChannelPoints != nil {
		c := *t.ChannelPoints
		out.ChannelPoints = &c
	}
	if t.Timer != nil {
		c := *t.Timer
		out.Timer = &c
	}
	if t.MIDI != nil {
		c := *t.MIDI
		out.MIDI = &c
		out.MIDI.Note = cloneInt(t.MIDI.Note)
		out.MIDI.Controller = cloneInt(t.MIDI.Controller)
		out.MIDI.Channel = cloneInt(t.MIDI.Channel)
	}
	return out
}

func cloneInt(v *int) *int {
	if v == nil {
		return nil
	}
	n := *v
	return &n
}

// NormalizeCommand strips a single leading "!" so that "!hype" and "hype"
// compare equal. The remainder is compared case-sensitively.
func NormalizeCommand(cmd string) string {
	return strings.TrimPrefix(cmd, "!")
}

// ValidationError reports a malformed action. Malformed actions are rejected
// before storage, never repaired.
type ValidationError struct {
	Reason string
}

func (e ValidationError) Error() string {
	return "invalid action: " + e.Reason
}

func invalid(format string, args ...any) error {
	return ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// Validate checks the save-time invariants: a name, at least one well-formed
// trigger, well-formed steps, and at least one enabled permission.
func (a Action) Validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return invalid("name is required")
	}
	if len(a.Triggers) == 0 {
		return invalid("at least one trigger is required")
	}
	for i, t := range a.Triggers {
		if err := t.Validate(); err != nil {
			return invalid("trigger %d: %v", i, err)
		}
	}
	for i, s := range a.Steps {
		if err := s.Validate(); err != nil {
			return invalid("step %d: %v", i, err)
		}
	}
	if a.Permissions == nil || !a.Permissions.Any() {
		return invalid("at least one permission must be enabled")
	}
	return nil
}

// Validate checks that the trigger carries exactly the config its type needs.
func (t Trigger) Validate() error {
	switch t.Type {
	case TriggerCommand:
		if t.Command == nil || NormalizeCommand(t.Command.Command) == "" {
			return fmt.Errorf("command trigger requires a non-empty command")
		}
	case TriggerChannelPoints:
		// config optional: absent or empty reward id matches any reward
	case TriggerCheer, TriggerSubscriber:
		// no config
	case TriggerTimer:
		if t.Timer == nil || t.Timer.IntervalSeconds < 1 {
			return fmt.Errorf("timer trigger requires an interval of at least 1 second")
		}
	case TriggerMIDI:
		if t.MIDI == nil {
			return fmt.Errorf("midi trigger requires a config")
		}
		switch t.MIDI.MessageType {
		case MIDINoteOn, MIDINoteOff:
			if t.MIDI.Note == nil {
				return fmt.Errorf("midi %s trigger requires a note", t.MIDI.MessageType)
			}
		case MIDIControlChange:
			if t.MIDI.Controller == nil {
				return fmt.Errorf("midi control_change trigger requires a controller")
			}
		case MIDIPitchBend:
			// matched on channel only
		default:
			return fmt.Errorf("unknown midi message type %q", t.MIDI.MessageType)
		}
	default:
		return fmt.Errorf("unknown trigger type %q", t.Type)
	}
	return nil
}

// Validate checks the step payload. Value is required for every type except
// stream start/stop; delay values must parse as a non-negative integer.
func (s Step) Validate() error {
	switch s.Type {
	case StepStartStream, StepStopStream:
		return nil
	case StepSwitchScene, StepToggleSource, StepShowSource, StepHideSource,
		StepSendMessage, StepPlaySound:
		if s.Value == "" {
			return fmt.Errorf("%s step requires a value", s.Type)
		}
	case StepDelay:
		if _, err := ParseDelay(s.Value); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown step type %q", s.Type)
	}
	return nil
}

// ParseDelay parses a delay step value as non-negative milliseconds.
func ParseDelay(value string) (int, error) {
	ms, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || ms < 0 {
		return 0, fmt.Errorf("delay value %q is not a non-negative integer", value)
	}
	return ms, nil
}
