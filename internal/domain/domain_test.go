package domain_test

import (
	"errors"
	"testing"

	"stagehand/internal/domain"
)

func validAction() domain.Action {
	return domain.Action{
		ID:   "a1",
		Name: "Hype",
		Triggers: []domain.Trigger{
			{Type: domain.TriggerCommand, Command: &domain.CommandConfig{Command: "!hype"}},
		},
		Steps: []domain.Step{
			{Type: domain.StepSendMessage, Value: "Let's go!"},
		},
		Permissions: &domain.Permissions{Viewer: true, Moderator: true, Broadcaster: true},
	}
}

func TestValidateAcceptsWellFormedAction(t *testing.T) {
	if err := validAction().Validate(); err != nil {
		t.Fatalf("expected valid action: %v", err)
	}
}

func TestValidateRequiresName(t *testing.T) {
	a := validAction()
	a.Name = "  "
	if err := a.Validate(); err == nil {
		t.Fatalf("expected name error")
	}
}

func TestValidateRequiresTrigger(t *testing.T) {
	a := validAction()
	a.Triggers = nil
	if err := a.Validate(); err == nil {
		t.Fatalf("expected trigger error")
	}
}

func TestValidateRequiresPermission(t *testing.T) {
	a := validAction()
	a.Permissions = &domain.Permissions{}
	err := a.Validate()
	if err == nil {
		t.Fatalf("expected permission error")
	}
	var ve domain.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %T", err)
	}

	a.Permissions = nil
	if err := a.Validate(); err == nil {
		t.Fatalf("expected permission error for missing map")
	}
}

func TestValidateCommandTrigger(t *testing.T) {
	a := validAction()
	a.Triggers[0].Command.Command = "!"
	if err := a.Validate(); err == nil {
		t.Fatalf("expected error for bare-prefix command")
	}
	a.Triggers[0].Command = nil
	if err := a.Validate(); err == nil {
		t.Fatalf("expected error for missing command config")
	}
}

func TestValidateTimerTrigger(t *testing.T) {
	a := validAction()
	a.Triggers = []domain.Trigger{{Type: domain.TriggerTimer, Timer: &domain.TimerConfig{IntervalSeconds: 0}}}
	if err := a.Validate(); err == nil {
		t.Fatalf("expected interval error")
	}
	a.Triggers[0].Timer.IntervalSeconds = 30
	if err := a.Validate(); err != nil {
		t.Fatalf("expected valid timer trigger: %v", err)
	}
}

func TestValidateMIDITrigger(t *testing.T) {
	note := 60
	a := validAction()
	a.Triggers = []domain.Trigger{{Type: domain.TriggerMIDI, MIDI: &domain.MIDIConfig{MessageType: domain.MIDINoteOn}}}
	if err := a.Validate(); err == nil {
		t.Fatalf("expected note error for note_on without note")
	}
	a.Triggers[0].MIDI.Note = &note
	if err := a.Validate(); err != nil {
		t.Fatalf("expected valid midi trigger: %v", err)
	}
	a.Triggers[0].MIDI.MessageType = "aftertouch"
	if err := a.Validate(); err == nil {
		t.Fatalf("expected unknown message type error")
	}
}

func TestValidateSteps(t *testing.T) {
	a := validAction()
	a.Steps = []domain.Step{{Type: domain.StepStartStream}}
	if err := a.Validate(); err != nil {
		t.Fatalf("start_stream needs no value: %v", err)
	}
	a.Steps = []domain.Step{{Type: domain.StepSwitchScene}}
	if err := a.Validate(); err == nil {
		t.Fatalf("expected missing value error")
	}
	a.Steps = []domain.Step{{Type: domain.StepDelay, Value: "-5"}}
	if err := a.Validate(); err == nil {
		t.Fatalf("expected negative delay error")
	}
	a.Steps = []domain.Step{{Type: domain.StepDelay, Value: "250"}}
	if err := a.Validate(); err != nil {
		t.Fatalf("expected valid delay: %v", err)
	}
	a.Steps = []domain.Step{{Type: "explode", Value: "x"}}
	if err := a.Validate(); err == nil {
		t.Fatalf("expected unknown step type error")
	}
}

func TestNormalizeCommand(t *testing.T) {
	if got := domain.NormalizeCommand("!hype"); got != "hype" {
		t.Fatalf("got %q", got)
	}
	if got := domain.NormalizeCommand("hype"); got != "hype" {
		t.Fatalf("got %q", got)
	}
	// only one prefix is stripped, and case is preserved
	if got := domain.NormalizeCommand("!!Hype"); got != "!Hype" {
		t.Fatalf("got %q", got)
	}
}

func TestCloneIsDeep(t *testing.T) {
	note := 60
	a := validAction()
	a.Triggers = append(a.Triggers, domain.Trigger{
		Type: domain.TriggerMIDI,
		MIDI: &domain.MIDIConfig{MessageType: domain.MIDINoteOn, Note: &note},
	})
	c := a.Clone()
	c.Name = "edited"
	c.Triggers[0].Command.Command = "other"
	*c.Triggers[1].MIDI.Note = 61
	c.Steps[0].Value = "changed"
	c.Permissions.Viewer = false

	if a.Name != "Hype" || a.Triggers[0].Command.Command != "!hype" {
		t.Fatalf("clone mutated the original trigger")
	}
	if *a.Triggers[1].MIDI.Note != 60 {
		t.Fatalf("clone shares midi note pointer")
	}
	if a.Steps[0].Value != "Let's go!" || !a.Permissions.Viewer {
		t.Fatalf("clone mutated steps or permissions")
	}
}
