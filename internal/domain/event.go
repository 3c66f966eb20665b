package domain

// EventKind mirrors TriggerType for dispatchable events. Connection lifecycle
// changes are reported through the notifier, not dispatched here.
type EventKind string

const (
	EventCommand       EventKind = "command"
	EventChannelPoints EventKind = "channel_points"
	EventCheer         EventKind = "cheer"
	EventSubscriber    EventKind = "subscriber"
	EventTimer         EventKind = "timer"
	EventMIDI          EventKind = "midi"
)

// Event is one normalized external occurrence. It is transient: produced once
// by a transport, consumed synchronously by the engine, never persisted.
type Event struct {
	Kind         EventKind
	Command      *CommandEvent
	Redemption   *RedemptionEvent
	Cheer        *CheerEvent
	Subscription *SubscriptionEvent
	Timer        *TimerEvent
	MIDI         *MIDIEvent
}

// CommandEvent is a parsed chat command with the sender's roles.
type CommandEvent struct {
	Command       string
	Args          []string
	Username      string
	IsModerator   bool
	IsBroadcaster bool
}

// RedemptionEvent is a channel-point reward redemption.
type RedemptionEvent struct {
	RewardID    string
	RewardTitle string
	Username    string
	Input       string
}

// CheerEvent is a monetary cheer.
type CheerEvent struct {
	Username  string
	Bits      int
	Anonymous bool
	Message   string
}

// SubscriptionEvent is a new or gifted subscription.
type SubscriptionEvent struct {
	Username string
	Tier     string
	Months   int
	IsGift   bool
	Gifter   string
}

// TimerEvent fires for a single action's timer trigger. ActionID scopes the
// match so one timer tick never runs another action's timer trigger.
type TimerEvent struct {
	ActionID string
}

// MIDIEvent is one physical-controller message.
type MIDIEvent struct {
	MessageType string
	Note        int
	Controller  int
	Velocity    int
	Value       int
	Channel     int
}
