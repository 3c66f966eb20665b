package eventsub

import (
	"encoding/json"
)

// Inbound frame types of the push-subscription protocol.
const (
	frameWelcome      = "session_welcome"
	frameKeepalive    = "session_keepalive"
	frameNotification = "notification"
	frameReconnect    = "session_reconnect"
)

// Subscription event types this manager can translate.
const (
	TypeRedemption = "channel.channel_points_custom_reward_redemption.add"
	TypeCheer      = "channel.cheer"
	TypeSubscribe  = "channel.subscribe"
)

// Frame is one inbound protocol message.
type Frame struct {
	Metadata FrameMetadata   `json:"metadata"`
	Payload  json.RawMessage `json:"payload"`
}

type FrameMetadata struct {
	MessageID   string `json:"message_id"`
	MessageType string `json:"message_type"`
}

type welcomePayload struct {
	Session struct {
		ID                      string `json:"id"`
		KeepaliveTimeoutSeconds int    `json:"keepalive_timeout_seconds"`
	} `json:"session"`
}

type reconnectPayload struct {
	Session struct {
		ReconnectURL string `json:"reconnect_url"`
	} `json:"session"`
}

type notificationPayload struct {
	Subscription struct {
		ID   string `json:"id"`
		Type string `json:"type"`
	} `json:"subscription"`
	Event json.RawMessage `json:"event"`
}

type redemptionEvent struct {
	UserName  string `json:"user_name"`
	UserInput string `json:"user_input"`
	Reward    struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	} `json:"reward"`
}

type cheerEvent struct {
	UserName    string `json:"user_name"`
	Bits        int    `json:"bits"`
	IsAnonymous bool   `json:"is_anonymous"`
	Message     string `json:"message"`
}

type subscribeEvent struct {
	UserName         string `json:"user_name"`
	Tier             string `json:"tier"`
	IsGift           bool   `json:"is_gift"`
	CumulativeMonths int    `json:"cumulative_months"`
	GifterName       string `json:"gifter_name"`
}
