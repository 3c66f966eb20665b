package stagehandsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Stagehand HTTP API client for UIs and scripts.
type Client struct {
	BaseURL     string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Action mirrors the API action model.
type Action struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Triggers    []Trigger    `json:"triggers"`
	Steps       []Step       `json:"steps"`
	Permissions *Permissions `json:"permissions,omitempty"`
}

type Trigger struct {
	Type          string               `json:"type"`
	Command       *CommandConfig       `json:"command,omitempty"`
	ChannelPoints *ChannelPointsConfig `json:"channel_points,omitempty"`
	Timer         *TimerConfig         `json:"timer,omitempty"`
	MIDI          *MIDIConfig          `json:"midi,omitempty"`
}

type CommandConfig struct {
	Command string `json:"command"`
}

type ChannelPointsConfig struct {
	RewardID string `json:"reward_id,omitempty"`
}

type TimerConfig struct {
	IntervalSeconds int `json:"interval_seconds"`
}

type MIDIConfig struct {
	MessageType string `json:"message_type"`
	Note        *int   `json:"note,omitempty"`
	Controller  *int   `json:"controller,omitempty"`
	Channel     *int   `json:"channel,omitempty"`
}

type Step struct {
	Type  string `json:"type"`
	Value string `json:"value,omitempty"`
}

type Permissions struct {
	Viewer      bool `json:"viewer"`
	Moderator   bool `json:"moderator"`
	Broadcaster bool `json:"broadcaster"`
}

// Status is the connection snapshot.
type Status struct {
	ControlSurface string `json:"control_surface"`
	Chat           string `json:"chat"`
	EventSub       string `json:"eventsub"`
	MIDIOpen       bool   `json:"midi_open"`
}

// Event is one event-log entry.
type Event struct {
	ID      int64  `json:"id"`
	TS      string `json:"ts"`
	Type    string `json:"type"`
	Level   string `json:"level"`
	Source  string `json:"source"`
	Message string `json:"message"`
	Payload string `json:"payload_json"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// ListActions returns all actions in execution order.
func (c *Client) ListActions(ctx context.Context) ([]Action, error) {
	var resp []Action
	err := c.do(ctx, http.MethodGet, "v0/actions", nil, &resp)
	return resp, err
}

// GetAction fetches one action by id.
func (c *Client) GetAction(ctx context.Context, id string) (Action, error) {
	var resp Action
	err := c.do(ctx, http.MethodGet, "v0/actions/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// CreateAction creates an action.
func (c *Client) CreateAction(ctx context.Context, a Action) (Action, error) {
	var resp Action
	err := c.do(ctx, http.MethodPost, "v0/actions", a, &resp)
	return resp, err
}

// UpdateAction replaces an action by id.
func (c *Client) UpdateAction(ctx context.Context, a Action) (Action, error) {
	var resp Action
	err := c.do(ctx, http.MethodPut, "v0/actions/"+url.PathEscape(a.ID), a, &resp)
	return resp, err
}

// DeleteAction removes an action.
func (c *Client) DeleteAction(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "v0/actions/"+url.PathEscape(id), nil, nil)
}

// TestAction runs an action immediately, skipping triggers and permissions.
func (c *Client) TestAction(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "v0/actions/"+url.PathEscape(id)+"/test", nil, nil)
}

// Status returns the connection snapshot.
func (c *Client) Status(ctx context.Context) (Status, error) {
	var resp Status
	err := c.do(ctx, http.MethodGet, "v0/status", nil, &resp)
	return resp, err
}

// Events returns event-log entries after the cursor, oldest first. Cursor
// zero tails the log.
func (c *Client) Events(ctx context.Context, after int64, limit int) ([]Event, error) {
	endpoint := "v0/events"
	params := url.Values{}
	if after > 0 {
		params.Set("after", fmt.Sprint(after))
	}
	if limit > 0 {
		params.Set("limit", fmt.Sprint(limit))
	}
	if enc := params.Encode(); enc != "" {
		endpoint += "?" + enc
	}
	var resp []Event
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
