package eventsub

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// SubscriptionRequest creates one server-side subscription bound to a session.
type SubscriptionRequest struct {
	Type          string
	BroadcasterID string
	SessionID     string
}

// APIClient is the authenticated control-plane collaborator for subscription
// bookkeeping.
type APIClient interface {
	CreateSubscription(ctx context.Context, req SubscriptionRequest) (id string, err error)
	DeleteSubscription(ctx context.Context, id string) error
}

// HTTPAPIClient talks to the control-plane subscription endpoint with the
// token from Tokens.
type HTTPAPIClient struct {
	BaseURL  string
	ClientID string
	Tokens   *TokenStore
	Client   *http.Client
}

func (c *HTTPAPIClient) client() *http.Client {
	if c.Client != nil {
		return c.Client
	}
	return &http.Client{Timeout: 10 * time.Second}
}

func (c *HTTPAPIClient) CreateSubscription(ctx context.Context, req SubscriptionRequest) (string, error) {
	body, err := json.Marshal(map[string]any{
		"type":    req.Type,
		"version": "1",
		"condition": map[string]string{
			"broadcaster_user_id": req.BroadcasterID,
		},
		"transport": map[string]string{
			"method":     "websocket",
			"session_id": req.SessionID,
		},
	})
	if err != nil {
		return "", err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/eventsub/subscriptions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	c.authorize(httpReq)
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := c.client().Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("create subscription: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", AuthError{Op: "create subscription", Err: fmt.Errorf("status %d", resp.StatusCode)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("create subscription: status %d: %s", resp.StatusCode, msg)
	}
	var out struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("create subscription: decode response: %w", err)
	}
	if len(out.Data) == 0 {
		return "", fmt.Errorf("create subscription: empty response")
	}
	return out.Data[0].ID, nil
}

func (c *HTTPAPIClient) DeleteSubscription(ctx context.Context, id string) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.BaseURL+"/eventsub/subscriptions?id="+id, nil)
	if err != nil {
		return err
	}
	c.authorize(httpReq)
	resp, err := c.client().Do(httpReq)
	if err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return AuthError{Op: "delete subscription", Err: fmt.Errorf("status %d", resp.StatusCode)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("delete subscription: status %d", resp.StatusCode)
	}
	return nil
}

func (c *HTTPAPIClient) authorize(req *http.Request) {
	if c.Tokens != nil {
		req.Header.Set("Authorization", "Bearer "+c.Tokens.Get().AccessToken)
	}
	if c.ClientID != "" {
		req.Header.Set("Client-Id", c.ClientID)
	}
}
