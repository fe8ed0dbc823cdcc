// Package telegram sends push notifications through the bot sendMessage API.
// Delivery is best-effort: failures are logged by the caller, never retried.
package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type Client struct {
	baseURL    string
	token      string
	chatID     string
	httpClient *http.Client
}

func NewClient(token, chatID string) *Client {
	return &Client{
		baseURL:    "https://api.telegram.org",
		token:      token,
		chatID:     chatID,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// NewClientWithURL is used by tests to point the client at a fake endpoint.
func NewClientWithURL(baseURL, token, chatID string) *Client {
	c := NewClient(token, chatID)
	c.baseURL = strings.TrimSuffix(baseURL, "/")
	return c
}

func (c *Client) Notify(ctx context.Context, message string) error {
	if c.token == "" || c.chatID == "" {
		return nil
	}

	u := fmt.Sprintf("%s/bot%s/sendMessage?chat_id=%s&text=%s",
		c.baseURL, c.token, url.QueryEscape(c.chatID), url.QueryEscape(message))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram error: %s", resp.Status)
	}

	var out struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("parsing telegram response: %w", err)
	}
	if !out.OK {
		return fmt.Errorf("telegram rejected the message")
	}
	return nil
}
