package line

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
)

const (
	defaultAPIBase     = "https://api.line.me"
	defaultHTTPTimeout = 10 * time.Second
)

// Client sends messages via the LINE Messaging API.
type Client struct {
	channelAccessToken string
	apiBase            string
	httpClient         *http.Client
}

// NewClient creates a new Messaging API client.
func NewClient(channelAccessToken string) *Client {
	return &Client{
		channelAccessToken: channelAccessToken,
		apiBase:            defaultAPIBase,
		httpClient:         &http.Client{Timeout: defaultHTTPTimeout},
	}
}

// SetAPIBase overrides the Messaging API base URL (useful for testing).
func (c *Client) SetAPIBase(base string) {
	if base != "" {
		c.apiBase = base
	}
}

// ReplyMessage sends a plain text reply bound to a single-use reply token.
func (c *Client) ReplyMessage(ctx context.Context, replyToken, text string) error {
	req := ReplyRequest{
		ReplyToken: replyToken,
		Messages:   []TextMessage{{Type: "text", Text: text}},
	}
	return c.send(ctx, "/v2/bot/message/reply", req, "")
}

// PushMessage sends a plain text message outside a reply window. The
// retry key makes a redelivered push idempotent on the platform side.
func (c *Client) PushMessage(ctx context.Context, to, text string) error {
	req := PushRequest{
		To:       to,
		Messages: []TextMessage{{Type: "text", Text: text}},
	}
	return c.send(ctx, "/v2/bot/message/push", req, uuid.NewString())
}

func (c *Client) send(ctx context.Context, path string, payload any, retryKey string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("line: marshal send request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBase+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("line: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.channelAccessToken)
	if retryKey != "" {
		httpReq.Header.Set("X-Line-Retry-Key", retryKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("line: send message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return nil
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("line: API status %d, read response: %w", resp.StatusCode, err)
	}

	var apiErr APIError
	if err := json.Unmarshal(respBody, &apiErr); err == nil && apiErr.Message != "" {
		return fmt.Errorf("line: API status %d: %s", resp.StatusCode, apiErr.Message)
	}
	return fmt.Errorf("line: unexpected status %d: %s", resp.StatusCode, string(respBody))
}
