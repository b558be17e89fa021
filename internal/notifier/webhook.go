package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// WebhookConfig holds chat webhook configuration.
type WebhookConfig struct {
	WebhookURL string // incoming webhook URL
	Username   string // bot display name (optional)
}

// Validate validates the webhook configuration.
func (c *WebhookConfig) Validate() error {
	if c.WebhookURL == "" {
		return fmt.Errorf("webhook URL is required")
	}
	if !strings.HasPrefix(c.WebhookURL, "https://") {
		return fmt.Errorf("webhook URL must use HTTPS")
	}
	return nil
}

// ChatNotifier posts triggered-alert notifications to a chat incoming webhook.
type ChatNotifier struct {
	config     WebhookConfig
	httpClient *http.Client
}

// NewChatNotifier creates a new chat webhook notifier.
func NewChatNotifier(config WebhookConfig) (*ChatNotifier, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid webhook config: %w", err)
	}

	return &ChatNotifier{
		config: config,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}, nil
}

// Name returns "chat".
func (c *ChatNotifier) Name() string {
	return TransportChat
}

// chatMessage is the webhook payload.
type chatMessage struct {
	Text      string `json:"text"`
	Username  string `json:"username"`
	IconEmoji string `json:"icon_emoji"`
}

// Send posts the notification to the webhook.
func (c *ChatNotifier) Send(ctx context.Context, msg *Message) error {
	username := c.config.Username
	if username == "" {
		username = "Analytics Alert Bot"
	}

	payload := chatMessage{
		Text:      msg.Body,
		Username:  username,
		IconEmoji: ":warning:",
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.WebhookURL, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("webhook error: status %d, body: %s", resp.StatusCode, string(body))
	}

	return nil
}

// Close is a no-op for the chat notifier.
func (c *ChatNotifier) Close() error {
	return nil
}
