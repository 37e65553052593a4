package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// WebhookNotifier POSTs notifications as JSON to a URL.
type WebhookNotifier struct {
	httpClient *http.Client
	url        string
	now        func() time.Time
}

// WebhookConfig holds configuration for the webhook notifier.
type WebhookConfig struct {
	URL        string
	HTTPClient *http.Client
}

// NewWebhookNotifier creates a new webhook notifier.
func NewWebhookNotifier(cfg WebhookConfig) *WebhookNotifier {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &WebhookNotifier{
		httpClient: client,
		url:        cfg.URL,
		now:        time.Now,
	}
}

type webhookPayload struct {
	Subject string    `json:"subject"`
	Body    string    `json:"body"`
	SentAt  time.Time `json:"sent_at"`
}

// Send posts the notification. Any non-2xx status is an error.
func (w *WebhookNotifier) Send(ctx context.Context, notification Notification) error {
	body, err := json.Marshal(webhookPayload{
		Subject: notification.Subject,
		Body:    notification.Body,
		SentAt:  w.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook failed (status %d): %s", resp.StatusCode, string(respBody))
	}

	slog.Debug("notification sent", "subject", notification.Subject)
	return nil
}
