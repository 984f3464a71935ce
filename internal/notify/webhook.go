package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/copyleftdev/brokerlogin/internal/config"
)

// Webhook posts the message as JSON to an arbitrary endpoint.
type Webhook struct {
	url      string
	username string
	password string
	client   *http.Client
}

type webhookPayload struct {
	Text   string    `json:"text"`
	SentAt time.Time `json:"sent_at"`
}

func NewWebhook(cfg config.WebhookConfig, client *http.Client) *Webhook {
	return &Webhook{
		url:      cfg.URL,
		username: cfg.Username,
		password: cfg.Password,
		client:   client,
	}
}

func (w *Webhook) Notify(ctx context.Context, text string) error {
	body, err := json.Marshal(webhookPayload{Text: text, SentAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("webhook: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if w.username != "" && w.password != "" {
		req.SetBasicAuth(w.username, w.password)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook: status %s", resp.Status)
	}
	return nil
}
