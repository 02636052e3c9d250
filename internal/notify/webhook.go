package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Webhook posts to Slack- or Discord-style incoming webhooks. The tenant's
// channel ref is the webhook URL; Fallback is used when a tenant has none.
type Webhook struct {
	Fallback string
	Client   *http.Client
}

func NewWebhook(fallback string) *Webhook {
	return &Webhook{
		Fallback: fallback,
		Client:   &http.Client{Timeout: 10 * time.Second},
	}
}

// Slack reads "text", Discord reads "content".
type webhookPayload struct {
	Text    string `json:"text"`
	Content string `json:"content"`
}

func (w *Webhook) Send(ctx context.Context, channelRef, text string) error {
	url := strings.TrimSpace(channelRef)
	if url == "" {
		url = w.Fallback
	}
	if url == "" {
		return ErrNoChannel
	}
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return fmt.Errorf("channel %q is not a webhook url", channelRef)
	}

	body, _ := json.Marshal(webhookPayload{Text: text, Content: text})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("webhook non-2xx: %s", resp.Status)
	}
	return nil
}
