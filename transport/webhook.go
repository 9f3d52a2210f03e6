package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	goMFA "github.com/MrEthical07/goMFA"
)

// ErrWebhookStatus is returned when the endpoint answers with a non-2xx status.
var ErrWebhookStatus = errors.New("webhook returned non-success status")

// WebhookConfig configures a [Webhook].
type WebhookConfig struct {
	URL     string
	Headers map[string]string
	Timeout time.Duration
	Client  *http.Client
}

// Webhook delivers messages as JSON POST requests.
type Webhook struct {
	url     string
	headers map[string]string
	client  *http.Client
}

type webhookPayload struct {
	Channel string `json:"channel"`
	To      string `json:"to"`
	Subject string `json:"subject,omitempty"`
	Body    string `json:"body"`
}

func NewWebhook(cfg WebhookConfig) (*Webhook, error) {
	if cfg.URL == "" {
		return nil, errors.New("webhook URL required")
	}
	client := cfg.Client
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	headers := make(map[string]string, len(cfg.Headers))
	for k, v := range cfg.Headers {
		headers[k] = v
	}
	return &Webhook{url: cfg.URL, headers: headers, client: client}, nil
}

func (w *Webhook) Send(ctx context.Context, address string, msg goMFA.Message) error {
	body, err := json.Marshal(webhookPayload{Channel: msg.Channel.String(), To: address, Subject: msg.Subject, Body: msg.Body})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range w.headers {
		req.Header.Set(k, v)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: %d", ErrWebhookStatus, resp.StatusCode)
	}
	return nil
}
