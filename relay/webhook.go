/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

const maxWebhookErrorBodySize = 64 << 10

// ErrWebhookNotConfigured is returned by Sender.Send when no webhook URL is configured.
var ErrWebhookNotConfigured = errors.New("webhook is not configured")

// WebhookError is returned when the webhook responds with a non-2xx status code.
type WebhookError struct {
	StatusCode int
	Body       string
}

func (e *WebhookError) Error() string {
	return fmt.Sprintf("webhook responded with status %d", e.StatusCode)
}

// Payload is the JSON document posted to the webhook.
type Payload struct {
	Content  string          `json:"content"`
	Username string          `json:"username,omitempty"`
	Embeds   json.RawMessage `json:"embeds,omitempty"`
}

// Sender delivers payloads to a Discord-compatible webhook.
type Sender struct {
	client          *http.Client
	url             string
	defaultUsername string
}

// NewSender creates a new Sender. An empty cfg.URL gives a sender that is not configured.
func NewSender(client *http.Client, cfg WebhookConfig) *Sender {
	return &Sender{client: client, url: cfg.URL, defaultUsername: cfg.Username}
}

// Configured reports whether the webhook URL is set.
func (s *Sender) Configured() bool {
	return s.url != ""
}

// Send posts the payload to the webhook.
func (s *Sender) Send(ctx context.Context, payload Payload) error {
	if !s.Configured() {
		return ErrWebhookNotConfigured
	}
	if payload.Username == "" {
		payload.Username = s.defaultUsername
	}
	if bytes.Equal(bytes.TrimSpace(payload.Embeds), []byte("null")) {
		payload.Embeds = nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("do webhook request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxWebhookErrorBodySize))
		return nil
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxWebhookErrorBodySize))
	if err != nil {
		return fmt.Errorf("read webhook response: %w", err)
	}
	return &WebhookError{StatusCode: resp.StatusCode, Body: string(body)}
}
