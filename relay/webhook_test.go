/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package relay

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeWebhook struct {
	*httptest.Server
	mu         sync.Mutex
	bodies     []string
	statusCode int
	respBody   string
}

func newFakeWebhook(t *testing.T) *fakeWebhook {
	t.Helper()
	fw := &fakeWebhook{statusCode: http.StatusNoContent}
	fw.Server = httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		fw.mu.Lock()
		fw.bodies = append(fw.bodies, string(body))
		statusCode, respBody := fw.statusCode, fw.respBody
		fw.mu.Unlock()
		if r.Method != http.MethodPost || r.Header.Get("Content-Type") != "application/json" {
			rw.WriteHeader(http.StatusBadRequest)
			return
		}
		rw.WriteHeader(statusCode)
		_, _ = rw.Write([]byte(respBody))
	}))
	t.Cleanup(fw.Close)
	return fw
}

func (fw *fakeWebhook) SetResponse(statusCode int, body string) {
	fw.mu.Lock()
	fw.statusCode, fw.respBody = statusCode, body
	fw.mu.Unlock()
}

func (fw *fakeWebhook) Bodies() []string {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	return append([]string(nil), fw.bodies...)
}

func TestSender_Send(t *testing.T) {
	webhook := newFakeWebhook(t)
	sender := NewSender(http.DefaultClient, WebhookConfig{URL: webhook.URL, Username: "relay-bot"})
	require.True(t, sender.Configured())

	require.NoError(t, sender.Send(context.Background(), Payload{Content: "hi"}))
	require.NoError(t, sender.Send(context.Background(), Payload{Content: "hey", Username: "alice (from example.com)"}))
	require.NoError(t, sender.Send(context.Background(), Payload{Embeds: json.RawMessage(`[{"title":"t"}]`)}))
	require.NoError(t, sender.Send(context.Background(), Payload{Content: "x", Embeds: json.RawMessage(`null`)}))

	bodies := webhook.Bodies()
	require.Len(t, bodies, 4)
	require.JSONEq(t, `{"content":"hi","username":"relay-bot"}`, bodies[0])
	require.JSONEq(t, `{"content":"hey","username":"alice (from example.com)"}`, bodies[1])
	require.JSONEq(t, `{"content":"","username":"relay-bot","embeds":[{"title":"t"}]}`, bodies[2])
	require.JSONEq(t, `{"content":"x","username":"relay-bot"}`, bodies[3])
}

func TestSender_Send_WebhookError(t *testing.T) {
	webhook := newFakeWebhook(t)
	webhook.SetResponse(http.StatusBadRequest, `{"message":"Cannot send an empty message"}`)
	sender := NewSender(http.DefaultClient, WebhookConfig{URL: webhook.URL})

	err := sender.Send(context.Background(), Payload{Content: "hi"})
	var webhookErr *WebhookError
	require.ErrorAs(t, err, &webhookErr)
	require.Equal(t, http.StatusBadRequest, webhookErr.StatusCode)
	require.Equal(t, `{"message":"Cannot send an empty message"}`, webhookErr.Body)
	require.JSONEq(t, `{"content":"hi"}`, webhook.Bodies()[0])
}

func TestSender_Send_NotConfigured(t *testing.T) {
	sender := NewSender(http.DefaultClient, WebhookConfig{})
	require.False(t, sender.Configured())
	require.ErrorIs(t, sender.Send(context.Background(), Payload{Content: "hi"}), ErrWebhookNotConfigured)
}

func TestSender_Send_TransportError(t *testing.T) {
	webhook := newFakeWebhook(t)
	sender := NewSender(http.DefaultClient, WebhookConfig{URL: webhook.URL})
	webhook.Close()

	err := sender.Send(context.Background(), Payload{Content: "hi"})
	require.ErrorContains(t, err, "do webhook request")
	var webhookErr *WebhookError
	require.False(t, errors.As(err, &webhookErr))
}
