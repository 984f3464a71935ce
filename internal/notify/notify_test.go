package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/copyleftdev/brokerlogin/internal/config"
)

func TestTelegram_Notify(t *testing.T) {
	var gotPath string
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	tg := NewTelegram(config.TelegramConfig{BotToken: "123:ABC", ChatID: "42", BaseURL: srv.URL + "/"}, srv.Client())
	require.NoError(t, tg.Notify(context.Background(), "Success: 2, Fail: 1"))

	assert.Equal(t, "/bot123:ABC/sendMessage", gotPath)
	assert.Equal(t, "42", gotBody["chat_id"])
	assert.Equal(t, "Success: 2, Fail: 1", gotBody["text"])
}

func TestTelegram_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"ok":false,"description":"Bad Request: chat not found"}`))
	}))
	defer srv.Close()

	tg := NewTelegram(config.TelegramConfig{BotToken: "secret-token", ChatID: "x", BaseURL: srv.URL}, srv.Client())
	err := tg.Notify(context.Background(), "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat not found")
	assert.NotContains(t, err.Error(), "secret-token")
}

func TestTelegram_TransportErrorHidesToken(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	tg := NewTelegram(config.TelegramConfig{BotToken: "secret-token", ChatID: "x", BaseURL: url}, http.DefaultClient)
	err := tg.Notify(context.Background(), "hi")
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "secret-token")
}

func TestWebhook_Notify(t *testing.T) {
	var payload webhookPayload
	var user, pass string
	var ok bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok = r.BasicAuth()
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	wh := NewWebhook(config.WebhookConfig{URL: srv.URL, Username: "u", Password: "p"}, srv.Client())
	require.NoError(t, wh.Notify(context.Background(), "done"))

	assert.True(t, ok)
	assert.Equal(t, "u", user)
	assert.Equal(t, "p", pass)
	assert.Equal(t, "done", payload.Text)
	assert.False(t, payload.SentAt.IsZero())
}

func TestWebhook_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	wh := NewWebhook(config.WebhookConfig{URL: srv.URL}, srv.Client())
	err := wh.Notify(context.Background(), "done")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestMulti_TriesEverySink(t *testing.T) {
	var calls []string
	first := Func(func(ctx context.Context, text string) error {
		calls = append(calls, "first")
		return errors.New("first down")
	})
	second := Func(func(ctx context.Context, text string) error {
		calls = append(calls, "second")
		return nil
	})

	err := Multi{first, second}.Notify(context.Background(), "x")
	require.Error(t, err)
	assert.Equal(t, []string{"first", "second"}, calls)
	assert.Contains(t, err.Error(), "first down")
}

func TestNew_SelectsSinks(t *testing.T) {
	logger := zaptest.NewLogger(t)

	n := New(config.NotifyConfig{}, logger)
	require.IsType(t, Multi{}, n)
	assert.Len(t, n.(Multi), 1)

	n = New(config.NotifyConfig{
		Telegram: config.TelegramConfig{BotToken: "t", ChatID: "c"},
		Webhook:  config.WebhookConfig{URL: "http://example.invalid/hook"},
	}, logger)
	sinks := n.(Multi)
	require.Len(t, sinks, 3)
	assert.IsType(t, &LogNotifier{}, sinks[0])
	assert.IsType(t, &Telegram{}, sinks[1])
	assert.IsType(t, &Webhook{}, sinks[2])
}

func TestBestEffort_LogsAndSwallows(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	logger := zap.New(core)

	failing := Func(func(ctx context.Context, text string) error { return errors.New("sink down") })
	BestEffort(context.Background(), failing, logger, "summary")
	BestEffort(context.Background(), nil, logger, "ignored")

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.True(t, strings.Contains(entries[0].Message, "Notification failed"))
}
