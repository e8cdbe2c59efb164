package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testToken = "123456:secret-token"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestTelegram(t *testing.T, baseURL, token string, client *http.Client) *Telegram {
	t.Helper()
	tg, err := NewTelegram(baseURL, token, client, discardLogger())
	require.NoError(t, err)
	return tg
}

func TestTelegramSend_Success(t *testing.T) {
	got := map[string]string{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/bot"+testToken+"/sendMessage", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		for _, key := range []string{"chat_id", "text", "parse_mode"} {
			got[key] = r.FormValue(key)
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok": true, "result": {"message_id": 7, "date": 0, "chat": {"id": -1001234567890, "type": "channel"}}}`))
	}))
	defer server.Close()

	tg := newTestTelegram(t, server.URL, testToken, server.Client())
	err := tg.Send(context.Background(), "-1001234567890", "<b>hi</b>")
	require.NoError(t, err)

	assert.Equal(t, "-1001234567890", got["chat_id"])
	assert.Equal(t, "<b>hi</b>", got["text"])
	assert.Equal(t, "HTML", got["parse_mode"])
}

func TestTelegramSend_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"ok": false, "error_code": 400, "description": "Bad Request: chat not found"}`))
	}))
	defer server.Close()

	tg := newTestTelegram(t, server.URL, testToken, server.Client())
	err := tg.Send(context.Background(), "-100", "hi")
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "sendMessage", apiErr.Method)
	assert.Equal(t, 400, apiErr.ErrorCode)
	assert.Contains(t, err.Error(), "chat not found")
}

func TestTelegramSend_EmptyChannel(t *testing.T) {
	tg := newTestTelegram(t, "http://unused.invalid", testToken, nil)
	assert.ErrorContains(t, tg.Send(context.Background(), "", "hi"), "channel id")
}

func TestTelegramSend_TransportErrorRedactsToken(t *testing.T) {
	tg := newTestTelegram(t, "http://127.0.0.1:1", testToken, nil)
	err := tg.Send(context.Background(), "-100", "hi")
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "secret-token")
	assert.Contains(t, err.Error(), "<redacted>")
}

func TestTelegramGetMe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/bot" + testToken + "/getMe":
			w.Write([]byte(`{"ok": true, "result": {"id": 42, "is_bot": true, "first_name": "Watcher", "username": "trc20_watch_bot"}}`))
		default:
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"ok": false, "error_code": 401, "description": "Unauthorized"}`))
		}
	}))
	defer server.Close()

	me, err := newTestTelegram(t, server.URL, testToken, server.Client()).GetMe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(42), me.ID)
	assert.Equal(t, "trc20_watch_bot", me.Username)

	_, err = newTestTelegram(t, server.URL, "987:bad", server.Client()).GetMe(context.Background())
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 401, apiErr.ErrorCode)
	assert.ErrorContains(t, err, "Unauthorized")
}

func TestTelegramGetChat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "@payments", r.FormValue("chat_id"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok": true, "result": {"id": -1001, "type": "channel", "title": "Payments"}}`))
	}))
	defer server.Close()

	chat, err := newTestTelegram(t, server.URL, testToken, server.Client()).GetChat(context.Background(), "@payments")
	require.NoError(t, err)
	assert.Equal(t, "Payments", chat.Title)
	assert.Equal(t, "channel", chat.Type)
}

func TestTelegram_MalformedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(`<html>bad gateway</html>`))
	}))
	defer server.Close()

	err := newTestTelegram(t, server.URL, testToken, server.Client()).Send(context.Background(), "-1", "x")
	require.Error(t, err)
	var apiErr *APIError
	assert.False(t, errors.As(err, &apiErr))
	assert.Contains(t, err.Error(), "sendMessage")
}

func TestMockNotifier(t *testing.T) {
	m := NewMockNotifier()
	ctx := context.Background()

	m.FailNext(1, errors.New("flood wait"))
	assert.Error(t, m.Send(ctx, "c", "one"))
	assert.NoError(t, m.Send(ctx, "c", "two"))

	m.SetSendError(errors.New("down"))
	assert.Error(t, m.Send(ctx, "c", "three"))
	assert.Error(t, m.Send(ctx, "c", "four"))

	assert.Equal(t, 4, m.Attempts())
	assert.Equal(t, []Message{{ChannelID: "c", HTML: "two"}}, m.GetSentMessages())

	m.Reset()
	assert.NoError(t, m.Send(ctx, "c", "five"))
	assert.Len(t, m.GetSentMessages(), 1)
}
