package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

const (
	// DefaultTelegramAPIURL is the public Bot API host.
	DefaultTelegramAPIURL = "https://api.telegram.org"

	// DefaultTelegramTimeout bounds every Bot API call.
	DefaultTelegramTimeout = 15 * time.Second
)

// APIError is a Bot API call the server answered with ok=false.
type APIError struct {
	Method      string
	ErrorCode   int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram %s failed (%d): %s", e.Method, e.ErrorCode, e.Description)
}

// User is the bot identity returned by getMe.
type User struct {
	ID        int64
	IsBot     bool
	FirstName string
	Username  string
}

// Chat is the channel returned by getChat.
type Chat struct {
	ID       int64
	Type     string
	Title    string
	Username string
}

// Telegram is a Notifier backed by the Telegram Bot API.
type Telegram struct {
	api    *bot.Bot
	token  string
	logger *slog.Logger
}

// NewTelegram creates a Bot API client without contacting the server. An empty
// baseURL selects the public API and a nil httpClient gets DefaultTelegramTimeout.
func NewTelegram(baseURL, token string, httpClient *http.Client, logger *slog.Logger) (*Telegram, error) {
	baseURL = strings.TrimRight(baseURL, "/")
	if baseURL == "" {
		baseURL = DefaultTelegramAPIURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTelegramTimeout}
	}
	if logger == nil {
		logger = slog.Default()
	}

	api, err := bot.New(token,
		bot.WithSkipGetMe(),
		bot.WithServerURL(baseURL),
		bot.WithHTTPClient(DefaultTelegramTimeout, httpClient),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram client: %w", err)
	}

	return &Telegram{
		api:    api,
		token:  token,
		logger: logger.With("component", "telegram"),
	}, nil
}

// Send implements Notifier using sendMessage with HTML parse mode.
func (t *Telegram) Send(ctx context.Context, channelID, html string) error {
	if channelID == "" {
		return fmt.Errorf("channel id is not set")
	}
	_, err := t.api.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    channelID,
		Text:      html,
		ParseMode: models.ParseModeHTML,
	})
	if err != nil {
		return t.wrap("sendMessage", err)
	}
	t.logger.DebugContext(ctx, "message sent", "channel_id", channelID, "length", len(html))
	return nil
}

// GetMe returns the bot identity. It fails when the token is invalid.
func (t *Telegram) GetMe(ctx context.Context) (*User, error) {
	u, err := t.api.GetMe(ctx)
	if err != nil {
		return nil, t.wrap("getMe", err)
	}
	return &User{ID: u.ID, IsBot: u.IsBot, FirstName: u.FirstName, Username: u.Username}, nil
}

// GetChat returns the chat a channel id refers to, confirming the bot can reach it.
func (t *Telegram) GetChat(ctx context.Context, channelID string) (*Chat, error) {
	c, err := t.api.GetChat(ctx, &bot.GetChatParams{ChatID: channelID})
	if err != nil {
		return nil, t.wrap("getChat", err)
	}
	return &Chat{ID: c.ID, Type: string(c.Type), Title: c.Title, Username: c.Username}, nil
}

// wrap maps library errors onto APIError and strips the token, which
// transport errors carry inside the request URL.
func (t *Telegram) wrap(method string, err error) error {
	msg := t.redact(err)
	for _, known := range []struct {
		target error
		code   int
	}{
		{bot.ErrorBadRequest, http.StatusBadRequest},
		{bot.ErrorUnauthorized, http.StatusUnauthorized},
		{bot.ErrorForbidden, http.StatusForbidden},
		{bot.ErrorNotFound, http.StatusNotFound},
	} {
		if errors.Is(err, known.target) {
			return &APIError{Method: method, ErrorCode: known.code, Description: msg}
		}
	}
	return fmt.Errorf("telegram %s request failed: %s", method, msg)
}

func (t *Telegram) redact(err error) string {
	if t.token == "" {
		return err.Error()
	}
	return strings.ReplaceAll(err.Error(), t.token, "<redacted>")
}
