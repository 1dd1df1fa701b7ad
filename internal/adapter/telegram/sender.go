// Package telegram delivers rendered notifications through the Telegram Bot API.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/batalovmv/stream-alerts-sub001/internal/domain"
	"github.com/batalovmv/stream-alerts-sub001/internal/platform/retry"
)

const DefaultTimeout = 15 * time.Second

// Sender posts sendMessage calls with HTML parse mode and an inline URL keyboard.
// A notification without its own token goes out through the default bot.
type Sender struct {
	defaultToken string
	endpoint     string
	httpClient   *http.Client
}

var _ domain.NotificationSender = (*Sender)(nil)

type Option func(*Sender)

func WithHTTPClient(hc *http.Client) Option {
	return func(s *Sender) { s.httpClient = hc }
}

// NewSender builds a sender. endpoint is a format with two %s verbs for the
// token and the method, as in tgbotapi.APIEndpoint; empty means the public API.
func NewSender(defaultToken, endpoint string, timeout time.Duration, opts ...Option) *Sender {
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	s := &Sender{
		defaultToken: defaultToken,
		endpoint:     endpoint,
		httpClient:   &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HasDefaultBot reports whether notifications without a custom token can be sent.
func (s *Sender) HasDefaultBot() bool {
	return s.defaultToken != ""
}

func (s *Sender) Send(ctx context.Context, n domain.Notification) error {
	token := n.BotToken
	if token == "" {
		token = s.defaultToken
	}
	if token == "" || n.ChatID == 0 {
		return retry.Permanent(domain.ErrNoDeliveryTarget)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(n.ChatID, n.HTML)
	msg.ParseMode = tgbotapi.ModeHTML
	if len(n.Buttons) > 0 {
		msg.ReplyMarkup = keyboard(n.Buttons)
	}

	if _, err := s.bot(ctx, token).Send(msg); err != nil {
		return classify(err)
	}
	return nil
}

// bot builds a request-scoped client; tgbotapi has no context support of its own.
func (s *Sender) bot(ctx context.Context, token string) *tgbotapi.BotAPI {
	bot := &tgbotapi.BotAPI{
		Token:  token,
		Client: contextClient{ctx: ctx, client: s.httpClient},
		Buffer: 100,
	}
	bot.SetAPIEndpoint(s.endpoint)
	return bot
}

// keyboard renders one URL button per row.
func keyboard(buttons []domain.Button) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(buttons))
	for _, b := range buttons {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonURL(b.Label, b.URL)))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// classify maps Bot API failures onto the retry policy: rate limits carry the
// server's delay, client errors are final, everything else is retried.
func classify(err error) error {
	var apiErr *tgbotapi.Error
	if !errors.As(err, &apiErr) {
		return fmt.Errorf("telegram request failed: %w", err)
	}

	wrapped := fmt.Errorf("telegram error %d: %s", apiErr.Code, apiErr.Message)
	switch {
	case apiErr.Code == http.StatusTooManyRequests:
		return retry.AfterDelay(wrapped, time.Duration(apiErr.RetryAfter)*time.Second)
	case apiErr.Code >= 400 && apiErr.Code < 500:
		return retry.Permanent(wrapped)
	default:
		return wrapped
	}
}

type contextClient struct {
	ctx    context.Context
	client *http.Client
}

func (c contextClient) Do(req *http.Request) (*http.Response, error) {
	return c.client.Do(req.WithContext(c.ctx))
}
