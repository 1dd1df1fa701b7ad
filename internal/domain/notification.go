package domain

import "context"

// Notification is a rendered message ready for delivery.
type Notification struct {
	ChatID  int64
	HTML    string
	Buttons []Button
	// BotToken selects a custom bot. Empty means the default bot.
	BotToken string
}

// NotificationSender delivers a notification to a chat.
// Implementations mark non-retryable failures with retry.Permanent and
// rate limits with retry.AfterDelay.
type NotificationSender interface {
	Send(ctx context.Context, n Notification) error
}
