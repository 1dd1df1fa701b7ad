package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Button is an inline URL button. Label and URL may contain {placeholders}.
type Button struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

type Streamer struct {
	ID          uuid.UUID
	AccountID   string
	ChannelID   string
	ChannelSlug string
	DisplayName string
	CreatedAt   time.Time
	UpdatedAt   time.Time

	NotificationSettings

	// Base64 AES-GCM ciphertext of a custom bot token, empty when unset.
	EncryptedBotToken string
}

// NotificationSettings is the user-editable part of a streamer.
// A nil or empty template means "use the default"; a nil Buttons slice means default buttons.
type NotificationSettings struct {
	ChatID          int64
	OnlineTemplate  *string
	OfflineTemplate *string
	Buttons         []Button
}

func (s *Streamer) HasCustomBot() bool {
	return s.EncryptedBotToken != ""
}

// Template returns the stored template for the event, or "" when none is set.
func (s *NotificationSettings) Template(event EventType) string {
	var t *string
	switch event {
	case EventStreamOnline:
		t = s.OnlineTemplate
	case EventStreamOffline:
		t = s.OfflineTemplate
	}
	if t == nil {
		return ""
	}
	return *t
}

type StreamerRepository interface {
	// Upsert creates or refreshes the streamer for a linked profile, keyed by account id.
	Upsert(ctx context.Context, profile *Profile) (*Streamer, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Streamer, error)
	GetByChannelID(ctx context.Context, channelID string) (*Streamer, error)
	UpdateSettings(ctx context.Context, id uuid.UUID, settings NotificationSettings) (*Streamer, error)
	// SetBotToken stores an encrypted token; an empty value clears it.
	SetBotToken(ctx context.Context, id uuid.UUID, encrypted string) error
}
