package domain

import (
	"context"

	"github.com/google/uuid"
)

// Authenticator resolves a request credential to a linked streamer.
type Authenticator interface {
	Authenticate(ctx context.Context, credential string) (*Streamer, error)
}

// EventPublisher hands a validated event to the queue and returns the job id.
// A duplicate id is reported as accepted.
type EventPublisher interface {
	Publish(ctx context.Context, event StreamEvent) (string, error)
}

// Preview is a template rendered with sample variables.
type Preview struct {
	Text    string   `json:"text"`
	HTML    string   `json:"html"`
	Buttons []Button `json:"buttons"`
}

// SettingsService manages a streamer's notification settings.
type SettingsService interface {
	Get(ctx context.Context, id uuid.UUID) (*Streamer, error)
	Update(ctx context.Context, id uuid.UUID, settings NotificationSettings) (*Streamer, error)
	SetBotToken(ctx context.Context, id uuid.UUID, token string) error
	ClearBotToken(ctx context.Context, id uuid.UUID) error
	Preview(ctx context.Context, streamer *Streamer, event EventType, template string, buttons []Button) Preview
}
