package app

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/batalovmv/stream-alerts-sub001/internal/domain"
	"github.com/batalovmv/stream-alerts-sub001/internal/message"
	"github.com/batalovmv/stream-alerts-sub001/internal/platform/crypto"
	apperrors "github.com/batalovmv/stream-alerts-sub001/internal/platform/errors"
)

const (
	maxTemplateLength = 4096
	maxButtons        = 10
	maxButtonLabel    = 64
)

type SettingsService struct {
	streamers domain.StreamerRepository
	cipher    *crypto.Cipher
	links     message.Links
}

var _ domain.SettingsService = (*SettingsService)(nil)

func NewSettingsService(streamers domain.StreamerRepository, cipher *crypto.Cipher, links message.Links) *SettingsService {
	return &SettingsService{streamers: streamers, cipher: cipher, links: links}
}

func (s *SettingsService) Get(ctx context.Context, id uuid.UUID) (*domain.Streamer, error) {
	return s.streamers.GetByID(ctx, id)
}

func (s *SettingsService) Update(ctx context.Context, id uuid.UUID, settings domain.NotificationSettings) (*domain.Streamer, error) {
	if err := validateSettings(settings); err != nil {
		return nil, err
	}
	return s.streamers.UpdateSettings(ctx, id, settings)
}

func validateSettings(settings domain.NotificationSettings) error {
	if tooLong(settings.OnlineTemplate) {
		return apperrors.ValidationError(fmt.Sprintf("onlineTemplate must be at most %d characters", maxTemplateLength))
	}
	if tooLong(settings.OfflineTemplate) {
		return apperrors.ValidationError(fmt.Sprintf("offlineTemplate must be at most %d characters", maxTemplateLength))
	}
	if len(settings.Buttons) > maxButtons {
		return apperrors.ValidationError(fmt.Sprintf("at most %d buttons are allowed", maxButtons))
	}
	for i, b := range settings.Buttons {
		if strings.TrimSpace(b.Label) == "" || strings.TrimSpace(b.URL) == "" {
			return apperrors.ValidationError(fmt.Sprintf("button %d needs a label and a url", i+1))
		}
		if utf8.RuneCountInString(b.Label) > maxButtonLabel {
			return apperrors.ValidationError(fmt.Sprintf("button %d label must be at most %d characters", i+1, maxButtonLabel))
		}
	}
	return nil
}

func tooLong(tmpl *string) bool {
	return tmpl != nil && utf8.RuneCountInString(*tmpl) > maxTemplateLength
}

// SetBotToken encrypts and stores a custom bot token.
// Without a usable encryption key the feature is unavailable rather than broken.
func (s *SettingsService) SetBotToken(ctx context.Context, id uuid.UUID, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return apperrors.ValidationError("botToken is required")
	}
	if !s.cipher.Available() {
		return apperrors.UnavailableError("custom bot tokens are not configured", s.cipher.KeyError())
	}

	encrypted, err := s.cipher.Encrypt(token)
	if err != nil {
		return fmt.Errorf("failed to encrypt bot token: %w", err)
	}
	return s.streamers.SetBotToken(ctx, id, encrypted)
}

func (s *SettingsService) ClearBotToken(ctx context.Context, id uuid.UUID) error {
	return s.streamers.SetBotToken(ctx, id, "")
}

// Preview renders a template with sample values for the streamer. An empty
// template previews the default; nil buttons preview the default buttons.
func (s *SettingsService) Preview(_ context.Context, streamer *domain.Streamer, event domain.EventType, template string, buttons []domain.Button) domain.Preview {
	vars := message.SampleVars(streamer, s.links)
	text := message.Render(event, template, vars)
	return domain.Preview{
		Text:    text,
		HTML:    message.EscapeHTML(text),
		Buttons: message.RenderButtons(buttons, vars),
	}
}
