package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/batalovmv/stream-alerts-sub001/internal/domain"
)

// streamerColumns must match the Scan order in scanStreamer.
const streamerColumns = `id, account_id, channel_id, channel_slug, display_name, chat_id,
	online_template, offline_template, buttons, encrypted_bot_token, created_at, updated_at`

type StreamerRepo struct {
	pool *pgxpool.Pool
}

var _ domain.StreamerRepository = (*StreamerRepo)(nil)

func NewStreamerRepo(pool *pgxpool.Pool) *StreamerRepo {
	return &StreamerRepo{pool: pool}
}

func scanStreamer(row pgx.Row) (*domain.Streamer, error) {
	var (
		s       domain.Streamer
		buttons []byte
	)
	err := row.Scan(
		&s.ID, &s.AccountID, &s.ChannelID, &s.ChannelSlug, &s.DisplayName, &s.ChatID,
		&s.OnlineTemplate, &s.OfflineTemplate, &buttons, &s.EncryptedBotToken, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if buttons != nil {
		if err := json.Unmarshal(buttons, &s.Buttons); err != nil {
			return nil, fmt.Errorf("failed to decode buttons: %w", err)
		}
		if s.Buttons == nil {
			s.Buttons = []domain.Button{}
		}
	}
	return &s, nil
}

// encodeButtons keeps nil (use defaults) distinct from an empty list (no buttons).
func encodeButtons(buttons []domain.Button) ([]byte, error) {
	if buttons == nil {
		return nil, nil
	}
	return json.Marshal(buttons)
}

func (r *StreamerRepo) Upsert(ctx context.Context, profile *domain.Profile) (*domain.Streamer, error) {
	if !profile.Linked() {
		return nil, domain.ErrNoChannelLinked
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO streamers (id, account_id, channel_id, channel_slug, display_name)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (account_id) DO UPDATE SET
			channel_id   = EXCLUDED.channel_id,
			channel_slug = EXCLUDED.channel_slug,
			display_name = EXCLUDED.display_name,
			updated_at   = now()
		RETURNING `+streamerColumns,
		uuid.New(), profile.AccountID, profile.ChannelID, profile.Channel.Slug, displayName(profile),
	)
	s, err := scanStreamer(row)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert streamer: %w", err)
	}
	return s, nil
}

func displayName(p *domain.Profile) string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return p.Channel.Name
}

func (r *StreamerRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Streamer, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+streamerColumns+` FROM streamers WHERE id = $1`, id)
	s, err := scanStreamer(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrStreamerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get streamer by ID: %w", err)
	}
	return s, nil
}

func (r *StreamerRepo) GetByChannelID(ctx context.Context, channelID string) (*domain.Streamer, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+streamerColumns+` FROM streamers WHERE channel_id = $1`, channelID)
	s, err := scanStreamer(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrStreamerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get streamer by channel ID: %w", err)
	}
	return s, nil
}

func (r *StreamerRepo) UpdateSettings(ctx context.Context, id uuid.UUID, settings domain.NotificationSettings) (*domain.Streamer, error) {
	buttons, err := encodeButtons(settings.Buttons)
	if err != nil {
		return nil, fmt.Errorf("failed to encode buttons: %w", err)
	}

	row := r.pool.QueryRow(ctx, `
		UPDATE streamers SET
			chat_id          = $2,
			online_template  = $3,
			offline_template = $4,
			buttons          = $5,
			updated_at       = now()
		WHERE id = $1
		RETURNING `+streamerColumns,
		id, settings.ChatID, settings.OnlineTemplate, settings.OfflineTemplate, buttons,
	)
	s, err := scanStreamer(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrStreamerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update settings: %w", err)
	}
	return s, nil
}

func (r *StreamerRepo) SetBotToken(ctx context.Context, id uuid.UUID, encrypted string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE streamers SET encrypted_bot_token = $2, updated_at = now() WHERE id = $1`,
		id, encrypted,
	)
	if err != nil {
		return fmt.Errorf("failed to set bot token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrStreamerNotFound
	}
	return nil
}
