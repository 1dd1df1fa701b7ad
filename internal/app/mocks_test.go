package app

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/batalovmv/stream-alerts-sub001/internal/domain"
)

// --- Mock implementations ---

type mockProfileCache struct {
	getFn func(ctx context.Context, digest string) domain.Lookup
	setFn func(ctx context.Context, digest string, profile *domain.Profile) error
}

func (m *mockProfileCache) Get(ctx context.Context, digest string) domain.Lookup {
	if m.getFn != nil {
		return m.getFn(ctx, digest)
	}
	return domain.Miss()
}

func (m *mockProfileCache) Set(ctx context.Context, digest string, profile *domain.Profile) error {
	if m.setFn != nil {
		return m.setFn(ctx, digest, profile)
	}
	return nil
}

type mockIdentity struct {
	viewerFn func(ctx context.Context, credential string) (*domain.Profile, error)
}

func (m *mockIdentity) Viewer(ctx context.Context, credential string) (*domain.Profile, error) {
	if m.viewerFn != nil {
		return m.viewerFn(ctx, credential)
	}
	return nil, fmt.Errorf("not implemented")
}

type mockStreamerRepo struct {
	upsertFn         func(ctx context.Context, profile *domain.Profile) (*domain.Streamer, error)
	getByIDFn        func(ctx context.Context, id uuid.UUID) (*domain.Streamer, error)
	getByChannelIDFn func(ctx context.Context, channelID string) (*domain.Streamer, error)
	updateSettingsFn func(ctx context.Context, id uuid.UUID, settings domain.NotificationSettings) (*domain.Streamer, error)
	setBotTokenFn    func(ctx context.Context, id uuid.UUID, encrypted string) error
}

func (m *mockStreamerRepo) Upsert(ctx context.Context, profile *domain.Profile) (*domain.Streamer, error) {
	if m.upsertFn != nil {
		return m.upsertFn(ctx, profile)
	}
	return &domain.Streamer{
		ID:          uuid.New(),
		AccountID:   profile.AccountID,
		ChannelID:   profile.ChannelID,
		ChannelSlug: profile.Channel.Slug,
		DisplayName: profile.DisplayName,
	}, nil
}

func (m *mockStreamerRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Streamer, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, fmt.Errorf("not implemented")
}

func (m *mockStreamerRepo) GetByChannelID(ctx context.Context, channelID string) (*domain.Streamer, error) {
	if m.getByChannelIDFn != nil {
		return m.getByChannelIDFn(ctx, channelID)
	}
	return nil, domain.ErrStreamerNotFound
}

func (m *mockStreamerRepo) UpdateSettings(ctx context.Context, id uuid.UUID, settings domain.NotificationSettings) (*domain.Streamer, error) {
	if m.updateSettingsFn != nil {
		return m.updateSettingsFn(ctx, id, settings)
	}
	return &domain.Streamer{ID: id, NotificationSettings: settings}, nil
}

func (m *mockStreamerRepo) SetBotToken(ctx context.Context, id uuid.UUID, encrypted string) error {
	if m.setBotTokenFn != nil {
		return m.setBotTokenFn(ctx, id, encrypted)
	}
	return nil
}

type mockSender struct {
	sendFn func(ctx context.Context, n domain.Notification) error
}

func (m *mockSender) Send(ctx context.Context, n domain.Notification) error {
	if m.sendFn != nil {
		return m.sendFn(ctx, n)
	}
	return nil
}

func linkedProfile() *domain.Profile {
	return &domain.Profile{
		AccountID:   "acc-1",
		DisplayName: "Alice",
		ChannelID:   "ch-1",
		Channel:     &domain.Channel{ID: "ch-1", Slug: "alice", Name: "Alice"},
	}
}
