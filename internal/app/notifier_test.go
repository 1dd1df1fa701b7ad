package app

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/batalovmv/stream-alerts-sub001/internal/adapter/metrics"
	"github.com/batalovmv/stream-alerts-sub001/internal/domain"
	"github.com/batalovmv/stream-alerts-sub001/internal/message"
	"github.com/batalovmv/stream-alerts-sub001/internal/platform/crypto"
	"github.com/batalovmv/stream-alerts-sub001/internal/platform/crypto/cryptotest"
	"github.com/batalovmv/stream-alerts-sub001/internal/platform/retry"
	"github.com/batalovmv/stream-alerts-sub001/internal/queue"
)

var testLinks = message.Links{
	StreamURL:  "https://twitch.tv/{channel_slug}",
	ProfileURL: "https://memelab.ru/{channel_slug}",
}

func onlineEvent() domain.StreamEvent {
	return domain.StreamEvent{
		Event:        domain.EventStreamOnline,
		ChannelID:    "ch-1",
		ChannelSlug:  "alice",
		StreamerName: "Alice & Co",
		Title:        "<Speedrun>",
		GameName:     "Celeste",
	}
}

func jobFor(t *testing.T, ev domain.StreamEvent) *queue.Job {
	t.Helper()
	payload, err := json.Marshal(ev)
	require.NoError(t, err)
	return &queue.Job{ID: "ch-1:stream.online:1", Name: string(ev.Event), Payload: payload, MaxAttempts: 3}
}

func streamerWithChat() *domain.Streamer {
	return &domain.Streamer{
		ID:                   uuid.New(),
		ChannelID:            "ch-1",
		ChannelSlug:          "alice",
		DisplayName:          "Alice",
		NotificationSettings: domain.NotificationSettings{ChatID: -100500},
	}
}

func newNotifier(repo domain.StreamerRepository, sender domain.NotificationSender, cipher *crypto.Cipher) (*Notifier, *metrics.QueueMetrics) {
	m := metrics.NewQueueMetrics(prometheus.NewRegistry())
	return NewNotifier(repo, sender, cipher, testLinks, time.Second, m), m
}

func TestNotifier_DefaultTemplateAndButtons(t *testing.T) {
	var sent []domain.Notification
	repo := &mockStreamerRepo{getByChannelIDFn: func(_ context.Context, channelID string) (*domain.Streamer, error) {
		assert.Equal(t, "ch-1", channelID)
		return streamerWithChat(), nil
	}}
	sender := &mockSender{sendFn: func(_ context.Context, n domain.Notification) error {
		sent = append(sent, n)
		return nil
	}}
	n, m := newNotifier(repo, sender, cryptotest.Cipher())

	require.NoError(t, n.Handle(context.Background(), jobFor(t, onlineEvent())))
	require.Len(t, sent, 1)

	got := sent[0]
	assert.Equal(t, int64(-100500), got.ChatID)
	assert.Equal(t, "🔴 Стрим начался!\n\nAlice &amp; Co в эфире: &lt;Speedrun&gt;\n🎮 Celeste", got.HTML)
	assert.Equal(t, []domain.Button{
		{Label: message.LabelWatchStream, URL: "https://twitch.tv/alice"},
		{Label: message.LabelProfile, URL: "https://memelab.ru/alice"},
	}, got.Buttons)
	assert.Empty(t, got.BotToken)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Deliveries.WithLabelValues("sent")))
}

func TestNotifier_CustomTemplateAndButtons(t *testing.T) {
	offline := "{streamer_name} ушёл после {duration}"
	streamer := streamerWithChat()
	streamer.OfflineTemplate = &offline
	streamer.Buttons = []domain.Button{
		{Label: "VOD", URL: "{stream_url}/videos"},
		{Label: "Broken", URL: "{missing}"},
	}
	repo := &mockStreamerRepo{getByChannelIDFn: func(context.Context, string) (*domain.Streamer, error) {
		return streamer, nil
	}}
	var got domain.Notification
	sender := &mockSender{sendFn: func(_ context.Context, n domain.Notification) error {
		got = n
		return nil
	}}
	n, _ := newNotifier(repo, sender, cryptotest.Cipher())

	ev := domain.StreamEvent{
		Event:       domain.EventStreamOffline,
		ChannelID:   "ch-1",
		ChannelSlug: "alice",
		StartedAt:   "2024-05-01T18:00:00Z",
		EndedAt:     "2024-05-01T20:15:00Z",
	}
	require.NoError(t, n.Handle(context.Background(), jobFor(t, ev)))

	assert.Equal(t, "Alice ушёл после 2 ч 15 мин", got.HTML)
	assert.Equal(t, []domain.Button{{Label: "VOD", URL: "https://twitch.tv/alice/videos"}}, got.Buttons)
}

func TestNotifier_CustomBotToken(t *testing.T) {
	cipher := cryptotest.Cipher()
	encrypted, err := cipher.Encrypt("123456:custom")
	require.NoError(t, err)

	streamer := streamerWithChat()
	streamer.EncryptedBotToken = encrypted
	repo := &mockStreamerRepo{getByChannelIDFn: func(context.Context, string) (*domain.Streamer, error) {
		return streamer, nil
	}}
	var got domain.Notification
	sender := &mockSender{sendFn: func(_ context.Context, n domain.Notification) error {
		got = n
		return nil
	}}
	n, _ := newNotifier(repo, sender, cipher)

	require.NoError(t, n.Handle(context.Background(), jobFor(t, onlineEvent())))
	assert.Equal(t, "123456:custom", got.BotToken)
}

func TestNotifier_UndecryptableTokenIsPermanent(t *testing.T) {
	streamer := streamerWithChat()
	streamer.EncryptedBotToken = "c29tZXRoaW5n"
	repo := &mockStreamerRepo{getByChannelIDFn: func(context.Context, string) (*domain.Streamer, error) {
		return streamer, nil
	}}
	sender := &mockSender{sendFn: func(context.Context, domain.Notification) error {
		t.Error("sender must not be called")
		return nil
	}}

	for _, cipher := range []*crypto.Cipher{cryptotest.Cipher(), cryptotest.Unavailable()} {
		n, m := newNotifier(repo, sender, cipher)
		err := n.Handle(context.Background(), jobFor(t, onlineEvent()))
		require.Error(t, err)
		assert.True(t, retry.IsPermanent(err))
		assert.Equal(t, 1.0, testutil.ToFloat64(m.Deliveries.WithLabelValues("failed")))
	}
}

func TestNotifier_SkipsUnknownChannel(t *testing.T) {
	sender := &mockSender{sendFn: func(context.Context, domain.Notification) error {
		t.Error("sender must not be called")
		return nil
	}}
	n, m := newNotifier(&mockStreamerRepo{}, sender, cryptotest.Cipher())

	require.NoError(t, n.Handle(context.Background(), jobFor(t, onlineEvent())))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Deliveries.WithLabelValues("skipped")))
}

func TestNotifier_SkipsStreamerWithoutChat(t *testing.T) {
	repo := &mockStreamerRepo{getByChannelIDFn: func(context.Context, string) (*domain.Streamer, error) {
		return &domain.Streamer{ID: uuid.New(), ChannelID: "ch-1"}, nil
	}}
	sender := &mockSender{sendFn: func(context.Context, domain.Notification) error {
		t.Error("sender must not be called")
		return nil
	}}
	n, _ := newNotifier(repo, sender, cryptotest.Cipher())

	assert.NoError(t, n.Handle(context.Background(), jobFor(t, onlineEvent())))
}

func TestNotifier_RepositoryErrorIsRetryable(t *testing.T) {
	repo := &mockStreamerRepo{getByChannelIDFn: func(context.Context, string) (*domain.Streamer, error) {
		return nil, errors.New("connection refused")
	}}
	n, _ := newNotifier(repo, &mockSender{}, cryptotest.Cipher())

	err := n.Handle(context.Background(), jobFor(t, onlineEvent()))
	require.Error(t, err)
	assert.False(t, retry.IsPermanent(err))
}

func TestNotifier_SendErrorsKeepClassification(t *testing.T) {
	repo := &mockStreamerRepo{getByChannelIDFn: func(context.Context, string) (*domain.Streamer, error) {
		return streamerWithChat(), nil
	}}

	transient := &mockSender{sendFn: func(context.Context, domain.Notification) error {
		return errors.New("timeout")
	}}
	n, _ := newNotifier(repo, transient, cryptotest.Cipher())
	err := n.Handle(context.Background(), jobFor(t, onlineEvent()))
	require.Error(t, err)
	assert.False(t, retry.IsPermanent(err))

	final := &mockSender{sendFn: func(context.Context, domain.Notification) error {
		return retry.Permanent(errors.New("chat not found"))
	}}
	n, _ = newNotifier(repo, final, cryptotest.Cipher())
	err = n.Handle(context.Background(), jobFor(t, onlineEvent()))
	assert.True(t, retry.IsPermanent(err))

	limited := &mockSender{sendFn: func(context.Context, domain.Notification) error {
		return retry.AfterDelay(errors.New("too many requests"), 3*time.Second)
	}}
	n, _ = newNotifier(repo, limited, cryptotest.Cipher())
	err = n.Handle(context.Background(), jobFor(t, onlineEvent()))
	delay, ok := retry.DelayHint(err)
	assert.True(t, ok)
	assert.Equal(t, 3*time.Second, delay)
}

func TestNotifier_DeliveryIsBounded(t *testing.T) {
	repo := &mockStreamerRepo{getByChannelIDFn: func(context.Context, string) (*domain.Streamer, error) {
		return streamerWithChat(), nil
	}}
	sender := &mockSender{sendFn: func(ctx context.Context, _ domain.Notification) error {
		deadline, ok := ctx.Deadline()
		require.True(t, ok)
		assert.WithinDuration(t, time.Now().Add(time.Second), deadline, 500*time.Millisecond)
		return nil
	}}
	n, _ := newNotifier(repo, sender, cryptotest.Cipher())

	require.NoError(t, n.Handle(context.Background(), jobFor(t, onlineEvent())))
}

func TestNotifier_InvalidPayloadIsPermanent(t *testing.T) {
	n, _ := newNotifier(&mockStreamerRepo{}, &mockSender{}, cryptotest.Cipher())

	err := n.Handle(context.Background(), &queue.Job{ID: "x", Payload: []byte(`{not json`)})
	assert.True(t, retry.IsPermanent(err))

	err = n.Handle(context.Background(), jobFor(t, domain.StreamEvent{Event: "stream.unknown", ChannelID: "ch-1"}))
	assert.True(t, retry.IsPermanent(err))
	assert.ErrorIs(t, err, domain.ErrInvalidEvent)
}
