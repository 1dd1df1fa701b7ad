package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/batalovmv/stream-alerts-sub001/internal/adapter/metrics"
	"github.com/batalovmv/stream-alerts-sub001/internal/domain"
	"github.com/batalovmv/stream-alerts-sub001/internal/message"
	"github.com/batalovmv/stream-alerts-sub001/internal/platform/crypto"
	"github.com/batalovmv/stream-alerts-sub001/internal/platform/retry"
	"github.com/batalovmv/stream-alerts-sub001/internal/queue"
)

const DefaultDeliveryTimeout = 15 * time.Second

// Notifier is the queue handler for stream events. Running it twice for the
// same job only sends the message twice; it keeps no other state.
type Notifier struct {
	streamers domain.StreamerRepository
	sender    domain.NotificationSender
	cipher    *crypto.Cipher
	links     message.Links
	timeout   time.Duration
	metrics   *metrics.QueueMetrics
}

var _ queue.Handler = (*Notifier)(nil)

func NewNotifier(
	streamers domain.StreamerRepository,
	sender domain.NotificationSender,
	cipher *crypto.Cipher,
	links message.Links,
	timeout time.Duration,
	m *metrics.QueueMetrics,
) *Notifier {
	if timeout <= 0 {
		timeout = DefaultDeliveryTimeout
	}
	return &Notifier{
		streamers: streamers,
		sender:    sender,
		cipher:    cipher,
		links:     links,
		timeout:   timeout,
		metrics:   m,
	}
}

func (n *Notifier) Handle(ctx context.Context, job *queue.Job) error {
	var ev domain.StreamEvent
	if err := job.Decode(&ev); err != nil {
		return retry.Permanent(err)
	}
	if err := ev.Validate(); err != nil {
		return retry.Permanent(err)
	}

	streamer, err := n.streamers.GetByChannelID(ctx, ev.ChannelID)
	if errors.Is(err, domain.ErrStreamerNotFound) {
		slog.InfoContext(ctx, "No streamer for channel, skipping", "channel_id", ev.ChannelID, "event", ev.Event)
		n.metrics.Delivery("skipped")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load streamer: %w", err)
	}
	if streamer.ChatID == 0 {
		slog.InfoContext(ctx, "Streamer has no chat configured, skipping",
			"streamer_id", streamer.ID, "channel_id", ev.ChannelID, "event", ev.Event)
		n.metrics.Delivery("skipped")
		return nil
	}

	notification, err := n.compose(ev, streamer)
	if err != nil {
		n.metrics.Delivery("failed")
		return err
	}

	sendCtx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	if err := n.sender.Send(sendCtx, notification); err != nil {
		n.metrics.Delivery("failed")
		return fmt.Errorf("failed to deliver notification: %w", err)
	}

	slog.InfoContext(ctx, "Notification sent",
		"streamer_id", streamer.ID, "channel_id", ev.ChannelID, "event", ev.Event, "custom_bot", notification.BotToken != "")
	n.metrics.Delivery("sent")
	return nil
}

func (n *Notifier) compose(ev domain.StreamEvent, streamer *domain.Streamer) (domain.Notification, error) {
	vars := message.EventVars(ev, streamer, n.links)

	notification := domain.Notification{
		ChatID:  streamer.ChatID,
		HTML:    message.RenderHTML(ev.Event, streamer.Template(ev.Event), vars),
		Buttons: message.RenderButtons(streamer.Buttons, vars),
	}

	if streamer.HasCustomBot() {
		token, err := n.cipher.Decrypt(streamer.EncryptedBotToken)
		if err != nil {
			return domain.Notification{}, retry.Permanent(fmt.Errorf("failed to decrypt bot token: %w", err))
		}
		notification.BotToken = token
	}
	return notification, nil
}
