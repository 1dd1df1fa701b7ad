package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"github.com/batalovmv/stream-alerts-sub001/internal/domain"
)

const DefaultMaxAttempts = 3

// Queue is the producer side. Enqueue returns once the transport has stored the job.
type Queue struct {
	transport   Transport
	clock       clockwork.Clock
	maxAttempts int
}

type Option func(*Queue)

func WithClock(c clockwork.Clock) Option {
	return func(q *Queue) { q.clock = c }
}

func WithMaxAttempts(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.maxAttempts = n
		}
	}
}

func New(transport Transport, opts ...Option) *Queue {
	q := &Queue{
		transport:   transport,
		clock:       clockwork.NewRealClock(),
		maxAttempts: DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// JobID builds <channelId>:<event>:<epochMillis>.
func JobID(ev domain.StreamEvent, millis int64) string {
	return fmt.Sprintf("%s:%s:%d", ev.ChannelID, ev.Event, millis)
}

// Enqueue stores the event as a job named after its event type and returns the job id.
// An id collision is logged and reported as success.
func (q *Queue) Enqueue(ctx context.Context, ev domain.StreamEvent) (string, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return "", fmt.Errorf("failed to encode stream event: %w", err)
	}

	now := q.clock.Now()
	job := &Job{
		ID:          JobID(ev, now.UnixMilli()),
		Name:        string(ev.Event),
		Payload:     payload,
		MaxAttempts: q.maxAttempts,
		State:       StateQueued,
		EnqueuedAt:  now.UTC(),
	}

	added, err := q.transport.Push(ctx, job)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue job %s: %w", job.ID, err)
	}
	if !added {
		slog.InfoContext(ctx, "Duplicate job ignored", "job_id", job.ID, "channel_id", ev.ChannelID, "event", ev.Event)
	}
	return job.ID, nil
}

// Publish implements domain.EventPublisher.
func (q *Queue) Publish(ctx context.Context, ev domain.StreamEvent) (string, error) {
	return q.Enqueue(ctx, ev)
}

var _ domain.EventPublisher = (*Queue)(nil)
