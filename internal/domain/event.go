package domain

import (
	"fmt"
	"time"
)

type EventType string

const (
	EventStreamOnline  EventType = "stream.online"
	EventStreamOffline EventType = "stream.offline"
)

func (t EventType) Valid() bool {
	return t == EventStreamOnline || t == EventStreamOffline
}

// StreamEvent is the webhook payload. It is immutable once enqueued.
type StreamEvent struct {
	Event        EventType `json:"event"`
	ChannelID    string    `json:"channelId"`
	ChannelSlug  string    `json:"channelSlug"`
	StreamerName string    `json:"streamerName,omitempty"`
	Title        string    `json:"title,omitempty"`
	GameName     string    `json:"gameName,omitempty"`
	StreamURL    string    `json:"streamUrl,omitempty"`
	ThumbnailURL string    `json:"thumbnailUrl,omitempty"`
	StartedAt    string    `json:"startedAt,omitempty"`
	EndedAt      string    `json:"endedAt,omitempty"`
}

// Validate checks the fields needed to route the event.
func (e StreamEvent) Validate() error {
	if !e.Event.Valid() {
		return fmt.Errorf("%w: unknown event %q", ErrInvalidEvent, e.Event)
	}
	if e.ChannelID == "" {
		return fmt.Errorf("%w: channelId is required", ErrInvalidEvent)
	}
	return nil
}

// Duration returns EndedAt minus StartedAt when both are RFC 3339 timestamps.
func (e StreamEvent) Duration() (time.Duration, bool) {
	if e.StartedAt == "" || e.EndedAt == "" {
		return 0, false
	}
	start, err := time.Parse(time.RFC3339, e.StartedAt)
	if err != nil {
		return 0, false
	}
	end, err := time.Parse(time.RFC3339, e.EndedAt)
	if err != nil || end.Before(start) {
		return 0, false
	}
	return end.Sub(start), true
}
