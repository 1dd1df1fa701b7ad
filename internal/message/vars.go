package message

import (
	"fmt"
	"time"

	"github.com/batalovmv/stream-alerts-sub001/internal/domain"
)

// Links holds URL templates resolved against {channel_slug}.
type Links struct {
	StreamURL  string
	ProfileURL string
}

// EventVars builds the variables for a stream event. The event's own fields win;
// the streamer record fills gaps such as a missing name or slug.
func EventVars(ev domain.StreamEvent, streamer *domain.Streamer, links Links) Vars {
	vars := Vars{
		VarStreamerName: ev.StreamerName,
		VarStreamTitle:  ev.Title,
		VarGameName:     ev.GameName,
		VarChannelSlug:  ev.ChannelSlug,
		VarThumbnailURL: ev.ThumbnailURL,
		VarStreamURL:    ev.StreamURL,
	}

	if streamer != nil {
		if vars[VarStreamerName] == "" {
			vars[VarStreamerName] = streamer.DisplayName
		}
		if vars[VarChannelSlug] == "" {
			vars[VarChannelSlug] = streamer.ChannelSlug
		}
	}

	links.apply(vars)

	if d, ok := ev.Duration(); ok {
		vars[VarDuration] = FormatDuration(d)
	}
	return vars
}

// SampleVars returns placeholder values used by the template preview.
func SampleVars(streamer *domain.Streamer, links Links) Vars {
	vars := Vars{
		VarStreamerName: "Streamer",
		VarStreamTitle:  "Тестовый стрим",
		VarGameName:     "Just Chatting",
		VarChannelSlug:  "streamer",
		VarDuration:     FormatDuration(2*time.Hour + 15*time.Minute),
	}
	if streamer != nil {
		if streamer.DisplayName != "" {
			vars[VarStreamerName] = streamer.DisplayName
		}
		if streamer.ChannelSlug != "" {
			vars[VarChannelSlug] = streamer.ChannelSlug
		}
	}
	links.apply(vars)
	return vars
}

func (l Links) apply(vars Vars) {
	slug := vars[VarChannelSlug]
	if slug == "" {
		return
	}
	slugOnly := Vars{VarChannelSlug: slug}
	if vars[VarStreamURL] == "" && l.StreamURL != "" {
		vars[VarStreamURL] = Substitute(l.StreamURL, slugOnly)
	}
	if vars[VarProfileURL] == "" && l.ProfileURL != "" {
		vars[VarProfileURL] = Substitute(l.ProfileURL, slugOnly)
	}
}

// FormatDuration renders a stream length as "2 ч 15 мин" or "45 мин".
func FormatDuration(d time.Duration) string {
	d = d.Round(time.Minute)
	h := int(d / time.Hour)
	m := int((d % time.Hour) / time.Minute)
	if h == 0 {
		return fmt.Sprintf("%d мин", m)
	}
	return fmt.Sprintf("%d ч %d мин", h, m)
}
