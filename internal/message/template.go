// Package message turns stream events into notification text and buttons.
//
// Templates use {name} placeholders where name is made of letters, digits and
// underscores. Every such placeholder is replaced by its variable or by the
// empty string; any other brace sequence is copied through unchanged.
package message

import (
	"strings"
	"unicode"

	"github.com/batalovmv/stream-alerts-sub001/internal/domain"
)

// Vars maps placeholder names to values.
type Vars map[string]string

const (
	VarStreamerName = "streamer_name"
	VarStreamTitle  = "stream_title"
	VarGameName     = "game_name"
	VarStreamURL    = "stream_url"
	VarProfileURL   = "memelab_url"
	VarChannelSlug  = "channel_slug"
	VarThumbnailURL = "thumbnail_url"
	VarDuration     = "duration"
)

const (
	DefaultOnlineTemplate  = "🔴 Стрим начался!\n\n{streamer_name} в эфире: {stream_title}\n🎮 {game_name}"
	DefaultOfflineTemplate = "⚫ Стрим завершён\n\n{streamer_name} закончил трансляцию."
)

// DefaultTemplate returns the built-in template for the event.
func DefaultTemplate(event domain.EventType) string {
	if event == domain.EventStreamOffline {
		return DefaultOfflineTemplate
	}
	return DefaultOnlineTemplate
}

// Render substitutes vars into tmpl, falling back to the event's default when tmpl is empty.
func Render(event domain.EventType, tmpl string, vars Vars) string {
	if tmpl == "" {
		tmpl = DefaultTemplate(event)
	}
	return Substitute(tmpl, vars)
}

// RenderHTML is Render followed by EscapeHTML.
func RenderHTML(event domain.EventType, tmpl string, vars Vars) string {
	return EscapeHTML(Render(event, tmpl, vars))
}

// Substitute replaces every {name} in s. Missing names become "".
func Substitute(s string, vars Vars) string {
	if !strings.Contains(s, "{") {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))

	for {
		open := strings.IndexByte(s, '{')
		if open < 0 {
			b.WriteString(s)
			return b.String()
		}
		b.WriteString(s[:open])
		rest := s[open+1:]

		end := strings.IndexByte(rest, '}')
		if end < 0 || !isPlaceholderName(rest[:end]) {
			b.WriteByte('{')
			s = rest
			continue
		}

		b.WriteString(vars[rest[:end]])
		s = rest[end+1:]
	}
}

func isPlaceholderName(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		if !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_') {
			return false
		}
	}
	return true
}

var htmlEscapes = []struct{ from, to string }{
	{"&", "&amp;"},
	{"<", "&lt;"},
	{">", "&gt;"},
	{`"`, "&quot;"},
}

// EscapeHTML escapes &, <, > and " in that order. Apply it to rendered text,
// never to a template before substitution.
func EscapeHTML(s string) string {
	for _, e := range htmlEscapes {
		s = strings.ReplaceAll(s, e.from, e.to)
	}
	return s
}
