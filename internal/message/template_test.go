package message

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/batalovmv/stream-alerts-sub001/internal/domain"
)

func TestRender_Examples(t *testing.T) {
	tests := []struct {
		name string
		tmpl string
		vars Vars
		want string
	}{
		{"single var", "{streamer_name} live now!", Vars{"streamer_name": "MyChannel"}, "MyChannel live now!"},
		{"missing var becomes empty", "{streamer_name} - {game_name}", Vars{"streamer_name": "Test"}, "Test - "},
		{"repeated var", "{a}{a}", Vars{"a": "x"}, "xx"},
		{"no placeholders", "plain text", nil, "plain text"},
		{"unicode name", "{имя}!", Vars{"имя": "Вася"}, "Вася!"},
		{"digits and underscore", "{game_name_2}", Vars{"game_name_2": "Dota"}, "Dota"},
		{"non identifier left intact", "{not a var} {x-y} {}", Vars{"x": "1"}, "{not a var} {x-y} {}"},
		{"unclosed brace", "hello {streamer_name", Vars{"streamer_name": "A"}, "hello {streamer_name"},
		{"json-like braces", `{"k": "{v}"}`, Vars{"v": "1"}, `{"k": "1"}`},
		{"double braces", "{{a}}", Vars{"a": "x"}, "{x}"},
		{"value is not re-expanded", "{a}", Vars{"a": "{b}", "b": "no"}, "{b}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Render(domain.EventStreamOnline, tt.tmpl, tt.vars))
		})
	}
}

func TestRender_EmptyTemplateUsesDefault(t *testing.T) {
	vars := Vars{"streamer_name": "Alice", "stream_title": "Speedrun", "game_name": "Celeste"}

	for _, event := range []domain.EventType{domain.EventStreamOnline, domain.EventStreamOffline} {
		got := Render(event, "", vars)
		assert.Equal(t, Render(event, DefaultTemplate(event), vars), got)
	}

	var settings domain.NotificationSettings
	assert.Equal(t,
		Render(domain.EventStreamOnline, settings.Template(domain.EventStreamOnline), vars),
		Render(domain.EventStreamOnline, "", vars),
	)
}

func TestRender_Defaults(t *testing.T) {
	vars := Vars{"streamer_name": "Alice", "stream_title": "Speedrun", "game_name": "Celeste"}

	assert.Equal(t, "🔴 Стрим начался!\n\nAlice в эфире: Speedrun\n🎮 Celeste",
		Render(domain.EventStreamOnline, "", vars))
	assert.Equal(t, "⚫ Стрим завершён\n\nAlice закончил трансляцию.",
		Render(domain.EventStreamOffline, "", vars))
}

func TestRender_NoPlaceholderSurvives(t *testing.T) {
	templates := []string{
		DefaultOnlineTemplate,
		DefaultOfflineTemplate,
		"{streamer_name}{stream_title}{game_name}{unknown}",
		"Стрим {streamer_name}: {stream_title} ({duration}) {stream_url}",
		"{a} {b_1} {C} {_}",
	}
	varSets := []Vars{
		nil,
		{},
		{"streamer_name": "X"},
		{"streamer_name": "X", "stream_title": "Y", "game_name": "Z", "a": "1", "duration": "5 мин"},
	}

	for _, tmpl := range templates {
		for _, vars := range varSets {
			out := Render(domain.EventStreamOnline, tmpl, vars)
			for _, name := range []string{"streamer_name", "stream_title", "game_name", "unknown", "duration", "stream_url", "a", "b_1", "C", "_"} {
				assert.NotContains(t, out, "{"+name+"}", "template %q vars %v", tmpl, vars)
			}
		}
	}
}

func TestEscapeHTML(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"plain", "plain"},
		{"a & b", "a &amp; b"},
		{"<b>bold</b>", "&lt;b&gt;bold&lt;/b&gt;"},
		{`say "hi"`, "say &quot;hi&quot;"},
		{"&lt;", "&amp;lt;"},
		{"'single'", "'single'"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, EscapeHTML(tt.in))
	}
}

func TestRenderHTML_EscapesValuesNotPlaceholders(t *testing.T) {
	vars := Vars{"streamer_name": "<script>", "stream_title": `Tom & "Jerry"`}
	got := RenderHTML(domain.EventStreamOnline, "{streamer_name}: {stream_title}", vars)

	assert.Equal(t, "&lt;script&gt;: Tom &amp; &quot;Jerry&quot;", got)
	assert.False(t, strings.Contains(got, "{"))
}
