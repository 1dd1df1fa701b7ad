package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/batalovmv/stream-alerts-sub001/internal/adapter/metrics"
	"github.com/batalovmv/stream-alerts-sub001/internal/platform/config"
	"github.com/batalovmv/stream-alerts-sub001/internal/domain"
)

const onlineBody = `{"event":"stream.online","channelId":"ch-1","channelSlug":"alice","title":"Hi"}`

func secretHeader(secret string) map[string]string {
	return map[string]string{webhookSecretHeader: secret}
}

func decodeWebhook(t *testing.T, body []byte) webhookResponse {
	t.Helper()
	var resp webhookResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	return resp
}

func TestWebhook_AcceptsAndQueuesOneJob(t *testing.T) {
	qm := metrics.NewQueueMetrics(prometheus.NewRegistry())
	srv, deps := newTestServer(t, withMetrics(Metrics{Queue: qm}))

	rec := doRequest(srv, http.MethodPost, "/api/webhooks/stream", onlineBody, secretHeader("s3cret"))

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeWebhook(t, rec.Body.Bytes())
	assert.True(t, resp.OK)
	assert.Regexp(t, regexp.MustCompile(`^ch-1:stream\.online:\d+$`), resp.JobID)

	events := deps.publisher.published()
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventStreamOnline, events[0].Event)
	assert.Equal(t, "alice", events[0].ChannelSlug)
	assert.Equal(t, 1.0, testutil.ToFloat64(qm.Webhooks.WithLabelValues("accepted")))
}

func TestWebhook_WrongOrMissingSecret(t *testing.T) {
	for name, headers := range map[string]map[string]string{
		"missing": nil,
		"wrong":   secretHeader("nope"),
		"prefix":  secretHeader("s3c"),
	} {
		t.Run(name, func(t *testing.T) {
			srv, deps := newTestServer(t)

			rec := doRequest(srv, http.MethodPost, "/api/webhooks/stream", onlineBody, headers)

			assert.Equal(t, http.StatusForbidden, rec.Code)
			assert.JSONEq(t, `{"ok":false,"error":"forbidden"}`, rec.Body.String())
			assert.Empty(t, deps.publisher.published())
		})
	}
}

func TestWebhook_NotConfigured(t *testing.T) {
	srv, deps := newTestServer(t, withConfig(func(c *config.Config) { c.WebhookSecret = "" }))

	rec := doRequest(srv, http.MethodPost, "/api/webhooks/stream", onlineBody, secretHeader(""))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"ok":false,"error":"webhooks not configured"}`, rec.Body.String())
	assert.Empty(t, deps.publisher.published())
}

func TestWebhook_InvalidEvents(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown event", `{"event":"stream.paused","channelId":"ch-1"}`},
		{"missing channel", `{"event":"stream.offline"}`},
		{"malformed json", `{"event":`},
		{"empty body", `{}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, deps := newTestServer(t)

			rec := doRequest(srv, http.MethodPost, "/api/webhooks/stream", tt.body, secretHeader("s3cret"))

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			resp := decodeWebhook(t, rec.Body.Bytes())
			assert.False(t, resp.OK)
			assert.NotEmpty(t, resp.Error)
			assert.Empty(t, deps.publisher.published())
		})
	}
}

func TestWebhook_ValidationMessageHidesSentinel(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(srv, http.MethodPost, "/api/webhooks/stream", `{"event":"stream.online"}`, secretHeader("s3cret"))

	resp := decodeWebhook(t, rec.Body.Bytes())
	assert.Equal(t, "channelId is required", resp.Error)
}

func TestWebhook_EnqueueFailure(t *testing.T) {
	srv, deps := newTestServer(t)
	deps.publisher.publishFn = func(context.Context, domain.StreamEvent) (string, error) {
		return "", errors.New("redis: connection refused")
	}

	rec := doRequest(srv, http.MethodPost, "/api/webhooks/stream", onlineBody, secretHeader("s3cret"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "redis")
}

func TestSecretMatches(t *testing.T) {
	assert.True(t, secretMatches("abc", "abc"))
	assert.False(t, secretMatches("", ""))
	assert.False(t, secretMatches("abc", "abcd"))
	assert.False(t, secretMatches("ABC", "abc"))
}
