package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/batalovmv/stream-alerts-sub001/internal/adapter/metrics"
)

func healthOK(_ context.Context) error { return nil }

func healthErr(msg string) func(context.Context) error {
	return func(_ context.Context) error { return errors.New(msg) }
}

func TestLiveness(t *testing.T) {
	srv, _ := newTestServer(t, withHealthChecks(HealthCheck{Name: "redis", Check: healthErr("down")}))

	rec := doRequest(srv, http.MethodGet, "/health/live", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["status"])
	assert.Contains(t, resp, "uptime")
}

func TestReadiness_AllHealthy(t *testing.T) {
	srv, _ := newTestServer(t, withHealthChecks(
		HealthCheck{Name: "postgres", Check: healthOK},
		HealthCheck{Name: "redis", Check: healthOK},
	))

	rec := doRequest(srv, http.MethodGet, "/health/ready", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ready"}`, rec.Body.String())
}

func TestReadiness_ReportsFirstFailure(t *testing.T) {
	called := false
	srv, _ := newTestServer(t, withHealthChecks(
		HealthCheck{Name: "postgres", Check: healthOK},
		HealthCheck{Name: "redis", Check: healthErr("connection refused")},
		HealthCheck{Name: "never", Check: func(context.Context) error { called = true; return nil }},
	))

	rec := doRequest(srv, http.MethodGet, "/health/ready", "", nil)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"status":"unhealthy","failed_check":"redis","error":"connection refused"}`, rec.Body.String())
	assert.False(t, called)
}

func TestReadiness_ChecksGetDeadline(t *testing.T) {
	srv, _ := newTestServer(t, withHealthChecks(HealthCheck{Name: "deadline", Check: func(ctx context.Context) error {
		if _, ok := ctx.Deadline(); !ok {
			return errors.New("no deadline")
		}
		return nil
	}}))

	rec := doRequest(srv, http.MethodGet, "/health/ready", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestVersion(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(srv, http.MethodGet, "/version", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp, "version")
	assert.Contains(t, resp, "go_version")
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	srv, _ := newTestServer(t, withMetrics(Metrics{
		HTTP:    metrics.NewHTTPMetrics(reg),
		Handler: metrics.Handler(reg),
	}))

	doRequest(srv, http.MethodPost, "/api/webhooks/stream", onlineBody, nil)
	rec := doRequest(srv, http.MethodGet, "/metrics", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `stream_alerts_http_requests_total{method="POST",route="/api/webhooks/stream",status_code="403"} 1`)
}

func TestMetricsEndpoint_AbsentWithoutHandler(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(srv, http.MethodGet, "/metrics", "", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
