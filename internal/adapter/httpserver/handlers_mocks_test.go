package httpserver

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/batalovmv/stream-alerts-sub001/internal/domain"
	"github.com/batalovmv/stream-alerts-sub001/internal/platform/config"
)

// --- Mock implementations ---

type mockAuthenticator struct {
	authenticateFn func(ctx context.Context, credential string) (*domain.Streamer, error)
}

func (m *mockAuthenticator) Authenticate(ctx context.Context, credential string) (*domain.Streamer, error) {
	if m.authenticateFn != nil {
		return m.authenticateFn(ctx, credential)
	}
	return nil, domain.ErrUnauthenticated
}

type mockSettings struct {
	getFn           func(ctx context.Context, id uuid.UUID) (*domain.Streamer, error)
	updateFn        func(ctx context.Context, id uuid.UUID, settings domain.NotificationSettings) (*domain.Streamer, error)
	setBotTokenFn   func(ctx context.Context, id uuid.UUID, token string) error
	clearBotTokenFn func(ctx context.Context, id uuid.UUID) error
	previewFn       func(ctx context.Context, streamer *domain.Streamer, event domain.EventType, template string, buttons []domain.Button) domain.Preview
}

func (m *mockSettings) Get(ctx context.Context, id uuid.UUID) (*domain.Streamer, error) {
	if m.getFn != nil {
		return m.getFn(ctx, id)
	}
	return nil, errors.New("not implemented")
}

func (m *mockSettings) Update(ctx context.Context, id uuid.UUID, settings domain.NotificationSettings) (*domain.Streamer, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, id, settings)
	}
	return &domain.Streamer{ID: id, NotificationSettings: settings}, nil
}

func (m *mockSettings) SetBotToken(ctx context.Context, id uuid.UUID, token string) error {
	if m.setBotTokenFn != nil {
		return m.setBotTokenFn(ctx, id, token)
	}
	return nil
}

func (m *mockSettings) ClearBotToken(ctx context.Context, id uuid.UUID) error {
	if m.clearBotTokenFn != nil {
		return m.clearBotTokenFn(ctx, id)
	}
	return nil
}

func (m *mockSettings) Preview(ctx context.Context, streamer *domain.Streamer, event domain.EventType, template string, buttons []domain.Button) domain.Preview {
	if m.previewFn != nil {
		return m.previewFn(ctx, streamer, event, template, buttons)
	}
	return domain.Preview{Text: template, HTML: template, Buttons: buttons}
}

// mockPublisher records published events and hands out ids in the queue's format.
type mockPublisher struct {
	mu        sync.Mutex
	events    []domain.StreamEvent
	publishFn func(ctx context.Context, ev domain.StreamEvent) (string, error)
}

func (m *mockPublisher) Publish(ctx context.Context, ev domain.StreamEvent) (string, error) {
	if m.publishFn != nil {
		return m.publishFn(ctx, ev)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return ev.ChannelID + ":" + string(ev.Event) + ":1700000000000", nil
}

func (m *mockPublisher) published() []domain.StreamEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.StreamEvent(nil), m.events...)
}

// --- Test server helpers ---

type testDeps struct {
	auth      *mockAuthenticator
	settings  *mockSettings
	publisher *mockPublisher
	metrics   Metrics
	checks    []HealthCheck
	config    *config.Config
}

func testConfig() *config.Config {
	return &config.Config{
		AppEnv:         "development",
		Port:           "0",
		WebhookSecret:  "s3cret",
		AuthCookieName: "token",
		APIRateLimit:   1000,
		APIRateBurst:   1000,
	}
}

func newTestServer(t *testing.T, opts ...func(*testDeps)) (*Server, *testDeps) {
	t.Helper()

	deps := &testDeps{
		auth:      &mockAuthenticator{},
		settings:  &mockSettings{},
		publisher: &mockPublisher{},
		config:    testConfig(),
	}
	for _, opt := range opts {
		opt(deps)
	}

	srv := NewServer(deps.config, deps.auth, deps.settings, deps.publisher, deps.metrics, deps.checks)
	require.NotNil(t, srv)
	return srv, deps
}

func withAuth(fn func(ctx context.Context, credential string) (*domain.Streamer, error)) func(*testDeps) {
	return func(d *testDeps) { d.auth.authenticateFn = fn }
}

func withConfig(mutate func(*config.Config)) func(*testDeps) {
	return func(d *testDeps) { mutate(d.config) }
}

func withHealthChecks(checks ...HealthCheck) func(*testDeps) {
	return func(d *testDeps) { d.checks = checks }
}

func withMetrics(m Metrics) func(*testDeps) {
	return func(d *testDeps) { d.metrics = m }
}

// authAs makes any non-empty credential resolve to streamer.
func authAs(streamer *domain.Streamer) func(*testDeps) {
	return withAuth(func(_ context.Context, credential string) (*domain.Streamer, error) {
		if credential == "" {
			return nil, domain.ErrUnauthenticated
		}
		return streamer, nil
	})
}

func doRequest(srv *Server, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func testStreamer() *domain.Streamer {
	return &domain.Streamer{
		ID:          uuid.MustParse("6f1c2d3e-4b5a-4c6d-8e7f-0123456789ab"),
		AccountID:   "acc-1",
		ChannelID:   "ch-1",
		ChannelSlug: "alice",
		DisplayName: "Alice",
	}
}
