// Package httpserver exposes the webhook ingestion endpoint, the authenticated
// streamer settings API, health checks and Prometheus metrics over echo.
package httpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/batalovmv/stream-alerts-sub001/internal/adapter/metrics"
	"github.com/batalovmv/stream-alerts-sub001/internal/domain"
	"github.com/batalovmv/stream-alerts-sub001/internal/platform/config"
)

// Metrics bundles the collectors and scrape handler the server exposes. Any field may be nil.
type Metrics struct {
	HTTP    *metrics.HTTPMetrics
	Queue   *metrics.QueueMetrics
	Handler http.Handler
}

type Server struct {
	echo   *echo.Echo
	config *config.Config

	auth      domain.Authenticator
	settings  domain.SettingsService
	publisher domain.EventPublisher

	metrics      Metrics
	healthChecks []HealthCheck
	startTime    time.Time
}

func NewServer(
	cfg *config.Config,
	auth domain.Authenticator,
	settings domain.SettingsService,
	publisher domain.EventPublisher,
	m Metrics,
	healthChecks []HealthCheck,
) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	srv := &Server{
		echo:         e,
		config:       cfg,
		auth:         auth,
		settings:     settings,
		publisher:    publisher,
		metrics:      m,
		healthChecks: healthChecks,
		startTime:    time.Now(),
	}

	srv.registerRoutes()

	return srv
}

// Start blocks serving HTTP until Shutdown is called.
func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	if err := s.echo.Start(":" + s.config.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

// ServeHTTP makes the server usable with httptest.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}
