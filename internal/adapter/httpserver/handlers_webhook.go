package httpserver

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/batalovmv/stream-alerts-sub001/internal/domain"
)

const webhookSecretHeader = "X-Webhook-Secret"

type webhookResponse struct {
	OK    bool   `json:"ok"`
	JobID string `json:"jobId,omitempty"`
	Error string `json:"error,omitempty"`
}

func (s *Server) registerWebhookRoutes() {
	s.echo.POST("/api/webhooks/stream", s.handleStreamWebhook)
}

// handleStreamWebhook checks the shared secret, validates the event and queues
// it. The response only says the job was stored, not that it was delivered.
func (s *Server) handleStreamWebhook(c echo.Context) error {
	ctx := c.Request().Context()

	if s.config.WebhookSecret == "" {
		s.webhookResult("unconfigured")
		return s.webhookReply(c, http.StatusServiceUnavailable, webhookResponse{Error: "webhooks not configured"})
	}

	if !secretMatches(c.Request().Header.Get(webhookSecretHeader), s.config.WebhookSecret) {
		s.webhookResult("forbidden")
		slog.WarnContext(ctx, "Webhook rejected: bad secret", "remote_ip", c.RealIP())
		return s.webhookReply(c, http.StatusForbidden, webhookResponse{Error: "forbidden"})
	}

	var ev domain.StreamEvent
	if err := c.Bind(&ev); err != nil {
		s.webhookResult("invalid")
		return s.webhookReply(c, http.StatusBadRequest, webhookResponse{Error: "invalid JSON body"})
	}
	if err := ev.Validate(); err != nil {
		s.webhookResult("invalid")
		return s.webhookReply(c, http.StatusBadRequest, webhookResponse{Error: validationMessage(err)})
	}

	jobID, err := s.publisher.Publish(ctx, ev)
	if err != nil {
		s.webhookResult("error")
		slog.ErrorContext(ctx, "Failed to enqueue stream event", "channel_id", ev.ChannelID, "event", ev.Event, "error", err)
		return s.webhookReply(c, http.StatusInternalServerError, webhookResponse{Error: "failed to enqueue event"})
	}

	s.webhookResult("accepted")
	slog.InfoContext(ctx, "Stream event queued", "job_id", jobID, "channel_id", ev.ChannelID, "event", ev.Event)
	return s.webhookReply(c, http.StatusOK, webhookResponse{OK: true, JobID: jobID})
}

func secretMatches(got, want string) bool {
	return got != "" && subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

// validationMessage strips the sentinel prefix so clients see only the field problem.
func validationMessage(err error) string {
	msg := err.Error()
	prefix := domain.ErrInvalidEvent.Error() + ": "
	if errors.Is(err, domain.ErrInvalidEvent) && len(msg) > len(prefix) && msg[:len(prefix)] == prefix {
		return msg[len(prefix):]
	}
	return msg
}

func (s *Server) webhookReply(c echo.Context, status int, body webhookResponse) error {
	if err := c.JSON(status, body); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) webhookResult(result string) {
	if s.metrics.Queue != nil {
		s.metrics.Queue.Webhook(result)
	}
}
