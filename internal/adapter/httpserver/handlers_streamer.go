package httpserver

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/batalovmv/stream-alerts-sub001/internal/domain"
	apperrors "github.com/batalovmv/stream-alerts-sub001/internal/platform/errors"
)

func (s *Server) registerStreamerRoutes() {
	g := s.echo.Group("/api/streamer", newRateLimiter(s.config.APIRateLimit, s.config.APIRateBurst), s.requireAuth)
	g.GET("", s.handleGetStreamer)
	g.PUT("/settings", s.handleUpdateSettings)
	g.PUT("/bot-token", s.handleSetBotToken)
	g.DELETE("/bot-token", s.handleClearBotToken)
	g.POST("/preview", s.handlePreview)
}

type settingsPayload struct {
	ChatID          int64           `json:"chatId"`
	OnlineTemplate  *string         `json:"onlineTemplate"`
	OfflineTemplate *string         `json:"offlineTemplate"`
	Buttons         []domain.Button `json:"buttons"`
}

type streamerResponse struct {
	ID           uuid.UUID       `json:"id"`
	ChannelID    string          `json:"channelId"`
	ChannelSlug  string          `json:"channelSlug"`
	DisplayName  string          `json:"displayName"`
	Settings     settingsPayload `json:"settings"`
	HasCustomBot bool            `json:"hasCustomBot"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

func toStreamerResponse(s *domain.Streamer) streamerResponse {
	return streamerResponse{
		ID:          s.ID,
		ChannelID:   s.ChannelID,
		ChannelSlug: s.ChannelSlug,
		DisplayName: s.DisplayName,
		Settings: settingsPayload{
			ChatID:          s.ChatID,
			OnlineTemplate:  s.OnlineTemplate,
			OfflineTemplate: s.OfflineTemplate,
			Buttons:         s.Buttons,
		},
		HasCustomBot: s.HasCustomBot(),
		UpdatedAt:    s.UpdatedAt,
	}
}

type botTokenRequest struct {
	BotToken string `json:"botToken"`
}

type botTokenResponse struct {
	HasCustomBot bool `json:"hasCustomBot"`
}

type previewRequest struct {
	Event    domain.EventType `json:"event"`
	Template string           `json:"template"`
	Buttons  []domain.Button  `json:"buttons"`
}

func (s *Server) handleGetStreamer(c echo.Context) error {
	streamer, err := currentStreamer(c)
	if err != nil {
		return err
	}
	return sendJSON(c, http.StatusOK, toStreamerResponse(streamer))
}

func (s *Server) handleUpdateSettings(c echo.Context) error {
	streamer, err := currentStreamer(c)
	if err != nil {
		return err
	}

	var req settingsPayload
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid JSON body")
	}

	updated, err := s.settings.Update(c.Request().Context(), streamer.ID, domain.NotificationSettings{
		ChatID:          req.ChatID,
		OnlineTemplate:  req.OnlineTemplate,
		OfflineTemplate: req.OfflineTemplate,
		Buttons:         req.Buttons,
	})
	if err != nil {
		return streamerError(err, "failed to update settings", streamer.ID)
	}
	return sendJSON(c, http.StatusOK, toStreamerResponse(updated))
}

func (s *Server) handleSetBotToken(c echo.Context) error {
	streamer, err := currentStreamer(c)
	if err != nil {
		return err
	}

	var req botTokenRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid JSON body")
	}

	if err := s.settings.SetBotToken(c.Request().Context(), streamer.ID, req.BotToken); err != nil {
		return streamerError(err, "failed to store bot token", streamer.ID)
	}
	return sendJSON(c, http.StatusOK, botTokenResponse{HasCustomBot: true})
}

func (s *Server) handleClearBotToken(c echo.Context) error {
	streamer, err := currentStreamer(c)
	if err != nil {
		return err
	}

	if err := s.settings.ClearBotToken(c.Request().Context(), streamer.ID); err != nil {
		return streamerError(err, "failed to clear bot token", streamer.ID)
	}
	return sendJSON(c, http.StatusOK, botTokenResponse{HasCustomBot: false})
}

func (s *Server) handlePreview(c echo.Context) error {
	streamer, err := currentStreamer(c)
	if err != nil {
		return err
	}

	var req previewRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid JSON body")
	}
	if req.Event == "" {
		req.Event = domain.EventStreamOnline
	}
	if !req.Event.Valid() {
		return apperrors.ValidationError(fmt.Sprintf("unknown event %q", req.Event))
	}

	preview := s.settings.Preview(c.Request().Context(), streamer, req.Event, req.Template, req.Buttons)
	return sendJSON(c, http.StatusOK, preview)
}

// streamerError keeps structured errors from the service and classifies the rest.
func streamerError(err error, message string, streamerID uuid.UUID) error {
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		return appErr.WithField("streamer_id", streamerID.String())
	}
	if errors.Is(err, domain.ErrStreamerNotFound) {
		return apperrors.NotFoundError("streamer not found").WithField("streamer_id", streamerID.String())
	}
	return apperrors.InternalError(message, err).WithField("streamer_id", streamerID.String())
}

func sendJSON(c echo.Context, status int, body any) error {
	if err := c.JSON(status, body); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}
