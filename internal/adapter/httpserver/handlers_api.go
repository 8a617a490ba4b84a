package httpserver

import (
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/pscheid92/activate/internal/domain"
	apperrors "github.com/pscheid92/activate/internal/platform/errors"
)

const maxChannelIDLength = 128

type contentResponse struct {
	VisualizerID string         `json:"visualizerId"`
	MediaContent domain.Payload `json:"mediaContent"`
}

type assignMediaRequest struct {
	MediaID *string `json:"mediaId"`
}

type setActiveRequest struct {
	IsActive *bool `json:"isActive"`
}

func channelParam(c echo.Context) (string, error) {
	channelID := c.Param("visualizerId")
	if channelID == "" || len(channelID) > maxChannelIDLength {
		return "", apperrors.ValidationError("invalid visualizer id").
			WithField("visualizer_id", channelID).
			WithField("max_length", maxChannelIDLength)
	}
	return channelID, nil
}

func (s *Server) writeContent(c echo.Context, channelID string) error {
	resp := contentResponse{
		VisualizerID: channelID,
		MediaContent: s.app.Content(c.Request().Context(), channelID),
	}
	if err := c.JSON(http.StatusOK, resp); err != nil {
		return fmt.Errorf("failed to write content response: %w", err)
	}
	return nil
}

func (s *Server) handleContent(c echo.Context) error {
	channelID, err := channelParam(c)
	if err != nil {
		return err
	}
	return s.writeContent(c, channelID)
}

func (s *Server) handleAssignMedia(c echo.Context) error {
	channelID, err := channelParam(c)
	if err != nil {
		return err
	}

	var req assignMediaRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}

	ctx := c.Request().Context()
	if req.MediaID == nil {
		err = s.app.ClearBinding(ctx, channelID)
	} else {
		mediaID, parseErr := uuid.Parse(*req.MediaID)
		if parseErr != nil {
			return apperrors.ValidationError("mediaId must be a UUID or null").WithField("media_id", *req.MediaID)
		}
		err = s.app.AssignMedia(ctx, channelID, mediaID)
	}
	if err != nil {
		return fmt.Errorf("assign media to %s: %w", channelID, err)
	}

	return s.writeContent(c, channelID)
}

func (s *Server) handleSetActive(c echo.Context) error {
	channelID, err := channelParam(c)
	if err != nil {
		return err
	}

	var req setActiveRequest
	if err := c.Bind(&req); err != nil || req.IsActive == nil {
		return apperrors.ValidationError("isActive is required")
	}

	if err := s.app.SetActive(c.Request().Context(), channelID, *req.IsActive); err != nil {
		return fmt.Errorf("set active on %s: %w", channelID, err)
	}

	return s.writeContent(c, channelID)
}

func (s *Server) handleDeleteChannel(c echo.Context) error {
	channelID, err := channelParam(c)
	if err != nil {
		return err
	}

	if err := s.app.DeleteChannel(c.Request().Context(), channelID); err != nil {
		return fmt.Errorf("delete %s: %w", channelID, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleChannelStatus(c echo.Context) error {
	channelID, err := channelParam(c)
	if err != nil {
		return err
	}

	if err := c.JSON(http.StatusOK, s.app.ChannelStatus(c.Request().Context(), channelID)); err != nil {
		return fmt.Errorf("failed to write status response: %w", err)
	}
	return nil
}
