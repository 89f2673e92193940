package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/chatdesk/chatdesk/internal/media"
)

// MediaHandler serves stored media files.
type MediaHandler struct {
	mediaService *media.Service
	logger       *slog.Logger
}

// NewMediaHandler creates a MediaHandler.
func NewMediaHandler(log *slog.Logger, mediaService *media.Service) *MediaHandler {
	return &MediaHandler{
		mediaService: mediaService,
		logger:       log.With(slog.String("handler", "media")),
	}
}

// Register mounts GET /media/:filename on the Echo instance.
func (h *MediaHandler) Register(e *echo.Echo) {
	e.GET("/media/:filename", h.ServeMedia)
}

// ServeMedia streams one stored media file.
func (h *MediaHandler) ServeMedia(c echo.Context) error {
	filename := strings.TrimSpace(c.Param("filename"))
	if filename == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "filename is required")
	}
	opened, err := h.mediaService.Open(c.Request().Context(), filename)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "media not found")
	}
	defer opened.Reader.Close()
	return c.Stream(http.StatusOK, opened.ContentType, opened.Reader)
}
