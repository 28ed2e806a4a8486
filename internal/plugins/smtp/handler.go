package smtp

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Handler exposes mail status and a connectivity check.
type Handler struct {
	service MailService
}

// NewHandler creates a new SMTP handler.
func NewHandler(service MailService) *Handler {
	return &Handler{service: service}
}

// Status returns the redacted mail settings (GET /api/v1/smtp).
func (h *Handler) Status(c echo.Context) error {
	return c.JSON(http.StatusOK, h.service.Status())
}

// TestConnection tests SMTP connectivity (POST /api/v1/smtp/test).
func (h *Handler) TestConnection(c echo.Context) error {
	if err := h.service.TestConnection(c.Request().Context()); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
