package smtp

import "github.com/labstack/echo/v4"

// RegisterRoutes sets up SMTP routes on the authenticated API group.
func RegisterRoutes(api *echo.Group, h *Handler) {
	api.GET("/smtp", h.Status)
	api.POST("/smtp/test", h.TestConnection)
}
