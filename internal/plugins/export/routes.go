package export

import "github.com/labstack/echo/v4"

// RegisterRoutes sets up export routes on the authenticated API group.
func RegisterRoutes(api *echo.Group, h *Handler) {
	api.GET("/export", h.Formats)
	api.GET("/export/:format", h.Export)
}
