package feeds

import "github.com/labstack/echo/v4"

// RegisterRoutes sets up feed routes. Feeds share the API key check with
// the JSON API.
func RegisterRoutes(g *echo.Group, h *Handler) {
	g.GET("/:format", h.Feed)
}
