package users

import "github.com/labstack/echo/v4"

// RegisterRoutes sets up user directory routes on the authenticated API group.
func RegisterRoutes(api *echo.Group, h *Handler) {
	api.GET("/users", h.List)
	api.GET("/users/:id", h.Get)
	api.PUT("/users/:id", h.Put)
}
