package alerts

import "github.com/labstack/echo/v4"

// RegisterRoutes mounts the alert rule API on an authenticated group.
func RegisterRoutes(api *echo.Group, h *Handler) {
	api.GET("/alerts", h.List)
	api.POST("/alerts", h.Create)
	api.GET("/alerts/adapters", h.Adapters)
	api.GET("/alerts/:id", h.Get)
	api.PUT("/alerts/:id", h.Update)
	api.DELETE("/alerts/:id", h.Delete)

	api.POST("/push/tokens", h.RegisterToken)
	api.DELETE("/push/tokens", h.UnregisterToken)
}
