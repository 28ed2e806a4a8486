package records

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/stream/internal/middleware"
)

// RegisterRoutes mounts the records API on an already-authenticated group.
// Ingestion is rate-limited per client IP to ingestPerMinute requests.
func RegisterRoutes(api *echo.Group, h *Handler, ingestPerMinute int) {
	api.POST("/records", h.Create, middleware.RateLimit(ingestPerMinute, time.Minute))
	api.GET("/records", h.List)
	api.GET("/records/distinct/:column", h.Distinct)
	api.GET("/records/:id/meta", h.Meta)
}
