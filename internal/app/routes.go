package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/stream/internal/config"
	"github.com/keyxmakerx/stream/internal/middleware"
	"github.com/keyxmakerx/stream/internal/plugins/alerts"
	"github.com/keyxmakerx/stream/internal/plugins/export"
	"github.com/keyxmakerx/stream/internal/plugins/feeds"
	"github.com/keyxmakerx/stream/internal/plugins/records"
	"github.com/keyxmakerx/stream/internal/plugins/smtp"
	"github.com/keyxmakerx/stream/internal/plugins/users"
)

// RegisterRoutes sets up all application routes. It registers public routes
// directly and delegates to each plugin's route registration function.
//
// This is the single place where all routes are aggregated. When a new
// plugin is added, its routes are registered here.
func (a *App) RegisterRoutes() {
	e := a.Echo

	// --- Public Routes ---

	// Health check for container orchestration.
	e.GET("/healthz", a.health)

	// --- Authenticated Routes ---
	requireKey := middleware.RequireAPIKey(a.Config.Auth.APIKeyHash)

	api := e.Group("/api/v1", requireKey)
	records.RegisterRoutes(api, a.records, a.Config.HTTP.IngestRateLimit)
	export.RegisterRoutes(api, a.export)
	alerts.RegisterRoutes(api, a.alerts)
	users.RegisterRoutes(api, a.users)
	smtp.RegisterRoutes(api, a.smtp)

	feeds.RegisterRoutes(e.Group("/feeds", requireKey), a.feeds)
}

// health reports whether the stores the service depends on answer.
// GET /healthz
func (a *App) health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	checks := map[string]string{"mariadb": "ok", "redis": "ok"}
	healthy := true

	if err := a.DB.PingContext(ctx); err != nil {
		slog.Warn("health check: mariadb unavailable", slog.Any("error", err))
		checks["mariadb"] = "unavailable"
		healthy = false
	}
	if err := a.Redis.Ping(ctx).Err(); err != nil {
		slog.Warn("health check: redis unavailable", slog.Any("error", err))
		checks["redis"] = "unavailable"
		healthy = false
	}
	if a.Config.Storage.Backend == config.BackendRemote {
		checks["storage"] = config.BackendRemote
	}
	if a.Bus != nil {
		checks["nats"] = a.Bus.Conn.Status().String()
	}

	status := http.StatusOK
	checks["status"] = "ok"
	if !healthy {
		status = http.StatusServiceUnavailable
		checks["status"] = "degraded"
	}
	return c.JSON(status, checks)
}
