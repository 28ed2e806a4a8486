// Package app is the application bootstrap and dependency injection root.
// It creates and holds all shared infrastructure (DB pool, Redis client,
// NATS publisher, Echo instance) and wires together all plugins.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/keyxmakerx/stream/internal/apperror"
	"github.com/keyxmakerx/stream/internal/bus"
	"github.com/keyxmakerx/stream/internal/config"
	"github.com/keyxmakerx/stream/internal/middleware"
	"github.com/keyxmakerx/stream/internal/plugins/alerts"
	"github.com/keyxmakerx/stream/internal/plugins/export"
	"github.com/keyxmakerx/stream/internal/plugins/feeds"
	"github.com/keyxmakerx/stream/internal/plugins/records"
	"github.com/keyxmakerx/stream/internal/plugins/smtp"
	"github.com/keyxmakerx/stream/internal/plugins/users"
	"github.com/keyxmakerx/stream/internal/templates/pages"
)

// App holds all shared dependencies and the Echo HTTP server instance.
// Created once at startup in main.go and used to register all routes.
type App struct {
	// Config holds the loaded application configuration.
	Config *config.Config

	// DB is the MariaDB pool: records (local backend), rules and users.
	DB *sql.DB

	// Redis holds push device tokens and the distinct-values cache.
	Redis *redis.Client

	// Bus publishes alerts to NATS. Nil when NATS_URL is unset.
	Bus *bus.Publisher

	// Echo is the HTTP server instance.
	Echo *echo.Echo

	records *records.Handler
	alerts  *alerts.Handler
	users   *users.Handler
	export  *export.Handler
	feeds   *feeds.Handler
	smtp    *smtp.Handler

	ruleService alerts.RuleService
}

// New creates a new App, wires every plugin, and configures the Echo server
// with global middleware and error handling. pub may be nil.
func New(cfg *config.Config, db *sql.DB, rdb *redis.Client, pub *bus.Publisher) (*App, error) {
	e := echo.New()

	// Disable Echo's default banner and startup message -- we log our own.
	e.HideBanner = true
	e.HidePort = true

	middleware.TrustedProxies(e, cfg.HTTP.TrustedProxies)

	app := &App{
		Config: cfg,
		DB:     db,
		Redis:  rdb,
		Bus:    pub,
		Echo:   e,
	}

	if err := app.wire(); err != nil {
		return nil, err
	}

	app.setupMiddleware()
	e.HTTPErrorHandler = app.errorHandler

	return app, nil
}

// wire builds the plugin graph: users feed the alert adapters, the alert
// notifier listens to the record service, and the handlers sit on top.
func (a *App) wire() error {
	cfg := a.Config

	// --- Users ---
	userService := users.NewUserService(users.NewUserRepository(a.DB))

	// --- Mail ---
	mailService := smtp.NewMailService(smtp.Settings{
		Host:        cfg.SMTP.Host,
		Port:        cfg.SMTP.Port,
		Username:    cfg.SMTP.Username,
		Password:    cfg.SMTP.Password,
		FromAddress: cfg.SMTP.FromAddress,
		FromName:    cfg.SMTP.FromName,
		Encryption:  cfg.SMTP.Encryption,
	})

	// --- Alert adapters ---
	tokens := alerts.NewRedisTokenStore(a.Redis)
	adapters := []alerts.Adapter{
		alerts.NewEmailAdapter(mailService, userService),
		alerts.NewPushAdapter(cfg.Push.GatewayURL, cfg.Push.APIKey, tokens, cfg.Push.Timeout),
	}
	// Only register the bus adapter with a live connection; a nil
	// *bus.Publisher inside the interface would not compare equal to nil.
	if a.Bus != nil {
		adapters = append(adapters, alerts.NewBusAdapter(a.Bus, cfg.Bus.Subject))
	}
	registry, err := alerts.NewRegistry(adapters...)
	if err != nil {
		return fmt.Errorf("building alert adapter registry: %w", err)
	}

	// --- Alert rules and notifier ---
	a.ruleService = alerts.NewRuleService(alerts.NewRuleRepository(a.DB), registry)
	notifier := alerts.NewNotifier(
		a.ruleService,
		alerts.NewEvaluator(),
		alerts.NewDispatcher(registry, userService),
		cfg.Alerts.Concurrency,
	)

	// --- Records ---
	backend, err := newBackend(cfg.Storage, a.DB)
	if err != nil {
		return err
	}
	recordService := records.NewRecordService(
		backend,
		records.NewRedisDistinctCache(a.Redis, cfg.Query.DistinctCacheTTL),
		notifier,
	)
	planner := records.NewPlanner(cfg.Query.DefaultPerPage, cfg.Query.MaxPerPage)

	// --- Handlers ---
	a.records = records.NewHandler(recordService, planner)
	a.alerts = alerts.NewHandler(a.ruleService, registry, tokens)
	a.users = users.NewHandler(userService)
	a.export = export.NewHandler(recordService, planner, export.DefaultRegistry())
	a.feeds = feeds.NewHandler(recordService, planner, userService, cfg.HTTP.FeedTitle, cfg.BaseURL)
	a.smtp = smtp.NewHandler(mailService)
	return nil
}

// newBackend picks the record backend once. Nothing downstream knows which
// one it got.
func newBackend(cfg config.StorageConfig, db *sql.DB) (records.Backend, error) {
	switch cfg.Backend {
	case config.BackendLocal:
		slog.Info("using local record backend")
		return records.NewMariaDBBackend(db), nil
	case config.BackendRemote:
		slog.Info("using remote record backend", slog.String("url", cfg.RemoteURL))
		return records.NewRemoteBackend(cfg.RemoteURL, cfg.RemoteAPIKey, cfg.RemoteTimeout), nil
	}
	return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
}

// SeedRules imports the configured rules file, if any. Rules are upserted
// by ID so restarting with the same file is harmless.
func (a *App) SeedRules(ctx context.Context) error {
	path := a.Config.Alerts.RulesFile
	if path == "" {
		return nil
	}
	rules, err := alerts.LoadRulesFile(path)
	if err != nil {
		return err
	}
	if err := a.ruleService.Seed(ctx, rules); err != nil {
		return fmt.Errorf("seeding alert rules from %s: %w", path, err)
	}
	return nil
}

// setupMiddleware registers global middleware on the Echo instance.
// The request logger wraps recovery so recovered panics are logged with
// their final status.
func (a *App) setupMiddleware() {
	a.Echo.Use(middleware.RequestID())
	a.Echo.Use(middleware.RequestLogger())
	a.Echo.Use(middleware.Recovery())
	a.Echo.Use(middleware.SecurityHeaders())
	a.Echo.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins: a.Config.HTTP.CORSOrigins,
	}))
}

// errorHandler is the custom Echo error handler. It maps domain errors
// (AppError) and Echo errors to JSON, or to an error page for browsers
// outside the API.
func (a *App) errorHandler(err error, c echo.Context) {
	// Don't double-write if response is already committed.
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	errType := "internal_error"
	message := defaultErrorMessage(code)

	var appErr *apperror.AppError
	var echoErr *echo.HTTPError
	switch {
	case errors.As(err, &appErr):
		code = appErr.Code
		errType = appErr.Type
		message = appErr.Message

		if appErr.Internal != nil {
			slog.Error("internal error",
				slog.String("type", appErr.Type),
				slog.String("message", appErr.Message),
				slog.Any("internal", appErr.Internal),
				slog.String("path", c.Request().URL.Path),
			)
		}
	case errors.As(err, &echoErr):
		code = echoErr.Code
		errType = strings.ToLower(strings.ReplaceAll(http.StatusText(code), " ", "_"))
		if msg, ok := echoErr.Message.(string); ok {
			message = msg
		} else {
			message = defaultErrorMessage(code)
		}
	default:
		slog.Error("unhandled error",
			slog.Any("error", err),
			slog.String("path", c.Request().URL.Path),
		)
	}

	var writeErr error
	if !isAPIRequest(c) && middleware.WantsHTML(c) {
		writeErr = middleware.Render(c, code, pages.ErrorPage(code, message))
	} else {
		writeErr = c.JSON(code, map[string]string{
			"error":   http.StatusText(code),
			"type":    errType,
			"message": message,
		})
	}
	if writeErr != nil {
		slog.Warn("writing error response failed", slog.Any("error", writeErr))
	}
}

// defaultErrorMessage returns a user-friendly message for common HTTP status
// codes when no specific message was provided by the error.
func defaultErrorMessage(code int) string {
	switch code {
	case http.StatusBadRequest:
		return "The request was invalid or cannot be processed."
	case http.StatusUnauthorized:
		return "A valid API key is required."
	case http.StatusNotFound:
		return "The requested resource does not exist."
	case http.StatusMethodNotAllowed:
		return "This method is not allowed."
	case http.StatusUnprocessableEntity:
		return "The submitted data could not be processed."
	case http.StatusTooManyRequests:
		return "Too many requests. Please slow down."
	case http.StatusServiceUnavailable:
		return "The service is temporarily unavailable. Please try again later."
	default:
		return "An unexpected error occurred."
	}
}

// isAPIRequest returns true if the request is targeting the JSON API.
func isAPIRequest(c echo.Context) bool {
	return strings.HasPrefix(c.Request().URL.Path, "/api/")
}

// Start begins listening for HTTP requests on the configured port.
func (a *App) Start() error {
	addr := fmt.Sprintf(":%d", a.Config.Port)
	slog.Info("starting Stream server",
		slog.String("addr", addr),
		slog.String("env", a.Config.Env),
		slog.String("storage", a.Config.Storage.Backend),
	)
	return a.Echo.Start(addr)
}
