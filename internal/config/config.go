// Package config handles loading application configuration from environment
// variables. All config is centralized here so no other package reads env
// vars directly. A .env file in the working directory is loaded first when
// present; real environment variables always win.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
)

// Storage backend identifiers accepted by STORAGE_BACKEND.
const (
	BackendLocal  = "local"
	BackendRemote = "remote"
)

// Config holds all application configuration. Populated from environment
// variables at startup and passed to other packages via dependency injection.
type Config struct {
	// Env is the runtime environment: "development" or "production".
	Env string

	// Port is the HTTP listen port (default: 8080).
	Port int

	// BaseURL is the public-facing URL used for feed links.
	BaseURL string

	// LogLevel controls log verbosity: "debug", "info", "warn", "error".
	LogLevel string

	// MigrationsPath is the directory holding SQL migration files.
	MigrationsPath string

	Database DatabaseConfig
	Redis    RedisConfig
	Storage  StorageConfig
	Query    QueryConfig
	SMTP     SMTPConfig
	Push     PushConfig
	Bus      BusConfig
	Alerts   AlertsConfig
	Auth     AuthConfig
	HTTP     HTTPConfig
}

// DatabaseConfig holds MariaDB connection parameters. If DATABASE_URL is
// set it takes precedence over the individual fields.
type DatabaseConfig struct {
	// Host is the MariaDB address in host:port format (default: "localhost:3306").
	Host string

	User     string
	Password string
	Name     string

	// dsnOverride is set when DATABASE_URL is provided, bypassing individual fields.
	dsnOverride string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DSN returns the go-sql-driver/mysql connection string. Built with the
// driver's FormatDSN so special characters in passwords are escaped.
func (d DatabaseConfig) DSN() string {
	if d.dsnOverride != "" {
		return d.dsnOverride
	}
	cfg := mysql.NewConfig()
	cfg.User = d.User
	cfg.Passwd = d.Password
	cfg.Net = "tcp"
	cfg.Addr = ensurePort(d.Host, "3306")
	cfg.DBName = d.Name
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	return cfg.FormatDSN()
}

// ensurePort appends the default port if the host string doesn't include one.
func ensurePort(host, defaultPort string) string {
	_, _, err := net.SplitHostPort(host)
	if err != nil {
		return net.JoinHostPort(host, defaultPort)
	}
	return host
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	// URL is the Redis connection URL (e.g., "redis://localhost:6379").
	URL string
}

// StorageConfig selects the record backend. The choice is made once at
// startup; nothing downstream branches on it.
type StorageConfig struct {
	// Backend is "local" (MariaDB tables) or "remote" (search API).
	Backend string

	// RemoteURL is the base URL of the remote search service.
	RemoteURL string

	// RemoteAPIKey is sent as a bearer token to the remote service.
	RemoteAPIKey string

	// RemoteTimeout bounds each remote call.
	RemoteTimeout time.Duration
}

// QueryConfig holds defaults for the query planner.
type QueryConfig struct {
	// DefaultPerPage is used when the caller gives no records_per_page.
	DefaultPerPage int

	// MaxPerPage clamps records_per_page to bound result size.
	MaxPerPage int

	// DistinctCacheTTL is how long distinct column values stay cached in Redis.
	DistinctCacheTTL time.Duration
}

// SMTPConfig holds outbound mail settings for the email alert adapter.
type SMTPConfig struct {
	Host        string
	Port        int
	Username    string
	Password    string
	FromAddress string
	FromName    string

	// Encryption is "starttls", "ssl", or "none".
	Encryption string
}

// PushConfig holds settings for the push gateway used by the push adapter.
type PushConfig struct {
	GatewayURL string
	APIKey     string
	Timeout    time.Duration
}

// BusConfig holds NATS settings for the bus alert adapter. An empty URL
// disables the adapter.
type BusConfig struct {
	URL     string
	Subject string
}

// AlertsConfig holds alert engine settings.
type AlertsConfig struct {
	// RulesFile is an optional YAML file of rules imported at startup.
	RulesFile string

	// Concurrency bounds how many matched rules dispatch in parallel.
	Concurrency int
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	// APIKeyHash is the bcrypt hash of the API key clients must present.
	// Empty disables the check (development only).
	APIKeyHash string
}

// HTTPConfig holds settings for the HTTP edge.
type HTTPConfig struct {
	// TrustedProxies are CIDRs whose X-Forwarded-For/X-Real-IP are believed.
	TrustedProxies []string

	// CORSOrigins are origins allowed to call the API from a browser.
	CORSOrigins []string

	// IngestRateLimit caps record ingestion per client IP per minute.
	// Zero disables the limit.
	IngestRateLimit int

	// FeedTitle names the RSS/Atom/JSON feeds.
	FeedTitle string
}

// Load reads configuration from environment variables with sensible defaults.
// Returns an error if the combination of settings is invalid.
func Load() (*Config, error) {
	// Missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg := &Config{
		Env:            getEnv("ENV", "development"),
		Port:           getEnvInt("PORT", 8080),
		BaseURL:        getEnv("BASE_URL", "http://localhost:8080"),
		LogLevel:       getEnv("LOG_LEVEL", "debug"),
		MigrationsPath: getEnv("MIGRATIONS_PATH", "db/migrations"),

		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost:3306"),
			User:            getEnv("DB_USER", "stream"),
			Password:        getEnv("DB_PASSWORD", "stream"),
			Name:            getEnv("DB_NAME", "stream"),
			dsnOverride:     getEnv("DATABASE_URL", ""),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},

		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", "redis://localhost:6379"),
		},

		Storage: StorageConfig{
			Backend:       strings.ToLower(getEnv("STORAGE_BACKEND", BackendLocal)),
			RemoteURL:     getEnv("REMOTE_API_URL", ""),
			RemoteAPIKey:  getEnv("REMOTE_API_KEY", ""),
			RemoteTimeout: getEnvDuration("REMOTE_API_TIMEOUT", 10*time.Second),
		},

		Query: QueryConfig{
			DefaultPerPage:   getEnvInt("RECORDS_PER_PAGE", 20),
			MaxPerPage:       getEnvInt("RECORDS_MAX_PER_PAGE", 100),
			DistinctCacheTTL: getEnvDuration("DISTINCT_CACHE_TTL", 5*time.Minute),
		},

		SMTP: SMTPConfig{
			Host:        getEnv("SMTP_HOST", ""),
			Port:        getEnvInt("SMTP_PORT", 587),
			Username:    getEnv("SMTP_USERNAME", ""),
			Password:    getEnv("SMTP_PASSWORD", ""),
			FromAddress: getEnv("SMTP_FROM_ADDRESS", "stream@localhost"),
			FromName:    getEnv("SMTP_FROM_NAME", "Stream"),
			Encryption:  strings.ToLower(getEnv("SMTP_ENCRYPTION", "starttls")),
		},

		Push: PushConfig{
			GatewayURL: getEnv("PUSH_GATEWAY_URL", ""),
			APIKey:     getEnv("PUSH_API_KEY", ""),
			Timeout:    getEnvDuration("PUSH_TIMEOUT", 10*time.Second),
		},

		Bus: BusConfig{
			URL:     getEnv("NATS_URL", ""),
			Subject: getEnv("NATS_SUBJECT", "stream.alerts"),
		},

		Alerts: AlertsConfig{
			RulesFile:   getEnv("ALERT_RULES_FILE", ""),
			Concurrency: getEnvInt("ALERT_CONCURRENCY", 4),
		},

		Auth: AuthConfig{
			APIKeyHash: getEnv("API_KEY_HASH", ""),
		},

		HTTP: HTTPConfig{
			TrustedProxies:  getEnvList("TRUSTED_PROXIES", "127.0.0.1/8,10.0.0.0/8,172.16.0.0/12,192.168.0.0/16,::1/128"),
			CORSOrigins:     getEnvList("CORS_ORIGINS", ""),
			IngestRateLimit: getEnvInt("INGEST_RATE_LIMIT", 600),
			FeedTitle:       getEnv("FEED_TITLE", "Stream activity"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks cross-field constraints after defaults are applied.
func (c *Config) validate() error {
	switch c.Storage.Backend {
	case BackendLocal:
	case BackendRemote:
		if c.Storage.RemoteURL == "" {
			return fmt.Errorf("REMOTE_API_URL is required when STORAGE_BACKEND=remote")
		}
	default:
		return fmt.Errorf("STORAGE_BACKEND must be %q or %q, got %q", BackendLocal, BackendRemote, c.Storage.Backend)
	}

	if c.Query.MaxPerPage < 1 {
		return fmt.Errorf("RECORDS_MAX_PER_PAGE must be at least 1")
	}
	if c.Query.DefaultPerPage < 1 || c.Query.DefaultPerPage > c.Query.MaxPerPage {
		c.Query.DefaultPerPage = c.Query.MaxPerPage
	}
	if c.Alerts.Concurrency < 1 {
		c.Alerts.Concurrency = 1
	}

	switch c.SMTP.Encryption {
	case "starttls", "ssl", "none":
	default:
		return fmt.Errorf("SMTP_ENCRYPTION must be starttls, ssl, or none")
	}

	if !c.IsDevelopment() && c.Auth.APIKeyHash == "" {
		return fmt.Errorf("API_KEY_HASH is required outside development")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	env := strings.ToLower(c.Env)
	return env == "development" || env == "dev"
}

// --- Helper functions for reading environment variables ---

// getEnv reads a string env var or returns the default.
func getEnv(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return defaultVal
}

// getEnvInt reads an integer env var or returns the default.
func getEnvInt(key string, defaultVal int) int {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

// getEnvList reads a comma-separated env var, dropping empty items.
func getEnvList(key, defaultVal string) []string {
	var out []string
	for _, item := range strings.Split(getEnv(key, defaultVal), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// getEnvDuration reads a duration env var (e.g., "10s") or returns the default.
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
