// Package database owns the lifecycle of Stream's shared connections:
// the MariaDB pool used by the local record backend and the alert rule
// repository, and the Redis client used for device tokens and caching.
// Connections are created once at startup and injected everywhere else.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	// MariaDB driver, registered for database/sql.
	_ "github.com/go-sql-driver/mysql"

	"github.com/keyxmakerx/stream/internal/config"
)

// pingAttempts is how many times NewMariaDB pings before giving up.
const pingAttempts = 10

// NewMariaDB opens a pool configured from cfg and waits for the server to
// answer a ping, backing off exponentially while it starts up.
func NewMariaDB(cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("mysql", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("opening mariadb connection: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := waitForPing(db, pingAttempts, time.Second); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// waitForPing pings db up to attempts times, doubling the pause between
// tries up to 30 seconds.
func waitForPing(db *sql.DB, attempts int, backoff time.Duration) error {
	var pingErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		pingErr = db.PingContext(ctx)
		cancel()

		if pingErr == nil {
			return nil
		}
		if attempt == attempts {
			break
		}

		slog.Warn("mariadb not ready, retrying",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", attempts),
			slog.Duration("backoff", backoff),
			slog.Any("error", pingErr),
		)
		time.Sleep(backoff)
		backoff = min(backoff*2, 30*time.Second)
	}
	return fmt.Errorf("pinging mariadb after %d attempts: %w", attempts, pingErr)
}
