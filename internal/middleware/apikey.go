package middleware

import (
	"crypto/sha256"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"
)

// maxVerifiedKeys bounds the set of key digests that skip bcrypt.
const maxVerifiedKeys = 16

// RequireAPIKey returns middleware that authenticates requests against a
// bcrypt hash of the shared API key. The key is read from
// "Authorization: Bearer <key>", then X-API-Key, then the "key" query
// parameter (feed readers cannot set headers). An empty hash disables the
// check. Digests of keys that already verified skip the bcrypt compare.
func RequireAPIKey(hash string) echo.MiddlewareFunc {
	if hash == "" {
		slog.Warn("API key check disabled: no API_KEY_HASH configured")
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}

	var mu sync.RWMutex
	verified := make(map[[32]byte]struct{})

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			rawKey := extractAPIKey(c)
			if rawKey == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "api key required")
			}

			digest := sha256.Sum256([]byte(rawKey))
			mu.RLock()
			_, ok := verified[digest]
			mu.RUnlock()

			if !ok {
				if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(rawKey)); err != nil {
					slog.Warn("api key rejected",
						slog.String("remote_ip", c.RealIP()),
						slog.String("path", c.Request().URL.Path),
					)
					return echo.NewHTTPError(http.StatusUnauthorized, "invalid api key")
				}
				mu.Lock()
				if len(verified) >= maxVerifiedKeys {
					clear(verified)
				}
				verified[digest] = struct{}{}
				mu.Unlock()
			}

			return next(c)
		}
	}
}

// extractAPIKey returns the presented key, or "" when none was sent.
func extractAPIKey(c echo.Context) string {
	req := c.Request()
	if auth := req.Header.Get(echo.HeaderAuthorization); auth != "" {
		if key, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return strings.TrimSpace(key)
		}
	}
	if key := req.Header.Get("X-API-Key"); key != "" {
		return strings.TrimSpace(key)
	}
	return c.QueryParam("key")
}
