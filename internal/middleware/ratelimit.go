package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

// limiterEntry is one client's token bucket and when it was last used.
type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimit returns middleware that allows each client IP maxRequests per
// window, with bursts up to maxRequests. Returns 429 when exceeded. A
// non-positive maxRequests disables the limit.
func RateLimit(maxRequests int, window time.Duration) echo.MiddlewareFunc {
	if maxRequests <= 0 || window <= 0 {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	every := rate.Every(window / time.Duration(maxRequests))

	var mu sync.Mutex
	entries := make(map[string]*limiterEntry)
	lastSweep := time.Now()

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ip := c.RealIP()
			now := time.Now()

			mu.Lock()
			// Idle clients are dropped lazily instead of by a ticker goroutine.
			if now.Sub(lastSweep) > window {
				for k, e := range entries {
					if now.Sub(e.lastSeen) > 2*window {
						delete(entries, k)
					}
				}
				lastSweep = now
			}
			entry, ok := entries[ip]
			if !ok {
				entry = &limiterEntry{limiter: rate.NewLimiter(every, maxRequests)}
				entries[ip] = entry
			}
			entry.lastSeen = now
			allowed := entry.limiter.AllowN(now, 1)
			mu.Unlock()

			if !allowed {
				c.Response().Header().Set(echo.HeaderRetryAfter, "1")
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}
