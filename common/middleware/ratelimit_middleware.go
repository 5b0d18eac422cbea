package middleware

import (
	"crypto/subtle"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/lyzr/materials/common/ratelimit"
)

// UsernameKey is the echo context key holding the caller identity
const UsernameKey = "username"

// InternalServiceHeader lets trusted services skip upload limits
const InternalServiceHeader = "X-Internal-Service"

// UploadLimit configures UploadRateLimitMiddleware
type UploadLimit struct {
	Limit          int64         // uploads per creator per window, 0 disables
	Window         time.Duration // defaults to one minute
	InternalSecret string        // empty disables the bypass header
}

func (l UploadLimit) windowSeconds() int {
	if l.Window < time.Second {
		return 60
	}
	return int(l.Window / time.Second)
}

func (l UploadLimit) internal(c echo.Context) bool {
	if l.InternalSecret == "" {
		return false
	}
	got := c.Request().Header.Get(InternalServiceHeader)
	return subtle.ConstantTimeCompare([]byte(got), []byte(l.InternalSecret)) == 1
}

// UploadRateLimitMiddleware caps how many uploads each creator may start per
// window. Requires the username set by the auth middleware. Redis failures
// let the request through.
func UploadRateLimitMiddleware(rateLimiter *ratelimit.RateLimiter, cfg UploadLimit) echo.MiddlewareFunc {
	window := cfg.windowSeconds()

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if cfg.Limit <= 0 || cfg.internal(c) {
				return next(c)
			}

			username, ok := c.Get(UsernameKey).(string)
			if !ok || username == "" {
				return next(c)
			}

			result, err := rateLimiter.CheckUploadLimit(c.Request().Context(), username, cfg.Limit, window)
			if err != nil {
				return next(c)
			}

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.FormatInt(result.Limit, 10))
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(max(result.Limit-result.CurrentCount, 0), 10))

			if !result.Allowed {
				h.Set("Retry-After", strconv.FormatInt(result.RetryAfterSeconds, 10))
				return c.JSON(http.StatusTooManyRequests, map[string]any{
					"code": http.StatusTooManyRequests,
					"msg":  "upload rate limit exceeded, retry in " + strconv.FormatInt(result.RetryAfterSeconds, 10) + "s",
				})
			}

			return next(c)
		}
	}
}
