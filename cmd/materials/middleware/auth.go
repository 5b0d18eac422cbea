package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
	commonmw "github.com/lyzr/materials/common/middleware"
)

// UserHeader carries the caller identity set by the upstream gateway
const UserHeader = "X-User-ID"

// ExtractUsernameStrict requires the X-User-ID header and stores it in the
// echo context. The gateway in front of the service authenticates callers;
// this service only records who they are.
//
// Accessing in handlers:
//
//	username := middleware.GetUsername(c)
func ExtractUsernameStrict() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			username := c.Request().Header.Get(UserHeader)

			if username == "" {
				return c.JSON(http.StatusUnauthorized, map[string]interface{}{
					"code": http.StatusUnauthorized,
					"msg":  "X-User-ID header is required",
				})
			}

			c.Set(commonmw.UsernameKey, username)
			return next(c)
		}
	}
}

// GetUsername retrieves the username from the request context
// Returns empty string if not set
func GetUsername(c echo.Context) string {
	username, _ := c.Get(commonmw.UsernameKey).(string)
	return username
}
