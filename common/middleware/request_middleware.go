package middleware

import (
	"context"

	"github.com/labstack/echo/v4"
	"github.com/lyzr/materials/common/logger"
	"github.com/lyzr/materials/common/metrics"
)

// RequestContext copies the echo request id into the request context so
// logger.WithContext can pick it up. Register after middleware.RequestID.
func RequestContext() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := c.Response().Header().Get(echo.HeaderXRequestID)
			if id != "" {
				req := c.Request()
				c.SetRequest(req.WithContext(context.WithValue(req.Context(), logger.RequestIDKey, id)))
			}
			return next(c)
		}
	}
}

// RequestMetrics counts responses by status code and method
func RequestMetrics(m *metrics.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				}
			}
			m.RequestHandled(status, c.Request().Method)
			return err
		}
	}
}
