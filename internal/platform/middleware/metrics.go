package middleware

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/lims/lims/internal/platform/metrics"
)

// Metrics records request counts and latency per route. The route
// template is used rather than the raw path so UUID segments do not
// explode label cardinality.
func Metrics() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			path := c.Path()
			if path == "" {
				path = c.Request().URL.Path
			}
			metrics.RecordAPIRequest(c.Request().Method, path, c.Response().Status, time.Since(start).Seconds())
			return err
		}
	}
}
