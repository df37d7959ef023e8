package middleware

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"chatdash-proxy/internal/metrics"
)

// MetricsMiddleware returns an Echo middleware that records Prometheus
// metrics for each inbound request. Status codes are resolved through
// responseStatus so requests answered via echo's error handler are counted
// under their real code, and paths are bucketed to the proxy's known
// prefixes to keep label cardinality bounded.
func MetricsMiddleware(m *metrics.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			m.RequestsInFlight.Inc()
			defer m.RequestsInFlight.Dec()

			start := time.Now()

			err := next(c)

			status := strconv.Itoa(responseStatus(c, err))
			method := metrics.NormalizeMethod(c.Request().Method)
			path := metrics.NormalizePath(c.Request().URL.Path)
			duration := time.Since(start).Seconds()

			m.RequestsTotal.WithLabelValues(method, status, path).Inc()
			m.RequestDuration.WithLabelValues(method, status, path).Observe(duration)

			return err
		}
	}
}
