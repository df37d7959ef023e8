// Package middleware provides Echo middleware for logging, metrics, and security.
package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// responseStatus resolves the status code a request will be answered with.
// When a handler returns an *echo.HTTPError the response has not been
// written yet; echo's central error handler commits it after the middleware
// chain unwinds, so the error is the only source of truth at this point.
func responseStatus(c echo.Context, err error) int {
	if err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return he.Code
		}
		return http.StatusInternalServerError
	}
	return c.Response().Status
}

// RequestLogger returns an Echo middleware that logs each request with slog.
// The matched route is included so proxied wildcard traffic ("/api/n8n/*")
// is distinguishable from the static endpoints; 5xx responses are logged at
// error level so backend trouble stands out from normal traffic.
func RequestLogger(logger *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			req := c.Request()
			res := c.Response()
			status := responseStatus(c, err)

			attrs := []any{
				"method", req.Method,
				"path", req.URL.Path,
				"route", c.Path(),
				"status", status,
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", res.Header().Get(echo.HeaderXRequestID),
				"remote_ip", c.RealIP(),
				"bytes_out", res.Size,
			}
			if status >= http.StatusInternalServerError {
				logger.Error("request", attrs...)
			} else {
				logger.Info("request", attrs...)
			}

			return err
		}
	}
}
