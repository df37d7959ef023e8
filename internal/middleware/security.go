package middleware

import (
	"github.com/labstack/echo/v4"
)

// hopByHopRequestHeaders are connection-scoped headers that must not reach
// the backend. Transfer-Encoding on the response side is handled by the
// proxy handler, which also owns Content-Encoding rewriting.
var hopByHopRequestHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"TE",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// SecurityHeaders returns an Echo middleware that strips hop-by-hop headers
// from incoming requests and adds security headers to responses.
func SecurityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			for _, h := range hopByHopRequestHeaders {
				c.Request().Header.Del(h)
			}

			// Response headers must be set before the handler writes.
			c.Response().Header().Set("X-Content-Type-Options", "nosniff")
			c.Response().Header().Set("X-Frame-Options", "DENY")

			return next(c)
		}
	}
}
