package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestSecurityHeaders_StripsHopByHopRequestHeaders(t *testing.T) {
	e := echo.New()
	e.Use(SecurityHeaders())

	var seen http.Header
	e.GET("/", func(c echo.Context) error {
		seen = c.Request().Header.Clone()
		return c.NoContent(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Connection", "keep-alive")
	req.Header.Set("Proxy-Authorization", "Basic abc")
	req.Header.Set("Transfer-Encoding", "chunked")
	req.Header.Set("X-Custom", "kept")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	for _, h := range hopByHopRequestHeaders {
		if seen.Get(h) != "" {
			t.Errorf("header %s reached the handler", h)
		}
	}
	if seen.Get("X-Custom") != "kept" {
		t.Error("end-to-end header was stripped")
	}
}

func TestSecurityHeaders_SetsResponseHeaders(t *testing.T) {
	e := echo.New()
	e.Use(SecurityHeaders())
	e.GET("/", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", got)
	}
	if got := rec.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q", got)
	}
}
