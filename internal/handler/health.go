package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"chatdash-proxy/internal/config"
	"chatdash-proxy/internal/service"
)

// Version is a string type for dependency injection of the build version.
type Version string

// HealthHandler serves health and status endpoints.
type HealthHandler struct {
	cfg     *config.Config
	service *service.ForwardService
	version Version
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(cfg *config.Config, svc *service.ForwardService, v Version) *HealthHandler {
	return &HealthHandler{cfg: cfg, service: svc, version: v}
}

// Healthz returns a simple OK response for liveness probes.
func (h *HealthHandler) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Status returns proxy status information, including the normalized
// upstream base the forwarder actually targets.
func (h *HealthHandler) Status(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":       "ok",
		"version":      string(h.version),
		"upstream_url": h.service.Base(),
	})
}
