package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"chatdash-proxy/internal/auth"
	"chatdash-proxy/internal/client"
	"chatdash-proxy/internal/config"
	"chatdash-proxy/internal/service"
)

// StoresHandler serves the dedicated stores-list endpoint. Unlike the
// generic proxy it requires an authenticated identity and wraps the
// caller's parameters with the user id before invoking the workflow.
type StoresHandler struct {
	client *client.N8NClient
	auth   *auth.Resolver
	logger *slog.Logger
	base   string
}

// NewStoresHandler creates a StoresHandler.
func NewStoresHandler(c *client.N8NClient, r *auth.Resolver, cfg *config.Config, logger *slog.Logger) *StoresHandler {
	return &StoresHandler{
		client: c,
		auth:   r,
		logger: logger.With("component", "stores_handler"),
		base:   service.NormalizeBase(cfg.Upstream.BaseURL),
	}
}

// List returns the caller's connected stores, optionally filtered by
// platform and paginated.
func (h *StoresHandler) List(c echo.Context) error {
	userID := auth.UserID(h.auth.Token(c.Request().Header))
	if userID == "" {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}

	q := c.QueryParams()
	limit, err := strconv.Atoi(q.Get("limit"))
	if err != nil || limit <= 0 {
		limit = 10
	}
	offset, err := strconv.Atoi(q.Get("offset"))
	if err != nil || offset < 0 {
		offset = 0
	}

	payload := map[string]any{
		"user_id":   userID,
		"platform":  nullable(q.Get("platform")),
		"limit":     limit,
		"offset":    offset,
		"timestamp": time.Now().UnixMilli(),
	}

	return h.invoke(c, payload)
}

// Create forwards an arbitrary stores-list operation: the JSON body is
// passed through with the user id and timestamp attached.
func (h *StoresHandler) Create(c echo.Context) error {
	userID := auth.UserID(h.auth.Token(c.Request().Header))
	if userID == "" {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}

	var body map[string]any
	if err := json.NewDecoder(c.Request().Body).Decode(&body); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid JSON body"})
	}

	payload := map[string]any{"user_id": userID}
	for k, v := range body {
		payload[k] = v
	}
	payload["timestamp"] = time.Now().UnixMilli()

	return h.invoke(c, payload)
}

func (h *StoresHandler) invoke(c echo.Context, payload map[string]any) error {
	status, raw, err := h.client.PostJSON(c.Request().Context(), h.base+"/stores/list", payload)
	if err != nil {
		h.logger.Error("stores list workflow error", "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "Internal server error",
		})
	}
	if status < 200 || status >= 300 {
		h.logger.Error("stores list workflow failed", "status", status, "body", string(raw))
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "Failed to fetch stores list",
		})
	}

	return c.JSONBlob(http.StatusOK, raw)
}

// nullable maps an absent query parameter to JSON null, matching the
// workflow's expected payload shape.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
