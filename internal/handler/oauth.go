package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"

	"chatdash-proxy/internal/auth"
	"chatdash-proxy/internal/config"
	"chatdash-proxy/internal/service"
)

// OAuthHandler bridges browser-driven OAuth flows between the dashboard and
// the backend workflow engine. Both handlers are reached via full-page
// navigation, so failures redirect to the store-connection page with a
// query-encoded error instead of returning a raw error response. The one
// exception is an install response with no usable authorization URL: there
// is no sensible page to land on, so a diagnostic JSON 500 is returned.
type OAuthHandler struct {
	service *service.OAuthService
	auth    *auth.Resolver
	cfg     *config.Config
	logger  *slog.Logger
}

// NewOAuthHandler creates an OAuthHandler.
func NewOAuthHandler(svc *service.OAuthService, r *auth.Resolver, cfg *config.Config, logger *slog.Logger) *OAuthHandler {
	return &OAuthHandler{
		service: svc,
		auth:    r,
		cfg:     cfg,
		logger:  logger.With("component", "oauth_handler"),
	}
}

// Install initiates the Shopify OAuth flow: it asks the backend for an
// authorization URL and redirects the browser to it.
func (h *OAuthHandler) Install(c echo.Context) error {
	userID := auth.UserID(h.auth.Token(c.Request().Header))
	if userID == "" {
		return h.redirectError(c, "unauthorized", "Sign in to connect your store")
	}

	q := c.QueryParams()
	shopDomain := q.Get("shop")
	if shopDomain == "" {
		shopDomain = q.Get("shop_domain")
	}
	if shopDomain == "" {
		return h.redirectError(c, "missing_shop_domain", "Please enter your shop domain to connect your Shopify store")
	}

	returnURL := q.Get("return_url")
	if returnURL == "" {
		returnURL = h.cfg.App.ConnectURL()
	}

	authURL, raw, err := h.service.StartInstall(c.Request().Context(), service.InstallParams{
		ShopDomain: shopDomain,
		ReturnURL:  returnURL,
		TenantID:   q.Get("tenant_id"),
		StoreName:  q.Get("store_name"),
		UserID:     userID,
	})
	if err != nil {
		h.logger.Error("shopify install failed", "err", err, "shop", shopDomain)

		if errors.Is(err, service.ErrNoAuthURL) {
			// The backend may answer with a non-JSON payload (an HTML error
			// page, for instance); embedding that as RawMessage would make
			// the serializer fail after the status line is committed.
			var rawResponse any = string(raw)
			if json.Valid(raw) {
				rawResponse = json.RawMessage(raw)
			}
			return c.JSON(http.StatusInternalServerError, map[string]any{
				"error": "No valid auth_url in workflow response",
				"debug": map[string]any{
					"rawResponse": rawResponse,
				},
			})
		}
		if errors.Is(err, service.ErrInstallRequestFailed) {
			return c.JSON(http.StatusInternalServerError, map[string]string{
				"error": "Failed to start Shopify installation",
			})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error":   "Internal server error",
			"details": err.Error(),
		})
	}

	return c.Redirect(http.StatusFound, authURL)
}

// Callback receives the OAuth provider's redirect, forwards the
// authorization code to the backend for token exchange, and lands the
// browser on the store-connection page with the outcome.
func (h *OAuthHandler) Callback(c echo.Context) error {
	q := c.QueryParams()

	if provErr := q.Get("error"); provErr != "" {
		desc := q.Get("error_description")
		if desc == "" {
			desc = "OAuth authorization failed"
		}
		h.logger.Warn("shopify oauth provider error", "error", provErr, "description", desc)
		return h.redirectError(c, provErr, desc)
	}

	code := q.Get("code")
	shop := q.Get("shop")
	state := q.Get("state")
	if code == "" || shop == "" || state == "" {
		return h.redirectError(c, "invalid_request", "Missing required OAuth parameters")
	}

	status, err := h.service.CompleteCallback(c.Request().Context(), code, shop, state)
	if err != nil {
		h.logger.Error("shopify callback failed", "err", err, "shop", shop)
		if errors.Is(err, service.ErrCallbackRequestFailed) {
			return h.redirectError(c, "callback_failed", "Failed to process OAuth callback")
		}
		return h.redirectError(c, "internal_error", "Internal server error during OAuth callback")
	}

	if !status.Success {
		desc := status.Error
		if desc == "" {
			desc = "Shopify app installation failed"
		}
		return h.redirectError(c, "installation_failed", desc)
	}

	landing, err := url.Parse(h.cfg.App.ConnectURL())
	if err != nil {
		return h.redirectError(c, "internal_error", "Internal server error during OAuth callback")
	}
	params := landing.Query()
	params.Set("success", "true")
	params.Set("shop", shop)
	landing.RawQuery = params.Encode()

	return c.Redirect(http.StatusFound, landing.String())
}

// redirectError lands the browser on the store-connection page with a
// query-encoded error.
func (h *OAuthHandler) redirectError(c echo.Context, code, description string) error {
	landing, err := url.Parse(h.cfg.App.ConnectURL())
	if err != nil {
		// Config is validated at startup; this is unreachable in practice.
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": code})
	}
	params := landing.Query()
	params.Set("error", code)
	params.Set("error_description", description)
	landing.RawQuery = params.Encode()

	return c.Redirect(http.StatusFound, landing.String())
}
