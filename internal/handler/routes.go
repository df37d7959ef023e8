package handler

import (
	"github.com/labstack/echo/v4"
)

// RegisterRoutes wires all route handlers onto the Echo instance. Static
// routes take precedence over the wildcard, so the OAuth and stores
// endpoints shadow the generic proxy for their exact paths.
func RegisterRoutes(e *echo.Echo, proxy *ProxyHandler, oauth *OAuthHandler, stores *StoresHandler, health *HealthHandler) {
	e.GET("/healthz", health.Healthz)
	e.GET("/proxy/status", health.Status)

	e.GET("/api/n8n/shopify/install", oauth.Install)
	e.GET("/api/n8n/shopify/callback", oauth.Callback)

	e.GET("/api/n8n/stores/list", stores.List)
	e.POST("/api/n8n/stores/list", stores.Create)

	e.Any("/api/n8n/*", proxy.Handle)
}
