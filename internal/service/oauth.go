package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"time"

	"chatdash-proxy/internal/client"
	"chatdash-proxy/internal/config"
)

// ErrInstallRequestFailed is returned when the backend install endpoint
// responds with a non-2xx status.
var ErrInstallRequestFailed = errors.New("install workflow request failed")

// ErrNoAuthURL is returned when no plausible authorization URL can be
// extracted from the install response.
var ErrNoAuthURL = errors.New("no valid auth_url in workflow response")

// ErrCallbackRequestFailed is returned when the backend callback endpoint
// responds with a non-2xx status.
var ErrCallbackRequestFailed = errors.New("callback workflow request failed")

// authorizeURLMarker identifies Shopify authorization URLs when scanning
// loosely shaped install responses.
const authorizeURLMarker = "admin/oauth/authorize"

// maxScanDepth bounds the nested-object scan so a pathological payload
// cannot recurse unboundedly.
const maxScanDepth = 8

// InstallParams carries the browser-supplied install parameters.
type InstallParams struct {
	ShopDomain string
	ReturnURL  string
	TenantID   string
	StoreName  string
	UserID     string
}

// CallbackStatus is the backend's verdict on an OAuth code exchange.
type CallbackStatus struct {
	Success bool
	Error   string
}

// OAuthService bridges browser OAuth flows to the backend workflow engine.
type OAuthService struct {
	client *client.N8NClient
	logger *slog.Logger
	base   string
}

// NewOAuthService creates an OAuthService.
func NewOAuthService(c *client.N8NClient, cfg *config.Config, logger *slog.Logger) *OAuthService {
	return &OAuthService{
		client: c,
		logger: logger.With("component", "oauth_service"),
		base:   NormalizeBase(cfg.Upstream.BaseURL),
	}
}

// StartInstall calls the backend install endpoint and extracts the
// authorization URL from its loosely specified response. On ErrNoAuthURL
// the raw backend payload is returned for operator diagnostics.
func (s *OAuthService) StartInstall(ctx context.Context, p InstallParams) (string, []byte, error) {
	q := url.Values{}
	q.Set("shop", p.ShopDomain)
	q.Set("shop_domain", p.ShopDomain)
	q.Set("return_url", p.ReturnURL)
	if p.TenantID != "" {
		q.Set("tenant_id", p.TenantID)
	}
	if p.StoreName != "" {
		q.Set("store_name", p.StoreName)
	}
	if p.UserID != "" {
		q.Set("user_id", p.UserID)
	}

	status, raw, err := s.client.GetJSON(ctx, s.base+"/shopify/install?"+q.Encode())
	if err != nil {
		return "", nil, err
	}
	if status < 200 || status >= 300 {
		s.logger.Error("install workflow failed", "status", status, "body", string(raw))
		return "", raw, fmt.Errorf("%w: status %d", ErrInstallRequestFailed, status)
	}

	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		s.logger.Error("install workflow returned non-JSON", "body", string(raw))
		return "", raw, fmt.Errorf("%w: non-JSON response", ErrNoAuthURL)
	}

	authURL, ok := ExtractAuthURL(payload)
	if !ok || !strings.HasPrefix(authURL, "http") {
		return "", raw, ErrNoAuthURL
	}
	return authURL, raw, nil
}

// CompleteCallback forwards the OAuth authorization code to the backend for
// token exchange and reports its verdict.
func (s *OAuthService) CompleteCallback(ctx context.Context, code, shop, state string) (*CallbackStatus, error) {
	payload := map[string]any{
		"code":      code,
		"shop":      shop,
		"state":     state,
		"timestamp": time.Now().UnixMilli(),
	}

	status, raw, err := s.client.PostJSON(ctx, s.base+"/oauth/shopify/callback", payload)
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		s.logger.Error("callback workflow failed", "status", status, "body", string(raw))
		return nil, fmt.Errorf("%w: status %d", ErrCallbackRequestFailed, status)
	}

	var result struct {
		Success bool   `json:"success"`
		Status  string `json:"status"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("parse callback response: %w", err)
	}

	return &CallbackStatus{
		Success: result.Success || result.Status == "success",
		Error:   result.Error,
	}, nil
}

// extractStrategy is one way of finding an authorization URL in a decoded
// install response. Strategies are tried in order; the first hit wins. The
// depth counter is shared with the string re-parse recursion so stacked
// encodings stay bounded.
type extractStrategy func(v any, depth int) (string, bool)

var extractStrategies []extractStrategy

func init() {
	extractStrategies = []extractStrategy{
		extractDirectField,
		extractFirstElement,
		extractReparsedString,
		extractNestedScan,
	}
}

// ExtractAuthURL searches a decoded install response for an authorization
// URL. The backend's workflows are not consistent about response shape: the
// URL may be a direct field, the first element of an array, JSON-encoded
// inside a string (possibly more than once), or buried under an arbitrary
// key.
func ExtractAuthURL(v any) (string, bool) {
	return extractAuthURL(v, 0)
}

func extractAuthURL(v any, depth int) (string, bool) {
	if depth > maxScanDepth {
		return "", false
	}
	for _, strategy := range extractStrategies {
		if u, ok := strategy(v, depth); ok {
			return u, true
		}
	}
	return "", false
}

func extractDirectField(v any, _ int) (string, bool) {
	obj, ok := v.(map[string]any)
	if !ok {
		return "", false
	}
	u, ok := obj["auth_url"].(string)
	return u, ok && u != ""
}

func extractFirstElement(v any, depth int) (string, bool) {
	arr, ok := v.([]any)
	if !ok || len(arr) == 0 {
		return "", false
	}
	return extractDirectField(arr[0], depth)
}

func extractReparsedString(v any, depth int) (string, bool) {
	s, ok := v.(string)
	if !ok {
		return "", false
	}

	var inner any
	if err := json.Unmarshal([]byte(s), &inner); err == nil {
		// Workflows sometimes stack encodings; peel one layer and run the
		// full strategy list again.
		return extractAuthURL(inner, depth+1)
	}

	if strings.Contains(s, authorizeURLMarker) {
		return s, true
	}
	return "", false
}

func extractNestedScan(v any, depth int) (string, bool) {
	return scanValue(v, depth)
}

// scanValue walks objects and arrays depth-first looking for a string value
// containing the authorize marker or a key whose name contains "auth_url".
// Object keys are visited in sorted order so the result does not depend on
// Go's randomized map iteration.
func scanValue(v any, depth int) (string, bool) {
	if depth > maxScanDepth {
		return "", false
	}

	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for key := range val {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			child := val[key]
			if s, ok := child.(string); ok {
				if strings.Contains(s, authorizeURLMarker) {
					return s, true
				}
				if strings.Contains(key, "auth_url") && s != "" {
					return s, true
				}
				continue
			}
			if u, ok := scanValue(child, depth+1); ok {
				return u, true
			}
		}
	case []any:
		for _, child := range val {
			if s, ok := child.(string); ok && strings.Contains(s, authorizeURLMarker) {
				return s, true
			}
			if u, ok := scanValue(child, depth+1); ok {
				return u, true
			}
		}
	}
	return "", false
}
