package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"chatdash-proxy/internal/auth"
	"chatdash-proxy/internal/client"
	"chatdash-proxy/internal/service"
)

func sessionToken(t *testing.T) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "user_1"}).
		SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

func newOAuthEcho(t *testing.T, upstreamURL string) *echo.Echo {
	t.Helper()
	cfg := testConfig(upstreamURL, []string{""})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	resolver := auth.NewResolver(cfg)
	c := client.NewN8NClient(cfg, logger, nil)
	svc := service.NewOAuthService(c, cfg, logger)
	h := NewOAuthHandler(svc, resolver, cfg, logger)

	e := echo.New()
	e.GET("/api/n8n/shopify/install", h.Install)
	e.GET("/api/n8n/shopify/callback", h.Callback)
	return e
}

// redirectQuery parses the Location header of a redirect response.
func redirectQuery(t *testing.T, rec *httptest.ResponseRecorder) (string, url.Values) {
	t.Helper()
	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302; body = %s", rec.Code, rec.Body.String())
	}
	loc, err := url.Parse(rec.Header().Get("Location"))
	if err != nil {
		t.Fatalf("parse Location: %v", err)
	}
	return loc.Scheme + "://" + loc.Host + loc.Path, loc.Query()
}

func TestInstall_MissingShopDomain(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("backend install endpoint must not be called without a shop domain")
	}))
	defer upstream.Close()

	e := newOAuthEcho(t, upstream.URL)
	req := httptest.NewRequest(http.MethodGet, "/api/n8n/shopify/install", nil)
	req.Header.Set("Authorization", "Bearer "+sessionToken(t))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	page, q := redirectQuery(t, rec)
	if page != "http://localhost:3000/stores" {
		t.Errorf("redirect page = %q", page)
	}
	if q.Get("error") != "missing_shop_domain" {
		t.Errorf("error = %q, want missing_shop_domain", q.Get("error"))
	}
}

func TestInstall_Unauthenticated(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("backend must not be called for an unauthenticated install")
	}))
	defer upstream.Close()

	e := newOAuthEcho(t, upstream.URL)
	req := httptest.NewRequest(http.MethodGet, "/api/n8n/shopify/install?shop=s.myshopify.com", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	_, q := redirectQuery(t, rec)
	if q.Get("error") != "unauthorized" {
		t.Errorf("error = %q, want unauthorized", q.Get("error"))
	}
}

func TestInstall_RedirectsToAuthURL(t *testing.T) {
	const authURL = "https://s.myshopify.com/admin/oauth/authorize?client_id=abc"
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("user_id"); got != "user_1" {
			t.Errorf("user_id = %q, want the session subject", got)
		}
		_, _ = w.Write([]byte(`{"auth_url":"` + authURL + `"}`))
	}))
	defer upstream.Close()

	e := newOAuthEcho(t, upstream.URL)
	req := httptest.NewRequest(http.MethodGet, "/api/n8n/shopify/install?shop=s.myshopify.com", nil)
	req.Header.Set("Authorization", "Bearer "+sessionToken(t))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Location"); got != authURL {
		t.Errorf("Location = %q, want %q", got, authURL)
	}
}

func TestInstall_NoAuthURLReturnsDiagnosticJSON(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"message":"nothing useful"}`))
	}))
	defer upstream.Close()

	e := newOAuthEcho(t, upstream.URL)
	req := httptest.NewRequest(http.MethodGet, "/api/n8n/shopify/install?shop=s.myshopify.com", nil)
	req.Header.Set("Authorization", "Bearer "+sessionToken(t))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500 (no safe redirect target exists)", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "nothing useful") {
		t.Errorf("diagnostic body should include the raw backend payload; got %s", body)
	}
}

func TestInstall_NonJSONBackendDiagnostic(t *testing.T) {
	// An n8n in trouble answers with an HTML error page; the diagnostic 500
	// must still carry the payload as a valid JSON body.
	const htmlPage = `<html><body>Bad Gateway</body></html>`
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(htmlPage))
	}))
	defer upstream.Close()

	e := newOAuthEcho(t, upstream.URL)
	req := httptest.NewRequest(http.MethodGet, "/api/n8n/shopify/install?shop=s.myshopify.com", nil)
	req.Header.Set("Authorization", "Bearer "+sessionToken(t))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	var body struct {
		Error string `json:"error"`
		Debug struct {
			RawResponse string `json:"rawResponse"`
		} `json:"debug"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("diagnostic body is not valid JSON: %v; raw = %s", err, rec.Body.String())
	}
	if body.Error != "No valid auth_url in workflow response" {
		t.Errorf("error = %q", body.Error)
	}
	if body.Debug.RawResponse != htmlPage {
		t.Errorf("rawResponse = %q, want the backend payload preserved", body.Debug.RawResponse)
	}
}

func TestCallback_ProviderError(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("backend callback endpoint must not be called on a provider error")
	}))
	defer upstream.Close()

	e := newOAuthEcho(t, upstream.URL)
	req := httptest.NewRequest(http.MethodGet,
		"/api/n8n/shopify/callback?error=access_denied&error_description=user+refused", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	_, q := redirectQuery(t, rec)
	if q.Get("error") != "access_denied" {
		t.Errorf("error = %q, want access_denied", q.Get("error"))
	}
	if q.Get("error_description") != "user refused" {
		t.Errorf("error_description = %q", q.Get("error_description"))
	}
}

func TestCallback_MissingParams(t *testing.T) {
	e := newOAuthEcho(t, "http://127.0.0.1:1")
	req := httptest.NewRequest(http.MethodGet, "/api/n8n/shopify/callback?code=c&shop=s", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	_, q := redirectQuery(t, rec)
	if q.Get("error") != "invalid_request" {
		t.Errorf("error = %q, want invalid_request", q.Get("error"))
	}
}

func TestCallback_Success(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":true}`))
	}))
	defer upstream.Close()

	e := newOAuthEcho(t, upstream.URL)
	req := httptest.NewRequest(http.MethodGet,
		"/api/n8n/shopify/callback?code=c&shop=s.myshopify.com&state=st", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	page, q := redirectQuery(t, rec)
	if page != "http://localhost:3000/stores" {
		t.Errorf("redirect page = %q", page)
	}
	if q.Get("success") != "true" || q.Get("shop") != "s.myshopify.com" {
		t.Errorf("query = %v, want success=true with the shop echoed", q)
	}
}

func TestCallback_InstallationFailed(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":false,"error":"denied"}`))
	}))
	defer upstream.Close()

	e := newOAuthEcho(t, upstream.URL)
	req := httptest.NewRequest(http.MethodGet,
		"/api/n8n/shopify/callback?code=c&shop=s.myshopify.com&state=st", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	_, q := redirectQuery(t, rec)
	if q.Get("error") != "installation_failed" {
		t.Errorf("error = %q, want installation_failed", q.Get("error"))
	}
	if q.Get("error_description") != "denied" {
		t.Errorf("error_description = %q, want the backend message", q.Get("error_description"))
	}
}

func TestCallback_BackendFailure(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer upstream.Close()

	e := newOAuthEcho(t, upstream.URL)
	req := httptest.NewRequest(http.MethodGet,
		"/api/n8n/shopify/callback?code=c&shop=s&state=st", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	_, q := redirectQuery(t, rec)
	if q.Get("error") != "callback_failed" {
		t.Errorf("error = %q, want callback_failed", q.Get("error"))
	}
}

func TestCallback_TransportErrorRedirectsInternalError(t *testing.T) {
	// Unroutable backend: the callback flow must still land the browser on
	// the connect page instead of surfacing a raw error.
	e := newOAuthEcho(t, "http://127.0.0.1:1")
	req := httptest.NewRequest(http.MethodGet,
		"/api/n8n/shopify/callback?code=c&shop=s&state=st", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	_, q := redirectQuery(t, rec)
	if q.Get("error") != "internal_error" {
		t.Errorf("error = %q, want internal_error", q.Get("error"))
	}
}
