package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"chatdash-proxy/internal/auth"
	"chatdash-proxy/internal/client"
)

func newStoresEcho(t *testing.T, upstreamURL string) *echo.Echo {
	t.Helper()
	cfg := testConfig(upstreamURL, []string{""})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewStoresHandler(client.NewN8NClient(cfg, logger, nil), auth.NewResolver(cfg), cfg, logger)

	e := echo.New()
	e.GET("/api/n8n/stores/list", h.List)
	e.POST("/api/n8n/stores/list", h.Create)
	return e
}

func TestStoresList_RequiresIdentity(t *testing.T) {
	e := newStoresEcho(t, "http://127.0.0.1:1")
	req := httptest.NewRequest(http.MethodGet, "/api/n8n/stores/list", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestStoresList_WrapsParamsWithUserID(t *testing.T) {
	var payload map[string]any
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/webhook/stores/list" {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		_, _ = w.Write([]byte(`{"stores":[]}`))
	}))
	defer upstream.Close()

	e := newStoresEcho(t, upstream.URL)
	req := httptest.NewRequest(http.MethodGet, "/api/n8n/stores/list?platform=shopify&limit=5&offset=20", nil)
	req.Header.Set("Authorization", "Bearer "+sessionToken(t))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if payload["user_id"] != "user_1" {
		t.Errorf("user_id = %v", payload["user_id"])
	}
	if payload["platform"] != "shopify" || payload["limit"] != float64(5) || payload["offset"] != float64(20) {
		t.Errorf("payload = %v", payload)
	}
	if _, ok := payload["timestamp"]; !ok {
		t.Error("payload missing timestamp")
	}
	if !strings.Contains(rec.Body.String(), `"stores"`) {
		t.Errorf("body = %s, want the workflow result relayed", rec.Body.String())
	}
}

func TestStoresList_DefaultsPagination(t *testing.T) {
	var payload map[string]any
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&payload)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer upstream.Close()

	e := newStoresEcho(t, upstream.URL)
	req := httptest.NewRequest(http.MethodGet, "/api/n8n/stores/list", nil)
	req.Header.Set("Authorization", "Bearer "+sessionToken(t))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if payload["limit"] != float64(10) || payload["offset"] != float64(0) {
		t.Errorf("payload = %v, want limit 10 offset 0", payload)
	}
	if payload["platform"] != nil {
		t.Errorf("platform = %v, want null when absent", payload["platform"])
	}
}

func TestStoresCreate_MergesBody(t *testing.T) {
	var payload map[string]any
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&payload)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer upstream.Close()

	e := newStoresEcho(t, upstream.URL)
	req := httptest.NewRequest(http.MethodPost, "/api/n8n/stores/list",
		strings.NewReader(`{"action":"refresh","store_id":"42"}`))
	req.Header.Set("Authorization", "Bearer "+sessionToken(t))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if payload["action"] != "refresh" || payload["store_id"] != "42" || payload["user_id"] != "user_1" {
		t.Errorf("payload = %v", payload)
	}
}

func TestStoresList_BackendFailure(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer upstream.Close()

	e := newStoresEcho(t, upstream.URL)
	req := httptest.NewRequest(http.MethodGet, "/api/n8n/stores/list", nil)
	req.Header.Set("Authorization", "Bearer "+sessionToken(t))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Failed to fetch stores list") {
		t.Errorf("body = %s", rec.Body.String())
	}
}
