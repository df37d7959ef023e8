package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"

	"github.com/labstack/echo/v4"

	"chatdash-proxy/internal/auth"
	"chatdash-proxy/internal/metrics"
	"chatdash-proxy/internal/model"
	"chatdash-proxy/internal/service"
)

// ProxyHandler forwards API requests to the n8n workflow backend.
type ProxyHandler struct {
	service  *service.ForwardService
	decoders service.DecoderTable
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// NewProxyHandler creates a ProxyHandler. The decoder capability table is
// resolved once here. The metrics parameter is optional.
func NewProxyHandler(svc *service.ForwardService, logger *slog.Logger, m *metrics.Metrics) *ProxyHandler {
	return &ProxyHandler{
		service:  svc,
		decoders: service.NewDecoderTable(),
		logger:   logger.With("component", "proxy_handler"),
		metrics:  m,
	}
}

// Handle proxies the request to the backend and relays exactly one upstream
// response: redirects are passed through without being followed, decodable
// compressed bodies are inflated, and everything else is streamed as-is.
func (h *ProxyHandler) Handle(c echo.Context) error {
	req := c.Request()

	fr := &model.ForwardRequest{
		Ctx:      req.Context(),
		Method:   req.Method,
		Path:     c.Param("*"),
		RawQuery: req.URL.RawQuery,
		Header:   req.Header,
		Body:     req.Body,
	}

	resp, err := h.service.Forward(fr)
	if err != nil {
		return h.mapError(c, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.IsRedirect() {
		return c.Redirect(resp.StatusCode, resp.Location())
	}

	// Copy upstream headers. Transfer-Encoding is hop-by-hop and must not
	// survive a second hop.
	out := c.Response().Header()
	for key, vals := range resp.Header {
		if http.CanonicalHeaderKey(key) == "Transfer-Encoding" {
			continue
		}
		for _, v := range vals {
			out.Add(key, v)
		}
	}

	encoding := resp.Header.Get("Content-Encoding")
	if encoding != "" && resp.Success() && h.decoders.CanDecode(encoding) {
		return h.relayDecoded(c, resp, encoding)
	}

	// Unencoded, non-2xx, or an encoding we defer to the browser (zstd):
	// stream unchanged.
	c.Response().WriteHeader(resp.StatusCode)
	if _, err := io.Copy(c.Response(), resp.Body); err != nil {
		h.logger.Error("streaming response body",
			"err", err,
			"path", c.Param("*"),
		)
	}
	return nil
}

// relayDecoded buffers the compressed body and relays the decoded text. A
// decode failure falls back to relaying the original compressed bytes with
// headers untouched rather than failing the request.
func (h *ProxyHandler) relayDecoded(c echo.Context, resp *model.UpstreamResponse, encoding string) error {
	compressed, err := io.ReadAll(resp.Body)
	if err != nil {
		return h.mapError(c, err)
	}

	out := c.Response().Header()

	decoded, err := h.decoders.Decode(encoding, compressed)
	if err != nil {
		h.recordDecode(encoding, "error")
		h.logger.Warn("decode upstream body failed, relaying compressed",
			"err", err,
			"encoding", encoding,
		)
		c.Response().WriteHeader(resp.StatusCode)
		_, werr := c.Response().Write(compressed)
		return werr
	}

	h.recordDecode(encoding, "ok")
	out.Del("Content-Encoding")
	out.Set("Content-Length", strconv.Itoa(len(decoded)))
	c.Response().WriteHeader(resp.StatusCode)
	_, werr := c.Response().Write(decoded)
	return werr
}

func (h *ProxyHandler) recordDecode(encoding, outcome string) {
	if h.metrics != nil {
		h.metrics.ResponseDecodes.WithLabelValues(encoding, outcome).Inc()
	}
}

func (h *ProxyHandler) mapError(c echo.Context, err error) error {
	h.logger.Error("proxy error",
		"err", err,
		"path", c.Param("*"),
	)

	if errors.Is(err, auth.ErrIdentityRequired) {
		return c.JSON(http.StatusUnauthorized, map[string]string{
			"error": "Unauthorized",
		})
	}

	if errors.Is(err, service.ErrBadRequestBody) {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "malformed request body",
		})
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return c.JSON(http.StatusGatewayTimeout, map[string]string{
			"error": "upstream request timed out",
		})
	}

	if errors.Is(err, context.Canceled) {
		return c.JSON(http.StatusBadGateway, map[string]string{
			"error": "client disconnected",
		})
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return c.JSON(http.StatusBadGateway, map[string]string{
			"error": "upstream host unreachable",
		})
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return c.JSON(http.StatusBadGateway, map[string]string{
			"error": "upstream connection failed",
		})
	}

	return c.JSON(http.StatusBadGateway, map[string]string{
		"error": "upstream request failed",
	})
}
