// Package service implements the core forwarding logic for the n8n backend.
package service

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"chatdash-proxy/internal/auth"
	"chatdash-proxy/internal/client"
	"chatdash-proxy/internal/config"
	"chatdash-proxy/internal/metrics"
	"chatdash-proxy/internal/model"
)

// ForwardService translates inbound dashboard requests into backend calls:
// credential resolution, body re-encoding, header rewriting, and the
// ordered-candidate dispatch that absorbs the backend's inconsistent
// webhook routing.
type ForwardService struct {
	client  *client.N8NClient
	auth    *auth.Resolver
	cfg     *config.Config
	logger  *slog.Logger
	metrics *metrics.Metrics
	base    string
}

// NewForwardService creates a ForwardService. The configured upstream base
// URL is normalized once here. The metrics parameter is optional.
func NewForwardService(c *client.N8NClient, r *auth.Resolver, cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *ForwardService {
	return &ForwardService{
		client:  c,
		auth:    r,
		cfg:     cfg,
		logger:  logger.With("component", "forward_service"),
		metrics: m,
		base:    NormalizeBase(cfg.Upstream.BaseURL),
	}
}

// Base returns the normalized backend base URL.
func (s *ForwardService) Base() string {
	return s.base
}

// Forward sends the request to the backend, trying each candidate target in
// order and advancing only on an exact 404. The final candidate's response
// is relayed verbatim whatever its status. The caller is responsible for
// closing the response body.
//
// Transport failures on any attempt abort the request; there is no retry
// beyond the candidate list.
func (s *ForwardService) Forward(fr *model.ForwardRequest) (*model.UpstreamResponse, error) {
	cred, err := s.auth.Credential(fr.Header, fr.Path)
	if err != nil {
		return nil, err
	}

	body, contentType, err := TranslateBody(fr.Method, fr.Header.Get("Content-Type"), fr.Body)
	if err != nil {
		return nil, err
	}

	header := s.buildHeader(fr.Header, cred, contentType)
	targets := Candidates(s.base, s.cfg.Upstream.AlternatePrefix, s.cfg.Upstream.StoresPrefix, fr.Path, fr.RawQuery)

	var resp *model.UpstreamResponse
	for i, target := range targets {
		var attemptBody io.Reader
		if body != nil {
			attemptBody = bytes.NewReader(body)
		}

		resp, err = s.client.DoStream(fr.Ctx, fr.Method, target, header, attemptBody)
		if err != nil {
			return nil, fmt.Errorf("forward to %s: %w", target, err)
		}

		if resp.StatusCode == http.StatusNotFound && i < len(targets)-1 {
			_ = resp.Body.Close()
			if s.metrics != nil {
				s.metrics.UpstreamFallbacks.Inc()
			}
			s.logger.Debug("primary target 404, trying alternate",
				"path", fr.Path,
				"next", targets[i+1],
			)
			continue
		}
		break
	}

	return resp, nil
}

// buildHeader clones the inbound headers, injects the bearer credential and
// the re-encoded content type, and drops headers that must not cross to the
// backend. Host must not leak the proxy's own host; Content-Length is left
// to the HTTP client since the body was re-encoded.
func (s *ForwardService) buildHeader(src http.Header, cred, contentType string) http.Header {
	header := src.Clone()
	if header == nil {
		header = make(http.Header)
	}

	header.Set("Authorization", "Bearer "+cred)
	header.Del("Host")
	header.Del("Content-Length")

	if contentType != "" {
		header.Set("Content-Type", contentType)
	}

	return header
}
