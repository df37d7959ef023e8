// Package model defines shared types for the proxy.
package model

import (
	"context"
	"io"
	"net/http"
)

// ForwardRequest represents a client request to be forwarded to the
// workflow backend. Path is the wildcard remainder with no leading slash
// (may be empty); RawQuery is passed through verbatim.
type ForwardRequest struct {
	Ctx      context.Context
	Method   string
	Path     string
	RawQuery string
	Header   http.Header
	Body     io.ReadCloser
}

// UpstreamResponse represents the backend response to be relayed back.
type UpstreamResponse struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
}

// redirectStatuses are the 3xx codes the proxy relays without following.
var redirectStatuses = map[int]bool{
	http.StatusMovedPermanently:  true,
	http.StatusFound:             true,
	http.StatusSeeOther:          true,
	http.StatusTemporaryRedirect: true,
	http.StatusPermanentRedirect: true,
}

// IsRedirect reports whether the response should be relayed as a redirect.
// A 3xx without a Location header falls through to normal body relaying.
func (r *UpstreamResponse) IsRedirect() bool {
	return redirectStatuses[r.StatusCode] && r.Header.Get("Location") != ""
}

// Location returns the redirect target, or empty string.
func (r *UpstreamResponse) Location() string {
	return r.Header.Get("Location")
}

// Success reports whether the status code is in the 2xx range.
func (r *UpstreamResponse) Success() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}
