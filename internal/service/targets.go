package service

import (
	"net/url"
	"strings"
)

// storesPathPrefix marks per-store resource paths that the backend publishes
// under a different route namespace than collection endpoints.
const storesPathPrefix = "stores/"

// storesListPath is the one stores path that stays on the generic namespace.
const storesListPath = "stores/list"

// NormalizeBase canonicalizes the configured backend base URL:
// trailing slashes are trimmed, a "webhook/api/n8n" suffix misconfiguration
// is reduced to "webhook", and a "webhook" segment is appended when the URL
// carries none. The returned URL never ends with a slash.
func NormalizeBase(raw string) string {
	raw = strings.TrimRight(raw, "/")

	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}

	segs := splitSegments(u.Path)

	// A base accidentally configured with the API prefix instead of the
	// webhook root, e.g. https://host/webhook/api/n8n.
	if n := len(segs); n >= 3 && segs[n-3] == "webhook" && segs[n-2] == "api" && segs[n-1] == "n8n" {
		segs = segs[:n-2]
	}

	if !hasWebhookSegment(segs) {
		segs = append(segs, "webhook")
	}

	u.Path = "/" + strings.Join(segs, "/")
	return strings.TrimRight(u.String(), "/")
}

// Candidates returns the ordered list of target URLs to try for a proxied
// request. The dispatch loop advances to the next candidate only on a 404.
// base must already be normalized. path is the wildcard remainder without a
// leading slash (may be empty); rawQuery is appended verbatim.
//
// The alternate candidate swaps the base's webhook segment for either the
// stores prefix (per-store resource paths) or the generic alternate prefix,
// reflecting the two routing conventions the backend's workflows are
// published under.
func Candidates(base, alternatePrefix, storesPrefix, path, rawQuery string) []string {
	prefix := alternatePrefix
	if strings.HasPrefix(path, storesPathPrefix) && path != storesListPath {
		prefix = storesPrefix
	}

	targets := []string{
		joinURL(base, path),
		joinURL(swapWebhookSegment(base, prefix), path),
	}

	if rawQuery != "" {
		for i := range targets {
			targets[i] += "?" + rawQuery
		}
	}
	return targets
}

// swapWebhookSegment replaces the last webhook-flavored path segment of base
// (the same predicate NormalizeBase uses, so a base already on "webhook-test"
// is swapped rather than suffixed) with the given prefix, itself possibly
// multi-segment. If base has no webhook segment the prefix is appended
// instead.
func swapWebhookSegment(base, prefix string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base
	}

	segs := splitSegments(u.Path)
	replaced := false
	for i := len(segs) - 1; i >= 0; i-- {
		if isWebhookSegment(segs[i]) {
			segs = append(segs[:i], append(splitSegments(prefix), segs[i+1:]...)...)
			replaced = true
			break
		}
	}
	if !replaced {
		segs = append(segs, splitSegments(prefix)...)
	}

	u.Path = "/" + strings.Join(segs, "/")
	return strings.TrimRight(u.String(), "/")
}

func joinURL(base, path string) string {
	if path == "" {
		return base
	}
	return base + "/" + path
}

func splitSegments(p string) []string {
	var segs []string
	for _, s := range strings.Split(p, "/") {
		if s != "" {
			segs = append(segs, s)
		}
	}
	return segs
}

func isWebhookSegment(s string) bool {
	return strings.HasPrefix(s, "webhook")
}

func hasWebhookSegment(segs []string) bool {
	for _, s := range segs {
		if isWebhookSegment(s) {
			return true
		}
	}
	return false
}
