// Package target decides which configured upstream an intercepted request is
// bound for.
//
// DESIGN: Matching is deliberately loose — host equality ignoring case and
// port, path-prefix ignoring case — because the same logical endpoint shows
// up with and without :443, with tenant-specific path segments, and with
// whatever casing the client emits. Scheme is never considered.
package target

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Endpoint is one configured upstream target.
type Endpoint struct {
	// URL is the parsed absolute target, kept for callers that rebuild
	// request URIs against it.
	URL *url.URL

	host       string // lowercased, no port
	pathPrefix string
}

// ParseEndpoint validates raw as an absolute http(s) URL and prepares it for
// matching. A target with no path matches on "/", i.e. the whole host.
func ParseEndpoint(raw string) (*Endpoint, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse target %q: %w", raw, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("target %q: need an absolute http(s) URL", raw)
	}
	prefix := u.Path
	if prefix == "" {
		prefix = "/"
	}
	return &Endpoint{
		URL:        u,
		host:       strings.ToLower(u.Hostname()),
		pathPrefix: prefix,
	}, nil
}

// Matches reports whether a request with the given authority and path is
// bound for this endpoint. The authority may carry a :port suffix, which is
// ignored.
func (e *Endpoint) Matches(authority, path string) bool {
	return e.MatchesHost(authority) && hasPrefixFold(path, e.pathPrefix)
}

// MatchesHost reports whether an authority is bound for this endpoint's
// host, ignoring path. CONNECT tunnels only expose the authority, so the
// interception decision rests on this alone.
func (e *Endpoint) MatchesHost(authority string) bool {
	return strings.EqualFold(stripPort(authority), e.host)
}

// Host returns the endpoint's lowercased host without port.
func (e *Endpoint) Host() string {
	return e.host
}

// stripPort removes a trailing :port and any IPv6 brackets from an authority.
func stripPort(authority string) string {
	if host, _, err := net.SplitHostPort(authority); err == nil {
		return host
	}
	return strings.TrimSuffix(strings.TrimPrefix(authority, "["), "]")
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}
