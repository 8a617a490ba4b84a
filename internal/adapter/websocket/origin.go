package websocket

import (
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
)

// originPolicy decides which browser origins may open a display connection.
// Origins are compared as scheme://host[:port], lowercased. An entry whose
// host starts with "*." admits every subdomain of the rest, never the bare
// domain itself.
type originPolicy struct {
	exact         map[string]struct{}
	suffixes      []string
	allowLoopback bool
}

// NewCheckOrigin returns the CheckOrigin func shared by both display
// transports. Requests without an Origin header (kiosk players and other
// non-browser clients) always pass. Loopback origins pass only in development.
func NewCheckOrigin(appURL string, extraOrigins []string, isDevelopment bool) func(r *http.Request) bool {
	p := &originPolicy{exact: make(map[string]struct{}), allowLoopback: isDevelopment}
	for _, raw := range append([]string{appURL}, extraOrigins...) {
		p.add(raw)
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || p.allows(origin) {
			return true
		}
		slog.Warn("WebSocket origin rejected", "origin", origin, "remote_addr", r.RemoteAddr)
		return false
	}
}

func (p *originPolicy) add(raw string) {
	scheme, host, ok := splitOrigin(raw)
	if !ok {
		return
	}
	if rest, wildcard := strings.CutPrefix(host, "*."); wildcard {
		p.suffixes = append(p.suffixes, scheme+"://."+rest)
		return
	}
	p.exact[scheme+"://"+host] = struct{}{}
}

func (p *originPolicy) allows(origin string) bool {
	scheme, host, ok := splitOrigin(origin)
	if !ok {
		return false
	}
	if _, found := p.exact[scheme+"://"+host]; found {
		return true
	}
	for _, suffix := range p.suffixes {
		prefix, domain, _ := strings.Cut(suffix, "://")
		if prefix == scheme && strings.HasSuffix(host, domain) {
			return true
		}
	}
	return p.allowLoopback && isLoopback(host)
}

// splitOrigin returns the lowercased scheme and host (with port) of rawURL.
func splitOrigin(rawURL string) (scheme, host string, ok bool) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", "", false
	}
	return strings.ToLower(u.Scheme), strings.ToLower(u.Host), true
}

func isLoopback(host string) bool {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.Trim(host, "[]")
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
