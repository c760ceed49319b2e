package transport

import (
	"net/http"
	"net/url"
	"strings"

	"minircd/util"
)

// originPolicy decides which browser origins may open a WebSocket.
type originPolicy struct {
	allowAll bool
	allowed  map[string]struct{}
	logger   *util.Logger
}

// newOriginPolicy normalizes origins.  An empty list, or one containing
// "*", allows every origin.  Invalid entries are logged and skipped.
func newOriginPolicy(origins []string, logger *util.Logger) *originPolicy {
	p := &originPolicy{allowed: make(map[string]struct{}), logger: logger}

	configured := 0
	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		configured++
		if trimmed == "*" {
			p.allowAll = true
			continue
		}
		norm, ok := normalizeOrigin(trimmed)
		if !ok {
			logger.Warn("ignoring invalid websocket origin %q", origin)
			continue
		}
		p.allowed[norm] = struct{}{}
	}
	if configured == 0 {
		p.allowAll = true
	}
	return p
}

func normalizeOrigin(origin string) (string, bool) {
	parsed, err := url.Parse(origin)
	if err != nil {
		return "", false
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}
	return strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host), true
}

// check is a websocket.Upgrader CheckOrigin function.  Requests without
// an Origin header come from non-browser clients and are allowed.
func (p *originPolicy) check(r *http.Request) bool {
	header := r.Header.Get("Origin")
	if header == "" || p.allowAll {
		return true
	}
	norm, ok := normalizeOrigin(header)
	if ok {
		if _, found := p.allowed[norm]; found {
			return true
		}
	}
	p.logger.Warn("blocked websocket from disallowed origin %q", header)
	return false
}
