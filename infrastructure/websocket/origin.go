package websocket

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// OriginChecker enforces the ALLOWED_ORIGINS list on upgrade requests.
// Requests without an Origin header come from non-browser clients and are accepted.
type OriginChecker struct {
	log      *slog.Logger
	allowAll bool
	allowed  map[string]struct{}
}

func NewOriginChecker(origins []string, log *slog.Logger) *OriginChecker {
	checker := &OriginChecker{log: log, allowed: make(map[string]struct{})}
	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		if trimmed == "*" {
			checker.allowAll = true
			continue
		}
		normalized, ok := normalizeOrigin(trimmed)
		if !ok {
			log.Warn("Ignoring invalid origin in configuration", "origin", origin)
			continue
		}
		checker.allowed[normalized] = struct{}{}
	}
	return checker
}

func (o *OriginChecker) Check(r *http.Request) bool {
	header := r.Header.Get("Origin")
	if header == "" || o.allowAll {
		return true
	}
	normalized, ok := normalizeOrigin(header)
	if ok {
		if _, exists := o.allowed[normalized]; exists {
			return true
		}
	}
	o.log.Warn("Blocked websocket connection from disallowed origin", "origin", header)
	return false
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
