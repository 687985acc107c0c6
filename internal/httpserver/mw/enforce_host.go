package mw

import (
	"net/http"
	"strings"

	"github.com/MrSnakeDoc/onionroute/internal/domain"
	"github.com/MrSnakeDoc/onionroute/internal/logger"
)

// EnforceHost allows requests only if the Host header (port ignored) matches
// one of the allowed hosts. Supports wildcard patterns like "*.example.com".
// If allowedHosts is empty, it acts as a passthrough.
func EnforceHost(allowedHosts []string, log logger.Logger) func(http.Handler) http.Handler {
	if len(allowedHosts) == 0 {
		log.Debug("EnforceHost: empty allowedHosts, passthrough mode")
		return func(next http.Handler) http.Handler { return next }
	}

	patterns := make([]string, 0, len(allowedHosts))
	for _, h := range allowedHosts {
		patterns = append(patterns, strings.ToLower(strings.TrimSpace(h)))
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			host := domain.NormalizeHost(r.Host)
			for _, pattern := range patterns {
				if matchHost(host, pattern) {
					next.ServeHTTP(w, r)
					return
				}
			}

			log.Warn("admin request rejected by host filter", logger.String("host", r.Host))
			writeJSONError(w, http.StatusForbidden, "forbidden")
		})
	}
}

// matchHost checks if host matches pattern (supports wildcard *.example.com).
// A pattern with a port is compared without it.
func matchHost(host, pattern string) bool {
	pattern = domain.NormalizeHost(pattern)

	if host == pattern {
		return true
	}

	// *.example.com matches sub.example.com but not example.com
	if strings.HasPrefix(pattern, "*.") {
		return strings.HasSuffix(host, pattern[1:])
	}

	return false
}
