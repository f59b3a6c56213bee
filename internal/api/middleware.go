/**
 * @description
 * This file contains custom middleware for the HTTP router. The settlement
 * endpoints are service-to-service only; callers prove themselves with a
 * shared internal API key rather than an end-user credential, since user
 * authentication happens upstream in the CMS layer.
 *
 * @dependencies
 * - crypto/subtle, net/http, strings: Standard Go libraries.
 */

package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

const internalAPIKeyHeader = "X-Internal-Api-Key"

// InternalAuthMiddleware rejects requests that do not carry the configured
// internal API key. An empty configured key locks the endpoints entirely;
// misconfiguration must fail closed.
func InternalAuthMiddleware(apiKey string) func(http.Handler) http.Handler {
	expected := strings.TrimSpace(apiKey)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if expected == "" {
				http.Error(w, "Internal API key not configured", http.StatusServiceUnavailable)
				return
			}

			provided := strings.TrimSpace(r.Header.Get(internalAPIKeyHeader))
			if provided == "" {
				http.Error(w, "Internal API key required", http.StatusUnauthorized)
				return
			}
			if subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) != 1 {
				http.Error(w, "Invalid internal API key", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
