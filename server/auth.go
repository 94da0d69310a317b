package server

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// secretFromRequest extracts the trigger secret from the request. Accepted
// carriers, in order: Authorization bearer token, X-Outflow-Secret header,
// then the secret query parameter (for schedulers that cannot set headers).
func secretFromRequest(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	if secret := r.Header.Get("X-Outflow-Secret"); secret != "" {
		return secret
	}
	return r.URL.Query().Get("secret")
}

// requireSecret wraps a handler with shared-secret authentication. When no
// secret is configured the endpoint is disabled outright rather than left
// open: trigger endpoints mutate state and must never be anonymous.
func (s *Server) requireSecret(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.triggerSecret == "" {
			writeError(w, http.StatusServiceUnavailable, "trigger endpoints are disabled: no trigger secret configured")
			return
		}
		provided := secretFromRequest(r)
		if subtle.ConstantTimeCompare([]byte(provided), []byte(s.triggerSecret)) != 1 {
			s.log.Warnw("Rejected trigger request with bad secret",
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
			)
			writeError(w, http.StatusUnauthorized, "invalid trigger secret")
			return
		}
		next(w, r)
	}
}
