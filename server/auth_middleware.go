package server

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/jrsteele09/peek-plugin-user/api"
)

// bearerToken extracts the token from an "Authorization: Bearer <token>" header.
func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

// RequireAdmin is middleware that validates the admin API key sent as a Bearer token
func (s *Server) RequireAdmin() func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				writeError(w, http.StatusUnauthorized, api.CodeUnauthorized, "missing or malformed Authorization header")
				return
			}
			if s.adminKey == "" || subtle.ConstantTimeCompare([]byte(token), []byte(s.adminKey)) != 1 {
				writeError(w, http.StatusUnauthorized, api.CodeUnauthorized, "invalid admin key")
				return
			}
			next(w, r)
		}
	}
}
