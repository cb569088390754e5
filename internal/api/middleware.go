// Package api implements the labeling web UI and JSON API using chi.
package api

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
	AuthModeBasic    = "basic"
)

// AuthOptions selects how requests are authenticated.
type AuthOptions struct {
	Mode         string
	Username     string
	PasswordHash string // bcrypt
	Token        string
}

// AuthMiddleware returns middleware enforcing opts.Mode.
//   - disabled: all requests pass through.
//   - token: requests must carry "Authorization: Bearer <token>".
//   - basic: HTTP basic auth checked against a bcrypt password hash.
func AuthMiddleware(opts AuthOptions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch opts.Mode {
			case AuthModeToken:
				auth := r.Header.Get("Authorization")
				if !strings.HasPrefix(auth, "Bearer ") ||
					subtle.ConstantTimeCompare([]byte(strings.TrimPrefix(auth, "Bearer ")), []byte(opts.Token)) != 1 {
					writeJSON(w, http.StatusUnauthorized, errorBody("unauthorized"))
					return
				}
			case AuthModeBasic:
				user, pass, ok := r.BasicAuth()
				if !ok || user != opts.Username ||
					bcrypt.CompareHashAndPassword([]byte(opts.PasswordHash), []byte(pass)) != nil {
					w.Header().Set("WWW-Authenticate", `Basic realm="ocrlabel", charset="UTF-8"`)
					http.Error(w, "unauthorized", http.StatusUnauthorized)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// NoCache stops browsers from caching pages and images; the same URL shows a
// different image after every action.
func NoCache(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Cache-Control", "no-cache, no-store, must-revalidate")
		h.Set("Pragma", "no-cache")
		h.Set("Expires", "0")
		next.ServeHTTP(w, r)
	})
}
