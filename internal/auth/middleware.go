package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/noah-isme/cargo-backoffice/internal/common"
)

// Middleware guards API routes with bearer access tokens.
type Middleware struct {
	Service *Service
}

// RequireAuth rejects requests without a valid bearer token and stores the
// principal on the request context otherwise.
func (m Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearer(r)
		if !ok || m.Service == nil {
			unauthorized(w, "missing bearer token", "")
			return
		}
		p, err := m.Service.ParseAccessToken(token)
		if err != nil {
			msg := "missing or invalid token"
			var appErr *common.AppError
			if errors.As(err, &appErr) && appErr.Message != "" {
				msg = appErr.Message
			}
			unauthorized(w, msg, "invalid_token")
			return
		}
		next.ServeHTTP(w, r.WithContext(common.WithPrincipal(r.Context(), p)))
	})
}

// RequireRole admits principals holding one of roles. Mount it behind RequireAuth.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := common.PrincipalFrom(r.Context())
			if !ok {
				unauthorized(w, "missing bearer token", "")
				return
			}
			if !p.HasRole(roles...) {
				common.JSONError(w, http.StatusForbidden, "FORBIDDEN", "role "+p.Role+" may not access this resource", map[string]any{"required": roles})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearer(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func unauthorized(w http.ResponseWriter, message, reason string) {
	challenge := `Bearer realm="cargo"`
	if reason != "" {
		challenge += `, error="` + reason + `"`
	}
	w.Header().Set("WWW-Authenticate", challenge)
	common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", message, nil)
}
