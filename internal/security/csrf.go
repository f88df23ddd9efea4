package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"
	"time"

	"github.com/noah-isme/cargo-backoffice/internal/common"
)

const (
	defaultCSRFHeader = "X-CSRF-Token"
	defaultCSRFCookie = "csrf_token"
)

// CSRF protects the cookie-based refresh flow using the double-submit technique.
type CSRF struct {
	Header string
	Cookie string
	Secure bool
	// Guarded, when set, limits the check to requests carrying that cookie.
	Guarded string
}

func (c CSRF) names() (string, string) {
	header := strings.TrimSpace(c.Header)
	if header == "" {
		header = defaultCSRFHeader
	}
	cookie := strings.TrimSpace(c.Cookie)
	if cookie == "" {
		cookie = defaultCSRFCookie
	}
	return header, cookie
}

// Issue generates a fresh token, sets it as a readable cookie and returns it.
func (c CSRF) Issue(w http.ResponseWriter, ttl time.Duration) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	token := hex.EncodeToString(buf)
	_, cookie := c.names()
	http.SetCookie(w, &http.Cookie{
		Name:     cookie,
		Value:    token,
		Path:     "/",
		Expires:  time.Now().Add(ttl),
		Secure:   c.Secure,
		SameSite: http.SameSiteStrictMode,
	})
	return token, nil
}

// Middleware enforces that non-idempotent requests include a CSRF token header
// matching the cookie. Requests authenticated with a bearer header skip the check.
func (c CSRF) Middleware(next http.Handler) http.Handler {
	headerName, cookieName := c.names()

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
			next.ServeHTTP(w, r)
			return
		}

		if c.Guarded != "" {
			if _, err := r.Cookie(c.Guarded); err != nil {
				next.ServeHTTP(w, r)
				return
			}
		}

		auth := strings.TrimSpace(r.Header.Get("Authorization"))
		if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
			next.ServeHTTP(w, r)
			return
		}

		token := strings.TrimSpace(r.Header.Get(headerName))
		if token == "" {
			common.JSONError(w, http.StatusForbidden, "CSRF_MISSING", "missing csrf token", nil)
			return
		}

		cookie, err := r.Cookie(cookieName)
		if err != nil || strings.TrimSpace(cookie.Value) == "" {
			common.JSONError(w, http.StatusForbidden, "CSRF_MISSING", "missing csrf cookie", nil)
			return
		}

		if subtle.ConstantTimeCompare([]byte(token), []byte(cookie.Value)) != 1 {
			common.JSONError(w, http.StatusForbidden, "CSRF_INVALID", "invalid csrf token", nil)
			return
		}

		next.ServeHTTP(w, r)
	})
}
