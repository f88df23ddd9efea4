package security

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Headers hardens API responses. The API serves JSON and report files only,
// so the content security policy forbids every resource type.
type Headers struct {
	// HSTS is the Strict-Transport-Security max-age sent on TLS requests.
	// Zero disables the header.
	HSTS              time.Duration
	HSTSSubdomains    bool
	NoStorePrefixes   []string
	ContentSecurity   string
	PermissionsPolicy string
}

const (
	defaultCSP         = "default-src 'none'; frame-ancestors 'none'"
	defaultPermissions = "geolocation=(), microphone=(), camera=(), payment=()"
)

// Middleware sets the headers before the handler writes.
func (h Headers) Middleware(next http.Handler) http.Handler {
	static := http.Header{}
	static.Set("X-Content-Type-Options", "nosniff")
	static.Set("X-Frame-Options", "DENY")
	static.Set("Referrer-Policy", "no-referrer")
	static.Set("Cross-Origin-Opener-Policy", "same-origin")
	static.Set("Content-Security-Policy", firstNonEmpty(h.ContentSecurity, defaultCSP))
	static.Set("Permissions-Policy", firstNonEmpty(h.PermissionsPolicy, defaultPermissions))

	var hsts string
	if h.HSTS > 0 {
		hsts = "max-age=" + strconv.FormatInt(int64(h.HSTS/time.Second), 10)
		if h.HSTSSubdomains {
			hsts += "; includeSubDomains"
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		out := w.Header()
		for k, v := range static {
			out.Set(k, v[0])
		}
		if hsts != "" && r.TLS != nil {
			out.Set("Strict-Transport-Security", hsts)
		}
		if h.noStore(r.URL.Path) {
			out.Set("Cache-Control", "no-store")
			out.Set("Pragma", "no-cache")
		}
		next.ServeHTTP(w, r)
	})
}

func (h Headers) noStore(path string) bool {
	for _, p := range h.NoStorePrefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
