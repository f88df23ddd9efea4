package security

import (
	"net/http"

	"github.com/noah-isme/cargo-backoffice/internal/common"
)

// BodyLimit caps request payload size. Requests declaring a larger
// Content-Length are refused outright; chunked bodies are capped while the
// handler reads them and surface *http.MaxBytesError.
type BodyLimit struct {
	Max int64
}

// Middleware rejects requests exceeding the configured limit with HTTP 413.
func (b BodyLimit) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limit := b.Max
		if limit <= 0 || r.Body == nil || r.Body == http.NoBody {
			next.ServeHTTP(w, r)
			return
		}
		if r.ContentLength > limit {
			common.WriteError(w, common.PayloadTooLarge(limit))
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, limit)
		next.ServeHTTP(w, r)
	})
}

