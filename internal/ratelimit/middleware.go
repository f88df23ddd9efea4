package ratelimit

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/noah-isme/cargo-backoffice/internal/common"
)

// Allower decides whether one more hit fits under a key's limit.
type Allower interface {
	Allow(ctx context.Context, key string, window time.Duration, limit int) (Decision, error)
}

// Config describes how to derive a rate limit key and thresholds.
type Config struct {
	Key    func(*http.Request) string
	Window time.Duration
	Max    int
}

// ByClientIP keys requests by client address under a fixed scope.
func ByClientIP(scope string) func(*http.Request) string {
	return func(r *http.Request) string {
		return scope + ":" + common.ClientIP(r)
	}
}

// Handler rejects requests over the configured limit with 429. Limiter
// failures fail open and are reported to OnError.
type Handler struct {
	Limiter Allower
	Config  Config
	OnError func(*http.Request, error)
}

// Middleware wraps next with the limit check.
func (h Handler) Middleware(next http.Handler) http.Handler {
	if h.Limiter == nil || h.Config.Key == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d, err := h.Limiter.Allow(r.Context(), h.Config.Key(r), h.Config.Window, h.Config.Max)
		if err != nil {
			if h.OnError != nil {
				h.OnError(r, err)
			}
			next.ServeHTTP(w, r)
			return
		}
		writeHeaders(w.Header(), d)
		if !d.Allowed {
			common.JSONError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many attempts, retry later", map[string]any{
				"retry_after_seconds": retryAfter(d.ResetAt),
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeHeaders(h http.Header, d Decision) {
	h.Set("X-RateLimit-Limit", strconv.Itoa(max(0, d.Limit)))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
	if !d.Allowed {
		h.Set("Retry-After", strconv.Itoa(retryAfter(d.ResetAt)))
	}
}

func retryAfter(reset time.Time) int {
	secs := int(time.Until(reset).Round(time.Second).Seconds())
	return max(0, secs)
}
