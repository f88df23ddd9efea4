package common

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
)

// AtoiDefault converts the provided string to an integer falling back to the default when parsing fails.
func AtoiDefault(value string, def int) int {
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

// ParseInt64 parses a positive identifier.
func ParseInt64(value string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// URLParamInt64 reads a positive integer chi URL parameter.
func URLParamInt64(r *http.Request, name string) (int64, bool) {
	return ParseInt64(chi.URLParam(r, name))
}

// QueryInt64 reads a positive integer query parameter.
func QueryInt64(r *http.Request, name string) (int64, bool) {
	return ParseInt64(r.URL.Query().Get(name))
}
