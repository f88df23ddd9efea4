package query

import (
	"errors"
	"net/http"

	"github.com/noah-isme/cargo-backoffice/internal/common"
)

// IsInvalid reports whether err stems from bad client-supplied list parameters.
func IsInvalid(err error) bool {
	return errors.Is(err, ErrUnknownField) || errors.Is(err, ErrUnsupportedOperator) || errors.Is(err, ErrMalformedFilter)
}

// InvalidError wraps err as a 400 INVALID_QUERY AppError.
func InvalidError(err error) *common.AppError {
	return common.NewAppError("INVALID_QUERY", err.Error(), http.StatusBadRequest, err)
}

// FromRequest parses list parameters from the request's query string.
func FromRequest(r *http.Request) (Params, error) {
	p, err := ParseParams(r.URL.Query())
	if err != nil {
		return Params{}, InvalidError(err)
	}
	return p, nil
}
