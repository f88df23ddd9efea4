package common

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"sync"

	validator "github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// Validator returns the shared validator. Field names in errors follow json tags.
// "nonnegative" and "scale=N" (at most N decimal places) accept decimal fields.
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})
		_ = v.RegisterValidation("nonnegative", func(fl validator.FieldLevel) bool {
			switch val := fl.Field().Interface().(type) {
			case decimal.Decimal:
				return !val.IsNegative()
			case *decimal.Decimal:
				return val == nil || !val.IsNegative()
			default:
				return fl.Field().CanInt() && fl.Field().Int() >= 0
			}
		})
		_ = v.RegisterValidation("scale", func(fl validator.FieldLevel) bool {
			places, err := strconv.ParseInt(fl.Param(), 10, 32)
			if err != nil {
				return false
			}
			switch val := fl.Field().Interface().(type) {
			case decimal.Decimal:
				return val.Equal(val.Round(int32(places)))
			case *decimal.Decimal:
				return val == nil || val.Equal(val.Round(int32(places)))
			}
			return true
		})
		validate = v
	})
	return validate
}

// ValidateStruct runs struct validation and converts failures into a
// VALIDATION_ERROR AppError with per-field details.
func ValidateStruct(v any) error {
	err := Validator().Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return NewAppError("VALIDATION_ERROR", "invalid payload", http.StatusUnprocessableEntity, err)
	}
	details := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		key := fe.Namespace()
		if idx := strings.Index(key, "."); idx >= 0 {
			key = key[idx+1:]
		}
		details[key] = fe.Tag()
	}
	appErr := NewAppError("VALIDATION_ERROR", "invalid payload", http.StatusUnprocessableEntity, err)
	appErr.Details = details
	return appErr
}

// DecodeJSON decodes the request body into dst and validates it.
func DecodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return PayloadTooLarge(tooLarge.Limit)
		}
		return BadRequest("invalid request payload", err)
	}
	return ValidateStruct(dst)
}
