// Package bind decodes and validates request payloads for gin handlers.
package bind

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"

	"coach-backend/internal/shared/apperr"
	"coach-backend/internal/shared/telemetry"
)

const defaultMaxBytes = 1 << 20

// ValidatorSvc holds a singleton validator and translator.
type ValidatorSvc struct {
	Validator  *validator.Validate
	Translator ut.Translator
}

var (
	vOnce sync.Once
	vSvc  *ValidatorSvc
)

// Get returns the validator singleton, initializing on first use.
func Get() *ValidatorSvc {
	vOnce.Do(func() {
		enLoc := en.New()
		uni := ut.New(enLoc, enLoc)
		trans, _ := uni.GetTranslator("en")

		v := validator.New(validator.WithRequiredStructEnabled())

		// prefer json (or form) tag names in messages
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			tag := fld.Tag.Get("json")
			if tag == "" {
				tag = fld.Tag.Get("form")
			}
			if tag == "-" || tag == "" {
				return fld.Name
			}
			if idx := strings.Index(tag, ","); idx >= 0 {
				tag = tag[:idx]
			}
			return tag
		})

		_ = en_translations.RegisterDefaultTranslations(v, trans)
		registerShort(v, trans, "min", "{0} must be at least {1}")
		registerShort(v, trans, "max", "{0} must be at most {1}")

		vSvc = &ValidatorSvc{Validator: v, Translator: trans}
	})
	return vSvc
}

// JSON decodes the request body into T and validates it. Unknown fields and
// trailing data are rejected. Failures come back as *apperr.ValidationError.
func JSON[T any](c *gin.Context) (T, error) {
	var dst T
	dec := json.NewDecoder(http.MaxBytesReader(c.Writer, c.Request.Body, defaultMaxBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return dst, apperr.Invalid("body", "request body too large")
		case errors.Is(err, io.EOF):
			return dst, apperr.Invalid("body", "request body is required")
		default:
			return dst, apperr.Invalid("body", "invalid JSON: %v", err)
		}
	}
	if dec.More() {
		return dst, apperr.Invalid("body", "unexpected data after JSON object")
	}
	return dst, Struct(dst)
}

// Struct validates v with the shared validator.
func Struct(v any) error {
	if err := Get().Validator.Struct(v); err != nil {
		var inv *validator.InvalidValidationError
		if errors.As(err, &inv) {
			telemetry.Error("bind.validator_internal_error", map[string]any{"error": inv})
			return apperr.Invalid("", "validation error")
		}
		return toValidation(err)
	}
	return nil
}

func toValidation(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return &apperr.ValidationError{Field: fe.Field(), Message: fe.Translate(Get().Translator)}
	}
	return apperr.Invalid("", "%v", err)
}

func registerShort(v *validator.Validate, trans ut.Translator, tag, text string) {
	_ = v.RegisterTranslation(tag, trans,
		func(ut ut.Translator) error {
			return ut.Add(tag, text, true)
		},
		func(ut ut.Translator, fe validator.FieldError) string {
			msg, _ := ut.T(tag, fe.Field(), fe.Param())
			return msg
		},
	)
}
