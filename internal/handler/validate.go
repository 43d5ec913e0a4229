package handler

import (
	"errors"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/auth-service/internal/model"
)

// RequestValidator plugs go-playground/validator into echo.  Failures come
// back as a ValidationError whose details name the JSON field, with the
// message taken from the field's `msg` tag (falling back to a generic one).
type RequestValidator struct {
	v *validator.Validate
}

func NewRequestValidator() *RequestValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	// validator's max counts runes; bcrypt's limit is in bytes
	_ = v.RegisterValidation("maxbytes", func(fl validator.FieldLevel) bool {
		n, err := strconv.Atoi(fl.Param())
		return err == nil && len(fl.Field().String()) <= n
	})
	_ = v.RegisterValidation("role", func(fl validator.FieldLevel) bool {
		return model.ValidRole(fl.Field().String())
	})
	return &RequestValidator{v: v}
}

// Validate implements echo.Validator.
func (rv *RequestValidator) Validate(i interface{}) error {
	err := rv.v.Struct(i)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	t := reflect.TypeOf(i)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	details := make([]ErrorDetail, 0, len(verrs))
	for _, fe := range verrs {
		details = append(details, ErrorDetail{
			Type:     "field",
			Message:  message(t, fe),
			Path:     fe.Field(),
			Location: "body",
		})
	}
	return ValidationError(details...)
}

// message picks the message for a failed rule.  The msg tag holds
// "rule:message" pairs separated by "|"; a bare entry is the default for
// the field.
func message(t reflect.Type, fe validator.FieldError) string {
	if f, ok := t.FieldByName(fe.StructField()); ok {
		var fallback string
		for _, part := range strings.Split(f.Tag.Get("msg"), "|") {
			rule, text, found := strings.Cut(part, ":")
			switch {
			case !found:
				fallback = part
			case rule == fe.Tag():
				return text
			}
		}
		if fallback != "" {
			return fallback
		}
	}
	return fe.Field() + " is invalid"
}

// normalizer is implemented by request bodies that trim their fields
// before validation.
type normalizer interface {
	normalize()
}

// bindAndValidate binds the request body into dst, normalizes it and
// validates it.  Malformed JSON is reported as a ValidationError too.
func bindAndValidate(c echo.Context, dst interface{}) error {
	if err := c.Bind(dst); err != nil {
		return ValidationError(ErrorDetail{Type: "body", Message: "Malformed request body", Location: "body"})
	}
	if n, ok := dst.(normalizer); ok {
		n.normalize()
	}
	return c.Validate(dst)
}
