package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/auth-service/internal/utils"
)

// ErrorDetail is one entry of the {"errors": [...]} response body.
type ErrorDetail struct {
	Type     string `json:"type"`
	Message  string `json:"message"`
	Path     string `json:"path"`
	Location string `json:"location"`
}

// AppError is an error that knows how it should be reported to the client.
// Handlers return it; HTTPErrorHandler renders it.
type AppError struct {
	Status  int
	Type    string
	Message string
	Details []ErrorDetail
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return e.Type + ": " + e.Message
}

func (e *AppError) Unwrap() error { return e.Err }

func (e *AppError) body() []ErrorDetail {
	if len(e.Details) > 0 {
		return e.Details
	}
	return []ErrorDetail{{Type: e.Type, Message: e.Message}}
}

// ValidationError reports rejected input, one detail per offending field.
func ValidationError(details ...ErrorDetail) *AppError {
	return &AppError{Status: http.StatusBadRequest, Type: "ValidationError", Message: "Validation failed", Details: details}
}

// fieldError is a ValidationError for a single body field.
func fieldError(path, msg string) *AppError {
	return ValidationError(ErrorDetail{Type: "field", Message: msg, Path: path, Location: "body"})
}

func DuplicateResourceError(msg string) *AppError {
	return &AppError{Status: http.StatusBadRequest, Type: "DuplicateResourceError", Message: msg}
}

// InvalidCredentialsError deliberately does not say which of email or
// password was wrong.
func InvalidCredentialsError() *AppError {
	return &AppError{Status: http.StatusBadRequest, Type: "InvalidCredentialsError", Message: "Email or password does not match"}
}

// KeyUnavailableError is a server misconfiguration: signing keys could not
// be loaded.
func KeyUnavailableError(err error) *AppError {
	return &AppError{Status: http.StatusInternalServerError, Type: "KeyUnavailableError", Message: "Signing key is unavailable", Err: err}
}

func StorageError(err error) *AppError {
	return &AppError{Status: http.StatusInternalServerError, Type: "StorageError", Message: "Storage operation failed", Err: err}
}

func UnauthorizedError(msg string) *AppError {
	return &AppError{Status: http.StatusUnauthorized, Type: "UnauthorizedError", Message: msg}
}

func ForbiddenError(msg string) *AppError {
	return &AppError{Status: http.StatusForbidden, Type: "ForbiddenError", Message: msg}
}

func NotFoundError(msg string) *AppError {
	return &AppError{Status: http.StatusNotFound, Type: "NotFoundError", Message: msg}
}

// httpErrorTypes names echo's own errors (routing, binding, middleware)
// so they share the AppError body shape.
var httpErrorTypes = map[int]string{
	http.StatusBadRequest:            "BadRequestError",
	http.StatusUnauthorized:          "UnauthorizedError",
	http.StatusForbidden:             "ForbiddenError",
	http.StatusNotFound:              "NotFoundError",
	http.StatusMethodNotAllowed:      "MethodNotAllowedError",
	http.StatusRequestEntityTooLarge: "PayloadTooLargeError",
	http.StatusUnsupportedMediaType:  "UnsupportedMediaTypeError",
	http.StatusTooManyRequests:       "TooManyRequestsError",
}

// NewHTTPErrorHandler renders every error as
// {"errors":[{"type","message","path","location"}]}.  Server faults are
// logged with their cause; the client only sees the generic message.
func NewHTTPErrorHandler(logger *slog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var appErr *AppError
		var httpErr *echo.HTTPError
		switch {
		case errors.As(err, &appErr):
		case errors.Is(err, utils.ErrKeyUnavailable):
			appErr = KeyUnavailableError(err)
		case errors.As(err, &httpErr):
			msg := http.StatusText(httpErr.Code)
			if s, ok := httpErr.Message.(string); ok {
				msg = s
			}
			typ, ok := httpErrorTypes[httpErr.Code]
			if !ok {
				typ = "HttpError"
			}
			appErr = &AppError{Status: httpErr.Code, Type: typ, Message: msg, Err: httpErr.Internal}
		default:
			appErr = &AppError{Status: http.StatusInternalServerError, Type: "InternalServerError", Message: "Internal server error", Err: err}
		}

		attrs := []any{
			"status", appErr.Status,
			"type", appErr.Type,
			"method", c.Request().Method,
			"path", c.Request().URL.Path,
			"request_id", c.Response().Header().Get(echo.HeaderXRequestID),
		}
		if appErr.Status >= http.StatusInternalServerError {
			logger.Error(appErr.Message, append(attrs, "error", appErr.Err)...)
		} else {
			logger.Debug(appErr.Message, attrs...)
		}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(appErr.Status)
		} else {
			werr = c.JSON(appErr.Status, echo.Map{"errors": appErr.body()})
		}
		if werr != nil {
			logger.Error("write error response failed", "error", werr)
		}
	}
}
