package rest

import (
	"errors"
	"net/http"
	"strings"

	"github.com/dmitrijs2005/chefbook/internal/common"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

// CodeAccountAlreadyExists is returned when a username is taken.
const CodeAccountAlreadyExists = "ACCOUNT_ALREADY_EXISTS"

// FieldError describes one rejected request field.
type FieldError struct {
	Field string `json:"field"`
	Error string `json:"error"`
}

// HTTPError is the JSON body of every error response.
type HTTPError struct {
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Status  int          `json:"status"`
	Errors  []FieldError `json:"errors,omitempty"`
}

func (e *HTTPError) Error() string {
	return e.Message
}

func newHTTPError(status int, message string) *HTTPError {
	return &HTTPError{
		Code:    statusCode(status),
		Message: message,
		Status:  status,
	}
}

// statusCode turns "Bad Request" into "BAD_REQUEST".
func statusCode(status int) string {
	return strings.ToUpper(strings.ReplaceAll(http.StatusText(status), " ", "_"))
}

// validationError converts validator output into a 400 with per-field errors.
func validationError(err error) *HTTPError {
	he := newHTTPError(http.StatusBadRequest, "Validation failed")

	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			he.Errors = append(he.Errors, FieldError{
				Field: fe.Field(),
				Error: validationMessage(fe),
			})
		}
		return he
	}

	he.Message = "Validation failed: " + err.Error()
	return he
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return "must be at most " + fe.Param()
	case "min":
		return "must be at least " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	case "url":
		return "must be a valid URL"
	case "oneof":
		return "must be one of: " + fe.Param()
	default:
		return "is invalid"
	}
}

// toHTTPError maps service and echo errors onto the response body.
// Storage failures that are not classified become a generic 400.
func toHTTPError(err error) *HTTPError {
	var he *HTTPError
	if errors.As(err, &he) {
		return he
	}

	var ee *echo.HTTPError
	if errors.As(err, &ee) {
		msg := http.StatusText(ee.Code)
		if m, ok := ee.Message.(string); ok && m != "" {
			msg = m
		}
		if ee.Code == http.StatusNotFound {
			msg = "Route not found"
		}
		return newHTTPError(ee.Code, msg)
	}

	switch {
	case errors.Is(err, common.ErrDuplicateAccount):
		return &HTTPError{
			Code:    CodeAccountAlreadyExists,
			Message: "Username already taken",
			Status:  http.StatusBadRequest,
		}
	case errors.Is(err, common.ErrorValidation):
		return newHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, common.ErrorNotFound):
		return newHTTPError(http.StatusNotFound, "Account not found")
	case errors.Is(err, common.ErrRefreshTokenExpired):
		return newHTTPError(http.StatusUnauthorized, "Refresh token expired")
	case errors.Is(err, common.ErrTokenExpired):
		return newHTTPError(http.StatusUnauthorized, "Token expired")
	case errors.Is(err, common.ErrorUnauthorized), errors.Is(err, common.ErrInvalidToken):
		return newHTTPError(http.StatusUnauthorized, "Invalid credentials")
	case errors.Is(err, common.ErrorForbidden):
		return newHTTPError(http.StatusForbidden, "Not allowed")
	case errors.Is(err, common.ErrorInternal):
		return newHTTPError(http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
	default:
		return newHTTPError(http.StatusBadRequest, "Request could not be processed")
	}
}

// errorHandler is installed as echo's HTTPErrorHandler.
func (s *HTTPServer) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	he := toHTTPError(err)

	ctx := c.Request().Context()
	if he.Status >= http.StatusInternalServerError {
		s.logger.Error(ctx, "request failed", "error", err.Error(), "status", he.Status, "request_id", requestIDFrom(c))
	} else {
		s.logger.Warn(ctx, "request rejected", "error", err.Error(), "status", he.Status, "request_id", requestIDFrom(c))
	}

	var werr error
	if c.Request().Method == http.MethodHead {
		werr = c.NoContent(he.Status)
	} else {
		werr = c.JSON(he.Status, he)
	}
	if werr != nil {
		s.logger.Error(ctx, "error writing error response", "error", werr.Error())
	}
}
