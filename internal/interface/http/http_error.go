package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/yanqian/voice-faq/pkg/errors"
)

const internalServerError = "Internal server error"

// HTTPError captures the metadata required to serialize an error response consistently.
type HTTPError struct {
	Status  int
	Code    string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

// NewHTTPError is a helper to build an HTTPError instance.
func NewHTTPError(status int, code, message string, err error) *HTTPError {
	return &HTTPError{Status: status, Code: code, Message: message, Err: err}
}

// fromAppError maps domain error codes onto statuses. 5xx messages are never taken from the cause.
func fromAppError(err error) *HTTPError {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		return NewHTTPError(http.StatusInternalServerError, "internal_error", internalServerError, err)
	}
	switch appErr.Code {
	case apperrors.CodeInvalidRequest:
		return NewHTTPError(http.StatusBadRequest, appErr.Code, appErr.Message, err)
	case apperrors.CodeNotFound:
		return NewHTTPError(http.StatusNotFound, appErr.Code, appErr.Message, err)
	case apperrors.CodeUnauthorized:
		return NewHTTPError(http.StatusUnauthorized, appErr.Code, appErr.Message, err)
	default:
		return NewHTTPError(http.StatusInternalServerError, appErr.Code, internalServerError, err)
	}
}

func asHTTPError(err error) *HTTPError {
	if err == nil {
		return nil
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr
	}
	return fromAppError(err)
}

func abortWithError(c *gin.Context, err *HTTPError) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}
