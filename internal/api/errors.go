package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ozwald-dev/ozwald/internal/footprint"
	"github.com/ozwald-dev/ozwald/internal/resolver"
	"github.com/ozwald-dev/ozwald/internal/statestore"
	"github.com/ozwald-dev/ozwald/internal/vault"
)

// APIError represents a structured API error with HTTP status code.
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s", e.Message, e.Details)
	}
	return e.Message
}

// NewAPIError creates a new API error.
func NewAPIError(code int, message string, details string) *APIError {
	return &APIError{
		Code:    code,
		Message: message,
		Details: details,
	}
}

// Common error constructors
func BadRequestError(message, details string) *APIError {
	return NewAPIError(http.StatusBadRequest, message, details)
}

func NotFoundError(resource, id string) *APIError {
	return NewAPIError(http.StatusNotFound, fmt.Sprintf("%s not found", resource), id)
}

func ConflictError(message, details string) *APIError {
	return NewAPIError(http.StatusConflict, message, details)
}

func InternalError(message, details string) *APIError {
	return NewAPIError(http.StatusInternalServerError, message, details)
}

// mapDomainError converts well-known errors from the lower layers into
// API errors with appropriate status codes.
func mapDomainError(err error) *APIError {
	var rejection *footprint.RejectionError

	switch {
	case errors.Is(err, statestore.ErrNotFound):
		return NewAPIError(http.StatusNotFound, "Instance not found", err.Error())
	case errors.Is(err, statestore.ErrConflict):
		return ConflictError("State transition conflict", "another submission is in progress, re-read and retry")
	case errors.Is(err, vault.ErrTokenMismatch):
		return NewAPIError(http.StatusForbidden, "Token mismatch", "the provided locker token did not decrypt the locker")
	case errors.Is(err, footprint.ErrNotRecorded):
		return NewAPIError(http.StatusNotFound, "Footprint not recorded", err.Error())
	case errors.Is(err, footprint.ErrCollision):
		return ConflictError("Concurrent modification", "the footprint request queue changed underneath, retry")
	case errors.Is(err, resolver.ErrUnknownVariety), errors.Is(err, resolver.ErrUnknownProfile):
		return BadRequestError("Invalid selector", err.Error())
	case errors.As(err, &rejection):
		return NewAPIError(http.StatusUnprocessableEntity, "Admission rejected", rejection.Reason)
	}
	return nil
}

// HTTPErrorHandler is a custom error handler for Echo.
func HTTPErrorHandler(err error, c echo.Context) {
	// Don't send response if already sent
	if c.Response().Committed {
		return
	}

	var apiErr *APIError
	code := http.StatusInternalServerError

	if he, ok := err.(*echo.HTTPError); ok {
		code = he.Code
		apiErr = &APIError{
			Code:    code,
			Message: getHTTPMessage(code),
			Details: fmt.Sprintf("%v", he.Message),
		}
	} else if ae, ok := err.(*APIError); ok {
		apiErr = ae
		code = ae.Code
	} else if mapped := mapDomainError(err); mapped != nil {
		apiErr = mapped
		code = mapped.Code
	} else {
		apiErr = &APIError{
			Code:    code,
			Message: "Internal server error",
			Details: err.Error(),
		}
	}

	// Don't expose internal errors in production
	if code == http.StatusInternalServerError && !c.Echo().Debug {
		apiErr.Details = "An internal error occurred. Please try again later."
	}

	if err := c.JSON(code, apiErr); err != nil {
		c.Logger().Error(err)
	}
}

// getHTTPMessage returns a user-friendly message for HTTP status codes.
func getHTTPMessage(code int) string {
	messages := map[int]string{
		http.StatusBadRequest:          "Bad request",
		http.StatusUnauthorized:        "Unauthorized",
		http.StatusForbidden:           "Forbidden",
		http.StatusNotFound:            "Resource not found",
		http.StatusMethodNotAllowed:    "Method not allowed",
		http.StatusConflict:            "Conflict",
		http.StatusUnprocessableEntity: "Unprocessable entity",
		http.StatusTooManyRequests:     "Too many requests",
		http.StatusInternalServerError: "Internal server error",
		http.StatusServiceUnavailable:  "Service unavailable",
	}

	if msg, ok := messages[code]; ok {
		return msg
	}
	return http.StatusText(code)
}
