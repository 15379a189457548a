package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/phrazzld/bookrender/internal/api/shared"
	"github.com/phrazzld/bookrender/internal/domain"
	"github.com/phrazzld/bookrender/internal/render"
	"github.com/phrazzld/bookrender/internal/store"
)

var (
	// ErrUnknownCommand is returned for a /download-book request with a
	// command other than render or render_status.
	ErrUnknownCommand = errors.New("unknown command")

	// ErrInvalidTaskID is returned when a path parameter is not a task ID.
	ErrInvalidTaskID = errors.New("invalid rendering task ID")
)

// MapErrorToStatusCode maps internal errors to HTTP status codes without
// exposing error types to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, domain.ErrMalformedBookSpec),
		errors.Is(err, domain.ErrValidation),
		errors.Is(err, ErrUnknownCommand),
		errors.Is(err, ErrInvalidTaskID),
		errors.Is(err, shared.ErrEmptyBody):
		return http.StatusBadRequest

	case errors.Is(err, render.ErrResultUnavailable),
		errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound

	case errors.Is(err, render.ErrSchedulingFailed):
		return http.StatusServiceUnavailable

	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a client-facing message for err.
// The legacy endpoint's messages are kept verbatim because existing clients
// match on them.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	switch {
	case errors.Is(err, domain.ErrMalformedBookSpec):
		return "Malformed metabook parameter."

	case errors.Is(err, ErrUnknownCommand):
		return "Unknown command."

	case errors.Is(err, ErrInvalidTaskID):
		return "Invalid rendering task ID"

	case errors.Is(err, shared.ErrEmptyBody):
		return "Request body is required"

	case errors.Is(err, render.ErrResultUnavailable),
		errors.Is(err, store.ErrNotFound):
		return "Rendering result is not available"

	case errors.Is(err, render.ErrSchedulingFailed):
		return "Rendering queue is full, try again later"

	default:
		return "An unexpected error occurred"
	}
}

// SanitizeValidationError turns a validator error into a short message
// naming the offending field.
func SanitizeValidationError(err error) string {
	errMsg := err.Error()

	// Example format: "Key: 'CreateRenderRequest.Format' Error:Field validation for 'Format' failed on the 'required' tag"
	if strings.Contains(errMsg, "Field validation") {
		parts := strings.Split(errMsg, "Error:")
		if len(parts) >= 2 {
			fieldParts := strings.Split(parts[1], "'")
			if len(fieldParts) >= 3 {
				field := fieldParts[1]
				var tag string
				if len(fieldParts) >= 5 {
					tag = fieldParts[3]
				}
				if tag != "" {
					return fmt.Sprintf("Invalid %s: %s", field, getValidationTagMessage(tag))
				}
				return fmt.Sprintf("Invalid %s", field)
			}
		}
	}

	return "Validation error"
}

func getValidationTagMessage(tag string) string {
	switch tag {
	case "required":
		return "required field"
	case "max":
		return "too long"
	case "alphanum":
		return "must be alphanumeric"
	default:
		return "validation failed"
	}
}
