package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/phrazzld/recap-api/internal/api/shared"
	"github.com/phrazzld/recap-api/internal/domain"
	"github.com/phrazzld/recap-api/internal/service"
	"github.com/phrazzld/recap-api/internal/store"
)

// MapErrorToStatusCode maps internal errors to appropriate HTTP status codes
// based on the error type. This prevents leaking internal error types or
// messages to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	// Not found errors
	case errors.Is(err, service.ErrJobNotFound),
		errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound

	// Bad request errors
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidFormat),
		errors.Is(err, domain.ErrInvalidID),
		errors.Is(err, domain.ErrUnknownJobType),
		errors.Is(err, store.ErrInvalidEntity),
		errors.Is(err, shared.ErrEmptyBody):
		return http.StatusBadRequest

	// Capacity errors
	case errors.Is(err, service.ErrDispatchRejected):
		return http.StatusServiceUnavailable

	// Default: internal server error
	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-friendly error message
// based on the error type. This prevents leaking sensitive internal details.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	switch {
	case errors.Is(err, service.ErrJobNotFound),
		errors.Is(err, store.ErrJobNotFound):
		return "Job not found"

	case errors.Is(err, domain.ErrInvalidID):
		return "Invalid job ID"

	case errors.Is(err, domain.ErrUnknownJobType):
		return "Unknown job type"

	case errors.Is(err, shared.ErrEmptyBody):
		return "Request body is required"

	case errors.Is(err, domain.ErrInvalidFormat):
		return "Invalid request format"

	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, store.ErrInvalidEntity):
		return "Invalid input"

	case errors.Is(err, service.ErrDispatchRejected):
		return "Server is busy, try again later"

	default:
		return "An unexpected error occurred"
	}
}

// SanitizeValidationError turns request validation failures into
// client-safe detail lines. Struct validation errors name the JSON field and
// the failed rule; input schema errors are already phrased for clients.
// Other errors have no details.
func SanitizeValidationError(err error) []string {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		details := make([]string, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			details = append(details, fmt.Sprintf("%s: %s", jsonFieldName(fe.Field()), getValidationTagMessage(fe.Tag())))
		}
		return details
	}

	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		return []string{ve.Error()}
	}

	return nil
}

// jsonFieldName lower-cases the first letter of a Go field name to match
// the camelCase JSON names used on the wire.
func jsonFieldName(field string) string {
	if field == "" {
		return field
	}
	return strings.ToLower(field[:1]) + field[1:]
}

// getValidationTagMessage maps validation tags to user-friendly error messages
func getValidationTagMessage(tag string) string {
	switch tag {
	case "required":
		return "required field"
	case "min":
		return "too short"
	case "max":
		return "too long"
	case "oneof":
		return "invalid value"
	case "uuid":
		return "must be a UUID"
	default:
		return "validation failed"
	}
}

// HandleAPIError writes the error response for err. Validation failures
// carry details; everything else gets the safe message for its type, or
// fallback for unexpected server errors.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	status := MapErrorToStatusCode(err)
	message := GetSafeErrorMessage(err)
	if status == http.StatusInternalServerError && fallback != "" {
		message = fallback
	}

	if status == http.StatusBadRequest {
		shared.RespondWithErrorAndLog(w, r, status, message, err,
			shared.WithDetails(SanitizeValidationError(err)...))
		return
	}
	shared.RespondWithErrorAndLog(w, r, status, message, err)
}
