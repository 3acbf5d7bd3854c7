// Package handler contains the REST handlers. Each handler decodes and
// validates its request, delegates to an application service, and maps
// domain errors onto the API error envelope.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/vexguard/api/internal/app"
	"github.com/vexguard/api/internal/infra/http/middleware"
	"github.com/vexguard/api/internal/infra/llm"
	"github.com/vexguard/api/pkg/apierror"
	"github.com/vexguard/api/pkg/crypto"
	"github.com/vexguard/api/pkg/domain/shared"
	"github.com/vexguard/api/pkg/logger"
	"github.com/vexguard/api/pkg/validator"
)

// ListResponse is the paginated list envelope.
type ListResponse[T any] struct {
	Data       []T   `json:"data"`
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	PerPage    int   `json:"per_page"`
	TotalPages int   `json:"total_pages"`
}

// respondJSON writes a JSON response with the given status.
func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// decodeJSON decodes the request body into v, translating size and
// syntax failures to API errors.
func decodeJSON(r *http.Request, v any) *apierror.Error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return apierror.ContentTooLarge(maxBytesErr.Limit)
		}
		return apierror.BadRequest("Invalid JSON body").WithError(err)
	}
	return nil
}

// respondError maps an error to the API error envelope. Unexpected
// errors become opaque 500s and get logged with the request id.
func respondError(w http.ResponseWriter, r *http.Request, log *logger.Logger, err error) {
	apiErr := toAPIError(err)
	if apiErr.Status >= http.StatusInternalServerError {
		log.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
			"request_id", middleware.GetRequestID(r.Context()),
		)
	}
	apiErr.WriteJSONWithRequestID(w, middleware.GetRequestID(r.Context()))
}

func toAPIError(err error) *apierror.Error {
	var apiErr *apierror.Error
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		return apierror.ContentTooLarge(maxBytesErr.Limit)
	}

	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		return apierror.ValidationFailed("Request validation failed", validationErrs)
	}

	switch {
	case errors.Is(err, app.ErrContentTooLarge):
		// A validation failure, not a transport one: the body itself is
		// fine, the snippet is just over the analysis cap.
		return apierror.New(http.StatusBadRequest, apierror.CodeContentTooLarge, "Content exceeds the analysis size limit")
	case errors.Is(err, llm.ErrProviderNotConfigured):
		return apierror.ServiceUnavailable("Patch suggestions are not configured")
	case errors.Is(err, crypto.ErrForbiddenURL):
		return apierror.ValidationFailed("Webhook URL is not allowed", nil)
	case shared.IsNotFound(err):
		return apierror.NotFound("").WithError(err)
	case shared.IsConflict(err):
		return apierror.Conflict(userFacingMessage(err)).WithError(err)
	case shared.IsValidation(err):
		return apierror.ValidationFailed(userFacingMessage(err), nil).WithError(err)
	case errors.Is(err, shared.ErrUnauthorized):
		return apierror.Unauthorized("")
	case errors.Is(err, shared.ErrForbidden):
		return apierror.Forbidden("")
	default:
		return apierror.InternalError(err)
	}
}

// userFacingMessage strips the sentinel prefix from wrapped domain
// errors so the client sees "repository already registered" rather than
// "already exists: repository already registered".
func userFacingMessage(err error) string {
	msg := err.Error()
	for _, sentinel := range []error{shared.ErrAlreadyExists, shared.ErrConflict, shared.ErrValidation, shared.ErrInvalidInput} {
		prefix := sentinel.Error() + ": "
		if strings.HasPrefix(msg, prefix) {
			return strings.TrimPrefix(msg, prefix)
		}
	}
	return msg
}

// teamID returns the authenticated team for the request.
func teamID(r *http.Request) string {
	return middleware.GetTeamID(r.Context())
}

// parseQueryInt parses a query parameter as an integer, returning
// defaultVal when empty or invalid.
func parseQueryInt(s string, defaultVal int) int {
	if s == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return val
}
