// Package handler contains the HTTP handlers for the runner API.
//
// Handlers parse the request, call a service and write JSON. They hold no
// business rules. Outcomes of running user code (unsupported language,
// timeout, exceptions, unreachable LLM backends) are ordinary 200 responses;
// only malformed requests and server failures get error statuses.
package handler

// CONSISTENT ERROR FORMAT:
// Every error response has the same shape:
//   {"error": "validation_error", "message": "request body must be valid JSON"}
//
// The editor plugin shows "message" to the user and switches on "error".

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/sakif/code-runner/internal/apperror"
)

// maxBodyBytes caps request bodies a little above the service limits so an
// oversized submission reaches validation instead of failing mid-decode.
const maxBodyBytes = 1 << 20

// ErrorResponse is the standard error format returned by all API endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`   // Machine-readable error type (e.g., "not_found")
	Message string `json:"message"` // Human-readable description
	Field   string `json:"field,omitempty"`
}

// writeJSON sends a JSON response with the given status code.
// Headers must be set before WriteHeader; anything set later is ignored.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already sent, all we can do is log.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeError maps a domain error to an HTTP status and sends it.
//
// The service layer knows nothing about HTTP. This is the one place where
// apperror sentinels become status codes. errors.Is walks the whole chain,
// so wrapping with fmt.Errorf("...: %w") upstream is fine.
func writeError(w http.ResponseWriter, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		status := http.StatusInternalServerError
		errorType := "internal_error"

		switch {
		case errors.Is(err, apperror.ErrValidation):
			status = http.StatusBadRequest // 400
			errorType = "validation_error"
		case errors.Is(err, apperror.ErrNotFound):
			status = http.StatusNotFound // 404
			errorType = "not_found"
		case errors.Is(err, apperror.ErrUnavailable):
			// A disabled feature looks like a missing route to clients.
			status = http.StatusNotFound // 404
			errorType = "unavailable"
		case errors.Is(err, apperror.ErrUnauthorized):
			status = http.StatusUnauthorized // 401
			errorType = "unauthorized"
		}

		writeJSON(w, status, ErrorResponse{
			Error:   errorType,
			Message: appErr.Message,
			Field:   appErr.Field,
		})
		return
	}

	// Never expose raw internal errors; they may carry paths or SQL.
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: "An internal error occurred",
	})
}

// decodeJSON reads a JSON body into dst. Malformed input becomes a
// validation error; a validation error raised while decoding (an unknown
// enum value, say) is passed through with its field.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	err := json.NewDecoder(body).Decode(dst)
	if err == nil {
		return nil
	}

	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return apperror.ValidationFailed("body", "request body is too large")
	}
	if errors.Is(err, io.EOF) {
		return apperror.ValidationFailed("body", "request body is empty")
	}
	return apperror.ValidationFailed("body", "request body must be valid JSON")
}
