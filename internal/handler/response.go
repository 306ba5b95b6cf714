package handler

// RESPONSE HELPERS:
// These functions standardise how we send JSON responses and errors.
//
//	writeJSON(w, http.StatusOK, data)
//	writeError(w, err)
//
// CONSISTENT ERROR FORMAT:
// Every error response from the API has the same shape:
//
//	{"error": "not_found", "message": "snippet not found with id abc123"}

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/sakif/snippet-manager/internal/apperror"
)

// maxBodyBytes caps request bodies. Snippets are text; a megabyte is plenty.
const maxBodyBytes = 1 << 20

// Messages for request bodies that never reach validation.
const (
	msgNoData      = "No data provided"
	msgInvalidJSON = "Invalid JSON body"
)

// ErrorResponse is the standard error format returned by all API endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`   // Machine-readable error type (e.g., "not_found")
	Message string `json:"message"` // Human-readable description
}

// MessageResponse is the body of mutations that only confirm success.
type MessageResponse struct {
	Message string `json:"message"`
}

// writeJSON sends a JSON response with the given status code.
//
// HEADER ORDER MATTERS:
// Headers and status must be set BEFORE the body is written; once Encode
// writes, later header changes are silently ignored.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already sent, so all we can do is log.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeError maps a domain error to the appropriate HTTP status code and sends it.
//
// ERROR MAPPING:
//
//	apperror.ErrValidation   → 400 validation_error
//	apperror.ErrConflict     → 400 conflict  (duplicate username/email is a 400 in this API)
//	apperror.ErrUnauthorized → 401 unauthorized
//	apperror.ErrForbidden    → 403 forbidden
//	apperror.ErrNotFound     → 404 not_found
//	anything else            → 500 internal_error
//
// An unclassified error is answered with its own text as the message. That
// exposes internal detail (SQL errors, file paths) to clients; API clients
// match on these messages today, so it stays.
func writeError(w http.ResponseWriter, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		status := http.StatusInternalServerError
		errorType := "internal_error"

		switch {
		case errors.Is(err, apperror.ErrValidation):
			status = http.StatusBadRequest
			errorType = "validation_error"
		case errors.Is(err, apperror.ErrConflict):
			status = http.StatusBadRequest
			errorType = "conflict"
		case errors.Is(err, apperror.ErrUnauthorized):
			status = http.StatusUnauthorized
			errorType = "unauthorized"
		case errors.Is(err, apperror.ErrForbidden):
			status = http.StatusForbidden
			errorType = "forbidden"
		case errors.Is(err, apperror.ErrNotFound):
			status = http.StatusNotFound
			errorType = "not_found"
		}

		writeJSON(w, status, ErrorResponse{
			Error:   errorType,
			Message: appErr.Message,
		})
		return
	}

	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: err.Error(),
	})
}

// decodeObject reads the body as a single JSON object and returns its keys
// with their raw values, so callers can tell "absent" from "null" or "".
//
//	empty body or null → ValidationFailed "No data provided"
//	not an object      → ValidationFailed "Invalid JSON body"
//
// An empty object {} is returned as an empty map; whether that is an error
// is up to the caller.
func decodeObject(w http.ResponseWriter, r *http.Request) (map[string]json.RawMessage, error) {
	var fields map[string]json.RawMessage
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&fields)
	switch {
	case errors.Is(err, io.EOF):
		return nil, apperror.ValidationFailed("body", msgNoData)
	case err != nil:
		return nil, apperror.ValidationFailed("body", msgInvalidJSON)
	case fields == nil:
		return nil, apperror.ValidationFailed("body", msgNoData)
	}
	return fields, nil
}

// decodeInto decodes a whole-body JSON object into dst, with the same
// empty-body and malformed-body messages as decodeObject.
func decodeInto(w http.ResponseWriter, r *http.Request, dst any) error {
	fields, err := decodeObject(w, r)
	if err != nil {
		return err
	}
	if len(fields) == 0 {
		return apperror.ValidationFailed("body", msgNoData)
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return apperror.ValidationFailed("body", msgInvalidJSON)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return apperror.ValidationFailed("body", msgInvalidJSON)
	}
	return nil
}

// field decodes fields[key] into dst. It reports whether the key was present;
// a present key whose value has the wrong type is a validation error.
func field[T any](fields map[string]json.RawMessage, key string, dst *T) (bool, error) {
	raw, ok := fields[key]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return true, apperror.ValidationFailed(key, "Invalid value for "+key)
	}
	return true, nil
}
