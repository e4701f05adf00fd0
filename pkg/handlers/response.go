// Package handlers contains the HTTP API surface of the casetrail engine.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/casetrail/engine/pkg/apperrors"
)

// ErrorResponse writes a JSON error response and returns any encoding error.
func ErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(map[string]string{
		"error":   errorCode,
		"message": message,
	})
}

// WriteJSON writes a JSON response and returns any encoding error.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}

// writeServiceError maps service errors to HTTP status codes. Unrecognized
// errors become 500s with a generic message so internals stay internal.
func writeServiceError(w http.ResponseWriter, logger *zap.Logger, err error) {
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		_ = ErrorResponse(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, apperrors.ErrInvalidInput):
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_input", err.Error())
	case errors.Is(err, apperrors.ErrCaseLocked):
		_ = ErrorResponse(w, http.StatusConflict, "case_locked", err.Error())
	case errors.Is(err, apperrors.ErrInvalidTransition):
		_ = ErrorResponse(w, http.StatusConflict, "invalid_transition", err.Error())
	case errors.Is(err, apperrors.ErrVersionNotPending):
		_ = ErrorResponse(w, http.StatusConflict, "version_not_pending", err.Error())
	case errors.Is(err, apperrors.ErrRedraftLimit):
		_ = ErrorResponse(w, http.StatusConflict, "redraft_limit", err.Error())
	default:
		logger.Error("request failed", zap.Error(err))
		_ = ErrorResponse(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
