package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sagarc03/filekeep"
)

// ErrorResponse represents a JSON error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// WriteError writes a JSON error response
func WriteError(w http.ResponseWriter, code int, errCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(ErrorResponse{
		Error:   errCode,
		Message: message,
	}); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}

// ErrorStatus maps a service error to an HTTP status, an error code and a
// client facing message.
func ErrorStatus(err error) (int, string, string) {
	switch {
	case errors.Is(err, filekeep.ErrUnauthenticated):
		return http.StatusUnauthorized, "unauthenticated", "Valid bearer token required"
	case errors.Is(err, filekeep.ErrUnauthorized):
		return http.StatusForbidden, "unauthorized", "Token lacks the required scope"
	case errors.Is(err, filekeep.ErrForbidden):
		return http.StatusForbidden, "forbidden", "Access to this file is denied"
	case errors.Is(err, filekeep.ErrNotFound):
		return http.StatusNotFound, "not_found", "File not found"
	case errors.Is(err, filekeep.ErrNotReady):
		return http.StatusConflict, "not_ready", "File is not available"
	case errors.Is(err, filekeep.ErrReconcileInProgress):
		return http.StatusConflict, "reconcile_in_progress", "A reconcile run is already active"
	case errors.Is(err, filekeep.ErrSizeMismatch):
		return http.StatusUnprocessableEntity, "size_mismatch", "Uploaded size does not match the declared size"
	case errors.Is(err, filekeep.ErrTooLarge):
		return http.StatusRequestEntityTooLarge, "too_large", "Upload exceeds the size limit"
	case errors.Is(err, filekeep.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_input", err.Error()
	case errors.Is(err, filekeep.ErrInconsistent):
		return http.StatusInternalServerError, "inconsistent", "File data is missing"
	case errors.Is(err, filekeep.ErrUploadFailed) && errors.Is(err, filekeep.ErrBlobWrite):
		return http.StatusBadGateway, "upload_failed", "Blob store rejected the upload"
	case errors.Is(err, filekeep.ErrConflict):
		return http.StatusConflict, "conflict", "File was modified concurrently"
	case errors.Is(err, filekeep.ErrBlobRead):
		return http.StatusBadGateway, "blob_unavailable", "Blob store failed to serve the file"
	case errors.Is(err, filekeep.ErrNotSupported):
		return http.StatusNotImplemented, "not_supported", "Operation not supported by this backend"
	}

	return http.StatusInternalServerError, "internal_error", "Internal server error"
}

// HandleError writes appropriate error response based on error type
func HandleError(w http.ResponseWriter, err error) {
	code, errCode, message := ErrorStatus(err)

	if code >= http.StatusInternalServerError {
		slog.Error("request error", "error", err)
	} else {
		slog.Debug("request rejected", "status", code, "error", err)
	}

	if code == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="filekeep"`)
	}

	WriteError(w, code, errCode, message)
}

// HandleRangeError answers 416 for ranges outside the file and falls back to
// HandleError otherwise.
func HandleRangeError(w http.ResponseWriter, err error) {
	if errors.Is(err, errUnsatisfiableRange) || errors.Is(err, filekeep.ErrInvalidInput) {
		WriteError(w, http.StatusRequestedRangeNotSatisfiable, "invalid_range", "Requested range not satisfiable")
		return
	}
	HandleError(w, err)
}

// WriteJSON writes a JSON response
func WriteJSON(w http.ResponseWriter, code int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	return json.NewEncoder(w).Encode(data)
}
