// Package common provides shared HTTP utility functions for API handlers.
package common

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ddr-tools/gitstatusd/internal/lock"
	"github.com/ddr-tools/gitstatusd/internal/queue"
	"github.com/ddr-tools/gitstatusd/internal/service"
)

// ErrorResponse is the body of every non-2xx response
type ErrorResponse struct {
	Error string `json:"error"`
}

// WriteJSONResponse writes a JSON response with the given data
func WriteJSONResponse(w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode JSON response", "error", err)
	}
}

// WriteErrorResponse writes a standardized error response
func WriteErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	WriteJSONResponse(w, ErrorResponse{Error: message}, statusCode)
}

// WriteServiceError maps a service error to its HTTP status. Unknown errors
// are logged and reported as 500 without their text.
func WriteServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidCollectionID),
		errors.Is(err, service.ErrUnknownRepoOrg),
		errors.Is(err, lock.ErrInvalidHolder):
		WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, service.ErrCollectionNotFound),
		errors.Is(err, service.ErrStatusNotFound),
		errors.Is(err, queue.ErrMissingQueue):
		WriteErrorResponse(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, service.ErrRefreshBusy):
		WriteErrorResponse(w, err.Error(), http.StatusConflict)
	case errors.Is(err, service.ErrNotReady):
		WriteErrorResponse(w, err.Error(), http.StatusServiceUnavailable)
	default:
		slog.Error("Request failed", "error", err)
		WriteErrorResponse(w, "internal server error", http.StatusInternalServerError)
	}
}
