package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Von-Base-Enterprises/core-nexus/internal/api/middleware"
	"github.com/Von-Base-Enterprises/core-nexus/internal/domain"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeDomainError maps a sentinel error onto its HTTP status. Server-side
// failures carry the request id as a trace id so a client report can be
// matched against the logs.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrInvalidEmbedding):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, domain.ErrConstraintViolation):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrStorageUnavailable),
		errors.Is(err, domain.ErrProviderUnavailable),
		errors.Is(err, domain.ErrEmbeddingUnavailable):
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error":    err.Error(),
			"trace_id": middleware.RequestIDFromContext(r.Context()),
		})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error":    "internal error",
			"trace_id": middleware.RequestIDFromContext(r.Context()),
		})
	}
}
