package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/colinzhu/limit-monitoring-sub001/internal/domain"
)

// writeError maps a domain error to the HTTP status and body required by
// §7, falling back to 500 for anything unrecognized.
func writeError(w http.ResponseWriter, err error) {
	var valErr *domain.ValidationError
	var fxErr *domain.FxError
	var segErr *domain.SegregationError
	var transErr *domain.InvalidTransitionError
	var notFoundErr *domain.NotFoundError
	var transientErr *domain.TransientError

	switch {
	case errors.As(err, &valErr):
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "validation_failed", "violations": valErr.Violations})
	case errors.As(err, &fxErr):
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "currency not supported"})
	case errors.As(err, &segErr):
		writeJSON(w, http.StatusConflict, map[string]any{"error": "authorizer must differ from requester"})
	case errors.As(err, &transErr):
		writeJSON(w, http.StatusConflict, map[string]any{"error": transErr.Error()})
	case errors.As(err, &notFoundErr):
		writeJSON(w, http.StatusNotFound, map[string]any{"error": notFoundErr.Error()})
	case errors.As(err, &transientErr):
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "temporarily unavailable"})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
