package http

import (
	"errors"
	"net/http"

	"github.com/goccy/go-json"

	"projection/internal/core"
	"projection/internal/log"
)

type errorResponse struct {
	Error   string `json:"error"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err onto the response: validation 422, malformed body 400,
// missing row 404 and anything else 500.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	if ve, ok := core.AsValidationError(err); ok {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Error:   "validation_failed",
			Field:   ve.Field,
			Message: ve.Message,
		})
		return
	}
	if errors.Is(err, errBadRequest) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "bad_request", Message: err.Error()})
		return
	}
	if errors.Is(err, core.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not_found"})
		return
	}

	log.FromContext(r.Context()).WithComponent(log.ComponentHTTP).ErrorContext(r.Context(), "Request failed",
		log.NewFields().WithOperation(op).WithError(err).WithErrorType("internal").ToSlice()...)
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "operation_failed"})
}
