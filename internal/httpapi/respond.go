package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"worklane.io/internal/audit"
	"worklane.io/internal/auth"
	"worklane.io/internal/requirement"
	"worklane.io/internal/task"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := audit.RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

// handleError maps domain sentinels onto HTTP statuses. Illegal
// state-machine edges come back as 422 with the legal targets in the
// message; conditional-update losses and frozen records as 409.
func handleError(w http.ResponseWriter, r *http.Request, err error) {
	var invalid *task.InvalidTransitionError
	switch {
	case errors.Is(err, auth.ErrSessionInvalidated):
		writeError(w, r, http.StatusUnauthorized, err.Error())
	case errors.Is(err, auth.ErrUnauthenticated):
		writeError(w, r, http.StatusUnauthorized, "unauthenticated")
	case errors.Is(err, auth.ErrForbidden):
		writeError(w, r, http.StatusForbidden, "forbidden")
	case errors.Is(err, auth.ErrNotFound),
		errors.Is(err, task.ErrNotFound),
		errors.Is(err, requirement.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "resource not found")
	case errors.As(err, &invalid):
		writeError(w, r, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, task.ErrTerminal):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, task.ErrStale), errors.Is(err, requirement.ErrStale):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, auth.ErrConflict):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, auth.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
