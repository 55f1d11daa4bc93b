package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"worklane.io/internal/attach"
)

type createRequirementRequest struct {
	ClientID    string   `json:"client_id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	TaskIDs     []string `json:"task_ids"`
}

type linkTaskRequest struct {
	TaskID string `json:"task_id"`
}

func (a *API) handleRequirements(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(r)
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthenticated")
		return
	}
	switch r.Method {
	case http.MethodGet:
		reqs, err := a.requirements.List(r.Context(), identity)
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"requirements": reqs})
	case http.MethodPost:
		var req createRequirementRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		created, err := a.requirements.Create(r.Context(), identity, req.ClientID, req.Title, req.Description, req.TaskIDs)
		if err != nil {
			handleError(w, r, err)
			return
		}
		w.Header().Set("Location", fmt.Sprintf("/v1/requirements/%s", created.ID))
		writeJSON(w, http.StatusCreated, created)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleRequirementResource(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(r)
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthenticated")
		return
	}
	path := strings.TrimPrefix(r.URL.Path, "/v1/requirements/")
	path = strings.Trim(path, "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	id := parts[0]

	switch {
	case len(parts) == 1:
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		req, err := a.requirements.Get(r.Context(), identity, id)
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, req)
	case len(parts) == 2 && parts[1] == "close":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		if err := a.requirements.Close(r.Context(), identity, id); err != nil {
			handleError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case len(parts) == 2 && parts[1] == "reopen":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		req, err := a.requirements.Reopen(r.Context(), identity, id)
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, req)
	case len(parts) == 2 && parts[1] == "tasks":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		var body linkTaskRequest
		if err := decodeJSON(w, r, &body); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		req, err := a.requirements.LinkTask(r.Context(), identity, id, strings.TrimSpace(body.TaskID))
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, req)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

// handleFileDownload serves attachment bytes against a signed link.
func (a *API) handleFileDownload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if a.files == nil {
		writeError(w, r, http.StatusServiceUnavailable, "attachment store unavailable")
		return
	}
	q := r.URL.Query()
	key, exp, sig := q.Get("key"), q.Get("exp"), q.Get("sig")
	if err := a.files.Verify(key, exp, sig); err != nil {
		switch {
		case errors.Is(err, attach.ErrLinkExpired):
			writeError(w, r, http.StatusForbidden, "download link expired")
		default:
			writeError(w, r, http.StatusForbidden, "invalid download link")
		}
		return
	}
	data, err := a.files.Open(r.Context(), key)
	if err != nil {
		if errors.Is(err, attach.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "resource not found")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", "attachment")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
