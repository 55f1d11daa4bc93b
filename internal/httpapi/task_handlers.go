package httpapi

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"worklane.io/internal/auth"
	"worklane.io/internal/notify"
	"worklane.io/internal/obs"
	"worklane.io/internal/task"
)

const downloadLinkTTL = 15 * time.Minute

type createTaskRequest struct {
	ClientID    string   `json:"client_id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Assignees   []string `json:"assignees"`
}

type updateTaskRequest struct {
	Title       *string  `json:"title"`
	Description *string  `json:"description"`
	Assignees   []string `json:"assignees"`
}

type transitionRequest struct {
	To   string `json:"to"`
	Note string `json:"note"`
}

func (a *API) handleTasks(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(r)
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthenticated")
		return
	}
	switch r.Method {
	case http.MethodGet:
		items, err := a.tasks.List(r.Context(), identity)
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"tasks": items})
	case http.MethodPost:
		var req createTaskRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		t, err := a.tasks.Create(r.Context(), identity, req.ClientID, req.Title, req.Description, req.Assignees)
		if err != nil {
			handleError(w, r, err)
			return
		}
		w.Header().Set("Location", fmt.Sprintf("/v1/tasks/%s", t.ID))
		writeJSON(w, http.StatusCreated, t)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleTaskResource(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(r)
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthenticated")
		return
	}
	path := strings.TrimPrefix(r.URL.Path, "/v1/tasks/")
	path = strings.Trim(path, "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	taskID := parts[0]

	switch {
	case len(parts) == 1:
		a.handleTask(w, r, identity, taskID)
	case len(parts) == 2 && parts[1] == "transition":
		a.handleTaskTransition(w, r, identity, taskID)
	case len(parts) == 2 && parts[1] == "history":
		a.handleTaskHistory(w, r, identity, taskID)
	case len(parts) == 2 && parts[1] == "attachments":
		a.handleTaskAttachments(w, r, identity, taskID)
	case len(parts) == 3 && parts[1] == "attachments":
		a.handleTaskAttachment(w, r, identity, taskID, parts[2])
	case len(parts) == 4 && parts[1] == "attachments" && parts[3] == "url":
		a.handleTaskAttachmentURL(w, r, identity, taskID, parts[2])
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleTask(w http.ResponseWriter, r *http.Request, identity *auth.Identity, taskID string) {
	switch r.Method {
	case http.MethodGet:
		t, err := a.tasks.Get(r.Context(), identity, taskID)
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, t)
	case http.MethodPatch:
		var req updateTaskRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		t, err := a.tasks.UpdateDetails(r.Context(), identity, taskID, task.Update{
			Title:       req.Title,
			Description: req.Description,
			Assignees:   req.Assignees,
		})
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, t)
	case http.MethodDelete:
		if err := a.tasks.Delete(r.Context(), identity, taskID); err != nil {
			handleError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPatch, http.MethodDelete)
	}
}

func (a *API) handleTaskTransition(w http.ResponseWriter, r *http.Request, identity *auth.Identity, taskID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req transitionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	t, err := a.tasks.Transition(r.Context(), identity, taskID, task.Status(req.To), req.Note)
	if err != nil {
		handleError(w, r, err)
		return
	}
	if t.Status == task.StatusSentToClient {
		a.notifyClient(r, identity, t)
	}
	writeJSON(w, http.StatusOK, t)
}

// notifyClient tells the client their work item is ready for a decision.
// Best-effort: lookup or delivery failures are logged only.
func (a *API) notifyClient(r *http.Request, identity *auth.Identity, t *task.Task) {
	client, err := a.auth.GetPrincipal(r.Context(), identity.Principal.WorkspaceID, auth.KindClient, t.ClientID)
	if err != nil {
		obs.Warnf("task %s: resolving client for notification: %v", t.ID, err)
		return
	}
	notify.Fire(r.Context(), a.notify, client.Email, "Work ready for your review",
		fmt.Sprintf("%q has been sent to you for a decision.", t.Title))
}

func (a *API) handleTaskHistory(w http.ResponseWriter, r *http.Request, identity *auth.Identity, taskID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	entries, err := a.tasks.History(r.Context(), identity, taskID)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": entries})
}

func (a *API) handleTaskAttachments(w http.ResponseWriter, r *http.Request, identity *auth.Identity, taskID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if err := r.ParseMultipartForm(16 << 20); err != nil {
		writeError(w, r, http.StatusBadRequest, "multipart form expected")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "reading upload failed")
		return
	}
	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	tag := task.AttachmentTag(r.FormValue("tag"))
	att, err := a.tasks.AddAttachment(r.Context(), identity, taskID, data, header.Filename, mimeType, tag)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, att)
}

func (a *API) handleTaskAttachment(w http.ResponseWriter, r *http.Request, identity *auth.Identity, taskID, attachmentID string) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodDelete)
		return
	}
	if err := a.tasks.RemoveAttachment(r.Context(), identity, taskID, attachmentID); err != nil {
		handleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleTaskAttachmentURL(w http.ResponseWriter, r *http.Request, identity *auth.Identity, taskID, attachmentID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	url, err := a.tasks.AttachmentURL(r.Context(), identity, taskID, attachmentID, downloadLinkTTL)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"url": url})
}
