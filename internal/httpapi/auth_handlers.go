package httpapi

import (
	"net/http"
	"sort"

	"worklane.io/internal/audit"
	"worklane.io/internal/auth"
	"worklane.io/internal/ids"
)

type loginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RememberMe bool   `json:"remember_me"`
}

type signupRequest struct {
	WorkspaceName string `json:"workspace_name"`
	Name          string `json:"name"`
	Email         string `json:"email"`
	Password      string `json:"password"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	identity, pair, err := a.auth.Login(r.Context(), req.Email, req.Password, req.RememberMe)
	if err != nil {
		// A failed attempt also drops whatever stale pair the browser
		// still holds.
		a.clearSessionCookies(w)
		handleError(w, r, err)
		return
	}
	a.setSessionCookies(w, pair)
	ctx := auth.ContextWithIdentity(r.Context(), identity)
	_ = audit.LogEvent(ctx, "auth.login", map[string]any{"remember_me": req.RememberMe})
	writeJSON(w, http.StatusOK, identityPayload(identity))
}

// handleSignup bootstraps a workspace: it creates the owner principal
// and the workspace's system roles, then starts a session.
func (a *API) handleSignup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req signupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	workspaceID := ids.New()
	if _, err := a.auth.CreateOwner(r.Context(), workspaceID, req.Name, req.Email, req.Password); err != nil {
		handleError(w, r, err)
		return
	}
	identity, pair, err := a.auth.Login(r.Context(), req.Email, req.Password, false)
	if err != nil {
		handleError(w, r, err)
		return
	}
	a.setSessionCookies(w, pair)
	ctx := auth.ContextWithIdentity(r.Context(), identity)
	_ = audit.LogEvent(ctx, "auth.signup", map[string]any{"workspace_name": req.WorkspaceName})
	writeJSON(w, http.StatusCreated, identityPayload(identity))
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	identity, ok := identityFrom(r)
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthenticated")
		return
	}
	if err := a.auth.Logout(r.Context(), identity.Principal.ID); err != nil {
		handleError(w, r, err)
		return
	}
	a.clearSessionCookies(w)
	_ = audit.LogEvent(r.Context(), "auth.logout", nil)
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	identity, ok := identityFrom(r)
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthenticated")
		return
	}
	writeJSON(w, http.StatusOK, identityPayload(identity))
}

func identityPayload(identity *auth.Identity) map[string]any {
	perms := make([]string, 0, len(identity.Permissions))
	for key := range identity.Permissions {
		perms = append(perms, key)
	}
	sort.Strings(perms)
	return map[string]any{
		"principal":   identity.Principal,
		"role":        identity.DisplayRole,
		"permissions": perms,
	}
}
