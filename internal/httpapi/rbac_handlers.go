package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"worklane.io/internal/audit"
	"worklane.io/internal/auth"
	"worklane.io/internal/notify"
)

type createRoleRequest struct {
	Name        string   `json:"name"`
	Permissions []string `json:"permissions"`
}

type updateRolePermissionsRequest struct {
	Permissions []string `json:"permissions"`
}

type assignRoleRequest struct {
	RoleID string `json:"role_id"`
}

type createMemberRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	RoleID   string `json:"role_id"`
}

type createClientRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// ensurePermission resolves the identity and applies the gate; it writes
// the response itself on failure.
func (a *API) ensurePermission(w http.ResponseWriter, r *http.Request, perm string) (*auth.Identity, bool) {
	identity, ok := identityFrom(r)
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthenticated")
		return nil, false
	}
	if err := auth.Authorize(identity, auth.ModeAny, perm); err != nil {
		handleError(w, r, err)
		return nil, false
	}
	return identity, true
}

func (a *API) handleRoles(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		identity, ok := identityFrom(r)
		if !ok {
			writeError(w, r, http.StatusUnauthorized, "unauthenticated")
			return
		}
		roles, err := a.auth.ListRoles(r.Context(), identity.Principal.WorkspaceID)
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"roles": roles})
	case http.MethodPost:
		identity, ok := a.ensurePermission(w, r, auth.PermRoleManage)
		if !ok {
			return
		}
		var req createRoleRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		role, err := a.auth.CreateRole(r.Context(), identity.Principal.WorkspaceID, req.Name, req.Permissions)
		if err != nil {
			handleError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "role.create", map[string]any{"role_id": role.ID, "name": role.Name})
		w.Header().Set("Location", fmt.Sprintf("/v1/roles/%s", role.ID))
		writeJSON(w, http.StatusCreated, role)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleRoleResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/roles/")
	path = strings.Trim(path, "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	roleID := parts[0]

	switch {
	case len(parts) == 1:
		if r.Method != http.MethodDelete {
			methodNotAllowed(w, r, http.MethodDelete)
			return
		}
		identity, ok := a.ensurePermission(w, r, auth.PermRoleManage)
		if !ok {
			return
		}
		if err := a.auth.DeleteRole(r.Context(), identity.Principal.WorkspaceID, roleID); err != nil {
			handleError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "role.delete", map[string]any{"role_id": roleID})
		w.WriteHeader(http.StatusNoContent)
	case len(parts) == 2 && parts[1] == "permissions":
		if r.Method != http.MethodPut {
			methodNotAllowed(w, r, http.MethodPut)
			return
		}
		identity, ok := a.ensurePermission(w, r, auth.PermRoleManage)
		if !ok {
			return
		}
		var req updateRolePermissionsRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		if err := a.auth.UpdateRolePermissions(r.Context(), identity.Principal.WorkspaceID, roleID, req.Permissions); err != nil {
			handleError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "role.permissions.update", map[string]any{
			"role_id": roleID,
			"count":   len(req.Permissions),
		})
		w.WriteHeader(http.StatusNoContent)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleMembers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		identity, ok := identityFrom(r)
		if !ok {
			writeError(w, r, http.StatusUnauthorized, "unauthenticated")
			return
		}
		members, err := a.auth.ListPrincipals(r.Context(), identity.Principal.WorkspaceID, auth.KindMember)
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"members": members})
	case http.MethodPost:
		identity, ok := a.ensurePermission(w, r, auth.PermMemberManage)
		if !ok {
			return
		}
		var req createMemberRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		member, err := a.auth.CreateMember(r.Context(), identity.Principal.WorkspaceID, req.Name, req.Email, req.Password, req.RoleID)
		if err != nil {
			handleError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "member.create", map[string]any{"member_id": member.ID, "email": member.Email})
		notify.Fire(r.Context(), a.notify, member.Email, "Welcome to the workspace",
			fmt.Sprintf("%s added you to their workspace.", identity.Principal.Name))
		w.Header().Set("Location", fmt.Sprintf("/v1/members/%s", member.ID))
		writeJSON(w, http.StatusCreated, member)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleMemberResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/members/")
	path = strings.Trim(path, "/")
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[1] != "role" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}
	identity, ok := a.ensurePermission(w, r, auth.PermMemberManage)
	if !ok {
		return
	}
	var req assignRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	memberID := parts[0]
	if err := a.auth.AssignRole(r.Context(), identity.Principal.WorkspaceID, memberID, strings.TrimSpace(req.RoleID)); err != nil {
		handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "member.assign_role", map[string]any{
		"member_id": memberID,
		"role_id":   req.RoleID,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleClients(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		identity, ok := identityFrom(r)
		if !ok {
			writeError(w, r, http.StatusUnauthorized, "unauthenticated")
			return
		}
		clients, err := a.auth.ListPrincipals(r.Context(), identity.Principal.WorkspaceID, auth.KindClient)
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"clients": clients})
	case http.MethodPost:
		identity, ok := a.ensurePermission(w, r, auth.PermClientManage)
		if !ok {
			return
		}
		var req createClientRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		client, err := a.auth.CreateClient(r.Context(), identity.Principal.WorkspaceID, req.Name, req.Email, req.Password)
		if err != nil {
			handleError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "client.create", map[string]any{"client_id": client.ID, "email": client.Email})
		notify.Fire(r.Context(), a.notify, client.Email, "You have been invited",
			fmt.Sprintf("%s invited you to collaborate.", identity.Principal.Name))
		w.Header().Set("Location", fmt.Sprintf("/v1/clients/%s", client.ID))
		writeJSON(w, http.StatusCreated, client)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}
