package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"worklane.io/internal/ids"
)

// CreateRole adds a workspace-defined role. Role names are unique within
// a workspace; system role names are reserved.
func (s *Service) CreateRole(ctx context.Context, workspaceID, name string, perms []string) (*Role, error) {
	workspaceID = strings.TrimSpace(workspaceID)
	name = strings.TrimSpace(name)
	if workspaceID == "" || name == "" {
		return nil, fmt.Errorf("%w: workspace_id and role name are required", ErrInvalidInput)
	}
	if strings.EqualFold(name, SystemRoleOwner) || strings.EqualFold(name, SystemRoleMember) {
		return nil, fmt.Errorf("%w: %s is a reserved role name", ErrInvalidInput, name)
	}
	role := &Role{
		ID:          ids.New(),
		WorkspaceID: workspaceID,
		Name:        name,
		Permissions: dedupeKeys(perms),
	}
	if err := s.store.Roles(ctx).Create(ctx, role); err != nil {
		return nil, err
	}
	return role, nil
}

// ListRoles returns every role of the workspace.
func (s *Service) ListRoles(ctx context.Context, workspaceID string) ([]*Role, error) {
	workspaceID = strings.TrimSpace(workspaceID)
	if workspaceID == "" {
		return nil, fmt.Errorf("%w: workspace_id is required", ErrInvalidInput)
	}
	return s.store.Roles(ctx).ListByWorkspace(ctx, workspaceID)
}

// UpdateRolePermissions replaces a role's permission set and drops every
// cached permission set, since many members may share the role.
func (s *Service) UpdateRolePermissions(ctx context.Context, workspaceID, roleID string, perms []string) error {
	role, err := s.workspaceRole(ctx, workspaceID, roleID)
	if err != nil {
		return err
	}
	if role.IsSystem && role.Name == SystemRoleOwner {
		return fmt.Errorf("%w: the OWNER role cannot be modified", ErrInvalidInput)
	}
	if err := s.store.Roles(ctx).SetPermissions(ctx, roleID, dedupeKeys(perms)); err != nil {
		return err
	}
	s.InvalidateAllPermissions(ctx)
	return nil
}

// DeleteRole removes a workspace-defined role, detaching any members
// still referencing it.
func (s *Service) DeleteRole(ctx context.Context, workspaceID, roleID string) error {
	role, err := s.workspaceRole(ctx, workspaceID, roleID)
	if err != nil {
		return err
	}
	if role.IsSystem {
		return fmt.Errorf("%w: system roles cannot be deleted", ErrInvalidInput)
	}
	roles := s.store.Roles(ctx)
	memberIDs, err := roles.MembersWithRole(ctx, roleID)
	if err != nil {
		return err
	}
	principals := s.store.Principals(ctx)
	for _, id := range memberIDs {
		if err := principals.SetRole(ctx, id, ""); err != nil {
			return err
		}
	}
	if err := roles.Delete(ctx, roleID); err != nil {
		return err
	}
	s.InvalidateAllPermissions(ctx)
	return nil
}

// AssignRole changes a member's role. An empty roleID reverts the member
// to the workspace default.
func (s *Service) AssignRole(ctx context.Context, workspaceID, memberID, roleID string) error {
	p, err := s.store.Principals(ctx).Find(ctx, KindMember, memberID)
	if err != nil {
		return err
	}
	if p.WorkspaceID != workspaceID {
		return ErrNotFound
	}
	if roleID != "" {
		if _, err := s.workspaceRole(ctx, workspaceID, roleID); err != nil {
			return err
		}
	}
	if err := s.store.Principals(ctx).SetRole(ctx, memberID, roleID); err != nil {
		return err
	}
	s.InvalidatePermissions(ctx, memberID)
	return nil
}

// EnsureWorkspaceRoles guarantees the two system roles. OWNER always
// carries the full current permission catalog; it is refreshed here so
// catalog evolution reaches existing workspaces.
func (s *Service) EnsureWorkspaceRoles(ctx context.Context, workspaceID string) error {
	catalog, err := s.store.Permissions(ctx).List(ctx)
	if err != nil {
		return err
	}
	allKeys := make([]string, 0, len(catalog))
	for _, perm := range catalog {
		allKeys = append(allKeys, perm.Key)
	}

	roles := s.store.Roles(ctx)
	owner, err := roles.FindByName(ctx, workspaceID, SystemRoleOwner)
	switch {
	case errors.Is(err, ErrNotFound):
		err = roles.Create(ctx, &Role{
			ID:          ids.New(),
			WorkspaceID: workspaceID,
			Name:        SystemRoleOwner,
			IsSystem:    true,
			Permissions: allKeys,
		})
		if err != nil {
			return err
		}
	case err != nil:
		return err
	case len(owner.Permissions) != len(allKeys):
		if err := roles.SetPermissions(ctx, owner.ID, allKeys); err != nil {
			return err
		}
		s.InvalidateAllPermissions(ctx)
	}

	_, err = roles.FindByName(ctx, workspaceID, SystemRoleMember)
	if errors.Is(err, ErrNotFound) {
		return roles.Create(ctx, &Role{
			ID:          ids.New(),
			WorkspaceID: workspaceID,
			Name:        SystemRoleMember,
			IsSystem:    true,
			Permissions: DefaultMemberPermissions,
		})
	}
	return err
}

// CreateMember registers a member principal with a generated key pair.
func (s *Service) CreateMember(ctx context.Context, workspaceID, name, email, password, roleID string) (*Principal, error) {
	return s.createPrincipal(ctx, KindMember, workspaceID, name, email, password, roleID)
}

// CreateClient registers a client principal. Password may be empty: the
// client is then invited but not yet activated.
func (s *Service) CreateClient(ctx context.Context, workspaceID, name, email, password string) (*Principal, error) {
	return s.createPrincipal(ctx, KindClient, workspaceID, name, email, password, "")
}

// CreateOwner registers the workspace owner and bootstraps system roles.
func (s *Service) CreateOwner(ctx context.Context, workspaceID, name, email, password string) (*Principal, error) {
	if strings.TrimSpace(password) == "" {
		return nil, fmt.Errorf("%w: password is required", ErrInvalidInput)
	}
	p, err := s.createPrincipal(ctx, KindOwner, workspaceID, name, email, password, "")
	if err != nil {
		return nil, err
	}
	if err := s.EnsureWorkspaceRoles(ctx, workspaceID); err != nil {
		return nil, err
	}
	return p, nil
}

// GetPrincipal loads one workspace principal of a known kind.
// Cross-workspace lookups report absence.
func (s *Service) GetPrincipal(ctx context.Context, workspaceID string, kind Kind, id string) (*Principal, error) {
	p, err := s.store.Principals(ctx).Find(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	if p.WorkspaceID != workspaceID {
		return nil, ErrNotFound
	}
	return p, nil
}

// ListPrincipals returns workspace principals of one kind.
func (s *Service) ListPrincipals(ctx context.Context, workspaceID string, kind Kind) ([]*Principal, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: unknown principal kind %q", ErrInvalidInput, kind)
	}
	return s.store.Principals(ctx).ListByWorkspace(ctx, workspaceID, kind)
}

func (s *Service) createPrincipal(ctx context.Context, kind Kind, workspaceID, name, email, password, roleID string) (*Principal, error) {
	workspaceID = strings.TrimSpace(workspaceID)
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(strings.ToLower(email))
	if workspaceID == "" || name == "" {
		return nil, fmt.Errorf("%w: workspace_id and name are required", ErrInvalidInput)
	}
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	if roleID != "" {
		if _, err := s.workspaceRole(ctx, workspaceID, roleID); err != nil {
			return nil, err
		}
	}

	var hash string
	if password != "" {
		var err error
		if hash, err = HashPassword(password); err != nil {
			return nil, err
		}
	} else if kind != KindClient {
		return nil, fmt.Errorf("%w: password is required", ErrInvalidInput)
	}

	priv, pub, err := GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	p := &Principal{
		ID:            ids.New(),
		WorkspaceID:   workspaceID,
		Kind:          kind,
		Name:          name,
		Email:         email,
		PasswordHash:  hash,
		RoleID:        roleID,
		PrivateKeyPEM: priv,
		PublicKeyPEM:  pub,
	}
	if err := s.store.Principals(ctx).Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) workspaceRole(ctx context.Context, workspaceID, roleID string) (*Role, error) {
	role, err := s.store.Roles(ctx).Find(ctx, roleID)
	if err != nil {
		return nil, err
	}
	// Cross-workspace references are reported as absence so existence
	// never leaks across tenants.
	if role.WorkspaceID != workspaceID {
		return nil, ErrNotFound
	}
	return role, nil
}

func dedupeKeys(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := set[v]; ok {
			continue
		}
		set[v] = struct{}{}
		result = append(result, v)
	}
	return result
}
