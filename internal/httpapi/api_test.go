package httpapi

import (
	"context"
	"sync"
	"time"

	"worklane.io/internal/auth"
)

// fakeAuthStore is a minimal in-memory auth.Store for handler tests.
type fakeAuthStore struct {
	mu         sync.Mutex
	principals map[string]*auth.Principal
	roles      map[string]*auth.Role
	perms      map[string]auth.Permission
}

func newFakeAuthStore() *fakeAuthStore {
	return &fakeAuthStore{
		principals: make(map[string]*auth.Principal),
		roles:      make(map[string]*auth.Role),
		perms:      make(map[string]auth.Permission),
	}
}

func (f *fakeAuthStore) Principals(context.Context) auth.PrincipalStore { return (*fakePrincipals)(f) }
func (f *fakeAuthStore) Roles(context.Context) auth.RoleStore           { return (*fakeRoles)(f) }
func (f *fakeAuthStore) Permissions(context.Context) auth.PermissionStore {
	return (*fakePerms)(f)
}

type fakePrincipals fakeAuthStore

func (f *fakePrincipals) Create(_ context.Context, p *auth.Principal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.principals {
		if existing.Email == p.Email {
			return auth.ErrConflict
		}
	}
	cp := *p
	f.principals[p.ID] = &cp
	return nil
}

func (f *fakePrincipals) Find(_ context.Context, kind auth.Kind, id string) (*auth.Principal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.principals[id]
	if !ok || p.Kind != kind {
		return nil, auth.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakePrincipals) FindAny(_ context.Context, id string) (*auth.Principal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.principals[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakePrincipals) FindByEmail(_ context.Context, email string) (*auth.Principal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.principals {
		if p.Email == email {
			cp := *p
			return &cp, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (f *fakePrincipals) ListByWorkspace(_ context.Context, workspaceID string, kind auth.Kind) ([]*auth.Principal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var res []*auth.Principal
	for _, p := range f.principals {
		if p.WorkspaceID == workspaceID && p.Kind == kind {
			cp := *p
			res = append(res, &cp)
		}
	}
	return res, nil
}

func (f *fakePrincipals) SetKeys(_ context.Context, id, privatePEM, publicPEM string) error {
	return f.update(id, func(p *auth.Principal) {
		p.PrivateKeyPEM = privatePEM
		p.PublicKeyPEM = publicPEM
	})
}

func (f *fakePrincipals) SetRefreshToken(_ context.Context, id, token string, expiresAt time.Time, rememberMe bool) error {
	return f.update(id, func(p *auth.Principal) {
		p.RefreshToken = token
		p.RefreshExpiresAt = expiresAt
		p.RememberMe = rememberMe
	})
}

func (f *fakePrincipals) ClearRefreshToken(_ context.Context, id string) error {
	return f.update(id, func(p *auth.Principal) {
		p.RefreshToken = ""
		p.RefreshExpiresAt = time.Time{}
	})
}

func (f *fakePrincipals) SetRole(_ context.Context, id, roleID string) error {
	return f.update(id, func(p *auth.Principal) { p.RoleID = roleID })
}

func (f *fakePrincipals) SetPassword(_ context.Context, id, passwordHash string) error {
	return f.update(id, func(p *auth.Principal) { p.PasswordHash = passwordHash })
}

func (f *fakePrincipals) update(id string, fn func(*auth.Principal)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.principals[id]
	if !ok {
		return auth.ErrNotFound
	}
	fn(p)
	return nil
}

type fakeRoles fakeAuthStore

func (f *fakeRoles) Create(_ context.Context, role *auth.Role) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.roles {
		if existing.WorkspaceID == role.WorkspaceID && existing.Name == role.Name {
			return auth.ErrConflict
		}
	}
	cp := *role
	f.roles[role.ID] = &cp
	return nil
}

func (f *fakeRoles) Find(_ context.Context, id string) (*auth.Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	role, ok := f.roles[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *role
	return &cp, nil
}

func (f *fakeRoles) FindByName(_ context.Context, workspaceID, name string) (*auth.Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, role := range f.roles {
		if role.WorkspaceID == workspaceID && role.Name == name {
			cp := *role
			return &cp, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (f *fakeRoles) ListByWorkspace(_ context.Context, workspaceID string) ([]*auth.Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var res []*auth.Role
	for _, role := range f.roles {
		if role.WorkspaceID == workspaceID {
			cp := *role
			res = append(res, &cp)
		}
	}
	return res, nil
}

func (f *fakeRoles) SetPermissions(_ context.Context, roleID string, keys []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	role, ok := f.roles[roleID]
	if !ok {
		return auth.ErrNotFound
	}
	role.Permissions = append([]string(nil), keys...)
	return nil
}

func (f *fakeRoles) Delete(_ context.Context, roleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.roles[roleID]; !ok {
		return auth.ErrNotFound
	}
	delete(f.roles, roleID)
	return nil
}

func (f *fakeRoles) MembersWithRole(_ context.Context, roleID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for _, p := range f.principals {
		if p.Kind == auth.KindMember && p.RoleID == roleID {
			ids = append(ids, p.ID)
		}
	}
	return ids, nil
}

type fakePerms fakeAuthStore

func (f *fakePerms) Ensure(_ context.Context, perms []auth.Permission) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range perms {
		f.perms[p.Key] = p
	}
	return nil
}

func (f *fakePerms) List(_ context.Context) ([]auth.Permission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	res := make([]auth.Permission, 0, len(f.perms))
	for _, p := range f.perms {
		res = append(res, p)
	}
	return res, nil
}
