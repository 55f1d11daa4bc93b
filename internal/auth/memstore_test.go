package auth

import (
	"context"
	"sync"
	"time"
)

// memStore is an in-memory Store for tests.
type memStore struct {
	mu         sync.Mutex
	principals map[string]*Principal
	roles      map[string]*Role
	perms      map[string]Permission
}

func newMemStore() *memStore {
	return &memStore{
		principals: make(map[string]*Principal),
		roles:      make(map[string]*Role),
		perms:      make(map[string]Permission),
	}
}

func (m *memStore) Principals(context.Context) PrincipalStore { return (*memPrincipals)(m) }
func (m *memStore) Roles(context.Context) RoleStore           { return (*memRoles)(m) }
func (m *memStore) Permissions(context.Context) PermissionStore {
	return (*memPerms)(m)
}

type memPrincipals memStore

func (m *memPrincipals) Create(_ context.Context, p *Principal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.principals {
		if existing.Email == p.Email {
			return ErrConflict
		}
	}
	cp := *p
	m.principals[p.ID] = &cp
	return nil
}

func (m *memPrincipals) Find(_ context.Context, kind Kind, id string) (*Principal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.principals[id]
	if !ok || p.Kind != kind {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memPrincipals) FindAny(_ context.Context, id string) (*Principal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.principals[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memPrincipals) FindByEmail(_ context.Context, email string) (*Principal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var best *Principal
	for _, p := range m.principals {
		if p.Email != email {
			continue
		}
		if best == nil || kindRank(p.Kind) < kindRank(best.Kind) {
			best = p
		}
	}
	if best == nil {
		return nil, ErrNotFound
	}
	cp := *best
	return &cp, nil
}

func kindRank(k Kind) int {
	switch k {
	case KindOwner:
		return 0
	case KindMember:
		return 1
	default:
		return 2
	}
}

func (m *memPrincipals) ListByWorkspace(_ context.Context, workspaceID string, kind Kind) ([]*Principal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res []*Principal
	for _, p := range m.principals {
		if p.WorkspaceID == workspaceID && p.Kind == kind {
			cp := *p
			res = append(res, &cp)
		}
	}
	return res, nil
}

func (m *memPrincipals) SetKeys(_ context.Context, id, privatePEM, publicPEM string) error {
	return m.update(id, func(p *Principal) {
		p.PrivateKeyPEM = privatePEM
		p.PublicKeyPEM = publicPEM
	})
}

func (m *memPrincipals) SetRefreshToken(_ context.Context, id, token string, expiresAt time.Time, rememberMe bool) error {
	return m.update(id, func(p *Principal) {
		p.RefreshToken = token
		p.RefreshExpiresAt = expiresAt
		p.RememberMe = rememberMe
	})
}

func (m *memPrincipals) ClearRefreshToken(_ context.Context, id string) error {
	return m.update(id, func(p *Principal) {
		p.RefreshToken = ""
		p.RefreshExpiresAt = time.Time{}
	})
}

func (m *memPrincipals) SetRole(_ context.Context, id, roleID string) error {
	return m.update(id, func(p *Principal) { p.RoleID = roleID })
}

func (m *memPrincipals) SetPassword(_ context.Context, id, passwordHash string) error {
	return m.update(id, func(p *Principal) { p.PasswordHash = passwordHash })
}

func (m *memPrincipals) update(id string, fn func(*Principal)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.principals[id]
	if !ok {
		return ErrNotFound
	}
	fn(p)
	return nil
}

type memRoles memStore

func (m *memRoles) Create(_ context.Context, role *Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.roles {
		if existing.WorkspaceID == role.WorkspaceID && existing.Name == role.Name {
			return ErrConflict
		}
	}
	cp := *role
	m.roles[role.ID] = &cp
	return nil
}

func (m *memRoles) Find(_ context.Context, id string) (*Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	role, ok := m.roles[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *role
	return &cp, nil
}

func (m *memRoles) FindByName(_ context.Context, workspaceID, name string) (*Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, role := range m.roles {
		if role.WorkspaceID == workspaceID && role.Name == name {
			cp := *role
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memRoles) ListByWorkspace(_ context.Context, workspaceID string) ([]*Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res []*Role
	for _, role := range m.roles {
		if role.WorkspaceID == workspaceID {
			cp := *role
			res = append(res, &cp)
		}
	}
	return res, nil
}

func (m *memRoles) SetPermissions(_ context.Context, roleID string, keys []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	role, ok := m.roles[roleID]
	if !ok {
		return ErrNotFound
	}
	role.Permissions = append([]string(nil), keys...)
	return nil
}

func (m *memRoles) Delete(_ context.Context, roleID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.roles[roleID]; !ok {
		return ErrNotFound
	}
	delete(m.roles, roleID)
	return nil
}

func (m *memRoles) MembersWithRole(_ context.Context, roleID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for _, p := range m.principals {
		if p.Kind == KindMember && p.RoleID == roleID {
			ids = append(ids, p.ID)
		}
	}
	return ids, nil
}

type memPerms memStore

func (m *memPerms) Ensure(_ context.Context, perms []Permission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range perms {
		m.perms[p.Key] = p
	}
	return nil
}

func (m *memPerms) List(_ context.Context) ([]Permission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res := make([]Permission, 0, len(m.perms))
	for _, p := range m.perms {
		res = append(res, p)
	}
	return res, nil
}

// fakeCache records operations for cache-behavior assertions.
type fakeCache struct {
	mu      sync.Mutex
	data    map[string]string
	sets    int
	gets    int
	deletes []string
	sweeps  int
	fail    bool
}

func newFakeCache() *fakeCache {
	return &fakeCache{data: make(map[string]string)}
}

func (c *fakeCache) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	if c.fail {
		return "", false, context.DeadlineExceeded
	}
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *fakeCache) Set(_ context.Context, key, value string, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets++
	if c.fail {
		return context.DeadlineExceeded
	}
	c.data[key] = value
	return nil
}

func (c *fakeCache) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		c.deletes = append(c.deletes, k)
		delete(c.data, k)
	}
	return nil
}

func (c *fakeCache) DeletePattern(_ context.Context, prefix string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweeps++
	for k := range c.data {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			delete(c.data, k)
		}
	}
	return nil
}
