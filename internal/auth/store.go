package auth

import (
	"context"
	"time"
)

// Store describes persistence operations required by the auth subsystem.
type Store interface {
	Principals(ctx context.Context) PrincipalStore
	Roles(ctx context.Context) RoleStore
	Permissions(ctx context.Context) PermissionStore
}

// PrincipalStore manages the three principal variants.
type PrincipalStore interface {
	Create(ctx context.Context, p *Principal) error
	Find(ctx context.Context, kind Kind, id string) (*Principal, error)
	// FindAny probes owner, then member, then client. Compatibility path
	// for tokens minted without a kind claim only.
	FindAny(ctx context.Context, id string) (*Principal, error)
	// FindByEmail probes the variants in the same priority order.
	FindByEmail(ctx context.Context, email string) (*Principal, error)
	ListByWorkspace(ctx context.Context, workspaceID string, kind Kind) ([]*Principal, error)

	SetKeys(ctx context.Context, id, privatePEM, publicPEM string) error
	SetRefreshToken(ctx context.Context, id, token string, expiresAt time.Time, rememberMe bool) error
	ClearRefreshToken(ctx context.Context, id string) error
	SetRole(ctx context.Context, id, roleID string) error
	SetPassword(ctx context.Context, id, passwordHash string) error
}

// RoleStore manages workspace roles.
type RoleStore interface {
	Create(ctx context.Context, role *Role) error
	Find(ctx context.Context, id string) (*Role, error)
	FindByName(ctx context.Context, workspaceID, name string) (*Role, error)
	ListByWorkspace(ctx context.Context, workspaceID string) ([]*Role, error)
	SetPermissions(ctx context.Context, roleID string, keys []string) error
	Delete(ctx context.Context, roleID string) error
	// MembersWithRole returns ids of members currently referencing the role.
	MembersWithRole(ctx context.Context, roleID string) ([]string, error)
}

// PermissionStore manages the platform permission catalog.
type PermissionStore interface {
	Ensure(ctx context.Context, perms []Permission) error
	List(ctx context.Context) ([]Permission, error)
}
