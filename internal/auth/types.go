package auth

import "time"

// Kind discriminates the three principal variants.
type Kind string

const (
	KindOwner  Kind = "owner"
	KindMember Kind = "member"
	KindClient Kind = "client"
)

// Valid reports whether k names a known principal variant.
func (k Kind) Valid() bool {
	switch k {
	case KindOwner, KindMember, KindClient:
		return true
	}
	return false
}

// Principal is an authenticatable actor. All three variants share the
// same record shape; Kind selects the behavior.
//
// An empty PasswordHash on a client means "invited but not yet
// activated". Key pairs may be absent on records predating per-principal
// keys and are generated on first successful login.
type Principal struct {
	ID           string `json:"id"`
	WorkspaceID  string `json:"workspace_id"`
	Kind         Kind   `json:"kind"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	PasswordHash string `json:"-"`

	// RoleID is set for members only. Empty means the workspace's
	// default MEMBER role applies.
	RoleID string `json:"role_id,omitempty"`

	PublicKeyPEM  string `json:"-"`
	PrivateKeyPEM string `json:"-"`

	// At most one refresh token is valid per principal; issuing a new
	// one overwrites the previous value.
	RefreshToken     string    `json:"-"`
	RefreshExpiresAt time.Time `json:"-"`
	RememberMe       bool      `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Role is a workspace-scoped named permission set assignable to members.
type Role struct {
	ID          string    `json:"id"`
	WorkspaceID string    `json:"workspace_id"`
	Name        string    `json:"name"`
	IsSystem    bool      `json:"is_system"`
	Permissions []string  `json:"permissions"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Permission is a platform-wide capability key shared read-only by all
// workspaces.
type Permission struct {
	Key         string    `json:"key"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
