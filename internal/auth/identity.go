package auth

// Identity is the request-scoped result of authentication: the resolved
// principal plus its effective permission set.
type Identity struct {
	Principal   *Principal
	Permissions map[string]struct{}
	DisplayRole string
}

// IsOwner reports whether the identity is the workspace owner.
func (id *Identity) IsOwner() bool {
	return id != nil && id.Principal != nil && id.Principal.Kind == KindOwner
}

// Has reports whether the resolved permission set contains key.
func (id *Identity) Has(key string) bool {
	if id == nil {
		return false
	}
	_, ok := id.Permissions[key]
	return ok
}

// Mode selects the predicate Authorize applies over required permissions.
type Mode int

const (
	// ModeAny passes when at least one required permission is held.
	ModeAny Mode = iota
	// ModeAll passes only when every required permission is held.
	ModeAll
)

// Authorize checks the identity's permission set against required keys.
// Owner identities always pass: the workspace owner can never be
// permission-gated out of their own workspace. Failure is ErrForbidden,
// never ErrUnauthenticated, because identity is already established.
func Authorize(id *Identity, mode Mode, required ...string) error {
	if id == nil || id.Principal == nil {
		return ErrUnauthenticated
	}
	if id.IsOwner() {
		return nil
	}
	switch mode {
	case ModeAll:
		for _, key := range required {
			if !id.Has(key) {
				return ErrForbidden
			}
		}
		return nil
	default:
		for _, key := range required {
			if id.Has(key) {
				return nil
			}
		}
		if len(required) == 0 {
			return nil
		}
		return ErrForbidden
	}
}
