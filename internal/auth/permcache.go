package auth

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"worklane.io/internal/obs"
)

const (
	permCacheTTL    = 5 * time.Minute
	permCachePrefix = "perms:"
)

// PermissionSet is the resolved effective permission set plus the
// display role name shown in the UI and embedded in token claims.
type PermissionSet struct {
	Keys        []string `json:"keys"`
	DisplayRole string   `json:"display_role"`
}

// ResolvePermissions computes the effective permission set for a
// principal, reading through the external cache when one is configured.
// Cache unavailability degrades to recomputation, never to failure.
func (s *Service) ResolvePermissions(ctx context.Context, p *Principal) (PermissionSet, error) {
	// Clients have a fixed, code-defined capability set that is not
	// expressed as permissions; nothing to cache.
	if p.Kind == KindClient {
		return PermissionSet{DisplayRole: DisplayRoleClient}, nil
	}

	key := permCachePrefix + p.ID
	if raw, ok, err := s.cache.Get(ctx, key); err != nil {
		obs.ObservePermCache("error")
	} else if ok {
		var set PermissionSet
		if json.Unmarshal([]byte(raw), &set) == nil {
			obs.ObservePermCache("hit")
			return set, nil
		}
	} else {
		obs.ObservePermCache("miss")
	}

	set, err := s.computePermissions(ctx, p)
	if err != nil {
		return PermissionSet{}, err
	}
	if data, err := json.Marshal(set); err == nil {
		if err := s.cache.Set(ctx, key, string(data), permCacheTTL); err != nil {
			obs.ObservePermCache("error")
		}
	}
	return set, nil
}

func (s *Service) computePermissions(ctx context.Context, p *Principal) (PermissionSet, error) {
	switch p.Kind {
	case KindOwner:
		catalog, err := s.store.Permissions(ctx).List(ctx)
		if err != nil {
			return PermissionSet{}, err
		}
		keys := make([]string, 0, len(catalog))
		for _, perm := range catalog {
			keys = append(keys, perm.Key)
		}
		return PermissionSet{Keys: keys, DisplayRole: DisplayRoleOwner}, nil

	case KindMember:
		roles := s.store.Roles(ctx)
		if p.RoleID != "" {
			role, err := roles.Find(ctx, p.RoleID)
			switch {
			case err == nil:
				// A deliberately empty role grants nothing; only the
				// display name falls back to the generic label.
				display := role.Name
				if len(role.Permissions) == 0 {
					display = DisplayRoleMember
				}
				return PermissionSet{Keys: role.Permissions, DisplayRole: display}, nil
			case !errors.Is(err, ErrNotFound):
				return PermissionSet{}, err
			}
			// Role record gone: fall back to the workspace default below.
		}
		member, err := roles.FindByName(ctx, p.WorkspaceID, SystemRoleMember)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return PermissionSet{Keys: DefaultMemberPermissions, DisplayRole: DisplayRoleMember}, nil
			}
			return PermissionSet{}, err
		}
		return PermissionSet{Keys: member.Permissions, DisplayRole: DisplayRoleMember}, nil

	default:
		return PermissionSet{DisplayRole: DisplayRoleClient}, nil
	}
}

// InvalidatePermissions drops the cached permission set for specific
// principals, e.g. after an individual role assignment change.
func (s *Service) InvalidatePermissions(ctx context.Context, principalIDs ...string) {
	if len(principalIDs) == 0 {
		return
	}
	keys := make([]string, len(principalIDs))
	for i, id := range principalIDs {
		keys[i] = permCachePrefix + id
	}
	if err := s.cache.Delete(ctx, keys...); err != nil {
		obs.Warnf("permission cache invalidation failed: %v", err)
	}
}

// InvalidateAllPermissions drops every cached permission set. Used for
// role-level mutations where many members may share the role.
func (s *Service) InvalidateAllPermissions(ctx context.Context) {
	if err := s.cache.DeletePattern(ctx, permCachePrefix); err != nil {
		obs.Warnf("permission cache sweep failed: %v", err)
	}
}
