package auth

import (
	"context"
	"errors"

	"worklane.io/internal/obs"
)

// resolvePrincipal looks up the concrete record behind decoded, not yet
// verified claims. The kind claim directs the lookup; tokens minted
// before kinds existed fall back to probing owner, then member, then
// client. The fallback is a compatibility path only: the probe order is
// arbitrary and could mask a same-identifier collision across variants,
// so every fallback hit is logged with the matched kind.
func (s *Service) resolvePrincipal(ctx context.Context, claims *Claims) (*Principal, error) {
	principals := s.store.Principals(ctx)

	if kind := Kind(claims.Kind); kind.Valid() {
		return principals.Find(ctx, kind, claims.Subject)
	}

	p, err := principals.FindAny(ctx, claims.Subject)
	if err != nil {
		return nil, err
	}
	obs.LogEvent(map[string]any{
		"level":        "warn",
		"msg":          "legacy token without kind claim resolved by probe",
		"principal_id": p.ID,
		"matched_kind": string(p.Kind),
	})
	return p, nil
}

// ResolveClaims is the exported entry for callers that hold decoded
// claims (e.g. tooling); it applies the same kind-directed lookup.
func (s *Service) ResolveClaims(ctx context.Context, claims *Claims) (*Principal, error) {
	if claims == nil || claims.Subject == "" {
		return nil, errors.New("auth: claims have no subject")
	}
	return s.resolvePrincipal(ctx, claims)
}
