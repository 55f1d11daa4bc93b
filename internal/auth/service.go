package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"worklane.io/internal/cache"
)

// Service provides authentication, session and permission resolution for
// all principal kinds.
type Service struct {
	store Store
	cache cache.Cache
	now   func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service) error

// WithCache supplies the external permission cache. The cache is an
// optimization only; the service never fails because of it.
func WithCache(c cache.Cache) ServiceOption {
	return func(s *Service) error {
		if c != nil {
			s.cache = c
		}
		return nil
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// NewService constructs Service with optional configuration.
func NewService(store Store, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("auth: store is required")
	}
	svc := &Service{
		store: store,
		cache: cache.Noop{},
		now:   time.Now,
	}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}
	return svc, nil
}

// EnsureBuiltins seeds the platform permission catalog.
func (s *Service) EnsureBuiltins(ctx context.Context) error {
	return s.store.Permissions(ctx).Ensure(ctx, BuiltinPermissions)
}

// Login authenticates credentials, rotates the session and returns a
// fresh token pair. The caller persists nothing; the refresh token is
// stored on the principal here.
func (s *Service) Login(ctx context.Context, email, password string, rememberMe bool) (*Identity, TokenPair, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return nil, TokenPair{}, ErrUnauthenticated
	}
	principals := s.store.Principals(ctx)
	p, err := principals.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, TokenPair{}, ErrUnauthenticated
		}
		return nil, TokenPair{}, err
	}
	if err := VerifyPassword(p.PasswordHash, password); err != nil {
		return nil, TokenPair{}, err
	}
	if err := s.ensureKeys(ctx, p); err != nil {
		return nil, TokenPair{}, err
	}

	identity, err := s.identity(ctx, p)
	if err != nil {
		return nil, TokenPair{}, err
	}
	pair, err := IssueTokenPair(p.PrivateKeyPEM, s.buildClaims(p, identity.DisplayRole), rememberMe, s.now().UTC())
	if err != nil {
		return nil, TokenPair{}, err
	}
	if err := principals.SetRefreshToken(ctx, p.ID, pair.RefreshToken, pair.RefreshExpiresAt, rememberMe); err != nil {
		return nil, TokenPair{}, err
	}
	return identity, pair, nil
}

// Logout clears the stored refresh token, ending the session on every
// device that holds it.
func (s *Service) Logout(ctx context.Context, principalID string) error {
	return s.store.Principals(ctx).ClearRefreshToken(ctx, principalID)
}

// ensureKeys generates a key pair for legacy records that predate
// per-principal keys.
func (s *Service) ensureKeys(ctx context.Context, p *Principal) error {
	if p.PrivateKeyPEM != "" && p.PublicKeyPEM != "" {
		return nil
	}
	priv, pub, err := GenerateKeyPair()
	if err != nil {
		return err
	}
	if err := s.store.Principals(ctx).SetKeys(ctx, p.ID, priv, pub); err != nil {
		return err
	}
	p.PrivateKeyPEM = priv
	p.PublicKeyPEM = pub
	return nil
}

func (s *Service) buildClaims(p *Principal, displayRole string) Claims {
	return Claims{
		Email:       p.Email,
		Name:        p.Name,
		RoleLabel:   displayRole,
		WorkspaceID: p.WorkspaceID,
		Kind:        string(p.Kind),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: p.ID,
		},
	}
}

// identity resolves the effective permission set and wraps the principal.
func (s *Service) identity(ctx context.Context, p *Principal) (*Identity, error) {
	set, err := s.ResolvePermissions(ctx, p)
	if err != nil {
		return nil, err
	}
	perms := make(map[string]struct{}, len(set.Keys))
	for _, k := range set.Keys {
		perms[k] = struct{}{}
	}
	return &Identity{Principal: p, Permissions: perms, DisplayRole: set.DisplayRole}, nil
}
