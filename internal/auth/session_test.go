package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestService(t *testing.T, store *memStore, opts ...ServiceOption) *Service {
	t.Helper()
	svc, err := NewService(store, opts...)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	if err := svc.EnsureBuiltins(context.Background()); err != nil {
		t.Fatalf("EnsureBuiltins: %v", err)
	}
	return svc
}

func seedOwner(t *testing.T, store *memStore) *Principal {
	t.Helper()
	hash, err := HashPassword("hunter22")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	priv, pub, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	p := &Principal{
		ID:            "owner-1",
		WorkspaceID:   "ws-1",
		Kind:          KindOwner,
		Name:          "Alex",
		Email:         "alex@example.com",
		PasswordHash:  hash,
		PrivateKeyPEM: priv,
		PublicKeyPEM:  pub,
	}
	if err := store.Principals(context.Background()).Create(context.Background(), p); err != nil {
		t.Fatalf("seed principal: %v", err)
	}
	return p
}

func TestLoginAndAuthenticateAccessToken(t *testing.T) {
	store := newMemStore()
	svc := newTestService(t, store)
	seedOwner(t, store)
	ctx := context.Background()

	identity, pair, err := svc.Login(ctx, "alex@example.com", "hunter22", false)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if identity.DisplayRole != DisplayRoleOwner {
		t.Fatalf("display role = %q, want Owner", identity.DisplayRole)
	}

	got, rotated, err := svc.Authenticate(ctx, pair.AccessToken, pair.RefreshToken)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if rotated != nil {
		t.Fatal("valid access token should not rotate the pair")
	}
	if got.Principal.ID != "owner-1" {
		t.Fatalf("principal = %q", got.Principal.ID)
	}
}

func TestLoginBadCredentials(t *testing.T) {
	store := newMemStore()
	svc := newTestService(t, store)
	seedOwner(t, store)
	ctx := context.Background()

	if _, _, err := svc.Login(ctx, "alex@example.com", "wrong", false); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("bad password: err = %v, want ErrUnauthenticated", err)
	}
	if _, _, err := svc.Login(ctx, "nobody@example.com", "hunter22", false); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("unknown email: err = %v, want ErrUnauthenticated", err)
	}
	// An invited client with no password yet fails the same way.
	_ = store.Principals(ctx).Create(ctx, &Principal{
		ID: "client-1", WorkspaceID: "ws-1", Kind: KindClient,
		Name: "Acme", Email: "acme@example.com",
	})
	if _, _, err := svc.Login(ctx, "acme@example.com", "", false); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("invited client: err = %v, want ErrUnauthenticated", err)
	}
}

func TestAuthenticateCrossDeviceInvalidation(t *testing.T) {
	store := newMemStore()
	svc := newTestService(t, store)
	seedOwner(t, store)
	ctx := context.Background()

	_, deviceA, err := svc.Login(ctx, "alex@example.com", "hunter22", false)
	if err != nil {
		t.Fatalf("login A: %v", err)
	}
	// A second login overwrites the stored refresh token.
	if _, _, err := svc.Login(ctx, "alex@example.com", "hunter22", false); err != nil {
		t.Fatalf("login B: %v", err)
	}

	// Device A's access token still verifies, but its refresh token no
	// longer matches the stored one.
	_, _, err = svc.Authenticate(ctx, deviceA.AccessToken, deviceA.RefreshToken)
	if !errors.Is(err, ErrSessionInvalidated) {
		t.Fatalf("err = %v, want ErrSessionInvalidated", err)
	}
}

func TestAuthenticateRefreshRotation(t *testing.T) {
	store := newMemStore()
	svc := newTestService(t, store)
	seedOwner(t, store)
	ctx := context.Background()

	_, pair, err := svc.Login(ctx, "alex@example.com", "hunter22", true)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	// No access token: the refresh fallback rotates the pair.
	identity, rotated, err := svc.Authenticate(ctx, "", pair.RefreshToken)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if rotated == nil {
		t.Fatal("expected a rotated token pair")
	}
	if identity.Principal.ID != "owner-1" {
		t.Fatalf("principal = %q", identity.Principal.ID)
	}
	// Rotation preserves the remembered lifetime.
	if lifetime := rotated.RefreshExpiresAt.Sub(time.Now()); lifetime < 6*24*time.Hour {
		t.Fatalf("rotated refresh lifetime = %s, want ~7d", lifetime)
	}

	// The superseded refresh token is dead and reported distinctly.
	if _, _, err := svc.Authenticate(ctx, "", pair.RefreshToken); !errors.Is(err, ErrSessionInvalidated) {
		t.Fatalf("replayed refresh: err = %v, want ErrSessionInvalidated", err)
	}
	// The rotated one works.
	if _, _, err := svc.Authenticate(ctx, "", rotated.RefreshToken); err != nil {
		t.Fatalf("rotated refresh: %v", err)
	}
}

func TestAuthenticateExpiredRefresh(t *testing.T) {
	store := newMemStore()
	past := time.Now().Add(-3 * time.Hour)
	svc := newTestService(t, store, WithClock(func() time.Time { return past }))
	seedOwner(t, store)
	ctx := context.Background()

	_, pair, err := svc.Login(ctx, "alex@example.com", "hunter22", false)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	// Issued 3h ago with a 2h lifetime: both tokens are expired now.
	if _, _, err := svc.Authenticate(ctx, pair.AccessToken, pair.RefreshToken); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("err = %v, want ErrUnauthenticated", err)
	}
}

func TestAuthenticateNoTokens(t *testing.T) {
	store := newMemStore()
	svc := newTestService(t, store)

	if _, _, err := svc.Authenticate(context.Background(), "", ""); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("err = %v, want ErrUnauthenticated", err)
	}
}

func TestLogoutEndsSession(t *testing.T) {
	store := newMemStore()
	svc := newTestService(t, store)
	seedOwner(t, store)
	ctx := context.Background()

	_, pair, err := svc.Login(ctx, "alex@example.com", "hunter22", false)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if err := svc.Logout(ctx, "owner-1"); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, _, err := svc.Authenticate(ctx, "", pair.RefreshToken); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("after logout: err = %v, want ErrUnauthenticated", err)
	}
}

func TestAuthenticateLegacyTokenWithoutKind(t *testing.T) {
	store := newMemStore()
	svc := newTestService(t, store)
	p := seedOwner(t, store)
	ctx := context.Background()

	claims := Claims{
		Email:       p.Email,
		Name:        p.Name,
		WorkspaceID: p.WorkspaceID,
	}
	claims.Subject = p.ID
	pair, err := IssueTokenPair(p.PrivateKeyPEM, claims, false, time.Now().UTC())
	if err != nil {
		t.Fatalf("IssueTokenPair: %v", err)
	}
	identity, _, err := svc.Authenticate(ctx, pair.AccessToken, "")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if identity.Principal.Kind != KindOwner {
		t.Fatalf("resolved kind = %q, want owner", identity.Principal.Kind)
	}
}
