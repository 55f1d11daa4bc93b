package auth

import (
	"context"
	"crypto/subtle"
	"errors"

	"worklane.io/internal/obs"
)

// Authenticate runs the session guard over the cookie-carried tokens.
//
// It first tries the access token: unverified decode, principal lookup,
// signature check against the principal's stored public key, then a
// cross-device check that the request's refresh token still matches the
// stored one (a mismatch means another session rotated the credential
// first). When the access token cannot establish identity it falls back
// to the refresh token, which must verify, match the stored value
// exactly and be unexpired; success rotates the pair.
//
// The returned TokenPair is non-nil only when rotation happened and the
// caller must re-set cookies. All verification failures collapse into
// ErrUnauthenticated or ErrSessionInvalidated; only unexpected store
// errors propagate.
func (s *Service) Authenticate(ctx context.Context, accessToken, refreshToken string) (*Identity, *TokenPair, error) {
	if accessToken != "" {
		identity, err := s.tryAccessToken(ctx, accessToken, refreshToken)
		if err != nil {
			return nil, nil, err
		}
		if identity != nil {
			return identity, nil, nil
		}
	}

	if refreshToken == "" {
		return nil, nil, ErrUnauthenticated
	}
	return s.tryRefreshToken(ctx, refreshToken)
}

// tryAccessToken returns (nil, nil) when the access path cannot
// establish identity and the refresh fallback should run.
func (s *Service) tryAccessToken(ctx context.Context, accessToken, refreshToken string) (*Identity, error) {
	claims, err := DecodeUnverified(accessToken)
	if err != nil {
		return nil, nil
	}
	p, err := s.resolvePrincipal(ctx, claims)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if p.PublicKeyPEM == "" {
		return nil, nil
	}
	verified, status := VerifyToken(p.PublicKeyPEM, accessToken)
	if status != VerifyValid || verified.TokenType != tokenTypeAccess {
		return nil, nil
	}
	// Another device rotated the refresh token after this access token
	// was issued: reject distinctly so the client can explain the
	// forced logout instead of showing a generic auth failure.
	if refreshToken != "" && p.RefreshToken != "" && !tokensEqual(p.RefreshToken, refreshToken) {
		obs.ObserveSessionRefresh("invalidated")
		return nil, ErrSessionInvalidated
	}
	return s.identity(ctx, p)
}

func (s *Service) tryRefreshToken(ctx context.Context, refreshToken string) (*Identity, *TokenPair, error) {
	claims, err := DecodeUnverified(refreshToken)
	if err != nil {
		return nil, nil, ErrUnauthenticated
	}
	p, err := s.resolvePrincipal(ctx, claims)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil, ErrUnauthenticated
		}
		return nil, nil, err
	}
	if p.PublicKeyPEM == "" || p.RefreshToken == "" {
		return nil, nil, ErrUnauthenticated
	}
	verified, status := VerifyToken(p.PublicKeyPEM, refreshToken)
	if status != VerifyValid || verified.TokenType != tokenTypeRefresh {
		obs.ObserveSessionRefresh("rejected")
		return nil, nil, ErrUnauthenticated
	}
	// Valid signature but a different stored value: the token was
	// superseded by a later login. Replayed or stolen refresh tokens die
	// here too.
	if !tokensEqual(p.RefreshToken, refreshToken) {
		obs.ObserveSessionRefresh("invalidated")
		return nil, nil, ErrSessionInvalidated
	}
	if s.now().After(p.RefreshExpiresAt) {
		obs.ObserveSessionRefresh("rejected")
		return nil, nil, ErrUnauthenticated
	}

	identity, err := s.identity(ctx, p)
	if err != nil {
		return nil, nil, err
	}
	pair, err := IssueTokenPair(p.PrivateKeyPEM, s.buildClaims(p, identity.DisplayRole), p.RememberMe, s.now().UTC())
	if err != nil {
		return nil, nil, err
	}
	if err := s.store.Principals(ctx).SetRefreshToken(ctx, p.ID, pair.RefreshToken, pair.RefreshExpiresAt, p.RememberMe); err != nil {
		return nil, nil, err
	}
	obs.ObserveSessionRefresh("rotated")
	return identity, &pair, nil
}

func tokensEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
