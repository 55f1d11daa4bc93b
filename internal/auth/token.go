package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	issuer = "worklane"

	accessTTL            = 15 * time.Minute
	refreshTTL           = 2 * time.Hour
	refreshTTLRemembered = 7 * 24 * time.Hour

	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// Claims carried by both tokens of a pair, so either can be decoded to
// re-resolve identity.
type Claims struct {
	Email       string `json:"email"`
	Name        string `json:"name"`
	RoleLabel   string `json:"role"`
	WorkspaceID string `json:"workspace_id"`
	// Kind is absent on tokens minted before principal kinds existed;
	// the resolver falls back to probing every variant then.
	Kind      string `json:"kind,omitempty"`
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// TokenPair is a freshly signed access/refresh credential set.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// IssueTokenPair signs both tokens with the same private key under
// RS256. Pure function of its inputs; callers persist the refresh token
// value and expiry on the principal.
func IssueTokenPair(privatePEM string, claims Claims, rememberMe bool, now time.Time) (TokenPair, error) {
	key, err := parseRSAPrivateKey(privatePEM)
	if err != nil {
		return TokenPair{}, err
	}

	refreshLifetime := refreshTTL
	if rememberMe {
		refreshLifetime = refreshTTLRemembered
	}
	accessExp := now.Add(accessTTL)
	refreshExp := now.Add(refreshLifetime)

	sign := func(tokenType string, exp time.Time) (string, error) {
		c := claims
		c.TokenType = tokenType
		c.Issuer = issuer
		c.IssuedAt = jwt.NewNumericDate(now)
		c.ExpiresAt = jwt.NewNumericDate(exp)
		c.ID = uuid.NewString()
		return jwt.NewWithClaims(jwt.SigningMethodRS256, c).SignedString(key)
	}

	access, err := sign(tokenTypeAccess, accessExp)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := sign(tokenTypeRefresh, refreshExp)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// VerifyStatus is the explicit outcome of a token verification, so the
// session guard can branch exhaustively instead of matching error
// identities.
type VerifyStatus int

const (
	VerifyValid VerifyStatus = iota
	VerifyExpired
	VerifySignatureMismatch
	VerifyMalformed
)

func (s VerifyStatus) String() string {
	switch s {
	case VerifyValid:
		return "valid"
	case VerifyExpired:
		return "expired"
	case VerifySignatureMismatch:
		return "signature_mismatch"
	default:
		return "malformed"
	}
}

// VerifyToken checks the token signature against the principal's public
// key and validates registered claims.
func VerifyToken(publicPEM, token string) (*Claims, VerifyStatus) {
	key, err := parseRSAPublicKey(publicPEM)
	if err != nil {
		return nil, VerifyMalformed
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		return key, nil
	}, jwt.WithValidMethods([]string{"RS256"}), jwt.WithIssuer(issuer))
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, VerifyExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, VerifySignatureMismatch
		default:
			return nil, VerifyMalformed
		}
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, VerifyMalformed
	}
	return claims, VerifyValid
}

// DecodeUnverified extracts claims without checking the signature. Used
// only to learn which principal's public key to verify against.
func DecodeUnverified(token string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, errors.New("auth: token has no subject")
	}
	return claims, nil
}
