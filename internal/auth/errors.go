package auth

import "errors"

var (
	// ErrUnauthenticated covers any missing or invalid credential.
	ErrUnauthenticated = errors.New("auth: unauthenticated")
	// ErrSessionInvalidated means the signature verified but the refresh
	// token was superseded by another device or session.
	ErrSessionInvalidated = errors.New("auth: session invalidated by another login")
	// ErrForbidden means the identity is known but lacks permission.
	ErrForbidden = errors.New("auth: forbidden")

	ErrNotFound     = errors.New("auth: not found")
	ErrConflict     = errors.New("auth: already exists")
	ErrInvalidInput = errors.New("auth: invalid input")
)
