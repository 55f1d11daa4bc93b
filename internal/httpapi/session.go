package httpapi

import (
	"errors"
	"net/http"
	"time"

	"worklane.io/internal/auth"
	"worklane.io/internal/obs"
)

const (
	accessCookie  = "accessToken"
	refreshCookie = "refreshToken"
)

var publicPaths = []string{
	"/",
	"/healthz",
	"/readyz",
	"/metrics",
	"/v1/info",
	"/v1/auth/login",
	"/v1/auth/signup",
}

// Signed download links authorize themselves via the HMAC query.
var publicPrefixes = []string{
	"/v1/files/",
}

// withSession authenticates every non-public request from the cookie
// pair. A rotation performed by the refresh fallback re-sets both
// cookies on the response; any auth failure clears them so clients do
// not retry dead credentials.
func (a *API) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		identity, rotated, err := a.auth.Authenticate(r.Context(), cookieValue(r, accessCookie), cookieValue(r, refreshCookie))
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrSessionInvalidated):
				a.clearSessionCookies(w)
				writeError(w, r, http.StatusUnauthorized, err.Error())
			case errors.Is(err, auth.ErrUnauthenticated):
				a.clearSessionCookies(w)
				writeError(w, r, http.StatusUnauthorized, "unauthenticated")
			default:
				obs.Errorf("session guard: %v", err)
				writeError(w, r, http.StatusInternalServerError, "authentication error")
			}
			return
		}
		if rotated != nil {
			a.setSessionCookies(w, *rotated)
		}
		next.ServeHTTP(w, r.WithContext(auth.ContextWithIdentity(r.Context(), identity)))
	})
}

func (a *API) setSessionCookies(w http.ResponseWriter, pair auth.TokenPair) {
	setCookie(w, accessCookie, pair.AccessToken, pair.AccessExpiresAt, a.secureCookies)
	setCookie(w, refreshCookie, pair.RefreshToken, pair.RefreshExpiresAt, a.secureCookies)
}

func (a *API) clearSessionCookies(w http.ResponseWriter) {
	setCookie(w, accessCookie, "", time.Unix(0, 0), a.secureCookies)
	setCookie(w, refreshCookie, "", time.Unix(0, 0), a.secureCookies)
}

func setCookie(w http.ResponseWriter, name, value string, expires time.Time, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	for _, prefix := range publicPrefixes {
		if len(path) >= len(prefix) && path[:len(prefix)] == prefix {
			return true
		}
	}
	return false
}
