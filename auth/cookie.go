package auth

import (
	"net/http"
	"time"
)

const (
	TokenCookie = "token"
	StateCookie = "oauth_state"
)

// SetTokenCookie writes the JWT token as an HttpOnly cookie living as long
// as the token.
func SetTokenCookie(w http.ResponseWriter, token, domain string, secure bool, ttl time.Duration) {
	c := &http.Cookie{
		Name:     TokenCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
		Secure:   secure,
	}
	if domain != "" {
		c.Domain = domain
	}
	http.SetCookie(w, c)
}

// ClearTokenCookie removes the JWT cookie, matching the same Domain attribute
// so that cross-subdomain cookies are properly cleared.
func ClearTokenCookie(w http.ResponseWriter, domain string) {
	c := &http.Cookie{
		Name:     TokenCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	}
	if domain != "" {
		c.Domain = domain
	}
	http.SetCookie(w, c)
}

// SetStateCookie stores the OAuth state for the callback. SameSite must be
// Lax so the cookie survives the redirect back from Google.
func SetStateCookie(w http.ResponseWriter, state string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     StateCookie,
		Value:    state,
		Path:     "/api/auth/google/",
		MaxAge:   600,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   secure,
	})
}

// ConsumeStateCookie reports whether state matches the stored one and
// clears it.
func ConsumeStateCookie(w http.ResponseWriter, r *http.Request, state string) bool {
	c, err := r.Cookie(StateCookie)
	http.SetCookie(w, &http.Cookie{Name: StateCookie, Path: "/api/auth/google/", MaxAge: -1})
	return err == nil && state != "" && c.Value == state
}
