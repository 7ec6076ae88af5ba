package auth

import (
	"net/http"
	"time"
)

const (
	AccessTokenCookie  = "accessToken"
	RefreshTokenCookie = "refreshToken"
)

// CookiePolicy decides the attributes of the token cookies. The same policy
// sets and clears them so both paths always agree on Secure.
type CookiePolicy struct {
	Secure bool
}

func (p CookiePolicy) cookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   p.Secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   maxAge,
	}
}

// SetTokens writes both token cookies.
func (p CookiePolicy) SetTokens(w http.ResponseWriter, pair TokenPair, accessTTL, refreshTTL time.Duration) {
	http.SetCookie(w, p.cookie(AccessTokenCookie, pair.AccessToken, int(accessTTL/time.Second)))
	http.SetCookie(w, p.cookie(RefreshTokenCookie, pair.RefreshToken, int(refreshTTL/time.Second)))
}

// ClearTokens expires both token cookies.
func (p CookiePolicy) ClearTokens(w http.ResponseWriter) {
	http.SetCookie(w, p.cookie(AccessTokenCookie, "", -1))
	http.SetCookie(w, p.cookie(RefreshTokenCookie, "", -1))
}
