package middleware

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/mediaprofile/userauth/internal/api"
	"github.com/mediaprofile/userauth/internal/auth"
)

// AccessVerifier verifies access tokens.
type AccessVerifier interface {
	Verify(token string) (*auth.Claims, error)
}

// RequireAuth is middleware that validates the access token and injects the
// user id into the request context. The token is read from the accessToken
// cookie, falling back to an Authorization: Bearer header.
func RequireAuth(verifier AccessVerifier, log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := accessToken(r)
			if token == "" {
				api.Fail(w, http.StatusUnauthorized, "unauthorized request")
				return
			}

			claims, err := verifier.Verify(token)
			if err != nil {
				log.Debug("access token rejected", zap.Error(err))
				api.Fail(w, http.StatusUnauthorized, "invalid access token")
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithUserID(r.Context(), claims.UserID())))
		})
	}
}

func accessToken(r *http.Request) string {
	if c, err := r.Cookie(auth.AccessTokenCookie); err == nil && c.Value != "" {
		return c.Value
	}
	h := r.Header.Get("Authorization")
	if after, ok := strings.CutPrefix(h, "Bearer "); ok {
		return strings.TrimSpace(after)
	}
	return ""
}
