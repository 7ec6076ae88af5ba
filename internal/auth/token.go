package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims are the claims carried by access and refresh tokens. The user id is
// stored in the standard subject claim.
type Claims struct {
	jwt.RegisteredClaims
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
	FullName string `json:"fullName,omitempty"`
}

// UserID returns the subject of the token.
func (c *Claims) UserID() string {
	return c.Subject
}

// Identity is the profile data embedded into access tokens.
type Identity struct {
	Username string
	Email    string
	FullName string
}

// TokenIssuer signs access and refresh tokens with separate secrets.
type TokenIssuer struct {
	accessSecret  []byte
	accessTTL     time.Duration
	refreshSecret []byte
	refreshTTL    time.Duration
	now           func() time.Time
}

func NewTokenIssuer(accessSecret string, accessTTL time.Duration, refreshSecret string, refreshTTL time.Duration) *TokenIssuer {
	return &TokenIssuer{
		accessSecret:  []byte(accessSecret),
		accessTTL:     accessTTL,
		refreshSecret: []byte(refreshSecret),
		refreshTTL:    refreshTTL,
		now:           time.Now,
	}
}

func (i *TokenIssuer) AccessTTL() time.Duration  { return i.accessTTL }
func (i *TokenIssuer) RefreshTTL() time.Duration { return i.refreshTTL }

// IssueAccessToken signs a short-lived token for userID.
func (i *TokenIssuer) IssueAccessToken(userID string, id Identity) (string, error) {
	claims := Claims{
		RegisteredClaims: i.registered(userID, i.accessTTL),
		Username:         id.Username,
		Email:            id.Email,
		FullName:         id.FullName,
	}
	return sign(claims, i.accessSecret)
}

// IssueRefreshToken signs a long-lived token for userID. Every call yields a
// distinct token, even within the same second.
func (i *TokenIssuer) IssueRefreshToken(userID string) (string, error) {
	return sign(Claims{RegisteredClaims: i.registered(userID, i.refreshTTL)}, i.refreshSecret)
}

// AccessVerifier returns a verifier bound to the access token secret.
func (i *TokenIssuer) AccessVerifier() *TokenVerifier {
	return NewTokenVerifier(string(i.accessSecret))
}

// RefreshVerifier returns a verifier bound to the refresh token secret.
func (i *TokenIssuer) RefreshVerifier() *TokenVerifier {
	return NewTokenVerifier(string(i.refreshSecret))
}

func (i *TokenIssuer) registered(userID string, ttl time.Duration) jwt.RegisteredClaims {
	now := i.now()
	return jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
}

func sign(claims Claims, secret []byte) (string, error) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return token, nil
}

// TokenVerifier checks signature and expiry of tokens signed with one secret.
type TokenVerifier struct {
	secret []byte
}

func NewTokenVerifier(secret string) *TokenVerifier {
	return &TokenVerifier{secret: []byte(secret)}
}

// Verify parses token and returns its claims. Errors are one of
// ErrTokenMalformed, ErrTokenSignatureInvalid or ErrTokenExpired.
func (v *TokenVerifier) Verify(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
			return nil, ErrTokenSignatureInvalid
		default:
			return nil, ErrTokenMalformed
		}
	}
	if !parsed.Valid || claims.Subject == "" {
		return nil, ErrTokenMalformed
	}
	return claims, nil
}
