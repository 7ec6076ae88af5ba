package auth

import "errors"

// Session lifecycle errors. Callers match them with errors.Is; the api
// package maps each one to an HTTP status.
var (
	ErrValidation         = errors.New("validation error")
	ErrConflict           = errors.New("user with email or username already exists")
	ErrNotFound           = errors.New("user does not exist")
	ErrInvalidCredentials = errors.New("invalid user credentials")
	ErrUnauthorized       = errors.New("unauthorized request")
	ErrPasswordMismatch   = errors.New("new password and confirmation do not match")
	ErrUpstream           = errors.New("media upload failed")
	ErrInternal           = errors.New("internal error")
)

// Token verification errors.
var (
	ErrTokenMalformed        = errors.New("token is malformed")
	ErrTokenSignatureInvalid = errors.New("token signature is invalid")
	ErrTokenExpired          = errors.New("token is expired")
)
