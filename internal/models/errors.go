package models

import "errors"

// Errors returned by user store implementations.
var (
	ErrUserNotFound = errors.New("user not found")
	ErrUserExists   = errors.New("username or email already taken")
)
