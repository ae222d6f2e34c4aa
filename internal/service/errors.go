package service

import "errors"

// Externally visible error kinds. Handlers map these to HTTP status codes;
// anything else is a 500.
var (
	// ErrInvalidCredentials covers unknown email, wrong password and
	// inactive accounts alike, so a login response never reveals whether
	// the email exists.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrSessionNotFound    = errors.New("session not found")
	ErrUserNotFound       = errors.New("user not found")
	ErrEmailTaken         = errors.New("email already registered")
	ErrUsernameTaken      = errors.New("username already taken")
	ErrWeakPassword       = errors.New("password too short")
)
