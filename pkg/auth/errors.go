package auth

import "errors"

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidCredentials = errors.New("invalid login credentials")
	ErrEmailNotVerified   = errors.New("email not confirmed")
	ErrConflict           = errors.New("user already registered")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrWeakPassword       = errors.New("password should be at least 6 characters")
	ErrInvalidToken       = errors.New("token is invalid or has expired")
	ErrCSRF               = errors.New("invalid csrf token")
	ErrUnknownProvider    = errors.New("unknown oauth provider")
	ErrOAuthState         = errors.New("invalid oauth state")
)
