package auth

import "errors"

var (
	// ErrInvalidCredentials covers unknown email, wrong password and inactive accounts alike
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrInvalidSession means the token is malformed, expired, or revoked
	ErrInvalidSession = errors.New("invalid session")
)
