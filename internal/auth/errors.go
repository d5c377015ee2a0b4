package auth

import "errors"

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidRequest     = errors.New("invalid request")
	ErrNoRefreshToken     = errors.New("no refresh token available")
	ErrMissingToken       = errors.New("no token in authentication response")
)
