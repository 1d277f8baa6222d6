package auth

import "errors"

var (
	ErrInvalidToken     = errors.New("auth: invalid token")
	ErrUnknownRole      = errors.New("auth: unknown role")
	ErrInvalidInput     = errors.New("auth: invalid input")
	ErrMissingPrincipal = errors.New("auth: no principal in context")
)
