package auth

import "errors"

var (
	ErrUnauthorized = errors.New("auth: unauthorized")
	ErrForbidden    = errors.New("auth: forbidden")
	ErrInvalidToken = errors.New("auth: invalid token")
	// ErrCompanyMismatch indicates a resource belongs to another company.
	ErrCompanyMismatch = errors.New("auth: company mismatch")
	// ErrNotFound indicates the checked resource does not exist.
	ErrNotFound = errors.New("auth: resource not found")
)
