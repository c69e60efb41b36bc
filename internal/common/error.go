// Package common defines sentinel errors shared by the service layer and
// its transports. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Record-store errors.
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")
	ErrorInvalidRecord = errors.New("invalid record")

	// Access errors.
	ErrorForbidden   = errors.New("forbidden")
	ErrorInvalidPath = errors.New("invalid path")

	// Service-level errors.
	ErrorInternal = errors.New("internal error")

	// Identity errors.
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)
