package storage

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("storage: not found")
	ErrAlreadyExists = errors.New("storage: already exists")
	ErrInvalidKey    = errors.New("storage: invalid key")

	// ErrUnavailable covers network failures and timeouts. It is the only
	// class retried with backoff.
	ErrUnavailable = errors.New("storage: backend unavailable")

	ErrUnauthorized  = errors.New("storage: unauthorized")
	ErrQuotaExceeded = errors.New("storage: quota exceeded")
	ErrConfig        = errors.New("storage: configuration error")
)

// Error carries the operation, key and backend of a failed storage call.
type Error struct {
	Op      string
	Key     string
	Backend string
	Err     error
}

func (e *Error) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("storage %s %s %s: %v", e.Backend, e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("storage %s %s: %v", e.Backend, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether err belongs to the transient class.
func Retryable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
