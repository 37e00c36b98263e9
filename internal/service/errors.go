package service

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrTokenExpired and ErrTokenNotFound are refinements of ErrUnauthenticated.
	ErrTokenExpired  = fmt.Errorf("%w: token expired", ErrUnauthenticated)
	ErrTokenNotFound = fmt.Errorf("%w: token not found", ErrUnauthenticated)

	ErrConflict     = errors.New("conflict")
	ErrNotFound     = errors.New("not found")
	ErrForbidden    = errors.New("forbidden")
	ErrInvalidInput = errors.New("invalid input")

	// ErrCacheUnavailable means the cache could not be read or invalidated and
	// data served afterwards may be stale.
	ErrCacheUnavailable = errors.New("cache unavailable")
)

func invalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
