package errors

import (
	"errors"

	pkgerrors "github.com/pkg/errors"
)

// Common error types for the user plugin
var (
	// Session errors
	ErrProtocolMismatch = errors.New("unexpected or empty response from the server")
	ErrAlreadyLoggedOut = errors.New("user is not logged in")
	ErrTimedOut         = errors.New("timed out waiting for the server")
	ErrStateNotLoaded   = errors.New("session state has not been loaded")

	// Login errors
	ErrUserNotLoggedIn    = errors.New("user is not logged in to this device")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserBlocked        = errors.New("user is blocked")
	ErrUserNotFound       = errors.New("user not found")

	// Token errors
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")

	// Transport errors
	ErrUnknownTupleType = errors.New("unknown tuple type")
	ErrUnknownSelector  = errors.New("no provider for selector")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrRateLimited      = errors.New("rate limited")
	ErrInvalidRequest   = errors.New("invalid request")

	// General errors
	ErrNotFound = errors.New("not found")
	ErrInternal = errors.New("internal error")
)

// Wrapf annotates err with a message. Cause on the result returns err.
func Wrapf(err error, format string, args ...interface{}) error {
	return pkgerrors.Wrapf(err, format, args...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
