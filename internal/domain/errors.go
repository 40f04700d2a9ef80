package domain

import "errors"

var (
	// ErrSessionNotFound is returned when no session matches the requested id.
	ErrSessionNotFound = errors.New("session not found")
	// ErrStoreUnavailable is returned when no database handle has been captured yet.
	ErrStoreUnavailable = errors.New("session store unavailable: database not initialized")
	// ErrStoreExecution wraps failures of the statement execution itself.
	ErrStoreExecution = errors.New("session store execution failed")

	ErrUnauthenticated = errors.New("request is not authenticated")
	ErrInvalidShop     = errors.New("invalid shop domain")
	ErrInvalidHMAC     = errors.New("hmac validation failed")
	ErrInvalidState    = errors.New("oauth state is invalid or expired")
)
