// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across collaborator/session layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidCredentials indicates a rejected username/password pair.
	// Retrying cannot change the outcome.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrNoConnectivity indicates the network did not come back within the wait bound.
	ErrNoConnectivity = errors.New("no network connectivity")

	// ErrNoSession indicates an operation that requires an active session was
	// called while signed out.
	ErrNoSession = errors.New("no active session")

	// ErrRefreshInFlight indicates a refresh is already running; the caller's
	// request was dropped rather than queued.
	ErrRefreshInFlight = errors.New("refresh already in flight")

	// ErrProfileNotFound indicates the authenticated principal has no
	// application profile row. Fatal to the session.
	ErrProfileNotFound = errors.New("profile not found")
)
