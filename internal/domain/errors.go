package domain

import "errors"

// Caller-input errors. The HTTP layer maps these to 4xx responses; anything
// else coming out of the engine is a runtime failure.
var (
	// ErrUnknownServer is returned when a request names a server slug that is
	// not configured.
	ErrUnknownServer = errors.New("unknown server")

	// ErrUnknownBucket is returned when a request names a bucket outside the
	// classification enumeration.
	ErrUnknownBucket = errors.New("unknown bucket")

	// ErrUnknownDirection is returned when a sync request names a direction
	// other than "newer" or "older".
	ErrUnknownDirection = errors.New("unknown sync direction")

	// ErrInvalidWindow is returned when a seen-state update is missing its
	// time window or the window is inverted.
	ErrInvalidWindow = errors.New("invalid time window")

	// ErrNotFound is returned when an operation targets a post that is not
	// stored.
	ErrNotFound = errors.New("post not found")

	// ErrNoToken is returned when a remote action requires an access token
	// that is not configured for the server.
	ErrNoToken = errors.New("no access token configured for server")
)
