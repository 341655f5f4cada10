package fsapi

import "errors"

// Domain errors for the fsapi package.
//
// Every failure returned from the dispatcher wraps exactly one of these, so
// callers can classify it with errors.Is:
//
//	if errors.Is(err, fsapi.ErrAuth) {
//	    // wrong PIN
//	}
var (
	// ErrInvalidConfig is returned by New when required settings are missing.
	ErrInvalidConfig = errors.New("fsapi: invalid config")

	// ErrDiscovery is returned when the bootstrap URL is unreachable or its
	// response does not name the API root.
	ErrDiscovery = errors.New("fsapi: endpoint discovery failed")

	// ErrAuth is returned when the device rejects the PIN or does not issue
	// a session identifier.
	ErrAuth = errors.New("fsapi: authentication failed")

	// ErrTransport is returned for network failures, timeouts and non-success
	// HTTP statuses that survived the session retry.
	ErrTransport = errors.New("fsapi: transport failure")

	// ErrDecode is returned when a response is not the expected XML shape.
	ErrDecode = errors.New("fsapi: unexpected response")

	// ErrClosed is returned for calls made after Close.
	ErrClosed = errors.New("fsapi: client closed")
)
