package fsapi

import "errors"

// Domain errors for the FSAPI bridge package.
var (
	// ErrReceiverExists is returned when adding a receiver whose ID or
	// device URL is already managed by the bridge.
	ErrReceiverExists = errors.New("fsapi bridge: receiver already managed")

	// ErrUnknownReceiver is returned when a receiver ID is not managed.
	ErrUnknownReceiver = errors.New("fsapi bridge: unknown receiver")

	// ErrDiscoveryDisabled is returned by Discover when no discoverer is set.
	ErrDiscoveryDisabled = errors.New("fsapi bridge: discovery is not configured")

	// ErrStopped is returned when adding receivers after Stop.
	ErrStopped = errors.New("fsapi bridge: stopped")
)
