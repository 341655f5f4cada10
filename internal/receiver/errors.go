package receiver

import "errors"

// Domain errors for the receiver package.
//
// Check with errors.Is:
//
//	if errors.Is(err, receiver.ErrReceiverNotFound) {
//	    // handle not found case
//	}
var (
	// ErrReceiverNotFound is returned when a receiver ID does not exist.
	ErrReceiverNotFound = errors.New("receiver: not found")

	// ErrReceiverExists is returned when creating a receiver whose ID or
	// device URL is already registered.
	ErrReceiverExists = errors.New("receiver: already exists")

	// ErrInvalidReceiver is returned when receiver validation fails.
	ErrInvalidReceiver = errors.New("receiver: invalid")
)
